// Package ops layers the NETCONF operations this server understands over the
// client message layer: configuration retrieval, edit-config, datastore
// locking and session control.
package ops

import (
	"encoding/xml"

	"github.com/ulrikforsgren/netconf/client"
	"github.com/ulrikforsgren/netconf/common"
)

// Configuration datastore names.
const (
	RunningCfg   = "running"
	CandidateCfg = "candidate"
	StartupCfg   = "startup"
)

// Edit-config error-option values.
const (
	StopOnErrorErrOpt     = "stop-on-error"
	ContinueOnErrorErrOpt = "continue-on-error"
	RollbackOnErrorErrOpt = "rollback-on-error"
)

// Edit-config default-operation values.
const (
	MergeOp   = "merge"
	ReplaceOp = "replace"
	NoneOp    = "none"
)

// Edit-config test-option values.
const (
	TestThenSetOpt = "test-then-set"
	SetOpt         = "set"
	TestOnlyOpt    = "test-only"
)

// OpSession issues NETCONF operations over an underlying client session.
type OpSession interface {
	client.Session

	// GetSubtree issues <get>, with an optional subtree filter, and stores
	// the response in result, which should be the address of either:
	// - a string, in which case it will hold the <data> body, or
	// - a struct with xml tags.
	GetSubtree(filter interface{}, result interface{}) error

	// GetConfigSubtree issues <get-config> against the source datastore,
	// with an optional subtree filter; result is handled as for GetSubtree.
	GetConfigSubtree(filter interface{}, source string, result interface{}) error

	// EditConfig applies a configuration change to the target datastore.
	// config is defined by a ConfigOption:
	// - Cfg(cfg), an xml string or tagged struct forming the <config> body, or
	// - CfgURL(url), naming the configuration by a <url> element.
	// EditOptions can be added to qualify the operation.
	EditConfig(target string, config ConfigOption, options ...EditOption) error

	// CopyConfig issues <copy-config>; source and target are defined by a
	// CfgDsOpt (DsName or DsURL).
	CopyConfig(source, target CfgDsOpt) error

	// DeleteConfig issues <delete-config> for the target datastore.
	DeleteConfig(target CfgDsOpt) error

	// Lock claims the exclusive lock on the target datastore.
	Lock(target string) error

	// Unlock releases the lock held on the target datastore.
	Unlock(target string) error

	// CloseSession asks the server to end this session.
	CloseSession() error

	// KillSession asks the server to tear down another session.
	KillSession(id uint64) error
}

// NewOpSession layers OpSession operations over an established client session.
func NewOpSession(s client.Session) OpSession {
	return &opSession{s}
}

type opSession struct {
	client.Session
}

func (s *opSession) GetSubtree(filter, result interface{}) error {
	return s.get(newGetRequest(filter), result)
}

func (s *opSession) GetConfigSubtree(filter interface{}, source string, result interface{}) error {
	return s.get(newGetConfigRequest(filter, source), result)
}

func (s *opSession) EditConfig(target string, config ConfigOption, options ...EditOption) error {
	req := &editConfigRequest{Target: dsElement(target)}
	for _, opt := range options {
		opt(req)
	}
	config(req)
	_, err := s.Execute(req)
	return err
}

func (s *opSession) CopyConfig(source, target CfgDsOpt) error {
	req := &copyConfigRequest{Source: &datastore{}, Target: &datastore{}}
	source(req.Source)
	target(req.Target)
	_, err := s.Execute(req)
	return err
}

func (s *opSession) DeleteConfig(target CfgDsOpt) error {
	req := &deleteConfigRequest{Target: &datastore{}}
	target(req.Target)
	_, err := s.Execute(req)
	return err
}

func (s *opSession) Lock(target string) error {
	_, err := s.Execute(&lockRequest{Target: dsElement(target)})
	return err
}

func (s *opSession) Unlock(target string) error {
	_, err := s.Execute(&unlockRequest{Target: dsElement(target)})
	return err
}

func (s *opSession) CloseSession() error {
	_, err := s.Execute(&closeSessionRequest{})
	return err
}

func (s *opSession) KillSession(id uint64) error {
	_, err := s.Execute(&killSessionRequest{ID: id})
	return err
}

// get executes a retrieval request and unmarshals the <data> body of the
// reply into result.
func (s *opSession) get(req common.Request, result interface{}) error {
	reply, err := s.Execute(req)
	if err != nil {
		return err
	}

	switch target := result.(type) {
	case *string:
		data := &dataElement{}
		if err = xml.Unmarshal([]byte(reply.Data), data); err == nil {
			*target = data.Content
		}
		return err
	default:
		return xml.Unmarshal([]byte(reply.Data), &dataElement{Body: result})
	}
}

// dataElement unwraps the <data> element of a get/get-config reply.
type dataElement struct {
	XMLName xml.Name    `xml:"data"`
	Body    interface{} `xml:",any"`
	Content string      `xml:",innerxml"`
}

// Request bodies. Datastore elements are rendered through innerxml because
// the xml marshaller will not emit the self-closing form some devices
// require.

type datastore struct {
	Element string `xml:",innerxml"`
	URL     string `xml:"url,omitempty"`
}

func dsElement(name string) *datastore {
	return &datastore{Element: "<" + name + "/>"}
}

type subtreeFilter struct {
	XMLName xml.Name `xml:"filter"`
	Type    string   `xml:"type,attr"`
	*common.Union
}

type getRequest struct {
	XMLName xml.Name `xml:"get"`
	Filter  *subtreeFilter
}

type getConfigRequest struct {
	XMLName xml.Name   `xml:"get-config"`
	Source  *datastore `xml:"source"`
	Filter  *subtreeFilter
}

type configElement struct {
	XMLName xml.Name `xml:"config"`
	*common.Union
}

type editConfigRequest struct {
	XMLName          xml.Name   `xml:"edit-config"`
	Target           *datastore `xml:"target"`
	ErrorOption      string     `xml:"error-option,omitempty"`
	TestOption       string     `xml:"test-option,omitempty"`
	DefaultOperation string     `xml:"default-operation,omitempty"`
	Config           *configElement
	ConfigURL        string `xml:"url,omitempty"`
}

type copyConfigRequest struct {
	XMLName xml.Name   `xml:"copy-config"`
	Target  *datastore `xml:"target"`
	Source  *datastore `xml:"source"`
}

type deleteConfigRequest struct {
	XMLName xml.Name   `xml:"delete-config"`
	Target  *datastore `xml:"target"`
}

type lockRequest struct {
	XMLName xml.Name   `xml:"lock"`
	Target  *datastore `xml:"target"`
}

type unlockRequest struct {
	XMLName xml.Name   `xml:"unlock"`
	Target  *datastore `xml:"target"`
}

type closeSessionRequest struct {
	XMLName xml.Name `xml:"close-session"`
}

type killSessionRequest struct {
	XMLName xml.Name `xml:"kill-session"`
	ID      uint64   `xml:"session-id"`
}

func newGetRequest(filter interface{}) common.Request {
	req := &getRequest{}
	if filter != nil {
		req.Filter = &subtreeFilter{Type: "subtree", Union: common.GetUnion(filter)}
	}
	return req
}

func newGetConfigRequest(filter interface{}, source string) common.Request {
	req := &getConfigRequest{Source: dsElement(source)}
	if filter != nil {
		req.Filter = &subtreeFilter{Type: "subtree", Union: common.GetUnion(filter)}
	}
	return req
}

// ConfigOption defines the configuration applied by an edit-config operation.
type ConfigOption func(*editConfigRequest)

// Cfg supplies the <config> body, either as an xml string used verbatim or
// as a tagged struct to be marshalled.
func Cfg(cfg interface{}) ConfigOption {
	return func(req *editConfigRequest) {
		req.Config = &configElement{Union: common.GetUnion(cfg)}
	}
}

// CfgURL names the configuration via a <url> element.
func CfgURL(url string) ConfigOption {
	return func(req *editConfigRequest) {
		req.ConfigURL = url
	}
}

// CfgDsOpt defines the datastore operand of copy-config and delete-config.
type CfgDsOpt func(*datastore)

// DsName selects a named configuration datastore (Running, Candidate ...).
func DsName(name string) CfgDsOpt {
	return func(d *datastore) {
		d.Element = "<" + name + "/>"
	}
}

// DsURL selects a datastore by url.
func DsURL(url string) CfgDsOpt {
	return func(d *datastore) {
		d.URL = url
	}
}

// EditOption qualifies an edit-config operation.
type EditOption func(*editConfigRequest)

// DefaultOperation sets the default-operation parameter.
func DefaultOperation(oper string) EditOption {
	return func(req *editConfigRequest) {
		req.DefaultOperation = oper
	}
}

// TestOption sets the test-option parameter.
func TestOption(opt string) EditOption {
	return func(req *editConfigRequest) {
		req.TestOption = opt
	}
}

// ErrorOption sets the error-option parameter.
func ErrorOption(opt string) EditOption {
	return func(req *editConfigRequest) {
		req.ErrorOption = opt
	}
}
