package netconf

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ulrikforsgren/netconf/common"
	"github.com/ulrikforsgren/netconf/xmltree"
)

// rpcRequestMessage is the <rpc> envelope as decoded from the wire. Attrs
// collects every attribute other than message-id, so the reply can echo the
// request's attributes verbatim.
type rpcRequestMessage struct {
	XMLName   xml.Name
	MessageID string     `xml:"message-id,attr"`
	Attrs     []xml.Attr `xml:",any,attr"`
	Body      string     `xml:",innerxml"`
}

// rpcReplyMessage is the <rpc-reply> envelope sent back to the client.
type rpcReplyMessage struct {
	XMLName   xml.Name   `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-reply"`
	MessageID string     `xml:"message-id,attr,omitempty"`
	Attrs     []xml.Attr `xml:",any,attr"`
	Body      string     `xml:",innerxml"`
}

// Request carries one validated RPC to a handler.
type Request struct {
	// CorrelationID tags this request in trace events, so dispatcher
	// activity can be correlated across goroutines and log streams.
	CorrelationID string

	// MessageID is the message-id attribute of the <rpc> element.
	MessageID string

	// Attrs holds the remaining attributes of the <rpc> element. Both are
	// echoed verbatim on the reply.
	Attrs []xml.Attr

	// Operation is the single operation child of the <rpc> element.
	Operation *xmltree.Element

	// Name is the operation's local name, e.g. "edit-config".
	Name string

	// Filter is the <filter> parameter of get and get-config, nil when absent.
	Filter *xmltree.Element

	// Source is the source datastore name of get-config.
	Source string

	// Target is the target datastore name of lock and unlock.
	Target string
}

// okBody is the reply body of an operation that succeeds without data.
const okBody = "<ok/>"

// handleRPC decodes, validates and dispatches one <rpc> PDU, sending exactly
// one reply unless the session is being torn down. It reports whether the
// session should keep reading.
func (h *Session) handleRPC(token xml.StartElement) bool {
	request := &rpcRequestMessage{}
	if err := h.decodeElement(&request, &token); err != nil {
		// XML-parse failures are fatal to the session.
		return false
	}

	req, rpcErr := h.parseRequest(request)
	if rpcErr != nil {
		if rpcErr.Tag == TagMalformedMessage {
			return h.handleMalformed(request.MessageID, rpcErr)
		}
		// A validation failure on a well-formed <rpc> gets an ordinary
		// error reply; the session stays open.
		reply := &rpcReplyMessage{
			MessageID: request.MessageID,
			Attrs:     echoableAttrs(request.Attrs),
			Body:      errorBody(rpcErr),
		}
		return h.encode(reply) == nil
	}

	h.server.trace.RPCReceived(h, req)

	body, opErr := h.dispatch(req)
	if opErr != nil {
		body = errorBody(toRPCError(opErr))
	}

	sendErr := h.sendReply(req, body)
	h.server.trace.RPCReplied(h, req, opErr)
	if sendErr != nil {
		return false
	}

	return h.afterReply(req, opErr)
}

// afterReply applies the session-lifecycle side effects of close-session and
// kill-session, which take effect only after the <ok/> reply has been sent.
func (h *Session) afterReply(req *Request, opErr error) bool {
	if opErr != nil {
		return true
	}
	switch req.Name {
	case "close-session":
		h.setState(stateClosing)
		h.Close()
		return false
	case "kill-session":
		if victim := h.server.session(killTargetID(req)); victim != nil {
			victim.Close()
		}
	}
	return true
}

// handleMalformed deals with a PDU that parsed as XML but is not a valid
// <rpc>. With chunked framing the error is reported to the client; with
// end-of-message framing the protocol has no way to report it, so the
// session ends.
func (h *Session) handleMalformed(messageID string, rpcErr *common.RPCError) bool {
	if !h.chunked {
		return false
	}
	reply := &rpcReplyMessage{MessageID: messageID, Body: errorBody(rpcErr)}
	return h.encode(reply) == nil
}

// parseRequest validates the <rpc> envelope and extracts the operation and
// its parameters.
func (h *Session) parseRequest(request *rpcRequestMessage) (*Request, *common.RPCError) {
	if request.MessageID == "" {
		return nil, ErrMalformedMessage()
	}
	children, err := xmltree.ParseChildren(strings.NewReader(request.Body))
	if err != nil || len(children) != 1 {
		return nil, ErrMalformedMessage()
	}

	req := &Request{
		CorrelationID: uuid.New().String(),
		MessageID:     request.MessageID,
		Attrs:         echoableAttrs(request.Attrs),
		Operation:     children[0],
		Name:          children[0].Tag,
	}

	if rpcErr := h.validateOperation(req); rpcErr != nil {
		return nil, rpcErr
	}
	return req, nil
}

// validateOperation applies the per-operation parameter checks. Operations
// not listed here are passed through to their handler with the operation
// element intact.
func (h *Session) validateOperation(req *Request) *common.RPCError {
	op := req.Operation
	switch req.Name {
	case "get":
		if len(op.Children) > 1 {
			return ErrBadElement(req.Name)
		}
		if len(op.Children) == 1 {
			if op.Children[0].Tag != "filter" {
				return ErrUnknownElement(op.Children[0].Tag)
			}
			req.Filter = op.Children[0]
		}

	case "get-config":
		for _, c := range op.Children {
			switch c.Tag {
			case "source":
				if req.Source != "" {
					return ErrBadElement("source")
				}
				source, rpcErr := datastoreName(c)
				if rpcErr != nil {
					return rpcErr
				}
				req.Source = source
			case "filter":
				if req.Filter != nil {
					return ErrBadElement("filter")
				}
				req.Filter = c
			default:
				return ErrUnknownElement(c.Tag)
			}
		}
		if req.Source == "" {
			return ErrMissingElement("source")
		}

	case "lock", "unlock":
		if op.Find("target") == nil {
			return ErrMissingElement("target")
		}
		// The operation takes exactly one parameter, the <target>.
		if len(op.Children) != 1 {
			return ErrBadElement(req.Name)
		}
		name, rpcErr := datastoreName(op.Children[0])
		if rpcErr != nil {
			return rpcErr
		}
		req.Target = name

	case "kill-session":
		id := op.Find("session-id")
		if id == nil {
			return ErrMissingElement("session-id")
		}
		sid, err := strconv.ParseUint(id.TrimmedText(), 10, 64)
		if err != nil || sid == 0 {
			return ErrBadElement("session-id")
		}
		if sid == h.sid {
			return ErrBadElement("session-id")
		}
		if h.server.session(sid) == nil {
			return ErrBadElement("session-id")
		}
	}
	return nil
}

// datastoreName extracts the datastore named by the sole child of a <source>
// or <target> element, rejecting unknown datastores.
func datastoreName(parent *xmltree.Element) (string, *common.RPCError) {
	if len(parent.Children) != 1 {
		return "", ErrMissingElement(parent.Tag)
	}
	name := parent.Children[0].Tag
	if !common.IsKnownDatastore(name) {
		return "", ErrBadElement(name)
	}
	return name, nil
}

// dispatch routes a validated request to its handler, wrapping the intrinsic
// lock bookkeeping around lock and unlock.
func (h *Session) dispatch(req *Request) (string, error) {
	switch req.Name {
	case "lock":
		return h.dispatchLock(req)
	case "unlock":
		return h.dispatchUnlock(req)
	case "close-session", "kill-session":
		// Handlers may observe these but cannot veto the intrinsic reply.
		if _, ok := h.cb.Handlers[req.Name]; ok {
			if _, err := h.invokeHandler(req); err != nil {
				return "", err
			}
		}
		return okBody, nil
	default:
		if _, ok := h.cb.Handlers[req.Name]; !ok {
			return "", ErrOperationNotSupported(req.Name)
		}
		return h.invokeHandler(req)
	}
}

// dispatchLock takes the datastore lock before consulting the handler; a
// conflict means the handler is never invoked, and a handler failure rolls
// the lock back.
func (h *Session) dispatchLock(req *Request) (string, error) {
	holder, err := h.server.locks.TryLock(h.sid, req.Target)
	if err != nil {
		return "", ErrBadElement(req.Target)
	}
	if holder != 0 {
		return "", ErrLockDenied(holder)
	}
	if _, ok := h.cb.Handlers[req.Name]; ok {
		if _, herr := h.invokeHandler(req); herr != nil {
			h.server.locks.Unlock(h.sid, req.Target)
			return "", herr
		}
	}
	return okBody, nil
}

// dispatchUnlock verifies ownership before consulting the handler; the
// registry releases the lock only after the handler succeeds.
func (h *Session) dispatchUnlock(req *Request) (string, error) {
	holder, _ := h.server.locks.Holder(req.Target)
	if holder != h.sid {
		return "", ErrLockDenied(holder)
	}
	if _, ok := h.cb.Handlers[req.Name]; ok {
		if _, herr := h.invokeHandler(req); herr != nil {
			return "", herr
		}
	}
	h.server.locks.Unlock(h.sid, req.Target)
	return okBody, nil
}

// invokeHandler calls the registered handler for req, converting panics into
// operation-failed errors and rendering the returned elements.
func (h *Session) invokeHandler(req *Request) (body string, err error) {
	handler := h.cb.Handlers[req.Name]

	var elements []*xmltree.Element
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = ErrOperationFailedf("%s handler panic: %v", req.Name, r)
			}
		}()
		elements, err = handler(h, req)
	}()
	if err != nil {
		return "", err
	}

	if len(elements) == 0 {
		return okBody, nil
	}
	var b strings.Builder
	for _, e := range elements {
		b.WriteString(e.String())
	}
	return b.String(), nil
}

// sendReply emits the <rpc-reply> for req, echoing its message-id and
// attributes.
func (h *Session) sendReply(req *Request, body string) error {
	return h.encode(&rpcReplyMessage{
		MessageID: req.MessageID,
		Attrs:     req.Attrs,
		Body:      body,
	})
}

// echoableAttrs filters namespace declarations out of the request attributes
// to be copied onto the reply; the reply element declares its own namespace.
func echoableAttrs(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	for _, a := range attrs {
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func killTargetID(req *Request) uint64 {
	id := req.Operation.Find("session-id")
	if id == nil {
		return 0
	}
	sid, err := strconv.ParseUint(id.TrimmedText(), 10, 64)
	if err != nil {
		return 0
	}
	return sid
}

// WrapData wraps reply content in the <data> element expected by get and
// get-config replies.
func WrapData(children ...*xmltree.Element) *xmltree.Element {
	data := xmltree.New("", "data")
	for _, c := range children {
		data.Append(c)
	}
	return data
}
