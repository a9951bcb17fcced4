package netconf

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
	xssh "golang.org/x/crypto/ssh"

	"github.com/ulrikforsgren/netconf/common"
	"github.com/ulrikforsgren/netconf/merge"
	"github.com/ulrikforsgren/netconf/merge/schema"
	"github.com/ulrikforsgren/netconf/ops"
	"github.com/ulrikforsgren/netconf/server/ssh"
	"github.com/ulrikforsgren/netconf/xmltree"
)

// Defines credentials used for test sessions.
const (
	TestUserName = "testUser"
	TestPassword = "testPassword"
)

const testCapability = "urn:example:test:capability:1.0"

const routerSchema = `{"tree": {"router": ["container", {
	"interface": ["list", {
		"name": ["leaf", {}],
		"mtu":  ["leaf", {}]
	}, [["", "name"]]]
}]}}`

// configStore is a minimal running-config backing an edit-config handler:
// an in-memory tree edited through the merge engine.
type configStore struct {
	mu     sync.Mutex
	tree   *xmltree.Element
	schema *schema.Tree
}

func newConfigStore(t *testing.T) *configStore {
	tree, err := xmltree.Parse(strings.NewReader(
		`<router><interface><name>eth0</name><mtu>1500</mtu></interface></router>`))
	assert.NoError(t, err)
	sch, err := schema.Load(strings.NewReader(routerSchema))
	assert.NoError(t, err)
	return &configStore{tree: tree, schema: sch}
}

func (cs *configStore) get(s *Session, req *Request) ([]*xmltree.Element, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return []*xmltree.Element{WrapData(cs.tree.Clone())}, nil
}

func (cs *configStore) editConfig(s *Session, req *Request) ([]*xmltree.Element, error) {
	config := req.Operation.Find("config")
	if config == nil {
		return nil, ErrMissingElement("config")
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	// Merge against a copy, so a failed edit leaves the store untouched.
	candidate := cs.tree.Clone()
	for _, overlay := range config.Children {
		if err := merge.Tree(candidate, overlay, cs.schema); err != nil {
			return nil, ErrOperationFailed(err)
		}
	}
	cs.tree = candidate
	return nil, nil
}

type testHarness struct {
	server   *Server
	store    *configStore
	unlockMu sync.Mutex
	unlocked []string
}

func (th *testHarness) factory(s *Session) *Callbacks {
	return &Callbacks{
		Capabilities: []string{testCapability},
		Handlers: map[string]HandlerFunc{
			"get":         th.store.get,
			"edit-config": th.store.editConfig,
		},
		OnUnlock: func(s *Session, datastore string) {
			th.unlockMu.Lock()
			th.unlocked = append(th.unlocked, datastore)
			th.unlockMu.Unlock()
		},
	}
}

func (th *testHarness) unlockedDatastores() []string {
	th.unlockMu.Lock()
	defer th.unlockMu.Unlock()
	return append([]string(nil), th.unlocked...)
}

func newTestHarness(t *testing.T) *testHarness {
	th := &testHarness{store: newConfigStore(t)}

	sshcfg, err := ssh.PasswordConfig(ssh.Credentials{TestUserName: TestPassword}, "")
	assert.NoError(t, err)

	ctx := WithTrace(context.Background(), DefaultLoggingHooks)
	th.server, err = NewServer(ctx, "localhost", 0, sshcfg, th.factory)
	assert.NoError(t, err)
	return th
}

func (th *testHarness) dial(t *testing.T) ops.OpSession {
	sshConfig := &xssh.ClientConfig{
		User:            TestUserName,
		Auth:            []xssh.AuthMethod{xssh.Password(TestPassword)},
		HostKeyCallback: xssh.InsecureIgnoreHostKey(), //nolint: gosec
	}
	ncs, err := ops.NewSession(context.Background(), sshConfig, fmt.Sprintf("localhost:%d", th.server.Port()))
	assert.NoError(t, err, "Not expecting new session to fail")
	return ncs
}

func rpcError(t *testing.T, err error) *common.RPCError {
	assert.Error(t, err)
	rpcErr, ok := err.(*common.RPCError)
	assert.True(t, ok, "expected an RPC error, got %v", err)
	return rpcErr
}

func TestHelloNegotiation(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	assert.Equal(t, uint64(1), ncs.ID(), "first session id should come from the allocation counter")
	assert.Contains(t, ncs.ServerCapabilities(), common.CapBase10)
	assert.Contains(t, ncs.ServerCapabilities(), common.CapBase11)
	assert.Contains(t, ncs.ServerCapabilities(), testCapability)

	// Session ids increase monotonically.
	ncs2 := th.dial(t)
	defer ncs2.Close()
	assert.Equal(t, uint64(2), ncs2.ID())
}

func TestGet(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	var result string
	err := ncs.GetSubtree(nil, &result)
	assert.NoError(t, err, "Not expecting get to fail")
	assert.Equal(t, `<router><interface><name>eth0</name><mtu>1500</mtu></interface></router>`, result)
}

func TestLockConflict(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	sessA := th.dial(t)
	defer sessA.Close()
	sessB := th.dial(t)
	defer sessB.Close()

	assert.NoError(t, sessA.Lock(ops.RunningCfg), "first lock should succeed")

	err := sessB.Lock(ops.RunningCfg)
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagLockDenied, rpcErr.Tag)
	assert.Contains(t, rpcErr.Info, fmt.Sprintf("<session-id>%d</session-id>", sessA.ID()),
		"lock-denied should name the holder")

	// Lock state unchanged: holder is still session A.
	holder, ok := th.server.Locks().Holder(common.Running)
	assert.True(t, ok)
	assert.Equal(t, sessA.ID(), holder)

	// And A can release it.
	assert.NoError(t, sessA.Unlock(ops.RunningCfg))
}

func TestUnlockRequiresOwnership(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	sessA := th.dial(t)
	defer sessA.Close()
	sessB := th.dial(t)
	defer sessB.Close()

	assert.NoError(t, sessA.Lock(ops.CandidateCfg))

	err := sessB.Unlock(ops.CandidateCfg)
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagLockDenied, rpcErr.Tag)
}

func TestLockUnknownDatastore(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	err := ncs.Lock(ops.StartupCfg)
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagBadElement, rpcErr.Tag)
}

func TestLockReleasedOnClose(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	sessA := th.dial(t)
	assert.NoError(t, sessA.Lock(ops.CandidateCfg))

	sessB := th.dial(t)
	defer sessB.Close()

	sessA.Close()

	// The release happens as the server notices the disconnect.
	assert.Eventually(t, func() bool {
		return sessB.Lock(ops.CandidateCfg) == nil
	}, 5*time.Second, 50*time.Millisecond, "candidate should become lockable after A closes")

	assert.Contains(t, th.unlockedDatastores(), common.Candidate,
		"unlock notification should fire for the released datastore")
}

func TestEditConfigMergeWithListKey(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	err := ncs.EditConfig(ops.RunningCfg, ops.Cfg(`<router><interface><name>eth0</name><mtu>9000</mtu></interface></router>`))
	assert.NoError(t, err, "Not expecting edit-config to fail")

	var result string
	assert.NoError(t, ncs.GetSubtree(nil, &result))
	assert.Equal(t, `<router><interface><name>eth0</name><mtu>9000</mtu></interface></router>`, result,
		"mtu updated in place, no duplicate interface")
}

func TestEditConfigCreateConflict(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	err := ncs.EditConfig(ops.RunningCfg,
		ops.Cfg(`<router><interface operation="create"><name>eth0</name><mtu>9000</mtu></interface></router>`))
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagOperationFailed, rpcErr.Tag)
	assert.Contains(t, rpcErr.Message, "already exists")

	// The store is untouched.
	var result string
	assert.NoError(t, ncs.GetSubtree(nil, &result))
	assert.Contains(t, result, "<mtu>1500</mtu>")
}

func TestOperationNotSupported(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	err := ncs.CopyConfig(ops.DsName(ops.RunningCfg), ops.DsName(ops.CandidateCfg))
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagOperationNotSupported, rpcErr.Tag)

	err = ncs.DeleteConfig(ops.DsName(ops.CandidateCfg))
	rpcErr = rpcError(t, err)
	assert.Equal(t, TagOperationNotSupported, rpcErr.Tag)
}

func TestCloseSession(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	assert.NoError(t, ncs.CloseSession(), "close-session should reply <ok/>")
	ncs.Close()
}

func TestKillSession(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	victim := th.dial(t)
	defer victim.Close()
	assert.NoError(t, victim.Lock(ops.RunningCfg))

	killer := th.dial(t)
	defer killer.Close()

	assert.NoError(t, killer.KillSession(victim.ID()), "kill-session should reply <ok/>")

	// The victim's lock is released as its session is torn down.
	assert.Eventually(t, func() bool {
		holder, ok := th.server.Locks().Holder(common.Running)
		return ok && holder == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestKillOwnSession(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	err := ncs.KillSession(ncs.ID())
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagBadElement, rpcErr.Tag)
}

func TestKillUnknownSession(t *testing.T) {
	th := newTestHarness(t)
	defer th.server.Close()

	ncs := th.dial(t)
	defer ncs.Close()

	err := ncs.KillSession(4711)
	rpcErr := rpcError(t, err)
	assert.Equal(t, TagBadElement, rpcErr.Tag)
}
