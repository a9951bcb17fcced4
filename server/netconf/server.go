// Package netconf implements the server side of the NETCONF protocol: the
// per-connection session engine (hello exchange, framing-version selection,
// reader loop, teardown) and the RPC dispatcher that validates incoming
// operations and routes them to embedder-supplied handlers.
package netconf

import (
	"context"
	"encoding/xml"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ulrikforsgren/netconf/common"
	"github.com/ulrikforsgren/netconf/common/codec"
	"github.com/ulrikforsgren/netconf/server/lock"
	"github.com/ulrikforsgren/netconf/server/ssh"
	"github.com/ulrikforsgren/netconf/xmltree"

	xssh "golang.org/x/crypto/ssh"
)

// Server represents a Netconf Server.
// It encapsulates an SSH server listening for netconf subsystem connections,
// and the sessions spawned to serve them.
type Server struct {
	*ssh.Server
	sf    SessionFactory
	locks *lock.Registry

	// mu guards sessions; nextSid is advanced atomically.
	mu       sync.Mutex
	sessions map[uint64]*Session
	nextSid  uint64

	trace *Trace
}

// Callbacks defines the caller supplied behaviour of a session.
type Callbacks struct {
	// Capabilities lists capability URIs advertised to the client in
	// addition to the base:1.0/base:1.1 pair the server always announces.
	Capabilities []string

	// Handlers maps an operation local name (e.g. "get-config") to the
	// function invoked when a client requests it. Operations without an
	// entry fall back to the intrinsic behaviour (lock, unlock,
	// close-session and kill-session succeed with <ok/>; everything else
	// is refused as operation-not-supported).
	Handlers map[string]HandlerFunc

	// OnUnlock, if non-nil, is called once per datastore whose lock is
	// released when a session closes. Panics are swallowed.
	OnUnlock func(s *Session, datastore string)
}

// HandlerFunc handles one RPC operation. It returns the elements forming the
// body of the <rpc-reply>; a nil slice with a nil error produces <ok/>.
// Returning a *common.RPCError produces an <rpc-error> reply carrying its
// fields; any other error is reported as operation-failed.
type HandlerFunc func(s *Session, req *Request) ([]*xmltree.Element, error)

// SessionFactory delivers the Callbacks to be used for a new session.
type SessionFactory func(*Session) *Callbacks

// Session represents the server side of an active netconf SSH session.
type Session struct {

	// server references the Netconf server that launched the session.
	server *Server

	// svrcon is the underlying ssh server connection.
	svrcon *xssh.ServerConn

	// ch is the underlying transport channel.
	ch xssh.Channel

	// The codecs used to handle client i/o
	enc *codec.Encoder
	dec *codec.Decoder

	// Serialises sends, so a reply is never interleaved with another send
	// on the same session.
	encLock sync.Mutex

	// The capabilities advertised to the client.
	capabilities []string
	// The session id to be reported to the client.
	sid uint64

	// state guards the lifecycle state machine.
	stateMu sync.Mutex
	state   sessionState

	// chunked records whether base:1.1 chunked framing was negotiated.
	chunked bool

	// Channel used to signal receipt (or rejection) of client capabilities.
	hellochan chan bool

	// The HelloMessage sent by the connecting client.
	ClientHello *common.HelloMessage

	// Caller supplied callbacks
	cb *Callbacks
}

// sessionState tracks a session through its lifecycle.
type sessionState int

const (
	stateAwaitHello sessionState = iota
	stateNegotiated
	stateOpen
	stateClosing
	stateClosed
)

// NewServer creates a new Server that will accept Netconf connections on
// address:port (port 0 selects an ephemeral port, available via Port()),
// with credentials defined by the sshcfg configuration.
func NewServer(ctx context.Context, address string, port int, sshcfg *xssh.ServerConfig, sf SessionFactory) (ncs *Server, err error) {

	trace := ContextNetconfTrace(ctx)
	if trace.SSH != nil {
		ctx = ssh.WithSSHTrace(ctx, trace.SSH)
	}

	ncs = &Server{
		sessions: make(map[uint64]*Session),
		sf:       sf,
		locks:    lock.NewRegistry(trace.Lock),
		trace:    trace,
	}

	ncs.Server, err = ssh.NewServer(ctx, address, port, sshcfg, ncs.handlerFactory())
	if err != nil {
		return nil, err
	}
	return
}

// Locks exposes the server's lock registry.
func (ncs *Server) Locks() *lock.Registry {
	return ncs.locks
}

func (ncs *Server) handlerFactory() ssh.HandlerFactory {
	return func(svrconn *xssh.ServerConn) ssh.Handler {
		sess := ncs.newSession(svrconn, ncs.allocateSessionID())
		ncs.mu.Lock()
		ncs.sessions[sess.sid] = sess
		ncs.mu.Unlock()
		return sess
	}
}

// allocateSessionID delivers the next session id. Ids increase monotonically
// over the life of the server and are never reused.
func (ncs *Server) allocateSessionID() uint64 {
	return atomic.AddUint64(&ncs.nextSid, 1)
}

// Close closes any active sessions and prevents subsequent connections.
func (ncs *Server) Close() {
	ncs.mu.Lock()
	sessions := make([]*Session, 0, len(ncs.sessions))
	for _, s := range ncs.sessions {
		sessions = append(sessions, s)
	}
	ncs.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	ncs.Server.Close()
}

// session returns the active session with the given id, if any.
func (ncs *Server) session(sid uint64) *Session {
	ncs.mu.Lock()
	defer ncs.mu.Unlock()
	return ncs.sessions[sid]
}

func (ncs *Server) dropSession(sid uint64) {
	ncs.mu.Lock()
	delete(ncs.sessions, sid)
	ncs.mu.Unlock()
}

func (ncs *Server) newSession(svrcon *xssh.ServerConn, sid uint64) *Session {
	sh := &Session{
		server:       ncs,
		svrcon:       svrcon,
		sid:          sid,
		state:        stateAwaitHello,
		hellochan:    make(chan bool, 1),
		capabilities: []string{common.CapBase10, common.CapBase11},
	}

	ncs.trace.StartSession(sh)

	sh.cb = ncs.sf(sh)
	if sh.cb == nil {
		sh.cb = &Callbacks{}
	}
	sh.capabilities = append(sh.capabilities, sh.cb.Capabilities...)
	return sh
}

// ID delivers the server-allocated id of the session.
func (h *Session) ID() uint64 {
	return h.sid
}

// ClientCapabilities delivers the capabilities advertised by the client, or
// nil before the client hello has been received.
func (h *Session) ClientCapabilities() []string {
	if h.ClientHello == nil {
		return nil
	}
	return h.ClientHello.Capabilities
}

// Chunked reports whether the session negotiated base:1.1 chunked framing.
func (h *Session) Chunked() bool {
	return h.chunked
}

// Handle establishes a Netconf server session on a newly-connected SSH channel.
func (h *Session) Handle(ch xssh.Channel) {
	h.ch = ch
	h.dec = codec.NewDecoder(ch)
	h.enc = codec.NewEncoder(ch)

	defer h.Close()

	wg := &sync.WaitGroup{}
	wg.Add(1)

	// Send server hello to client. The hello always travels in
	// end-of-message framing; the negotiated framing only applies from the
	// first RPC onwards.
	err := h.encode(&common.HelloMessage{Capabilities: h.capabilities, SessionID: h.sid})
	if err == nil {

		go h.handleIncomingMessages(wg)
		ok := h.waitForClientHello()
		if ok {
			// Wait for message handling routine to finish.
			wg.Wait()
		}
	}
	h.server.trace.EndSession(h, err)
}

// Close initiates session tear-down. It is idempotent: the first call
// releases every datastore lock the session holds (notifying the embedder
// once per released datastore) and closes the underlying transport channel.
func (h *Session) Close() {
	h.stateMu.Lock()
	if h.state == stateClosed {
		h.stateMu.Unlock()
		return
	}
	h.state = stateClosed
	h.stateMu.Unlock()

	h.releaseLocks()
	h.server.dropSession(h.sid)
	if h.ch != nil {
		_ = h.ch.Close() // nolint: errcheck, gosec
	}
}

// releaseLocks force-releases every datastore lock held by the session,
// notifying the embedder of each. Notification panics are swallowed - lock
// release on close must always run to completion.
func (h *Session) releaseLocks() {
	released := h.server.locks.ReleaseAll(h.sid)
	if h.cb.OnUnlock == nil {
		return
	}
	for _, datastore := range released {
		func() {
			defer func() { _ = recover() }()
			h.cb.OnUnlock(h, datastore)
		}()
	}
}

// setState advances the lifecycle state machine, never moving backwards out
// of stateClosed.
func (h *Session) setState(s sessionState) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if h.state != stateClosed {
		h.state = s
	}
}

func (h *Session) currentState() sessionState {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state
}

func (h *Session) waitForClientHello() bool {

	// Wait for the input handler to send the client hello.
	select {
	case <-h.hellochan:
	case <-time.After(time.Duration(5) * time.Second):
	}

	h.server.trace.ClientHello(h)
	return h.ClientHello != nil && h.currentState() == stateOpen
}

func (h *Session) handleIncomingMessages(wg *sync.WaitGroup) {

	defer wg.Done()
	defer h.Close()

	// Loop, looking for a start element type of hello or rpc. Any framing
	// or XML-parse failure from the decoder is fatal to the session.
	for {
		token, err := h.dec.Token()
		if err != nil {
			break
		}
		if !h.handleToken(token) {
			break
		}
	}
}

// handleToken processes one XML token from the wire, reporting whether the
// session should continue reading.
func (h *Session) handleToken(token xml.Token) bool {
	switch token := token.(type) {
	case xml.StartElement:
		switch token.Name.Local {
		case common.NameHello.Local: // <hello>
			return h.handleHello(token)

		case common.NameRPC.Local: // <rpc>
			return h.handleRPC(token)

		default:
			// A recognisable but unexpected top-level element. With
			// chunked framing a malformed-message error can be reported;
			// in end-of-message framing the session must end.
			return h.handleMalformed("", ErrMalformedMessage())
		}
	}
	return true
}

// handleHello processes the client hello: capability registration and
// framing-version selection. It reports whether the session survives.
func (h *Session) handleHello(token xml.StartElement) bool {

	// A second hello after negotiation is not a valid PDU.
	if h.currentState() != stateAwaitHello {
		return h.handleMalformed("", ErrMalformedMessage())
	}

	err := h.decodeElement(&h.ClientHello, &token)
	if err != nil {
		h.hellochan <- false
		return false
	}
	h.setState(stateNegotiated)

	// A client must not announce a session id; only servers allocate them.
	if h.ClientHello.SessionID != 0 {
		h.ClientHello = nil
		h.hellochan <- false
		return false
	}

	switch {
	case common.PeerSupportsChunkedFraming(h.ClientHello.Capabilities):
		// Update the codec to use chunked framing from now.
		codec.EnableChunkedFraming(h.dec, h.enc)
		h.chunked = true
	case common.PeerSupportsBase10(h.ClientHello.Capabilities):
		// Stay on end-of-message framing.
	default:
		// No common base protocol version.
		h.ClientHello = nil
		h.hellochan <- false
		return false
	}

	h.setState(stateOpen)
	h.hellochan <- true
	return true
}

func (h *Session) decodeElement(v interface{}, start *xml.StartElement) error {
	err := h.dec.DecodeElement(v, start)
	h.server.trace.Decoded(h, err)
	return err
}

func (h *Session) encode(m interface{}) error {
	h.encLock.Lock()
	defer h.encLock.Unlock()
	err := h.enc.Encode(m)
	h.server.trace.Encoded(h, err)
	return err
}
