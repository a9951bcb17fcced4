package netconf

import (
	"context"
	"log"

	"github.com/imdario/mergo"

	"github.com/ulrikforsgren/netconf/server/lock"
	"github.com/ulrikforsgren/netconf/server/ssh"
)

// unique type to prevent assignment.
type netconfEventContextKey struct{}

// ContextNetconfTrace returns the Trace associated with the
// provided context. If none, it returns the no-op hooks.
func ContextNetconfTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(netconfEventContextKey{}).(*Trace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks) // nolint: gosec, errcheck
	}
	return trace
}

// WithTrace returns a new context based on the provided parent
// ctx. Servers created with the returned context will use
// the provided trace hooks
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	ctx = context.WithValue(ctx, netconfEventContextKey{}, trace)
	return ctx
}

// Trace defines a structure for handling trace events
type Trace struct {
	// SSH, if non-nil, supplies the hooks for the underlying SSH listener.
	SSH *ssh.Trace

	// Lock, if non-nil, supplies the hooks for the server's lock registry.
	Lock *lock.Trace

	// StartSession is called when a new session has been allocated.
	StartSession func(s *Session)

	// EndSession is called when a session ends, with e holding any hello
	// exchange error.
	EndSession func(s *Session, e error)

	// ClientHello is called once the client hello outcome is known.
	ClientHello func(s *Session)

	// RPCReceived is called when a validated RPC has been accepted for
	// dispatch.
	RPCReceived func(s *Session, req *Request)

	// RPCReplied is called after the reply for an RPC has been sent, with e
	// holding the operation error reported to the client, if any.
	RPCReplied func(s *Session, req *Request, e error)

	// Encoded is called after a message has been encoded to the transport.
	Encoded func(s *Session, e error)

	// Decoded is called after a message has been decoded from the transport.
	Decoded func(s *Session, e error)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &Trace{
	ClientHello: func(s *Session) {
		if s.ClientHello == nil {
			log.Printf("ClientHello id:%d message:%v\n", s.sid, s.ClientHello)
		}
	},
	EndSession: func(s *Session, e error) {
		if e != nil {
			log.Printf("EndSession id:%d error:%v\n", s.sid, e)
		}
	},
	Encoded: func(s *Session, e error) {
		if e != nil {
			log.Printf("Encoded id:%d error:%v\n", s.sid, e)
		}
	},
	Decoded: func(s *Session, e error) {
		if e != nil {
			log.Printf("Decoded id:%d error:%v\n", s.sid, e)
		}
	},
	RPCReplied: func(s *Session, req *Request, e error) {
		if e != nil {
			log.Printf("RPCReplied id:%d correlation:%s op:%s message-id:%s error:%v\n",
				s.sid, req.CorrelationID, req.Name, req.MessageID, e)
		}
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &Trace{
	SSH:  ssh.DiagnosticLoggingHooks,
	Lock: lock.DiagnosticLoggingHooks,
	ClientHello: func(s *Session) {
		log.Printf("ClientHello id:%d message:%v\n", s.sid, s.ClientHello)
	},
	StartSession: func(s *Session) {
		log.Printf("StartSession id:%d remote:%s\n", s.sid, s.svrcon.RemoteAddr())
	},
	EndSession: func(s *Session, e error) {
		log.Printf("EndSession id:%d error:%v\n", s.sid, e)
	},
	RPCReceived: func(s *Session, req *Request) {
		log.Printf("RPCReceived id:%d correlation:%s op:%s message-id:%s\n",
			s.sid, req.CorrelationID, req.Name, req.MessageID)
	},
	RPCReplied: func(s *Session, req *Request, e error) {
		log.Printf("RPCReplied id:%d correlation:%s op:%s message-id:%s error:%v\n",
			s.sid, req.CorrelationID, req.Name, req.MessageID, e)
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &Trace{
	StartSession: func(s *Session) {},
	ClientHello:  func(s *Session) {},
	EndSession:   func(s *Session, e error) {},
	RPCReceived:  func(s *Session, req *Request) {},
	RPCReplied:   func(s *Session, req *Request, e error) {},
	Encoded:      func(s *Session, e error) {},
	Decoded:      func(s *Session, e error) {},
}
