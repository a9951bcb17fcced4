package lock

import (
	"log"

	"github.com/imdario/mergo"
)

// Trace defines hooks reporting lock registry state transitions, for
// operators wiring audit logging or metrics onto lock activity.
type Trace struct {
	// Locked is called when a session takes a datastore lock.
	Locked func(sid uint64, datastore string)

	// Unlocked is called when a session releases a datastore lock it held.
	Unlocked func(sid uint64, datastore string)

	// Released is called when a closing session's locks are force-released,
	// with the names of the datastores it held.
	Released func(sid uint64, datastores []string)
}

// DefaultLoggingHooks logs forced releases only, the transition an operator
// is most likely to care about.
var DefaultLoggingHooks = &Trace{
	Released: func(sid uint64, datastores []string) {
		if len(datastores) > 0 {
			log.Printf("Released id:%d datastores:%v\n", sid, datastores)
		}
	},
}

// DiagnosticLoggingHooks logs every lock transition.
var DiagnosticLoggingHooks = &Trace{
	Locked: func(sid uint64, datastore string) {
		log.Printf("Locked id:%d datastore:%s\n", sid, datastore)
	},
	Unlocked: func(sid uint64, datastore string) {
		log.Printf("Unlocked id:%d datastore:%s\n", sid, datastore)
	},
	Released: func(sid uint64, datastores []string) {
		log.Printf("Released id:%d datastores:%v\n", sid, datastores)
	},
}

// NoOpLoggingHooks provides a set of hooks that do nothing.
var NoOpLoggingHooks = &Trace{
	Locked:   func(sid uint64, datastore string) {},
	Unlocked: func(sid uint64, datastore string) {},
	Released: func(sid uint64, datastores []string) {},
}

func resolveTrace(trace *Trace) *Trace {
	if trace == nil {
		return NoOpLoggingHooks
	}
	_ = mergo.Merge(trace, NoOpLoggingHooks) // nolint: gosec, errcheck
	return trace
}
