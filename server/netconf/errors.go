package netconf

import (
	"encoding/xml"
	"fmt"

	"github.com/ulrikforsgren/netconf/common"
)

// RPC error-tag values defined by RFC6241 appendix A used by the dispatcher.
const (
	TagOperationNotSupported = "operation-not-supported"
	TagOperationFailed       = "operation-failed"
	TagMissingElement        = "missing-element"
	TagUnknownElement        = "unknown-element"
	TagBadElement            = "bad-element"
	TagLockDenied            = "lock-denied"
	TagAccessDenied          = "access-denied"
	TagMalformedMessage      = "malformed-message"
)

// ErrOperationNotSupported reports an RPC operation the server has no
// handler for.
func ErrOperationNotSupported(operation string) *common.RPCError {
	return &common.RPCError{
		Type:     "application",
		Tag:      TagOperationNotSupported,
		Severity: "error",
		Message:  fmt.Sprintf("Operation %s not supported", operation),
	}
}

// ErrMissingElement reports a required parameter element absent from an
// operation.
func ErrMissingElement(element string) *common.RPCError {
	return &common.RPCError{
		Type:     "protocol",
		Tag:      TagMissingElement,
		Severity: "error",
		Message:  fmt.Sprintf("Missing element %s", element),
		Info:     errorInfo("bad-element", element),
	}
}

// ErrUnknownElement reports a parameter element the operation does not allow.
func ErrUnknownElement(element string) *common.RPCError {
	return &common.RPCError{
		Type:     "protocol",
		Tag:      TagUnknownElement,
		Severity: "error",
		Message:  fmt.Sprintf("Unknown element %s", element),
		Info:     errorInfo("bad-element", element),
	}
}

// ErrBadElement reports a parameter element whose content is not acceptable.
func ErrBadElement(element string) *common.RPCError {
	return &common.RPCError{
		Type:     "protocol",
		Tag:      TagBadElement,
		Severity: "error",
		Message:  fmt.Sprintf("Bad element %s", element),
		Info:     errorInfo("bad-element", element),
	}
}

// ErrLockDenied reports a lock or unlock refused because another session
// holds (or the caller does not hold) the datastore lock. The holding
// session's id travels in error-info, zero meaning no holder.
func ErrLockDenied(holder uint64) *common.RPCError {
	return &common.RPCError{
		Type:     "protocol",
		Tag:      TagLockDenied,
		Severity: "error",
		Message:  "Lock failed, lock is already held",
		Info:     errorInfo("session-id", fmt.Sprintf("%d", holder)),
	}
}

// ErrAccessDenied reports an authorization failure for an operation.
func ErrAccessDenied(operation string) *common.RPCError {
	return &common.RPCError{
		Type:     "application",
		Tag:      TagAccessDenied,
		Severity: "error",
		Message:  fmt.Sprintf("Access denied for operation %s", operation),
	}
}

// ErrMalformedMessage reports a PDU that is not a valid <rpc>. It can only
// be sent to base:1.1 peers; base:1.0 sessions terminate instead.
func ErrMalformedMessage() *common.RPCError {
	return &common.RPCError{
		Type:     "rpc",
		Tag:      TagMalformedMessage,
		Severity: "error",
	}
}

// ErrOperationFailed wraps an arbitrary handler error as a generic failure
// reply, conveying the original message.
func ErrOperationFailed(err error) *common.RPCError {
	return &common.RPCError{
		Type:     "application",
		Tag:      TagOperationFailed,
		Severity: "error",
		Message:  err.Error(),
	}
}

// ErrOperationFailedf is ErrOperationFailed with message formatting.
func ErrOperationFailedf(format string, args ...interface{}) *common.RPCError {
	return &common.RPCError{
		Type:     "application",
		Tag:      TagOperationFailed,
		Severity: "error",
		Message:  fmt.Sprintf(format, args...),
	}
}

// toRPCError converts any handler error into the RPCError to serialise.
func toRPCError(err error) *common.RPCError {
	if rpcErr, ok := err.(*common.RPCError); ok {
		return rpcErr
	}
	return ErrOperationFailed(err)
}

// rpcErrorElement is the wire shape of one <rpc-error>.
type rpcErrorElement struct {
	XMLName  xml.Name `xml:"rpc-error"`
	Type     string   `xml:"error-type"`
	Tag      string   `xml:"error-tag"`
	Severity string   `xml:"error-severity"`
	Path     string   `xml:"error-path,omitempty"`
	Message  string   `xml:"error-message,omitempty"`
	Info     string   `xml:",innerxml"`
}

// errorBody renders an RPCError as the body of an <rpc-reply>.
func errorBody(e *common.RPCError) string {
	element := &rpcErrorElement{
		Type:     e.Type,
		Tag:      e.Tag,
		Severity: e.Severity,
		Path:     e.Path,
		Message:  e.Message,
		Info:     e.Info,
	}
	out, err := xml.Marshal(element)
	if err != nil {
		// Marshalling a struct of strings cannot fail; keep the reply
		// contract anyway.
		return "<rpc-error><error-tag>operation-failed</error-tag><error-severity>error</error-severity></rpc-error>"
	}
	return string(out)
}

// errorInfo renders a single-element <error-info> body.
func errorInfo(tag, value string) string {
	var b struct {
		XMLName xml.Name `xml:"error-info"`
		Body    string   `xml:",innerxml"`
	}
	b.Body = fmt.Sprintf("<%s>%s</%s>", tag, value, tag)
	out, err := xml.Marshal(&b)
	if err != nil {
		return ""
	}
	return string(out)
}
