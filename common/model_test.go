package common

import (
	"testing"

	assert "github.com/stretchr/testify/require"
)

func TestRPCErrorString(t *testing.T) {

	err := &RPCError{
		Severity: "Severity",
		Message:  "Message",
	}

	assert.Equal(t, "netconf rpc [Severity] 'Message'", err.Error())
}

func TestPeerSupportsChunkedFraming(t *testing.T) {
	assert.False(t, PeerSupportsChunkedFraming([]string{NetconfNS, NetconfNotifyNS, CapBase10}))
	assert.True(t, PeerSupportsChunkedFraming([]string{NetconfNS, NetconfNotifyNS, CapBase11}))
}

func TestPeerSupportsBase10(t *testing.T) {
	assert.True(t, PeerSupportsBase10([]string{NetconfNS, CapBase10}))
	assert.False(t, PeerSupportsBase10([]string{NetconfNS, CapBase11}))
}

func TestIsKnownDatastore(t *testing.T) {
	assert.True(t, IsKnownDatastore(Running))
	assert.True(t, IsKnownDatastore(Candidate))
	assert.False(t, IsKnownDatastore("startup"))
	assert.False(t, IsKnownDatastore(""))
}
