package ops

import (
	"context"
	"fmt"
	"testing"

	assert "github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	ncsrv "github.com/ulrikforsgren/netconf/server/netconf"
	sshsrv "github.com/ulrikforsgren/netconf/server/ssh"
	"github.com/ulrikforsgren/netconf/xmltree"
)

func newTestServer(t *testing.T) *ncsrv.Server {
	sshcfg, err := sshsrv.PasswordConfig(sshsrv.Credentials{"testUser": "testPassword"}, "")
	assert.NoError(t, err)

	ts, err := ncsrv.NewServer(context.Background(), "localhost", 0, sshcfg,
		func(s *ncsrv.Session) *ncsrv.Callbacks {
			return &ncsrv.Callbacks{
				Handlers: map[string]ncsrv.HandlerFunc{
					"get": func(s *ncsrv.Session, req *ncsrv.Request) ([]*xmltree.Element, error) {
						state := xmltree.New("", "state")
						state.Append(&xmltree.Element{Tag: "up", Text: "true"})
						return []*xmltree.Element{ncsrv.WrapData(state)}, nil
					},
				},
			}
		})
	assert.NoError(t, err)
	return ts
}

func testClientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            "testUser",
		Auth:            []ssh.AuthMethod{ssh.Password("testPassword")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: gosec
	}
}

func TestTransportFailure(t *testing.T) {
	s, err := NewSession(context.Background(), &ssh.ClientConfig{}, "localhost:0")
	assert.Error(t, err, "Expecting new session to fail")
	assert.Nil(t, s, "OpSession should be nil")
}

func TestNewSession(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	s, err := NewSession(context.Background(), testClientConfig(), fmt.Sprintf("localhost:%d", ts.Port()))
	assert.NoError(t, err, "Expecting new session to succeed")
	assert.NotNil(t, s)
	defer s.Close()

	var result string
	err = s.GetSubtree("<state/>", &result)
	assert.NoError(t, err)
	assert.Equal(t, `<state><up>true</up></state>`, result)
}
