package client

import (
	"context"
	"time"

	"github.com/imdario/mergo"
	"golang.org/x/crypto/ssh"
)

// Factory functions tying the SSH transport and message layers together.

// NewRPCSession dials target with the supplied SSH configuration and runs a
// netconf session over the connection, using default configuration.
func NewRPCSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (Session, error) {
	return NewRPCSessionWithConfig(ctx, sshcfg, target, DefaultConfig)
}

// NewRPCSessionWithConfig dials target with the supplied SSH configuration
// and runs a netconf session over the connection.
func NewRPCSessionWithConfig(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *Config) (Session, error) {
	return newSessionOver(ctx, NewDialer(target, sshcfg), target, cfg)
}

// NewRPCSessionFromSSHClient runs a netconf session over an SSH client
// connection the caller has already established. Closing the session leaves
// the SSH client open.
func NewRPCSessionFromSSHClient(ctx context.Context, cli *ssh.Client) (Session, error) {
	return newSessionOver(ctx, &borrowedClient{cli}, cli.RemoteAddr().String(), DefaultConfig)
}

func newSessionOver(ctx context.Context, factory SSHClientFactory, target string, cfg *Config) (Session, error) {
	// Resolve unset config fields against the defaults.
	resolved := *cfg
	_ = mergo.Merge(&resolved, DefaultConfig) // nolint: gosec, errcheck

	t, err := NewSSHTransport(ctx, factory, target)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(ctx, t, &resolved)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return s, nil
}

// Dialer is the SSHClientFactory for connections the transport dials itself.
type Dialer struct {
	target string
	config *ssh.ClientConfig
}

// NewDialer delivers a Dialer that will connect to target with config.
func NewDialer(target string, config *ssh.ClientConfig) *Dialer {
	return &Dialer{target: target, config: config}
}

// Dial implements SSHClientFactory.
func (d *Dialer) Dial(ctx context.Context) (cli *ssh.Client, err error) {
	trace := ContextClientTrace(ctx)

	trace.DialStart(d.config, d.target)
	defer func(begin time.Time) {
		trace.DialDone(d.config, d.target, err, time.Since(begin))
	}(time.Now())

	return ssh.Dial("tcp", d.target, d.config)
}

// Close implements SSHClientFactory, closing the client it dialled.
func (d *Dialer) Close(cli *ssh.Client) error {
	if cli == nil {
		return nil
	}
	return cli.Close()
}

// borrowedClient is the SSHClientFactory for a caller-owned SSH client; it
// never closes what it did not open.
type borrowedClient struct {
	cli *ssh.Client
}

func (b *borrowedClient) Dial(ctx context.Context) (*ssh.Client, error) {
	return b.cli, nil
}

func (b *borrowedClient) Close(*ssh.Client) error {
	return nil
}
