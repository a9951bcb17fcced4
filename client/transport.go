package client

import (
	"context"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
)

// Transport is the byte stream a netconf session runs over.
type Transport interface {
	io.ReadWriteCloser
}

// SSHClientFactory supplies the SSH client connection a transport runs over,
// and disposes of it again when the transport closes. Close is called with
// the client returned by Dial (nil if Dial failed), so implementations
// backed by a caller-owned connection can decline to close it.
type SSHClientFactory interface {
	Dial(ctx context.Context) (*ssh.Client, error)
	Close(*ssh.Client) error
}

// sshTransport runs the netconf subsystem over one SSH session, exposing its
// stdin/stdout pipes as the byte stream.
type sshTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	factory SSHClientFactory
	trace   *ClientTrace
	target  string
}

// NewSSHTransport connects to target via factory and requests the netconf
// subsystem on a fresh SSH session.
func NewSSHTransport(ctx context.Context, factory SSHClientFactory, target string) (Transport, error) {
	t := &sshTransport{factory: factory, trace: ContextClientTrace(ctx), target: target}

	t.trace.ConnectStart(target)
	var err error
	defer func(begin time.Time) {
		t.trace.ConnectDone(target, err, time.Since(begin))
	}(time.Now())

	if t.client, err = factory.Dial(ctx); err == nil {
		err = t.openSubsystem()
	}
	if err != nil {
		_ = t.teardown()
		return nil, err
	}
	return t, nil
}

func (t *sshTransport) openSubsystem() (err error) {
	if t.session, err = t.client.NewSession(); err != nil {
		return err
	}
	if err = t.session.RequestSubsystem("netconf"); err != nil {
		return err
	}
	if t.stdout, err = t.session.StdoutPipe(); err != nil {
		return err
	}
	t.stdin, err = t.session.StdinPipe()
	return err
}

// Target delivers the address this transport was connected to.
func (t *sshTransport) Target() string {
	return t.target
}

func (t *sshTransport) Read(p []byte) (c int, err error) {
	t.trace.ReadStart(p)
	defer func(begin time.Time) {
		t.trace.ReadDone(p, c, err, time.Since(begin))
	}(time.Now())

	c, err = t.stdout.Read(p)
	return
}

func (t *sshTransport) Write(p []byte) (c int, err error) {
	t.trace.WriteStart(p)
	defer func(begin time.Time) {
		t.trace.WriteDone(p, c, err, time.Since(begin))
	}(time.Now())

	c, err = t.stdin.Write(p)
	return
}

// Close releases the transport: stdin pipe first (flushing any buffered
// output), then the SSH session, then the client via the factory. The first
// error in that order wins.
func (t *sshTransport) Close() (err error) {
	defer func() {
		t.trace.ConnectionClosed(t.target, err)
	}()
	return t.teardown()
}

func (t *sshTransport) teardown() error {
	var stdinErr, sessionErr error
	if t.stdin != nil {
		stdinErr = t.stdin.Close()
	}
	if t.session != nil {
		sessionErr = t.session.Close()
	}

	factoryErr := t.factory.Close(t.client)
	switch {
	case stdinErr != nil:
		return stdinErr
	case sessionErr != nil:
		return sessionErr
	default:
		return factoryErr
	}
}
