package ssh

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sys/unix"
)

// SubsystemName is the only SSH subsystem the server will serve.
const SubsystemName = "netconf"

// Server represents an SSH server serving the netconf subsystem.
type Server struct {
	listener net.Listener
	trace    *Trace
}

// Handler is the interface that is implemented to handle an SSH channel.
type Handler interface {
	// Handle is a function that handles i/o to/from an SSH channel
	Handle(ch ssh.Channel)
}

// HandlerFactory is a function that will deliver a Handler for a new server connection.
type HandlerFactory func(conn *ssh.ServerConn) Handler

// NewServer delivers a new SSH Server with a custom channel handler, listening on
// address:port. Port 0 selects an ephemeral port, available via Port().
//
// The listening socket is opened with SO_REUSEPORT so that several server
// processes may share one port, each accepting its share of connections.
func NewServer(ctx context.Context, address string, port int, cfg *ssh.ServerConfig, factory HandlerFactory) (server *Server, err error) {
	server = &Server{trace: ContextSSHTrace(ctx)}

	lc := net.ListenConfig{Control: reusePortControl}
	listenAddress := fmt.Sprintf("%s:%d", address, port)
	server.listener, err = lc.Listen(ctx, "tcp", listenAddress)
	server.trace.Listened(listenAddress, err)
	if err != nil {
		return nil, err
	}

	go server.acceptConnections(cfg, factory)

	return server, nil
}

// reusePortControl sets SO_REUSEPORT on the listening socket before bind.
func reusePortControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// Port delivers the tcp port number on which the server is listening.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close closes any resources used by the server.
func (s *Server) Close() {
	_ = s.listener.Close()
}

func (s *Server) acceptConnections(config *ssh.ServerConfig, factory HandlerFactory) {
	s.trace.StartAccepting()
	for {
		nConn, err := s.listener.Accept()
		s.trace.Accepted(nConn, err)
		if err != nil {
			return
		}

		go s.serveConnection(nConn, config, factory)
	}
}

func (s *Server) serveConnection(nConn net.Conn, config *ssh.ServerConfig, factory HandlerFactory) {
	svrconn, chch, reqch, err := ssh.NewServerConn(nConn, config)
	s.trace.NewServerConn(nConn, err)
	if err != nil {
		return
	}

	go ssh.DiscardRequests(reqch)

	// Service the incoming Channel channel.
	for newChannel := range chch {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		dataChan, requests, err := newChannel.Accept()
		s.trace.SSHChannelAccept(nConn, err)
		if err != nil {
			continue
		}

		// Accept only a "subsystem" request naming the netconf subsystem;
		// pty-req, shell, exec (and with it scp) are all refused.
		go func(in <-chan *ssh.Request) {
			for req := range in {
				granted := req.Type == "subsystem" && subsystemName(req.Payload) == SubsystemName
				err := req.Reply(granted, nil)
				s.trace.SubsystemRequestReply(err)
			}
		}(requests)

		go func(ch ssh.Channel) {
			defer ch.Close()
			factory(svrconn).Handle(ch)
		}(dataChan)
	}
}

// subsystemName extracts the subsystem name from a subsystem request payload.
func subsystemName(payload []byte) string {
	var msg struct {
		Name string
	}
	if err := ssh.Unmarshal(payload, &msg); err != nil {
		return ""
	}
	return msg.Name
}
