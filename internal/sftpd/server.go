// Package sftpd exposes a vfs.FS as an SFTP server, adapting pkg/sftp's
// request-server callbacks to Facade calls, grounded on the source's
// paramiko-based expose_sftp.py command set (open/list_folder/stat/
// remove/rename/mkdir/rmdir/chattr) reimplemented against
// golang.org/x/crypto/ssh's native server support.
package sftpd

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/chunkdrive/chunkdrive/internal/config"
	"github.com/chunkdrive/chunkdrive/internal/vfs"
)

// Server accepts SSH connections on a listener and serves a vfs.FS over
// each connection's "sftp" subsystem channel.
type Server struct {
	listener net.Listener
	sshConf  *ssh.ServerConfig
	fs       *vfs.FS
	log      zerolog.Logger
}

// New binds addr and prepares a Server. hostKey signs the SSH handshake;
// auths/noAuth drive password and public-key authentication per the
// config file's SFTP.Auths/SFTP.NoAuth.
func New(addr string, hostKey ssh.Signer, auths []config.Auth, noAuth bool, fsys *vfs.FS, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "sftpd: listen")
	}

	sshConf := &ssh.ServerConfig{
		PasswordCallback:  passwordCallback(auths, noAuth),
		PublicKeyCallback: publicKeyCallback(auths, noAuth),
		NoClientAuth:      noAuth,
	}
	sshConf.AddHostKey(hostKey)

	return &Server{
		listener: ln,
		sshConf:  sshConf,
		fs:       fsys,
		log:      log.With().Str("component", "sftpd").Logger(),
	}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Serve accepts connections until ctx is cancelled or the listener errors.
// Each connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "sftpd: accept")
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.sshConf)
	if err != nil {
		s.log.Debug().Err(err).Msg("ssh handshake failed")
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			s.log.Debug().Err(err).Msg("channel accept failed")
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		isSFTP := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
		if req.WantReply {
			_ = req.Reply(isSFTP, nil)
		}
		if !isSFTP {
			continue
		}

		reqServer := sftp.NewRequestServer(channel, newHandlers(s.fs))
		if err := reqServer.Serve(); err != nil {
			s.log.Debug().Err(err).Msg("sftp session ended")
		}
		return
	}
}
