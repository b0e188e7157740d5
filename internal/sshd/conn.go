// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package sshd

import (
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatehouse/internal/logging"
	"github.com/toeirei/gatehouse/internal/model"
	"github.com/toeirei/gatehouse/internal/tui"
)

// handleConn owns one TCP connection from handshake to teardown. Every
// exit path funnels into exactly one hub.Close for the session id.
func (s *Server) handleConn(netConn net.Conn) {
	id := s.hub.NextID()

	sconn, chans, reqs, err := ssh.NewServerConn(newIdleConn(netConn, s.cfg.InactivityTimeout), s.serverConfig())
	if err != nil {
		// Failed or abandoned authentication; no session state exists.
		logging.Debugf("handshake from %s failed: %v", netConn.RemoteAddr(), err)
		_ = netConn.Close()
		return
	}
	defer sconn.Close()

	wire, err := keyFromPermissions(sconn.Permissions)
	if err != nil {
		logging.Errorf("connection %d: %v", id, err)
		return
	}

	// The key may have been reloaded away between the auth callback and
	// now; the binding below is the authoritative one.
	entity, ok := s.hub.Authenticate(id, wire)
	if !ok {
		logging.Debugf("connection %d: key no longer authorized", id)
		return
	}
	defer s.hub.Close(id)
	logging.Infof("session %d: %s connected from %s", id, entity.Name, sconn.RemoteAddr())

	go ssh.DiscardRequests(reqs)

	opened := false
	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		if opened {
			_ = newChan.Reject(ssh.Prohibited, "only one session per connection")
			continue
		}
		opened = true

		ch, requests, err := newChan.Accept()
		if err != nil {
			logging.Errorf("session %d: channel accept failed: %v", id, err)
			break
		}
		s.runSession(id, entity, sconn, ch, requests)
		break
	}
}

// runSession drives the chat program over the accepted channel and
// returns when the session is over, whichever side ended it.
func (s *Server) runSession(id uint64, entity model.Entity, sconn *ssh.ServerConn, ch ssh.Channel, requests <-chan *ssh.Request) {
	program := tui.NewProgram(id, entity, s.hub, ch, ch)

	go s.pumpRequests(id, requests)

	// A dying connection must unblock the program; a quitting program
	// must drop the connection. Either direction ends the session.
	go func() {
		_ = sconn.Wait()
		program.Kill()
	}()

	if err := s.hub.Open(id, connTransport{sconn}, tui.Renderer{Program: program}); err != nil {
		logging.Errorf("session %d: %v", id, err)
		return
	}

	if _, err := program.Run(); err != nil {
		logging.Debugf("session %d: program ended: %v", id, err)
	}
	_ = ch.Close()
}

// ptyRequest is the payload of "pty-req" (RFC 4254 §6.2).
type ptyRequest struct {
	Term          string
	Columns, Rows uint32
	Width, Height uint32
	Modes         string
}

// windowChange is the payload of "window-change" (RFC 4254 §6.7).
type windowChange struct {
	Columns, Rows uint32
	Width, Height uint32
}

// pumpRequests answers the session-level requests the chat cares
// about: pty allocation and window size. Everything else is declined.
func (s *Server) pumpRequests(id uint64, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req":
			var pty ptyRequest
			if err := ssh.Unmarshal(req.Payload, &pty); err != nil {
				logging.Warnf("session %d: bad pty-req payload: %v", id, err)
				_ = req.Reply(false, nil)
				continue
			}
			s.hub.Resize(id, int(pty.Columns), int(pty.Rows))
			_ = req.Reply(true, nil)

		case "window-change":
			var wc windowChange
			if err := ssh.Unmarshal(req.Payload, &wc); err != nil {
				logging.Warnf("session %d: bad window-change payload: %v", id, err)
				continue
			}
			s.hub.Resize(id, int(wc.Columns), int(wc.Rows))

		case "shell":
			_ = req.Reply(true, nil)

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// connTransport adapts an established connection to the hub's
// force-disconnect handle.
type connTransport struct {
	conn *ssh.ServerConn
}

func (t connTransport) Disconnect() error {
	return t.conn.Close()
}

// idleConn enforces the inactivity timeout by pushing the deadline on
// every read and write.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func newIdleConn(c net.Conn, timeout time.Duration) net.Conn {
	return &idleConn{Conn: c, timeout: timeout}
}

func (c *idleConn) Read(p []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	return c.Conn.Write(p)
}
