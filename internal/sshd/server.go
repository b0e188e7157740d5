// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshd runs the SSH face of Gatehouse: it accepts connections,
// gates them through the hub's public-key check, and hands the accepted
// channel to a per-session chat program. Everything above the wire —
// who is allowed in, who sees what — lives in the hub; this package
// only moves bytes and lifecycle events.
package sshd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatehouse/internal/hub"
	"github.com/toeirei/gatehouse/internal/i18n"
	"github.com/toeirei/gatehouse/internal/logging"
)

// keyExtension is the Permissions extension carrying the accepted
// public key (base64 of its wire marshal) from the auth callback to the
// established connection.
const keyExtension = "gatehouse-key"

// Config carries the transport tunables. Zero values fall back to the
// defaults below.
type Config struct {
	// Addr is the listen address, e.g. ":2222".
	Addr string
	// RejectionDelay paces repeated failed public-key offers on one
	// connection. The first rejection is not delayed.
	RejectionDelay time.Duration
	// InactivityTimeout disconnects sessions idle past this duration.
	InactivityTimeout time.Duration
}

const (
	defaultAddr              = ":2222"
	defaultRejectionDelay    = 3 * time.Second
	defaultInactivityTimeout = time.Hour
)

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.RejectionDelay == 0 {
		c.RejectionDelay = defaultRejectionDelay
	}
	if c.InactivityTimeout == 0 {
		c.InactivityTimeout = defaultInactivityTimeout
	}
	return c
}

// Server accepts SSH connections and runs one chat session per
// connection.
type Server struct {
	cfg    Config
	hub    *hub.Hub
	signer ssh.Signer

	mu       sync.Mutex
	listener net.Listener
}

// New builds a server around the hub and host key.
func New(cfg Config, h *hub.Hub, signer ssh.Signer) *Server {
	return &Server{cfg: cfg.withDefaults(), hub: h, signer: signer}
}

// ListenAndServe binds the configured address and serves until the
// context is canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	logging.Infof("%s", i18n.T("server.listening", l.Addr().String()))
	err = s.Serve(l)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Serve accepts connections on l until it is closed. Each connection
// runs on its own goroutine; a failed handshake never affects others.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	for {
		netConn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go s.handleConn(netConn)
	}
}

// Addr reports the bound listen address, for tests binding port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// serverConfig builds the per-connection SSH config. Public key is the
// only permitted authentication method; the callback consults the hub
// and paces repeated rejections.
func (s *Server) serverConfig() *ssh.ServerConfig {
	rejected := 0
	conf := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			wire := key.Marshal()
			if _, ok := s.hub.Lookup(string(wire)); ok {
				return &ssh.Permissions{Extensions: map[string]string{
					keyExtension: base64.StdEncoding.EncodeToString(wire),
				}}, nil
			}
			if rejected > 0 {
				time.Sleep(s.cfg.RejectionDelay)
			}
			rejected++
			return nil, fmt.Errorf("unknown public key for %q", meta.User())
		},
	}
	conf.AddHostKey(s.signer)
	return conf
}

// keyFromPermissions recovers the wire key recorded by the auth callback.
func keyFromPermissions(perms *ssh.Permissions) (string, error) {
	if perms == nil {
		return "", fmt.Errorf("connection carries no permissions")
	}
	enc, ok := perms.Extensions[keyExtension]
	if !ok {
		return "", fmt.Errorf("connection carries no accepted key")
	}
	wire, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("bad key extension: %w", err)
	}
	return string(wire), nil
}
