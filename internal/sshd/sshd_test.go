// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package sshd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatehouse/internal/hub"
	"github.com/toeirei/gatehouse/internal/model"
)

type memLoader struct {
	mu sync.Mutex
	kc *model.Keychain
}

func (l *memLoader) Load(ctx context.Context) (*model.Keychain, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.kc, nil
}

func (l *memLoader) set(kc *model.Keychain) {
	l.mu.Lock()
	l.kc = kc
	l.mu.Unlock()
}

func genSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func entityFor(t *testing.T, name string, role model.Role, signer ssh.Signer) model.Entity {
	t.Helper()
	return model.Entity{
		Name:      name,
		Role:      role,
		Algorithm: signer.PublicKey().Type(),
		Key:       string(signer.PublicKey().Marshal()),
	}
}

func keychain(t *testing.T, entities ...model.Entity) *model.Keychain {
	t.Helper()
	kc, err := model.NewKeychain(entities)
	if err != nil {
		t.Fatalf("keychain: %v", err)
	}
	return kc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// startServer runs a server for the given hub on a loopback port.
func startServer(t *testing.T, h *hub.Hub) *Server {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(Config{RejectionDelay: time.Millisecond}, h, genSigner(t))
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = l.Close() })
	return srv
}

// dialSession connects as the given key and opens an interactive
// session with a pty and shell, discarding server output.
func dialSession(t *testing.T, srv *Server, user string, key ssh.Signer) (*ssh.Client, *ssh.Session, io.WriteCloser) {
	t.Helper()
	client, err := ssh.Dial("tcp", srv.Addr().String(), &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(key)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("dial as %s: %v", user, err)
	}
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout: %v", err)
	}
	go func() { _, _ = io.Copy(io.Discard, stdout) }()
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	if err := sess.RequestPty("xterm", 24, 80, ssh.TerminalModes{}); err != nil {
		t.Fatalf("pty: %v", err)
	}
	if err := sess.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}
	return client, sess, stdin
}

func TestHostKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostkey")
	first, err := LoadOrGenerateHostKey(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadOrGenerateHostKey(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ssh.FingerprintSHA256(first.PublicKey()) != ssh.FingerprintSHA256(second.PublicKey()) {
		t.Fatal("host key must be stable across restarts")
	}
}

func TestAuthAccept(t *testing.T) {
	aliceKey := genSigner(t)
	alice := entityFor(t, "alice", model.RoleStandard, aliceKey)
	loader := &memLoader{}
	loader.set(keychain(t, alice))
	h := hub.New(loader, keychain(t, alice))
	srv := startServer(t, h)

	client, _, stdin := dialSession(t, srv, "alice", aliceKey)
	waitFor(t, func() bool { return h.SessionCount() == 1 })

	// Type a message and send it with alt+enter (ESC CR on the wire).
	if _, err := stdin.Write([]byte("hi there\x1b\r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool {
		for _, line := range h.History() {
			if line == "[alice]: hi there" {
				return true
			}
		}
		return false
	})

	client.Close()
	waitFor(t, func() bool { return h.SessionCount() == 0 })
}

func TestAuthReject(t *testing.T) {
	aliceKey := genSigner(t)
	alice := entityFor(t, "alice", model.RoleStandard, aliceKey)
	loader := &memLoader{}
	loader.set(keychain(t, alice))
	h := hub.New(loader, keychain(t, alice))
	srv := startServer(t, h)

	mallory := genSigner(t)
	_, err := ssh.Dial("tcp", srv.Addr().String(), &ssh.ClientConfig{
		User:            "mallory",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(mallory)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	if err == nil {
		t.Fatal("unknown key must be rejected")
	}
	if h.SessionCount() != 0 {
		t.Fatal("rejected connection must leave no session")
	}
	if len(h.History()) != 0 {
		t.Fatal("rejected connection must leave no trace in history")
	}
}

// The full revocation path over the wire: bob presses ctrl+r after
// alice's key was removed from the store, and alice's connection drops.
func TestReloadGestureRevokesStray(t *testing.T) {
	aliceKey := genSigner(t)
	bobKey := genSigner(t)
	alice := entityFor(t, "alice", model.RoleStandard, aliceKey)
	bob := entityFor(t, "bob", model.RoleElevated, bobKey)

	loader := &memLoader{}
	loader.set(keychain(t, alice, bob))
	h := hub.New(loader, keychain(t, alice, bob))
	srv := startServer(t, h)

	aliceClient, _, _ := dialSession(t, srv, "alice", aliceKey)
	bobClient, _, bobStdin := dialSession(t, srv, "bob", bobKey)
	defer bobClient.Close()
	waitFor(t, func() bool { return h.SessionCount() == 2 })

	// Remove alice from the backing store, then bob triggers the reload
	// gesture (ctrl+r).
	loader.set(keychain(t, bob))
	if _, err := bobStdin.Write([]byte{0x12}); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool { return h.SessionCount() == 1 })
	if _, ok := h.KeyPool()[alice.Key]; ok {
		t.Fatal("alice's key must be gone after reload")
	}

	// Alice's client sees its connection die.
	done := make(chan struct{})
	go func() { _ = aliceClient.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("alice's connection should have been force-closed")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.Addr != ":2222" {
		t.Errorf("Addr = %q", c.Addr)
	}
	if c.RejectionDelay != 3*time.Second {
		t.Errorf("RejectionDelay = %v", c.RejectionDelay)
	}
	if c.InactivityTimeout != time.Hour {
		t.Errorf("InactivityTimeout = %v", c.InactivityTimeout)
	}
}

func TestKeyFromPermissions(t *testing.T) {
	if _, err := keyFromPermissions(nil); err == nil {
		t.Error("nil permissions must fail")
	}
	if _, err := keyFromPermissions(&ssh.Permissions{}); err == nil {
		t.Error("missing extension must fail")
	}
	if _, err := keyFromPermissions(&ssh.Permissions{Extensions: map[string]string{keyExtension: "!"}}); err == nil {
		t.Error("bad base64 must fail")
	}
	perms := &ssh.Permissions{Extensions: map[string]string{keyExtension: "a2V5"}}
	wire, err := keyFromPermissions(perms)
	if err != nil || wire != "key" {
		t.Errorf("keyFromPermissions = %q, %v", wire, err)
	}
}

func TestIdleConnDeadlines(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	idle := newIdleConn(a, 50*time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := idle.Read(buf)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("idle read did not time out")
	}
}
