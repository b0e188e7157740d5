// Copyright (c) 2025 ToeiRei
// Gatehouse - key-gated SSH chat
// This source code is licensed under the MIT license found in the LICENSE file.

package sshd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatehouse/internal/i18n"
	"github.com/toeirei/gatehouse/internal/logging"
)

// LoadOrGenerateHostKey returns the server's host key signer. A missing
// file is not an error: a fresh ed25519 key is generated and persisted
// in the modern OpenSSH private key format so the host identity
// survives restarts.
func LoadOrGenerateHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		signer, perr := ssh.ParsePrivateKey(data)
		if perr != nil {
			return nil, fmt.Errorf("failed to parse host key %s: %w", path, perr)
		}
		return signer, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read host key %s: %w", path, err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}

	// MarshalPrivateKey handles the OpenSSH-specific binary format.
	pemBlock, err := ssh.MarshalPrivateKey(priv, "gatehouse host key")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		return nil, fmt.Errorf("failed to persist host key %s: %w", path, err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to build signer: %w", err)
	}
	logging.Infof("%s", i18n.T("server.hostkey_generated", path, ssh.FingerprintSHA256(signer.PublicKey())))
	return signer, nil
}
