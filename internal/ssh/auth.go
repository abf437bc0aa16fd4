// SPDX-License-Identifier: Apache-2.0

// Package ssh resolves the SSH credentials gitbackend uses to clone and
// fetch a configuration repository, discovering a default key under
// $HOME/.ssh when no explicit path is configured.
package ssh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-logr/logr"
	gossh "golang.org/x/crypto/ssh"
)

// DefaultKeyNames are tried, in order, under $HOME/.ssh when no explicit
// private key path is configured.
var DefaultKeyNames = []string{"id_ed25519", "id_rsa"}

// Options configures SSH auth resolution. A zero Options discovers a
// default key under $HOME/.ssh and disables host key verification.
type Options struct {
	// PrivateKeyPath, if set, overrides default-path discovery.
	PrivateKeyPath string
	// Passphrase decrypts PrivateKeyPath if it is encrypted.
	Passphrase string
	// KnownHostsPath, if set, is used for host key verification.
	// Omitted, the connection accepts any host key (development only).
	KnownHostsPath string
}

// ErrNoKeyFound is returned when neither an explicit key path nor any
// DefaultKeyNames entry exists under $HOME/.ssh.
var ErrNoKeyFound = errors.New("ssh: no private key found")

// Resolve builds a transport.AuthMethod from opts, discovering a default
// key under $HOME/.ssh when PrivateKeyPath is empty. log receives
// diagnostics about insecure host key verification fallbacks; it may be
// the zero logr.Logger.
func Resolve(log logr.Logger, opts Options) (transport.AuthMethod, error) {
	keyPath := opts.PrivateKeyPath
	if keyPath == "" {
		found, err := discoverDefaultKey()
		if err != nil {
			return nil, err
		}
		keyPath = found
	}

	auth, err := ssh.NewPublicKeysFromFile("git", keyPath, opts.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("ssh: load private key %q: %w", keyPath, err)
	}

	if opts.KnownHostsPath != "" {
		callback, err := ssh.NewKnownHostsCallback(opts.KnownHostsPath)
		if err != nil {
			log.Info("falling back to insecure host key verification", "known_hosts", opts.KnownHostsPath, "error", err.Error())
			auth.HostKeyCallback = gossh.InsecureIgnoreHostKey() //nolint:gosec // explicit fallback when known_hosts is unusable
		} else {
			auth.HostKeyCallback = callback
		}
	} else {
		log.Info("no known_hosts configured, using insecure SSH host key verification")
		auth.HostKeyCallback = gossh.InsecureIgnoreHostKey() //nolint:gosec // no known_hosts configured
	}

	return auth, nil
}

func discoverDefaultKey() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ssh: resolve home directory: %w", err)
	}
	for _, name := range DefaultKeyNames {
		candidate := filepath.Join(home, ".ssh", name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w under %s", ErrNoKeyFound, filepath.Join(home, ".ssh"))
}
