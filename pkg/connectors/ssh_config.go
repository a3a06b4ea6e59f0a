package connectors

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/fleetform/fleetform/pkg/inventory"
)

// Inventory data keys understood by the ssh transport.
const (
	DataSSHHostname      = "ssh_hostname"
	DataSSHPort          = "ssh_port"
	DataSSHUser          = "ssh_user"
	DataSSHKey           = "ssh_key"
	DataSSHKeyPassphrase = "ssh_key_passphrase"
	DataSSHPassword      = "ssh_password"
	DataSSHKnownHosts    = "ssh_known_hosts"
)

// sshConfig is the dial configuration derived from a target's merged data.
type sshConfig struct {
	addr         string
	clientConfig *ssh.ClientConfig
}

// sshConfigFromData builds the dial configuration for a target. The
// hostname defaults to the inventory name and the user to the local one,
// matching how bare entries in a hand-written inventory behave.
func sshConfigFromData(name string, data inventory.Data, timeout time.Duration) (*sshConfig, error) {
	hostname := data.String(DataSSHHostname)
	if hostname == "" {
		hostname = name
	}
	port := data.Int(DataSSHPort, 22)

	username := data.String(DataSSHUser)
	if username == "" {
		current, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("no ssh_user set and local user unknown: %w", err)
		}
		username = current.Username
	}

	auth, err := buildAuthMethods(data)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := buildHostKeyCallback(data)
	if err != nil {
		return nil, err
	}

	return &sshConfig{
		addr: net.JoinHostPort(hostname, fmt.Sprintf("%d", port)),
		clientConfig: &ssh.ClientConfig{
			User:            username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
	}, nil
}

// buildAuthMethods prefers an explicit key, then a password, then the
// conventional default key locations.
func buildAuthMethods(data inventory.Data) ([]ssh.AuthMethod, error) {
	if keyPath := data.String(DataSSHKey); keyPath != "" {
		signer, err := loadPrivateKey(keyPath, data.String(DataSSHKeyPassphrase))
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	if password := data.String(DataSSHPassword); password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}

	home, _ := os.UserHomeDir()
	for _, candidate := range []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			signer, err := loadPrivateKey(candidate, "")
			if err != nil {
				continue
			}
			return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
		}
	}

	return nil, fmt.Errorf("no usable authentication: set %s or %s", DataSSHKey, DataSSHPassword)
}

func loadPrivateKey(path, passphrase string) (ssh.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(raw, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	return signer, nil
}

// buildHostKeyCallback verifies against a known_hosts file when one is
// configured and skips verification otherwise.
func buildHostKeyCallback(data inventory.Data) (ssh.HostKeyCallback, error) {
	path := data.String(DataSSHKnownHosts)
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via ssh_known_hosts
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
	}
	return callback, nil
}
