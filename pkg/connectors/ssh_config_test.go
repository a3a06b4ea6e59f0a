package connectors

import (
	"strings"
	"testing"
	"time"

	"github.com/fleetform/fleetform/pkg/inventory"
)

func TestSSHConfigFromData(t *testing.T) {
	cfg, err := sshConfigFromData("web1", inventory.Data{
		DataSSHHostname: "10.0.0.5",
		DataSSHPort:     2222,
		DataSSHUser:     "deploy",
		DataSSHPassword: "secret",
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("sshConfigFromData failed: %v", err)
	}

	if cfg.addr != "10.0.0.5:2222" {
		t.Errorf("addr = %q", cfg.addr)
	}
	if cfg.clientConfig.User != "deploy" {
		t.Errorf("user = %q", cfg.clientConfig.User)
	}
	if cfg.clientConfig.Timeout != 10*time.Second {
		t.Errorf("timeout = %v", cfg.clientConfig.Timeout)
	}
	if len(cfg.clientConfig.Auth) != 1 {
		t.Errorf("expected password auth method, got %d methods", len(cfg.clientConfig.Auth))
	}
}

func TestSSHConfigDefaultsHostnameToName(t *testing.T) {
	cfg, err := sshConfigFromData("web1.internal", inventory.Data{
		DataSSHUser:     "deploy",
		DataSSHPassword: "secret",
	}, time.Second)
	if err != nil {
		t.Fatalf("sshConfigFromData failed: %v", err)
	}
	if cfg.addr != "web1.internal:22" {
		t.Errorf("addr = %q", cfg.addr)
	}
}

func TestSSHConfigRejectsBadKey(t *testing.T) {
	_, err := sshConfigFromData("web1", inventory.Data{
		DataSSHUser: "deploy",
		DataSSHKey:  "/does/not/exist",
	}, time.Second)
	if err == nil || !strings.Contains(err.Error(), "private key") {
		t.Fatalf("expected private key error, got: %v", err)
	}
}

func TestSSHConfigRejectsBadKnownHosts(t *testing.T) {
	_, err := sshConfigFromData("web1", inventory.Data{
		DataSSHUser:       "deploy",
		DataSSHPassword:   "secret",
		DataSSHKnownHosts: "/does/not/exist",
	}, time.Second)
	if err == nil || !strings.Contains(err.Error(), "known_hosts") {
		t.Fatalf("expected known_hosts error, got: %v", err)
	}
}
