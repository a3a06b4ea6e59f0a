package inventory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeInventory(t, sampleInventory)
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- inv.Watch(ctx, path) }()

	// Give the watcher a moment to install before rewriting.
	time.Sleep(50 * time.Millisecond)

	updated := strings.Replace(sampleInventory,
		"  web2:\n", "  web3:\n    groups: [web]\n  web2:\n", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewriting inventory: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return inv.Host("web3") != nil }) {
		t.Fatal("watcher did not pick up the new host")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Watch returned %v, want context.Canceled", err)
	}
}

func TestWatchKeepsCatalogOnBadUpdate(t *testing.T) {
	path := writeInventory(t, sampleInventory)
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go inv.Watch(ctx, path)

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("hosts: ["), 0o644); err != nil {
		t.Fatalf("rewriting inventory: %v", err)
	}

	// The broken update must not empty the catalog.
	time.Sleep(300 * time.Millisecond)
	if inv.Host("web1") == nil {
		t.Fatal("previous catalog was lost on a bad update")
	}
}
