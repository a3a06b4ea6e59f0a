package connectors

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	for _, name := range []string{"ssh", "local", "docker"} {
		connector, err := Get(name)
		if err != nil {
			t.Errorf("Get(%s) failed: %v", name, err)
			continue
		}
		if connector.Name() != name {
			t.Errorf("Get(%s).Name() = %q", name, connector.Name())
		}
	}

	if _, err := Get("teleport"); err == nil {
		t.Error("unknown connector should error")
	}

	if Default().Name() != DefaultName {
		t.Errorf("Default().Name() = %q, want %q", Default().Name(), DefaultName)
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("Names() not sorted: %v", names)
		}
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["ssh"] || !found["local"] || !found["docker"] {
		t.Errorf("built-in transports missing from %v", names)
	}
}

func TestConnectError(t *testing.T) {
	plain := &ConnectError{Target: "web1", Reason: "timeout"}
	if plain.Error() != "timeout" {
		t.Errorf("Error() = %q", plain.Error())
	}

	wrapped := &ConnectError{Target: "web1", Reason: "auth failed", Err: errors.New("no key")}
	if wrapped.Error() != "auth failed: no key" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, wrapped.Err) {
		t.Error("Unwrap chain broken")
	}

	var ce *ConnectError
	if !errors.As(error(wrapped), &ce) {
		t.Error("errors.As should match *ConnectError")
	}
}

func TestCommandOptionWrapping(t *testing.T) {
	tests := []struct {
		name string
		opts []CommandOption
		want string
	}{
		{
			name: "plain",
			want: "uptime",
		},
		{
			name: "sudo",
			opts: []CommandOption{WithSudo("")},
			want: "sudo -H -n sh -c 'uptime'",
		},
		{
			name: "sudo user",
			opts: []CommandOption{WithSudo("postgres")},
			want: "sudo -H -n -u postgres sh -c 'uptime'",
		},
		{
			name: "env",
			opts: []CommandOption{WithEnv("LANG", "C")},
			want: "LANG=C uptime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildCommandOptions(tt.opts).wrapCommand("uptime")
			if got != tt.want {
				t.Errorf("wrapCommand = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvAppliesBeforeSudo(t *testing.T) {
	got := buildCommandOptions([]CommandOption{
		WithEnv("LANG", "C"),
		WithSudo(""),
	}).wrapCommand("uptime")
	if !strings.Contains(got, "sudo") || !strings.Contains(got, "LANG=C uptime") {
		t.Errorf("wrapCommand = %q", got)
	}
}

func TestFileOptionsDefaultMode(t *testing.T) {
	if got := buildFileOptions(nil).mode; got != 0o644 {
		t.Errorf("default mode = %o", got)
	}
	if got := buildFileOptions([]FileOption{WithMode(0o755)}).mode; got != 0o755 {
		t.Errorf("mode = %o", got)
	}
}

func TestResultSuccess(t *testing.T) {
	if !(&Result{}).Success() {
		t.Error("exit 0 should be success")
	}
	if (&Result{ExitCode: 1}).Success() {
		t.Error("exit 1 should not be success")
	}
}
