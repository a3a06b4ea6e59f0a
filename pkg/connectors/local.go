package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
)

func init() {
	Register("local", func() Connector { return &Local{} })
}

// Local runs commands on the control node itself, used for targets that
// represent the local machine. There is no session to hold, so teardown
// is the contract's no-op.
type Local struct {
	NopDisconnect
}

// LocalConnection is the handle for a local "session".
type LocalConnection struct {
	user     string
	hostname string
}

func (c *LocalConnection) String() string {
	return fmt.Sprintf("local://%s@%s", c.user, c.hostname)
}

// Name implements Connector.
func (l *Local) Name() string { return "local" }

// Connect verifies the platform supports shell execution.
func (l *Local) Connect(ctx context.Context, target Target) (Connection, error) {
	switch runtime.GOOS {
	case "linux", "darwin":
	default:
		return nil, &ConnectError{
			Target: target.Name(),
			Reason: fmt.Sprintf("unsupported platform %s", runtime.GOOS),
		}
	}

	conn := &LocalConnection{user: "unknown", hostname: "localhost"}
	if current, err := user.Current(); err == nil {
		conn.user = current.Username
	}
	if hostname, err := os.Hostname(); err == nil {
		conn.hostname = hostname
	}
	return conn, nil
}

// RunShellCommand executes command with /bin/sh locally.
func (l *Local) RunShellCommand(ctx context.Context, target Target, command string, opts ...CommandOption) (*Result, error) {
	final := buildCommandOptions(opts).wrapCommand(command)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", final)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to run command: %w", err)
	}
	return result, nil
}

// PutFile copies localPath to remotePath on the local filesystem.
func (l *Local) PutFile(ctx context.Context, target Target, localPath, remotePath string, opts ...FileOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	if dir := filepath.Dir(remotePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dst, err := os.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(buildFileOptions(opts).mode))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy to %s: %w", remotePath, err)
	}
	return nil
}

// GetFile copies remotePath to localPath on the local filesystem.
func (l *Local) GetFile(ctx context.Context, target Target, remotePath, localPath string, opts ...FileOption) error {
	return l.PutFile(ctx, target, remotePath, localPath, opts...)
}
