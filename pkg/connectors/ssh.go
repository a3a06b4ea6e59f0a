package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

const sshScratchKey = "ssh:connection"

const defaultSSHTimeout = 30 * time.Second

func init() {
	Register("ssh", func() Connector { return &SSH{} })
}

// SSH executes commands and transfers files over an SSH session, the
// default transport for remote hosts. One live client per host is kept
// in the host's scratch so dispatch calls can reuse or self-establish it.
type SSH struct{}

// SSHConnection is the handle for an established SSH session.
type SSHConnection struct {
	addr   string
	user   string
	client *ssh.Client
}

func (c *SSHConnection) String() string {
	return fmt.Sprintf("ssh://%s@%s", c.user, c.addr)
}

// Name implements Connector.
func (s *SSH) Name() string { return "ssh" }

// Connect dials the target and stores the live client in its scratch.
func (s *SSH) Connect(ctx context.Context, target Target) (Connection, error) {
	config, err := sshConfigFromData(target.Name(), target.Data(), defaultSSHTimeout)
	if err != nil {
		return nil, &ConnectError{Target: target.Name(), Reason: err.Error(), Err: err}
	}

	log.Debug().Str("address", config.addr).Msg("establishing SSH connection")

	// Dial in a goroutine so the surrounding run's deadline applies even
	// when the TCP layer stalls.
	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultChan := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", config.addr, config.clientConfig)
		resultChan <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &ConnectError{Target: target.Name(), Reason: "connect timed out", Err: ctx.Err()}
	case result := <-resultChan:
		if result.err != nil {
			return nil, &ConnectError{
				Target: target.Name(),
				Reason: connectReason(result.err),
				Err:    result.err,
			}
		}
		conn := &SSHConnection{
			addr:   config.addr,
			user:   config.clientConfig.User,
			client: result.client,
		}
		target.Scratch()[sshScratchKey] = conn
		return conn, nil
	}
}

// connectReason trims dial errors down to the short form shown in
// host-prefixed log lines.
func connectReason(err error) string {
	var opErr interface{ Timeout() bool }
	if errors.As(err, &opErr) && opErr.Timeout() {
		return "timeout"
	}
	return err.Error()
}

// Disconnect closes the live client and forgets it.
func (s *SSH) Disconnect(ctx context.Context, target Target) error {
	conn, ok := target.Scratch()[sshScratchKey].(*SSHConnection)
	if !ok {
		conn, ok = target.Connection().(*SSHConnection)
	}
	delete(target.Scratch(), sshScratchKey)
	if !ok || conn.client == nil {
		return nil
	}

	log.Debug().Str("address", conn.addr).Msg("closing SSH connection")
	if err := conn.client.Close(); err != nil {
		return fmt.Errorf("failed to close SSH connection to %s: %w", conn.addr, err)
	}
	return nil
}

// session returns the live connection, establishing one on demand for
// dispatch calls made before an explicit connect.
func (s *SSH) session(ctx context.Context, target Target) (*SSHConnection, error) {
	if conn, ok := target.Connection().(*SSHConnection); ok && conn.client != nil {
		return conn, nil
	}
	if conn, ok := target.Scratch()[sshScratchKey].(*SSHConnection); ok && conn.client != nil {
		return conn, nil
	}

	conn, err := s.Connect(ctx, target)
	if err != nil {
		return nil, err
	}
	return conn.(*SSHConnection), nil
}

// RunShellCommand executes command on the target. A non-zero exit status
// is reported through the Result, not as an error; errors are reserved
// for transport failures.
func (s *SSH) RunShellCommand(ctx context.Context, target Target, command string, opts ...CommandOption) (*Result, error) {
	conn, err := s.session(ctx, target)
	if err != nil {
		return nil, err
	}

	session, err := conn.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session on %s: %w", target.Name(), err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	final := buildCommandOptions(opts).wrapCommand(command)

	log.Debug().Str("host", target.Name()).Str("command", final).Msg("executing command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(final)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return nil, fmt.Errorf("command cancelled on %s: %w", target.Name(), ctx.Err())
	case runErr = <-doneChan:
	}

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("failed to run command on %s: %w", target.Name(), runErr)
	}
	return result, nil
}

// PutFile uploads localPath to remotePath via SFTP, creating parent
// directories as needed.
func (s *SSH) PutFile(ctx context.Context, target Target, localPath, remotePath string, opts ...FileOption) error {
	conn, err := s.session(ctx, target)
	if err != nil {
		return err
	}

	client, err := sftp.NewClient(conn.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client on %s: %w", target.Name(), err)
	}
	defer client.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer local.Close()

	if dir := filepath.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	remote, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return fmt.Errorf("failed to upload %s: %w", remotePath, err)
	}

	mode := buildFileOptions(opts).mode
	if err := client.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", remotePath, err)
	}
	return nil
}

// GetFile downloads remotePath from the target to localPath via SFTP.
func (s *SSH) GetFile(ctx context.Context, target Target, remotePath, localPath string, opts ...FileOption) error {
	conn, err := s.session(ctx, target)
	if err != nil {
		return err
	}

	client, err := sftp.NewClient(conn.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client on %s: %w", target.Name(), err)
	}
	defer client.Close()

	remote, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	local, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(buildFileOptions(opts).mode))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer local.Close()

	if _, err := io.Copy(local, remote); err != nil {
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return nil
}
