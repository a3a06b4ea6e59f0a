package connectors

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"
)

const dockerScratchKey = "docker:connection"

// DataDockerContainer selects the container a docker target executes in;
// it defaults to the inventory name.
const DataDockerContainer = "docker_container"

func init() {
	Register("docker", func() Connector { return &Docker{} })
}

// Docker executes commands inside a running container through the Docker
// Engine API, for targets that are containers rather than machines.
type Docker struct{}

// DockerConnection is the handle for a verified container session.
type DockerConnection struct {
	container string
	cli       *client.Client
}

func (c *DockerConnection) String() string {
	return "docker://" + c.container
}

// Name implements Connector.
func (d *Docker) Name() string { return "docker" }

// Connect creates an API client and verifies the container is running.
func (d *Docker) Connect(ctx context.Context, target Target) (Connection, error) {
	containerName := target.Data().String(DataDockerContainer)
	if containerName == "" {
		containerName = target.Name()
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &ConnectError{Target: target.Name(), Reason: "failed to create Docker client", Err: err}
	}

	inspect, err := cli.ContainerInspect(ctx, containerName)
	if err != nil {
		_ = cli.Close()
		return nil, &ConnectError{
			Target: target.Name(),
			Reason: fmt.Sprintf("container %s not found", containerName),
			Err:    err,
		}
	}
	if inspect.State == nil || !inspect.State.Running {
		_ = cli.Close()
		return nil, &ConnectError{
			Target: target.Name(),
			Reason: fmt.Sprintf("container %s is not running", containerName),
		}
	}

	conn := &DockerConnection{container: containerName, cli: cli}
	target.Scratch()[dockerScratchKey] = conn
	return conn, nil
}

// Disconnect closes the API client.
func (d *Docker) Disconnect(ctx context.Context, target Target) error {
	conn, ok := target.Scratch()[dockerScratchKey].(*DockerConnection)
	if !ok {
		conn, ok = target.Connection().(*DockerConnection)
	}
	delete(target.Scratch(), dockerScratchKey)
	if !ok || conn.cli == nil {
		return nil
	}
	return conn.cli.Close()
}

func (d *Docker) session(ctx context.Context, target Target) (*DockerConnection, error) {
	if conn, ok := target.Connection().(*DockerConnection); ok && conn.cli != nil {
		return conn, nil
	}
	if conn, ok := target.Scratch()[dockerScratchKey].(*DockerConnection); ok && conn.cli != nil {
		return conn, nil
	}

	conn, err := d.Connect(ctx, target)
	if err != nil {
		return nil, err
	}
	return conn.(*DockerConnection), nil
}

// RunShellCommand executes command inside the container via docker exec.
func (d *Docker) RunShellCommand(ctx context.Context, target Target, command string, opts ...CommandOption) (*Result, error) {
	conn, err := d.session(ctx, target)
	if err != nil {
		return nil, err
	}

	final := buildCommandOptions(opts).wrapCommand(command)

	log.Debug().Str("container", conn.container).Str("command", final).Msg("executing command")

	execResp, err := conn.cli.ContainerExecCreate(ctx, conn.container, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"/bin/sh", "-c", final},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec in %s: %w", conn.container, err)
	}

	attach, err := conn.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec in %s: %w", conn.container, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output from %s: %w", conn.container, err)
	}

	inspect, err := conn.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec in %s: %w", conn.container, err)
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// PutFile uploads localPath into the container via the archive endpoint.
func (d *Docker) PutFile(ctx context.Context, target Target, localPath, remotePath string, opts ...FileOption) error {
	conn, err := d.session(ctx, target)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	// The copy endpoint takes a tar stream extracted at the destination
	// directory.
	var archive bytes.Buffer
	tw := tar.NewWriter(&archive)
	header := &tar.Header{
		Name: filepath.Base(remotePath),
		Mode: int64(buildFileOptions(opts).mode),
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("failed to write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar archive: %w", err)
	}

	dir := filepath.Dir(remotePath)
	if err := conn.cli.CopyToContainer(ctx, conn.container, dir, &archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy %s into %s: %w", remotePath, conn.container, err)
	}
	return nil
}

// GetFile downloads remotePath from the container via the archive
// endpoint.
func (d *Docker) GetFile(ctx context.Context, target Target, remotePath, localPath string, opts ...FileOption) error {
	conn, err := d.session(ctx, target)
	if err != nil {
		return err
	}

	reader, _, err := conn.cli.CopyFromContainer(ctx, conn.container, remotePath)
	if err != nil {
		return fmt.Errorf("failed to copy %s from %s: %w", remotePath, conn.container, err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	if _, err := tr.Next(); err != nil {
		return fmt.Errorf("failed to read archive for %s: %w", remotePath, err)
	}

	local, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(buildFileOptions(opts).mode))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer local.Close()

	if _, err := io.Copy(local, tr); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}
