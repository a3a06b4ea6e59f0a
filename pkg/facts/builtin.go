package facts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func init() {
	Default.MustRegister(osVersionFact{})
	Default.MustRegister(kernelFact{})
	Default.MustRegister(archFact{})
	Default.MustRegister(hostnameFact{})
	Default.MustRegister(memoryFact{})
	Default.MustRegister(packagesFact{})
	Default.MustRegister(fileFact{})
	Default.MustRegister(directoryFact{})
}

// runOutput executes command and returns trimmed stdout, mapping a
// non-zero exit into an error carrying stderr.
func runOutput(ctx context.Context, host Runner, command string) (string, error) {
	result, err := host.RunShellCommand(ctx, command)
	if err != nil {
		return "", err
	}
	if !result.Success() {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(result.Stdout)
		}
		return "", fmt.Errorf("command %q exited %d: %s", command, result.ExitCode, detail)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// osVersionFact reports the kernel name and release joined into one
// lowercase identifier, e.g. "linux-6.1".
type osVersionFact struct{}

func (osVersionFact) Name() string { return "os_version" }

func (osVersionFact) Fetch(ctx context.Context, host Runner, _ Args) (any, error) {
	out, err := runOutput(ctx, host, "uname -sr")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(strings.ToLower(out))
	return strings.Join(fields, "-"), nil
}

type kernelFact struct{}

func (kernelFact) Name() string { return "kernel" }

func (kernelFact) Fetch(ctx context.Context, host Runner, _ Args) (any, error) {
	return runOutput(ctx, host, "uname -r")
}

type archFact struct{}

func (archFact) Name() string { return "arch" }

func (archFact) Fetch(ctx context.Context, host Runner, _ Args) (any, error) {
	return runOutput(ctx, host, "uname -m")
}

type hostnameFact struct{}

func (hostnameFact) Name() string { return "hostname" }

func (hostnameFact) Fetch(ctx context.Context, host Runner, _ Args) (any, error) {
	return runOutput(ctx, host, "hostname")
}

// memoryFact reports total system memory in megabytes.
type memoryFact struct{}

func (memoryFact) Name() string { return "memory" }

func (memoryFact) Fetch(ctx context.Context, host Runner, _ Args) (any, error) {
	out, err := runOutput(ctx, host, "grep MemTotal /proc/meminfo")
	if err != nil {
		return nil, err
	}
	// MemTotal:       16384000 kB
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return nil, fmt.Errorf("unexpected meminfo line %q", out)
	}
	kb, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse meminfo value %q: %w", fields[1], err)
	}
	return int(kb / 1024), nil
}

// packagesFact lists installed packages as name -> version, probing dpkg
// then rpm.
type packagesFact struct{}

func (packagesFact) Name() string { return "packages" }

func (packagesFact) Fetch(ctx context.Context, host Runner, _ Args) (any, error) {
	out, err := runOutput(ctx, host, `dpkg-query -W -f '${Package} ${Version}\n' 2>/dev/null || rpm -qa --qf '%{NAME} %{VERSION}\n' 2>/dev/null || true`)
	if err != nil {
		return nil, err
	}
	packages := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		packages[fields[0]] = fields[1]
	}
	return packages, nil
}

// FileInfo is the value of the "file" fact: nil when the path does not
// exist, otherwise mode, owner and size as reported by stat.
type FileInfo struct {
	Path  string `json:"path"`
	Mode  string `json:"mode"`
	User  string `json:"user"`
	Group string `json:"group"`
	Size  int64  `json:"size"`
}

func pathArg(args Args) (string, error) {
	path := args["path"]
	if path == "" {
		return "", fmt.Errorf("missing required arg %q", "path")
	}
	return path, nil
}

func statPath(ctx context.Context, host Runner, path string) (*FileInfo, error) {
	result, err := host.RunShellCommand(ctx, fmt.Sprintf("stat -c '%%a %%U %%G %%s' %s", shellQuote(path)))
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		// Absent path; not an error, the fact value is nil.
		return nil, nil
	}
	fields := strings.Fields(strings.TrimSpace(result.Stdout))
	if len(fields) != 4 {
		return nil, fmt.Errorf("unexpected stat output %q", result.Stdout)
	}
	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse stat size %q: %w", fields[3], err)
	}
	return &FileInfo{Path: path, Mode: fields[0], User: fields[1], Group: fields[2], Size: size}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// fileFact reports stat information for a regular file, and as a mutable
// fact can touch it into existence or remove it.
type fileFact struct{}

func (fileFact) Name() string { return "file" }

func (fileFact) Fetch(ctx context.Context, host Runner, args Args) (any, error) {
	path, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	info, err := statPath(ctx, host, path)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return info, nil
}

func (fileFact) Create(ctx context.Context, host Runner, _ any, args Args) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	_, err = runOutput(ctx, host, "touch "+shellQuote(path))
	return err
}

func (fileFact) Delete(ctx context.Context, host Runner, args Args) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	_, err = runOutput(ctx, host, "rm -f "+shellQuote(path))
	return err
}

// directoryFact mirrors fileFact for directories.
type directoryFact struct{}

func (directoryFact) Name() string { return "directory" }

func (directoryFact) Fetch(ctx context.Context, host Runner, args Args) (any, error) {
	path, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	info, err := statPath(ctx, host, path)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return info, nil
}

func (directoryFact) Create(ctx context.Context, host Runner, _ any, args Args) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	_, err = runOutput(ctx, host, "mkdir -p "+shellQuote(path))
	return err
}

func (directoryFact) Delete(ctx context.Context, host Runner, args Args) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	_, err = runOutput(ctx, host, "rmdir "+shellQuote(path))
	return err
}

var (
	_ MutableFact = fileFact{}
	_ MutableFact = directoryFact{}
)
