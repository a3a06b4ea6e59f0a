package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/connectors"
	"github.com/fleetform/fleetform/pkg/engine"
)

func newExecCommand() *cobra.Command {
	var (
		sudo     bool
		sudoUser string
		env      []string
	)

	cmd := &cobra.Command{
		Use:   "exec -- <command>",
		Short: "Execute a shell command across hosts",
		Long: `Execute a shell command on every inventory host (or the hosts of one
group with --limit), with the run's configured parallelism. Output is
printed per host, prefixed with the host name.`,
		Example: `  # Run uptime everywhere
  fleetform exec -i inventory.yml -- uptime

  # Restart a service on the web group, as root
  fleetform exec -i inventory.yml --limit web --sudo -- systemctl restart nginx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")

			state, hosts, err := setupRun(cmd.Context())
			if err != nil {
				return err
			}

			connected := connectAll(cmd.Context(), state, hosts)
			defer disconnectAll(state, hosts)
			if len(connected) == 0 {
				return fmt.Errorf("no hosts could be connected")
			}

			var opts []connectors.CommandOption
			if sudo {
				opts = append(opts, connectors.WithSudo(sudoUser))
			}
			for _, kv := range env {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
				}
				opts = append(opts, connectors.WithEnv(key, value))
			}

			var failed atomic.Int64
			var printMu sync.Mutex
			err = engine.ForEachHost(cmd.Context(), state, connected, func(ctx context.Context, h *engine.Host) error {
				result, err := h.RunShellCommand(ctx, command, opts...)

				// One write per host so blocks from concurrent hosts
				// never interleave.
				printMu.Lock()
				defer printMu.Unlock()
				if err != nil {
					fmt.Printf("%serror: %v\n", h.PrintPrefix(), err)
					failed.Add(1)
					return nil
				}
				fmt.Print(formatResult(h.PrintPrefix(), result))
				if !result.Success() {
					failed.Add(1)
				}
				return nil
			})
			if err != nil {
				return err
			}

			if n := failed.Load(); n > 0 {
				return fmt.Errorf("command failed on %d of %d hosts", n, len(connected))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sudo, "sudo", false, "run the command via sudo")
	cmd.Flags().StringVar(&sudoUser, "sudo-user", "", "user to sudo as (default root)")
	cmd.Flags().StringSliceVar(&env, "env", nil, "environment variables as KEY=VALUE")

	return cmd
}

// formatResult renders one host's command output as a single block, with
// the host prefix on every line.
func formatResult(prefix string, result *connectors.Result) string {
	var b strings.Builder
	for _, line := range splitOutput(result.Stdout) {
		b.WriteString(prefix + line + "\n")
	}
	for _, line := range splitOutput(result.Stderr) {
		b.WriteString(prefix + "stderr: " + line + "\n")
	}
	if !result.Success() {
		fmt.Fprintf(&b, "%sexited %d\n", prefix, result.ExitCode)
	}
	return b.String()
}

func splitOutput(out string) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}
