package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/engine"
	"github.com/fleetform/fleetform/pkg/facts"
)

func newFactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Fact discovery and inspection",
		Long: `Discover and inspect facts about managed hosts.

Facts are structured data queried from the machines themselves:
  - os_version, kernel, arch, hostname
  - memory (total MB)
  - packages (installed packages and versions)
  - file, directory (presence and stat data, args: path=...)`,
	}

	cmd.AddCommand(newFactsListCommand())
	cmd.AddCommand(newFactsGetCommand())

	return cmd
}

func newFactsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered fact names",
		Long: `List the fact identifiers known to the registry.

Pure introspection: no inventory is read and no host is contacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range facts.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newFactsGetCommand() *cobra.Command {
	var factArgs []string

	cmd := &cobra.Command{
		Use:   "get <fact>",
		Short: "Resolve a fact across hosts",
		Long: `Connect to each inventory host and resolve the named fact.

Values are printed one host per line as JSON. Hosts that cannot be
reached report the connection failure and are skipped.`,
		Example: `  # OS of every host
  fleetform facts get os_version

  # Stat a path on the web group
  fleetform facts get file --arg path=/etc/nginx/nginx.conf --limit web`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			factName := args[0]

			parsedArgs := facts.Args{}
			for _, kv := range factArgs {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --arg %q, want key=value", kv)
				}
				parsedArgs[key] = value
			}

			state, hosts, err := setupRun(cmd.Context())
			if err != nil {
				return err
			}
			defer disconnectAll(state, hosts)

			var printMu sync.Mutex
			return engine.ForEachHost(cmd.Context(), state, hosts, func(ctx context.Context, h *engine.Host) error {
				value, err := h.Facts.Read(ctx, factName, parsedArgs)

				printMu.Lock()
				defer printMu.Unlock()
				if err != nil {
					if engine.IsFactUnavailable(err) {
						// Connection failure already on the run log.
						return nil
					}
					return err
				}
				encoded, err := json.Marshal(value)
				if err != nil {
					return fmt.Errorf("host %s: encoding %s value: %w", h.Name(), factName, err)
				}
				fmt.Printf("%s%s\n", h.PrintPrefix(), encoded)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&factArgs, "arg", nil, "fact arguments as key=value")

	return cmd
}
