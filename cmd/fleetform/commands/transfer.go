package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/connectors"
	"github.com/fleetform/fleetform/pkg/engine"
)

func newUploadCommand() *cobra.Command {
	var mode uint32

	cmd := &cobra.Command{
		Use:   "upload <local-path> <remote-path>",
		Short: "Upload a file to hosts",
		Long:  `Upload a local file to the same remote path on every targeted host.`,
		Example: `  fleetform upload ./nginx.conf /etc/nginx/nginx.conf --limit web
  fleetform upload ./deploy.sh /usr/local/bin/deploy --mode 0755`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			localPath, remotePath := args[0], args[1]

			state, hosts, err := setupRun(cmd.Context())
			if err != nil {
				return err
			}

			connected := connectAll(cmd.Context(), state, hosts)
			defer disconnectAll(state, hosts)
			if len(connected) == 0 {
				return fmt.Errorf("no hosts could be connected")
			}

			return engine.ForEachHost(cmd.Context(), state, connected, func(ctx context.Context, h *engine.Host) error {
				err := h.PutFile(ctx, localPath, remotePath, connectors.WithMode(mode))
				if err != nil {
					return fmt.Errorf("host %s: %w", h.Name(), err)
				}
				fmt.Printf("%sUploaded %s\n", h.PrintPrefix(), remotePath)
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&mode, "mode", 0o644, "permissions for the uploaded file")

	return cmd
}

func newDownloadCommand() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "download <remote-path>",
		Short: "Download a file from hosts",
		Long: `Download a remote file from every targeted host. Each host's copy is
written under the output directory, in a subdirectory named after the
host, so downloads from many hosts never collide.`,
		Example: `  fleetform download /var/log/syslog --out ./logs`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := args[0]

			state, hosts, err := setupRun(cmd.Context())
			if err != nil {
				return err
			}

			connected := connectAll(cmd.Context(), state, hosts)
			defer disconnectAll(state, hosts)
			if len(connected) == 0 {
				return fmt.Errorf("no hosts could be connected")
			}

			return engine.ForEachHost(cmd.Context(), state, connected, func(ctx context.Context, h *engine.Host) error {
				hostDir := filepath.Join(outDir, h.Name())
				if err := os.MkdirAll(hostDir, 0o755); err != nil {
					return fmt.Errorf("host %s: %w", h.Name(), err)
				}
				localPath := filepath.Join(hostDir, filepath.Base(remotePath))
				if err := h.GetFile(ctx, remotePath, localPath); err != nil {
					return fmt.Errorf("host %s: %w", h.Name(), err)
				}
				fmt.Printf("%sDownloaded %s -> %s\n", h.PrintPrefix(), remotePath, localPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "directory downloaded files are written under")

	return cmd
}
