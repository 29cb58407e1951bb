package cmd

import (
	"fmt"

	"github.com/KaramelBytes/crmlens/internal/metrics"
	"github.com/KaramelBytes/crmlens/internal/server"
	"github.com/spf13/cobra"
)

var (
	srvAddr           string
	srvMaxUploadBytes int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload form, HTML dashboard and JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = srvAddr
		}
		if cmd.Flags().Changed("max-upload-bytes") {
			cfg.Server.MaxUploadBytes = srvMaxUploadBytes
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		s := server.New(cfg, logger, metrics.New())
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Dashboard on http://%s (Ctrl+C to stop)\n", cfg.Server.Addr)
		return s.ListenAndServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "", "listen address (overrides config server.addr)")
	serveCmd.Flags().Int64Var(&srvMaxUploadBytes, "max-upload-bytes", 0, "maximum upload size in bytes (overrides config)")
}
