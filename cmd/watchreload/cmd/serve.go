package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/watchreload/devserver"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development server",
		Long: `Serve a directory over HTTP, watch it and push changes to connected
clients over the /ws WebSocket endpoint.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("addr", "a", "", "Listen address (overrides devServer.addr)")
	cmd.Flags().StringP("root", "r", "", "Directory to serve and watch (overrides devServer.root)")
	cmd.Flags().Bool("no-hmr", false, "Reload the page instead of hot swapping modules")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.DevServer.Addr = addr
	}
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		cfg.DevServer.Root = root
	}
	if noHMR, _ := cmd.Flags().GetBool("no-hmr"); noHMR {
		cfg.DevServer.DisableHMR = true
	}

	logger := newLogger(cmd, cfg)
	server, err := devserver.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}
