package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/command"
	"github.com/GoCodeAlone/watchreload/config"
	"github.com/GoCodeAlone/watchreload/loader/memloader"
	"github.com/GoCodeAlone/watchreload/transport"
)

// NewClientCommand creates the client command
func NewClientCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run a headless live-update client",
		Long: `Connect to an update server and apply its commands to a simulated page
described by a module manifest. Useful to exercise a server without a browser.`,
		RunE: runClient,
	}

	cmd.Flags().StringP("manifest", "m", "", "Module manifest (yaml or json)")
	cmd.Flags().StringP("server", "s", "", "Update server URL (overrides server)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.Server = server
	}
	manifestPath, _ := cmd.Flags().GetString("manifest")
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	client, err := NewHeadlessClient(cfg, manifest, newLogger(cmd, cfg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return client.Run(ctx)
}

// HeadlessClient wires the hot-update engine, the in-memory loader, the
// command dispatcher and the WebSocket transport into a client without a
// browser.
type HeadlessClient struct {
	Engine     *watchreload.Engine
	Loader     *memloader.Loader
	Reloader   *command.AssetReloader
	Transport  *transport.Client
	Dispatcher *command.Dispatcher

	entry  []string
	logger watchreload.Logger
}

// NewHeadlessClient builds a client for cfg simulating manifest.
func NewHeadlessClient(cfg *config.Config, manifest *Manifest, logger watchreload.Logger) (*HeadlessClient, error) {
	if logger == nil {
		logger = watchreload.NopLogger{}
	}
	c := &HeadlessClient{entry: manifest.Entry, logger: logger}

	loader, err := memloader.New(cfg.ModuleBase, logger)
	if err != nil {
		return nil, err
	}
	if err := loader.Define(manifest.Sources(logger)...); err != nil {
		return nil, err
	}
	c.Loader = loader

	c.Reloader = command.NewAssetReloader(logger, nil)
	for _, style := range manifest.Styles {
		c.Reloader.TrackStyle(style)
	}
	for _, image := range manifest.Images {
		c.Reloader.TrackImage(image)
	}

	c.Engine, err = watchreload.NewEngine(loader,
		watchreload.WithLogger(logger),
		watchreload.WithModuleExtension(cfg.ModuleExtension),
		watchreload.WithAbortHandler(c.abort),
	)
	if err != nil {
		return nil, err
	}
	loader.Bind(c.Engine)

	c.Transport, err = transport.NewClient(cfg.Server, cfg.Name, transport.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	c.Dispatcher, err = command.NewDispatcher(c.Engine, c.Reloader, c.Transport, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Transport.RegisterObserver(c.Dispatcher); err != nil {
		return nil, err
	}
	return c, nil
}

// abort forwards aborted queued updates to the dispatcher, which reloads
// the page.
func (c *HeadlessClient) abort(ctx context.Context, req watchreload.UpdateRequest, err error) {
	c.Dispatcher.AbortHandler()(ctx, req, err)
}

// Start loads the entry modules and connects to the server.
func (c *HeadlessClient) Start(ctx context.Context) error {
	for _, id := range c.entry {
		if err := c.Loader.Load(ctx, id); err != nil {
			return fmt.Errorf("load entry %s: %w", id, err)
		}
	}
	c.logger.Info("Entry modules loaded", "modules", c.Engine.Registry().Len())
	return c.Transport.Connect(ctx)
}

// Run starts the client and processes commands until ctx is done.
func (c *HeadlessClient) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Transport.Close()
	return c.Transport.Run(ctx)
}
