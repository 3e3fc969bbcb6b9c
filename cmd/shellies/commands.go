package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Xatter/shellies-ng/internal/config"
	"github.com/Xatter/shellies-ng/internal/discovery"
	"github.com/Xatter/shellies-ng/internal/logging"
	"github.com/Xatter/shellies-ng/internal/mqtt"
	"github.com/Xatter/shellies-ng/internal/server"
	"github.com/Xatter/shellies-ng/internal/shellies"
	"github.com/Xatter/shellies-ng/internal/ui"
)

// setup loads the configuration and initializes logging. The --log-level
// flag wins over the file, which wins over SHELLIES_LOG_LEVEL.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return nil, err
	}
	return cfg, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover devices and keep the registry running",
	Long: `Start discovery and keep every identified device connected.

Static devices from the configuration file are offered first, then mDNS
browsing runs until interrupted. When the server section is enabled, devices
configured with an outbound WebSocket can connect to this process instead.`,
	Example: `  # Run with the default configuration file
  shellies run

  # Run with a specific file and debug logging
  shellies run --config ./shellies.yaml --log-level debug

  # Override a single setting from the environment
  SHELLIES_MQTT_HOST=broker.local shellies run`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, runHeader(cfg).Render())

	opts := shellies.Options{
		WebSocket:      cfg.WebSocketOptions(),
		AutoLoadStatus: cfg.AutoLoad.Status,
		AutoLoadConfig: cfg.AutoLoad.Config,
		DeviceOptions:  cfg.OptionsTable(),
	}

	s, err := shellies.New(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	var serverErr <-chan error
	if cfg.Server.Enabled {
		serverErr, err = startServer(ctx, cfg.ServerOptions(), s)
		if err != nil {
			return err
		}
	}

	cancelWatch := shellies.Watch(s, func(e shellies.Event) {
		fmt.Fprintln(out, ui.RenderEvent(e, time.Now()))
	})
	defer cancelWatch()

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTTOptions())
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := mqtt.NewBridge(client, client.Topics().Prefix)
		bridge.Attach(s)
		defer bridge.Detach()
	}

	static := discovery.NewStaticDiscoverer(cfg.StaticIdentifiers()...)
	if err := s.Register(static); err != nil {
		return err
	}
	static.Discover()

	if cfg.Discovery.Mdns {
		mdns := discovery.NewMdnsDiscoverer()
		if err := s.Register(mdns); err != nil {
			return err
		}
		if err := mdns.Start(ctx); err != nil {
			return err
		}
		defer mdns.Stop()
	}

	select {
	case <-ctx.Done():
		logging.Info("Shutting down", zap.Int("devices", s.Len()))
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	}
}

// startServer hands the outbound server to s, then listens and serves until
// ctx is done. Listen is the last step that can fail.
func startServer(ctx context.Context, cfg *server.Config, s *shellies.Shellies) (<-chan error, error) {
	srv, err := server.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	if err := s.SetOutboundServer(srv); err != nil {
		return nil, err
	}
	if err := srv.Listen(); err != nil {
		return nil, err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx) }()
	return errc, nil
}

func runHeader(cfg *config.Config) *ui.Header {
	params := []ui.Param{
		{Key: "Config", Value: displayConfigPath()},
		{Key: "mDNS", Value: enabled(cfg.Discovery.Mdns)},
		{Key: "Static", Value: strconv.Itoa(len(cfg.Discovery.Static)) + " device(s)"},
	}
	if cfg.Server.Enabled {
		params = append(params, ui.Param{Key: "Server", Value: fmt.Sprintf("%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.Path)})
	}
	if cfg.MQTT.Enabled {
		params = append(params, ui.Param{Key: "MQTT", Value: fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)})
	}
	return ui.NewHeader("Shellies", "shellies run", params...)
}

func displayConfigPath() string {
	if configPath != "" {
		return configPath
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "(defaults)"
	}
	return path
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the network for Shelly devices",
	Long: `Browse for _shelly._tcp services over mDNS and print what was found.

Only Gen2 and newer devices are listed. Nothing is connected or registered.`,
	Example: `  # Scan using the configured timeout
  shellies discover

  # Quick 2-second scan
  shellies discover --timeout 2s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "Scan duration (default from config)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	timeout := discoverTimeout
	if timeout <= 0 {
		timeout = cfg.MdnsTimeout()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for Shelly devices (timeout: %s)...\n\n", timeout)

	entries, err := discovery.Scan(ctx, timeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan failed: %w", err)
	}

	printDevices(out, entries)
	return nil
}

func printDevices(w io.Writer, entries []*discovery.Entry) {
	fmt.Fprintln(w, ui.RenderDevices(entries))
	if len(entries) > 0 {
		fmt.Fprintf(w, "\n%d device(s) found\n", len(entries))
	}
}
