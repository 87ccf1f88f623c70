// wpaif bridges a wpa_supplicant control socket to an MQTT broker.
//
// Requests arrive as JSON on <base>/action, results and periodic status
// telemetry are published on <base>, unsolicited daemon events on
// <base>/event and a retained health report on <base>/health.
//
// Configuration is read from the file named by --config, WPAIF_CONFIG or
// configs/config.yaml, in that order.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/wpaif/internal/api"
	"github.com/nerrad567/wpaif/internal/bridge"
	"github.com/nerrad567/wpaif/internal/infrastructure/config"
	"github.com/nerrad567/wpaif/internal/infrastructure/influxdb"
	"github.com/nerrad567/wpaif/internal/infrastructure/logging"
	"github.com/nerrad567/wpaif/internal/infrastructure/mqtt"
	"github.com/nerrad567/wpaif/internal/supplicant"
	"github.com/nerrad567/wpaif/internal/wpa"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Without a subcommand the bridge runs
// until the context is cancelled.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wpaif",
		Short:         "Bridge wpa_supplicant to MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (default $WPAIF_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newVersionCmd(), newEnumerateCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wpaif %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func newEnumerateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "enumerate",
		Short: "List wpa_supplicant control sockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return enumerate(cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", wpa.DefaultCtrlDir, "control socket directory")
	return cmd
}

func enumerate(w io.Writer, dir string) error {
	paths, err := wpa.Enumerate(dir)
	if err != nil {
		return fmt.Errorf("listing control sockets: %w", err)
	}
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	return nil
}

// getConfigPath returns the configuration file path: the flag value, then
// WPAIF_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("WPAIF_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the bridge itself, separated from main for testability.
//
// Components are stopped in reverse start order by the deferred calls:
// API, status poller, engine, event forwarder and health reporter, then
// DETACH and the control socket, the managed daemon, InfluxDB and finally
// MQTT so the offline availability message goes out last.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting wpaif",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	topics := mqtt.NewTopics(cfg.Bridge.Topic())
	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2

	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic", topics.Base,
	)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	client, err := wpa.NewClient(wpa.Options{
		Device:       cfg.WPA.Device,
		SocketDir:    cfg.WPA.SocketDir,
		PollInterval: cfg.WPA.PollInterval,
		StaleTimeout: cfg.WPA.StaleTimeout,
		ReportStale:  cfg.WPA.ReportStale,
	})
	if err != nil {
		return fmt.Errorf("creating protocol client: %w", err)
	}
	client.SetLogger(log)

	daemon, err := startSupplicant(ctx, cfg, client, log)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := daemon.Stop(); stopErr != nil {
			log.Error("error stopping wpa_supplicant", "error", stopErr)
		}
	}()

	if err := client.Start(); err != nil {
		return fmt.Errorf("opening control socket: %w", err)
	}
	defer func() {
		detach(client, cfg, log)
		log.Info("closing control socket")
		if stopErr := client.Stop(); stopErr != nil {
			log.Error("error closing control socket", "error", stopErr)
		}
	}()
	log.Info("control socket open", "device", cfg.WPA.Device, "local", client.LocalPath())

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
	}

	engine, err := bridge.NewEngine(bridge.EngineOptions{
		Client:           client,
		Publisher:        mqttClient,
		Topic:            topics.Results(),
		QoS:              qos,
		ResponseTimeout:  cfg.Workflow.ResponseTimeout,
		ScanTimeout:      cfg.Workflow.ScanTimeout,
		ScanPollInterval: cfg.Workflow.ScanPollInterval,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	engine.SetLogger(log)
	client.SetReplySink(engine.Responses())
	if hub != nil {
		engine.AddObserver(hub)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer engine.Stop()

	if cfg.WPA.Events {
		forwarder, fwdErr := startEvents(ctx, cfg, client, mqttClient, topics, qos, hub, log)
		if fwdErr != nil {
			return fwdErr
		}
		defer forwarder.Stop()
	}

	health, err := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		Bridge:    cfg.Bridge.Name,
		Version:   version,
		Topic:     topics.Health(),
		Interval:  cfg.Workflow.HealthInterval,
		Publisher: mqttClient,
		Client:    client,
		Device:    cfg.WPA.Device,
	})
	if err != nil {
		return fmt.Errorf("creating health reporter: %w", err)
	}
	health.SetLogger(log)
	health.Start(ctx)
	defer health.Stop()

	poller, err := bridge.NewPoller(bridge.PollerOptions{
		Client:    client,
		Publisher: mqttClient,
		Topic:     topics.Results(),
		QoS:       qos,
		Interval:  cfg.Workflow.StatusInterval,
		Device:    filepath.Base(cfg.WPA.Device),
	})
	if err != nil {
		return fmt.Errorf("creating status poller: %w", err)
	}
	poller.SetLogger(log)
	if influxClient != nil {
		poller.AddObserver(influxSink{client: influxClient})
	}
	if hub != nil {
		poller.AddObserver(hub)
	}
	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("starting status poller: %w", err)
	}
	defer poller.Stop()

	if err := mqttClient.Subscribe(topics.Action(), qos, engine.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topics.Action(), err)
	}
	log.Info("accepting requests", "topic", topics.Action())

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Version: version,
			Status:  poller,
			Health:  health,
			Client:  client,
			Engine:  engine,
			Daemon:  daemon,
			Gateway: mqttClient,
			Hub:     hub,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = srv.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// startSupplicant starts wpa_supplicant when managed and waits for its
// control socket. The client answers the supervisor's health checks.
func startSupplicant(ctx context.Context, cfg *config.Config, client *wpa.Client, log *logging.Logger) (*supplicant.Supervisor, error) {
	daemon, err := supplicant.NewSupervisor(cfg.Supplicant)
	if err != nil {
		return nil, fmt.Errorf("creating supervisor: %w", err)
	}
	daemon.SetLogger(log)
	daemon.SetPinger(client)

	if daemon.IsManaged() {
		log.Info("starting wpa_supplicant", "args", daemon.BuildArgs())
	}
	if err := daemon.Start(ctx); err != nil {
		return nil, err
	}
	return daemon, nil
}

// startEvents attaches to the daemon and forwards its notifications.
func startEvents(
	ctx context.Context,
	cfg *config.Config,
	client *wpa.Client,
	publisher bridge.Publisher,
	topics mqtt.Topics,
	qos byte,
	hub *api.Hub,
	log *logging.Logger,
) (*bridge.EventForwarder, error) {
	forwarder, err := bridge.NewEventForwarder(publisher, topics.Event(), qos)
	if err != nil {
		return nil, fmt.Errorf("creating event forwarder: %w", err)
	}
	forwarder.SetLogger(log)
	if hub != nil {
		forwarder.AddObserver(hub)
	}
	if err := forwarder.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting event forwarder: %w", err)
	}
	client.SetNotificationSink(forwarder.Events())

	attachCtx, cancel := context.WithTimeout(ctx, cfg.Workflow.ResponseTimeout)
	defer cancel()

	reply, err := client.Do(attachCtx, wpa.NewCommand(wpa.VerbAttach, nil))
	switch {
	case err != nil:
		log.Warn("attach failed, events disabled", "error", err)
	case reply.Failed():
		log.Warn("attach refused, events disabled")
	default:
		log.Info("attached to wpa_supplicant", "topic", topics.Event())
	}
	return forwarder, nil
}

// detach releases the notification subscription before the socket closes.
func detach(client *wpa.Client, cfg *config.Config, log *logging.Logger) {
	if !client.IsAttached() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Workflow.ResponseTimeout)
	defer cancel()

	if _, err := client.Do(ctx, wpa.NewCommand(wpa.VerbDetach, nil)); err != nil {
		log.Warn("detach failed", "error", err)
	}
}

// influxSink writes poller samples to InfluxDB.
type influxSink struct {
	client *influxdb.Client
}

// ObserveSample implements bridge.SampleObserver.
func (s influxSink) ObserveSample(sample bridge.Sample) {
	switch sample.Verb {
	case wpa.VerbSignalPoll:
		s.client.WriteSignal(sample.Device, sample.Values, sample.Time)
	case wpa.VerbStatus:
		s.client.WriteStatus(sample.Device, sample.Values, sample.Time)
	}
}
