package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/nurserywatch/internal/api"
	"github.com/good-yellow-bee/nurserywatch/internal/api/health"
	"github.com/good-yellow-bee/nurserywatch/internal/logging"
	"github.com/good-yellow-bee/nurserywatch/internal/metrics"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/monitor"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
	"github.com/good-yellow-bee/nurserywatch/internal/settings"
	"github.com/good-yellow-bee/nurserywatch/internal/source"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
	"github.com/good-yellow-bee/nurserywatch/internal/watch"
	"github.com/good-yellow-bee/nurserywatch/pkg/config"
)

var (
	configFile  string
	listenAddr  string
	verbose     bool
	testChannel string
)

var rootCmd = &cobra.Command{
	Use:   "nurserywatch",
	Short: "NurseryWatch - nursery environment monitor",
	Long: `NurseryWatch polls a cloud sensor endpoint for temperature, humidity
and sound readings, flags values outside configured limits and notifies
caregivers through the selected channel.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling and serve the HTTP API",
	RunE:  runServe,
}

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a test notification and exit",
	RunE:  runTestNotify,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file",
	RunE:  runCheckConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := config.GetBuildInfo()
		fmt.Printf("nurserywatch %s\n", info.Version)
		fmt.Printf("  commit: %s\n", info.Commit)
		fmt.Printf("  built:  %s\n", info.BuildTime)
		fmt.Printf("  go:     %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&listenAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	testNotifyCmd.Flags().StringVar(&testChannel, "channel", "", "channel to test (default: configured channel)")

	rootCmd.AddCommand(serveCmd, testNotifyCmd, checkConfigCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if listenAddr != "" {
		cfg.Server.Address = listenAddr
	}
	cfg.Verbose = verbose
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon, checkers, err := buildMonitor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := mon.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	srv, err := api.New(cfg.apiConfig(), mon, logger)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewStorageChecker(mon, cfg.Storage.Driver))
	srv.RegisterHealthChecker(health.NewSourceChecker(mon.Scheduler.Connected, mon.Scheduler.Failures))
	for _, c := range checkers {
		srv.RegisterHealthChecker(c)
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}

	if cfg.Monitor.WatchConfig && configFile != "" {
		w, err := watch.New(configFile, mon.Settings, nil, logger)
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
		defer w.Stop()
	}

	logger.Info("starting nurserywatch",
		zap.String("version", config.Version),
		zap.String("address", cfg.Server.Address),
		zap.String("storage", cfg.Storage.Driver),
		zap.Strings("channels", channelNames(mon.Registry.Channels())),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		ms := metrics.NewServer(cfg.Metrics.Address, logger)
		g.Go(func() error {
			return ms.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("nurserywatch stopped")
	return nil
}

func runTestNotify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon, _, err := buildMonitor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer mon.Close()

	channel := models.Channel(testChannel)
	if err := mon.Engine.SendTest(ctx, channel); err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}
	if channel == "" {
		channel = mon.Settings.Notifications().Channel
	}
	fmt.Printf("test notification sent via %s\n", channel)
	return nil
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}

	d := cfg.SettingsDefaults()
	fmt.Printf("configuration OK: %s\n", configFile)
	fmt.Printf("  storage:       %s\n", cfg.Storage.Driver)
	fmt.Printf("  endpoint:      %s (device %s)\n", d.Cloud.Endpoint, d.Cloud.DeviceID)
	fmt.Printf("  refresh:       %s\n", d.Cloud.RefreshInterval())
	fmt.Printf("  notifications: enabled=%t channel=%s cooldown=%dm\n",
		d.Notifications.Enabled, d.Notifications.Channel, d.Notifications.CooldownMinutes)
	return nil
}

// buildMonitor opens storage, registers the configured channels and loads
// persisted settings. The returned checkers cover channel transports.
func buildMonitor(ctx context.Context, cfg *Config, logger *zap.Logger) (*monitor.Monitor, []health.Checker, error) {
	if cfg.Storage.Driver == storage.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0750); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	kv, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	registry, checkers, err := buildRegistry(cfg, logger)
	if err != nil {
		_ = kv.Close()
		return nil, nil, err
	}

	mc := cfg.monitorConfig()
	st := settings.New(kv, cfg.SettingsDefaults(), logger)
	client := source.NewClient(mc.Scheduler.FetchTimeout, logger)

	mon, err := monitor.New(mc, kv, st, client, registry, logger)
	if err != nil {
		_ = registry.Close()
		_ = kv.Close()
		return nil, nil, fmt.Errorf("create monitor: %w", err)
	}
	if err := mon.Load(ctx); err != nil {
		_ = mon.Close()
		return nil, nil, err
	}
	return mon, checkers, nil
}

func buildRegistry(cfg *Config, logger *zap.Logger) (*notifier.Registry, []health.Checker, error) {
	var checkers []health.Checker
	registry := notifier.NewRegistry(cfg.rateLimitConfig())
	registry.Register(notifier.NewAppNotifier(logger, nil))

	if cfg.Channels.Email.Enabled {
		email, err := notifier.NewEmailNotifier(cfg.emailConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("create email notifier: %w", err)
		}
		registry.Register(email)
	}

	if cfg.Channels.SMS.Enabled {
		sms, err := notifier.NewSMSNotifier(cfg.smsConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("create sms notifier: %w", err)
		}
		registry.Register(sms)
	}

	if cfg.Channels.Push.Enabled {
		publisher, err := notifier.NewMQTTPublisher(cfg.mqttConfig())
		if err != nil {
			_ = registry.Close()
			return nil, nil, fmt.Errorf("connect push broker: %w", err)
		}
		push, err := notifier.NewPushNotifier(cfg.pushConfig(), publisher, logger)
		if err != nil {
			_ = publisher.Close()
			_ = registry.Close()
			return nil, nil, fmt.Errorf("create push notifier: %w", err)
		}
		registry.Register(push)
		checkers = append(checkers, health.NewBrokerChecker(publisher.IsConnected))
	}

	return registry, checkers, nil
}

func channelNames(chs []models.Channel) []string {
	names := make([]string, len(chs))
	for i, ch := range chs {
		names[i] = string(ch)
	}
	return names
}
