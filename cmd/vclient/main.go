package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zberg/go-vclient/internal/config"
	"github.com/zberg/go-vclient/internal/logging"
	"github.com/zberg/go-vclient/pkg/vcontrold"
)

var version = "dev"

var (
	configPath string

	cfg     *config.Config
	logger  *slog.Logger
	catalog *vcontrold.Catalog
)

var rootCmd = &cobra.Command{
	Use:   "vclient",
	Short: "vcontrold client",
	Long: `A command line client for vcontrold, the daemon that talks to Viessmann
heating controllers. It queries items by name or group, converts the replies
and prints them as text, JSON, YAML or CSV. It can also poll on a schedule
and forward values to MQTT, InfluxDB or Prometheus.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		var err error
		catalog, err = config.LoadCatalog(cfg.Catalog)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded", "host", cfg.Host, "port", cfg.Port, "items", catalog.Len())
		return nil
	},
}

func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger = logging.New(cfg.Logging, version)
	return nil
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"_CONFIG"), "Path to vclient.yaml")
	f.StringP("host", "H", "localhost", "Host running vcontrold")
	f.IntP("port", "p", vcontrold.DefaultPort, "vcontrold port")
	f.Duration("timeout", 0, "Per-command timeout (default 5s)")
	f.Duration("connect-timeout", 0, "Connect timeout (default 10s)")
	f.String("catalog", "", "Command catalog file (built-in catalog when empty)")
	f.StringP("format", "o", "text", "Output format: text, json, yaml, csv")
	f.String("delimiter", ",", `CSV field delimiter, \t for tab`)
	f.String("linebreak", `\n`, "CSV record terminator")
	f.Bool("sort", false, "Sort items by name")
	f.Bool("meta", false, "Include query metadata in json/yaml output")
	f.Bool("fahrenheit", false, "Report temperatures in Fahrenheit")
	f.Bool("raw-switch", false, "Report switches as the daemon's raw number")
	f.Bool("exclude-timers", false, "Drop unset timer slots")
	f.Bool("units", false, "Annotate values with their unit")
	f.String("log-level", "warn", "Log level: debug, info, warn, error")
	f.String("log-format", "text", "Log format: text or json")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
