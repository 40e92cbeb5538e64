package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zberg/go-vclient/pkg/vcontrold"
)

// EnvPrefix prefixes every environment override, e.g. VCLIENT_HOST or
// VCLIENT_MQTT_BROKER.
const EnvPrefix = "VCLIENT"

// Config is the root configuration of the vclient tool. It is read from an
// optional YAML file, overridden by VCLIENT_* environment variables and
// finally by command line flags.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Catalog        string        `mapstructure:"catalog"`

	OutputFormat  string `mapstructure:"output_format"`
	CSVDelimiter  string `mapstructure:"csv_delimiter"`
	CSVLineBreak  string `mapstructure:"csv_linebreak"`
	SortKeys      bool   `mapstructure:"sort_keys"`
	IncludeMeta   bool   `mapstructure:"include_meta"`
	SwitchAsBool  bool   `mapstructure:"switch_as_bool"`
	UseFahrenheit bool   `mapstructure:"use_fahrenheit"`
	ExcludeTimers bool   `mapstructure:"exclude_timers"`
	AnnotateUnits bool   `mapstructure:"annotate_units"`
	Timezone      string `mapstructure:"timezone"`

	Logging  LoggingConfig `mapstructure:"logging"`
	Poll     PollConfig    `mapstructure:"poll"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	InfluxDB InfluxConfig  `mapstructure:"influxdb"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
	Output string `mapstructure:"output"` // stdout or stderr
}

// PollConfig controls repeated queries.
type PollConfig struct {
	Schedule string   `mapstructure:"schedule"` // cron spec with seconds
	Groups   []string `mapstructure:"groups"`
	Items    []string `mapstructure:"items"`
}

// MQTTConfig describes the broker values are published to.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
	Retain      bool   `mapstructure:"retain"`
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool { return c.Broker != "" }

// InfluxConfig describes the InfluxDB 2.x bucket values are written to.
type InfluxConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// Enabled reports whether a server is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// MetricsConfig configures the Prometheus endpoint of the serve command.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"host":            "host",
	"port":            "port",
	"connect-timeout": "connect_timeout",
	"timeout":         "request_timeout",
	"catalog":         "catalog",
	"format":          "output_format",
	"delimiter":       "csv_delimiter",
	"linebreak":       "csv_linebreak",
	"sort":            "sort_keys",
	"meta":            "include_meta",
	"fahrenheit":      "use_fahrenheit",
	"exclude-timers":  "exclude_timers",
	"units":           "annotate_units",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
	"schedule":        "poll.schedule",
	"mqtt":            "mqtt.broker",
	"influx":          "influxdb.url",
	"listen":          "metrics.listen",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", vcontrold.DefaultPort)
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("catalog", "")
	v.SetDefault("output_format", "text")
	v.SetDefault("csv_delimiter", ",")
	v.SetDefault("csv_linebreak", "\n")
	v.SetDefault("sort_keys", false)
	v.SetDefault("include_meta", false)
	v.SetDefault("switch_as_bool", true)
	v.SetDefault("use_fahrenheit", false)
	v.SetDefault("exclude_timers", false)
	v.SetDefault("annotate_units", false)
	v.SetDefault("timezone", "Local")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("poll.schedule", "0 * * * * *")
	v.SetDefault("poll.groups", []string{})
	v.SetDefault("poll.items", []string{})

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "vclient")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "vcontrold")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("influxdb.url", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "vcontrold")
	v.SetDefault("influxdb.measurement", "vcontrold")

	v.SetDefault("metrics.listen", ":9102")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the configuration. path may be empty, in which case only
// defaults, environment and flags apply. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// --raw-switch inverts switch_as_bool.
	if flags != nil {
		if raw, err := flags.GetBool("raw-switch"); err == nil && raw {
			cfg.SwitchAsBool = false
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the tool cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if _, err := vcontrold.ParseFormatKind(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	if c.CSVDelimiter == "" {
		errs = append(errs, errors.New("csv_delimiter must not be empty"))
	}
	if c.CSVLineBreak == "" {
		errs = append(errs, errors.New("csv_linebreak must not be empty"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
	}
	if c.InfluxDB.Enabled() && c.InfluxDB.Bucket == "" {
		errs = append(errs, errors.New("influxdb.bucket is required when influxdb.url is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves the configured timezone used for daemon timestamps.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// FormatKind returns the parsed output format.
func (c *Config) FormatKind() vcontrold.FormatKind {
	kind, err := vcontrold.ParseFormatKind(c.OutputFormat)
	if err != nil {
		return vcontrold.FormatText
	}
	return kind
}

// ConvertOptions maps the conversion settings onto the library type.
func (c *Config) ConvertOptions() vcontrold.ConvertOptions {
	opts := vcontrold.DefaultConvertOptions()
	opts.SwitchAsBool = c.SwitchAsBool
	opts.UseFahrenheit = c.UseFahrenheit
	opts.ExcludeTimers = c.ExcludeTimers
	opts.AnnotateUnits = c.AnnotateUnits
	if loc, err := c.Location(); err == nil {
		opts.Location = loc
	}
	return opts
}

// FormatOptions maps the output settings onto the library type.
func (c *Config) FormatOptions() vcontrold.FormatOptions {
	opts := vcontrold.DefaultFormatOptions()
	opts.Delimiter = unescape(c.CSVDelimiter)
	opts.LineBreak = unescape(c.CSVLineBreak)
	opts.SortKeys = c.SortKeys
	opts.Meta = c.IncludeMeta
	return opts
}

// SessionOptions maps the connection settings onto session options.
func (c *Config) SessionOptions() []vcontrold.SessionOption {
	return []vcontrold.SessionOption{
		vcontrold.WithPort(c.Port),
		vcontrold.WithConnectTimeout(c.ConnectTimeout),
		vcontrold.WithRequestTimeout(c.RequestTimeout),
	}
}

// unescape lets separators be written as \t, \n or \r in flags and YAML.
func unescape(s string) string {
	return strings.NewReplacer(`\t`, "\t", `\n`, "\n", `\r`, "\r").Replace(s)
}
