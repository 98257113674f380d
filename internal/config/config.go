// Package config loads daemon settings from a YAML file and WASHER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/sweeney/washer-notify/internal/line"
	"github.com/sweeney/washer-notify/internal/logger"
	"github.com/sweeney/washer-notify/internal/power"
)

// EnvPrefix prefixes environment overrides, e.g. WASHER_LINE_CHANNEL_TOKEN.
const EnvPrefix = "WASHER"

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "configs/config.yml"

// Config is the complete daemon configuration.
type Config struct {
	Thresholds Thresholds `mapstructure:"thresholds"`
	Timing     Timing     `mapstructure:"timing"`
	Device     Device     `mapstructure:"device"`
	LINE       LINE       `mapstructure:"line"`
	Messages   Messages   `mapstructure:"messages"`
	MQTT       MQTT       `mapstructure:"mqtt"`
	HTTP       HTTP       `mapstructure:"http"`
	Log        Log        `mapstructure:"log"`
}

// Thresholds are the power levels that separate running from idle.
type Thresholds struct {
	OnWatts  float64 `mapstructure:"on_watts"`
	OffWatts float64 `mapstructure:"off_watts"`
}

// Timing holds the debounce and polling periods.
type Timing struct {
	Debounce         time.Duration `mapstructure:"debounce"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	IdlePollInterval time.Duration `mapstructure:"idle_poll_interval"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
}

// Device selects and configures the power meter.
type Device struct {
	Kind      string        `mapstructure:"kind"`
	ID        string        `mapstructure:"id"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Channel   int           `mapstructure:"channel"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	GPIOChip  string        `mapstructure:"gpio_chip"`
	GPIOLine  int           `mapstructure:"gpio_line"`
	ImpPerKWh float64       `mapstructure:"imp_per_kwh"`
	// Broker is the MQTT broker Tasmota reports to. Empty uses mqtt.broker.
	Broker string `mapstructure:"broker"`
	// Samples scripts the fake meter. The last sample repeats.
	Samples []float64 `mapstructure:"samples"`
}

// LINE holds Messaging API credentials.
type LINE struct {
	ChannelSecret string `mapstructure:"channel_secret"`
	ChannelToken  string `mapstructure:"channel_token"`
	APIBase       string `mapstructure:"api_base"`
}

// Messages are the texts exchanged with users.
type Messages struct {
	Trigger string `mapstructure:"trigger"`
	Ack     string `mapstructure:"ack"`
	Done    string `mapstructure:"done"`
}

// MQTT configures the events bus. An empty Broker disables publishing.
type MQTT struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// HTTP configures the webhook and status server.
type HTTP struct {
	Addr string `mapstructure:"addr"`
}

// Log configures logging.
type Log struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("thresholds.on_watts", 20.0)
	v.SetDefault("thresholds.off_watts", 10.0)

	v.SetDefault("timing.debounce", 180*time.Second)
	v.SetDefault("timing.poll_interval", 10*time.Second)
	v.SetDefault("timing.idle_poll_interval", 5*time.Second)
	v.SetDefault("timing.heartbeat", 15*time.Minute)

	v.SetDefault("device.kind", power.KindTasmota)
	v.SetDefault("device.id", "")
	v.SetDefault("device.username", "")
	v.SetDefault("device.password", "")
	v.SetDefault("device.channel", 0)
	v.SetDefault("device.timeout", 5*time.Second)
	v.SetDefault("device.max_age", 60*time.Second)
	v.SetDefault("device.gpio_chip", "gpiochip0")
	v.SetDefault("device.gpio_line", 17)
	v.SetDefault("device.imp_per_kwh", 1000.0)
	v.SetDefault("device.broker", "")
	v.SetDefault("device.samples", []float64{})

	v.SetDefault("line.channel_secret", "")
	v.SetDefault("line.channel_token", "")
	v.SetDefault("line.api_base", line.DefaultAPIBase)

	v.SetDefault("messages.trigger", "1")
	v.SetDefault("messages.ack", "Got it. I'll message you when the washing is done.")
	v.SetDefault("messages.done", "The washing machine has finished.")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "washer-notify")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("log.level", logger.InfoLevel)
}

// Load reads and validates the configuration.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read reads path (if non-empty) and applies environment overrides on top of
// the defaults, without validation. A missing file is an error only when it
// was asked for explicitly; the default path is optional.
func Read(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Messages.Trigger = strings.TrimSpace(cfg.Messages.Trigger)
	cfg.Device.Kind = strings.ToLower(strings.TrimSpace(cfg.Device.Kind))
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	if c.Thresholds.OffWatts < 0 {
		errs = append(errs, errors.New("thresholds.off_watts must not be negative"))
	}
	if c.Thresholds.OnWatts <= c.Thresholds.OffWatts {
		errs = append(errs, fmt.Errorf("thresholds.on_watts (%v) must be greater than thresholds.off_watts (%v)",
			c.Thresholds.OnWatts, c.Thresholds.OffWatts))
	}
	if c.Timing.Debounce < 0 {
		errs = append(errs, errors.New("timing.debounce must not be negative"))
	}
	if c.Timing.PollInterval <= 0 {
		errs = append(errs, errors.New("timing.poll_interval must be positive"))
	}
	if c.Timing.IdlePollInterval <= 0 {
		errs = append(errs, errors.New("timing.idle_poll_interval must be positive"))
	}
	if c.Timing.Heartbeat < 0 {
		errs = append(errs, errors.New("timing.heartbeat must not be negative"))
	}

	if err := c.ValidateDevice(); err != nil {
		errs = append(errs, err)
	}

	if !c.DryRun() {
		if c.LINE.ChannelSecret == "" {
			errs = append(errs, errors.New("line.channel_secret is required"))
		}
		if c.LINE.ChannelToken == "" {
			errs = append(errs, errors.New("line.channel_token is required"))
		}
	}
	if c.Messages.Trigger == "" {
		errs = append(errs, errors.New("messages.trigger must not be empty"))
	}
	if !logger.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// ValidateDevice checks only the meter settings.
func (c Config) ValidateDevice() error {
	switch c.Device.Kind {
	case power.KindTasmota:
		var errs []error
		if c.Device.ID == "" {
			errs = append(errs, errors.New("device.id (tasmota topic) is required"))
		}
		if c.TasmotaBroker() == "" {
			errs = append(errs, errors.New("device.broker or mqtt.broker is required for tasmota"))
		}
		return errors.Join(errs...)
	case power.KindShelly:
		if c.Device.ID == "" {
			return errors.New("device.id (shelly host) is required")
		}
	case power.KindPulse:
		if c.Device.ImpPerKWh <= 0 {
			return errors.New("device.imp_per_kwh must be positive")
		}
	case power.KindFake:
	default:
		return fmt.Errorf("unknown device.kind %q", c.Device.Kind)
	}
	return nil
}

// DryRun reports whether messages are logged instead of sent: the fake
// meter without a channel token.
func (c Config) DryRun() bool {
	return c.Device.Kind == power.KindFake && c.LINE.ChannelToken == ""
}

// TasmotaBroker returns the broker the Tasmota plug reports to.
func (c Config) TasmotaBroker() string {
	if c.Device.Broker != "" {
		return c.Device.Broker
	}
	return c.MQTT.Broker
}

// TasmotaCredentials returns the login for the Tasmota broker. A separate
// device.broker uses device.username and device.password; otherwise the
// events broker login is shared.
func (c Config) TasmotaCredentials() (username, password string) {
	if c.Device.Broker != "" {
		return c.Device.Username, c.Device.Password
	}
	return c.MQTT.Username, c.MQTT.Password
}
