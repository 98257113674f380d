package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WASHER_DEVICE_KIND", "fake")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Thresholds.OnWatts != 20 || cfg.Thresholds.OffWatts != 10 {
		t.Errorf("thresholds: got %v/%v, want 20/10", cfg.Thresholds.OnWatts, cfg.Thresholds.OffWatts)
	}
	if cfg.Timing.Debounce != 180*time.Second {
		t.Errorf("debounce: got %v, want 180s", cfg.Timing.Debounce)
	}
	if cfg.Timing.PollInterval != 10*time.Second {
		t.Errorf("poll_interval: got %v, want 10s", cfg.Timing.PollInterval)
	}
	if cfg.Timing.IdlePollInterval != 5*time.Second {
		t.Errorf("idle_poll_interval: got %v, want 5s", cfg.Timing.IdlePollInterval)
	}
	if cfg.Timing.Heartbeat != 15*time.Minute {
		t.Errorf("heartbeat: got %v, want 15m", cfg.Timing.Heartbeat)
	}
	if cfg.Messages.Trigger != "1" {
		t.Errorf("trigger: got %q, want 1", cfg.Messages.Trigger)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr: got %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.LINE.APIBase != "https://api.line.me" {
		t.Errorf("line.api_base: got %q", cfg.LINE.APIBase)
	}
	if cfg.MQTT.ClientID != "washer-notify" {
		t.Errorf("mqtt.client_id: got %q", cfg.MQTT.ClientID)
	}
	if !cfg.DryRun() {
		t.Error("fake device without a token should be a dry run")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
thresholds:
  on_watts: 30
  off_watts: 5
timing:
  debounce: 2m
  poll_interval: 15s
  heartbeat: 0s
device:
  kind: shelly
  id: 192.168.1.50
  channel: 1
  timeout: 3s
line:
  channel_secret: s3cret
  channel_token: t0ken
messages:
  trigger: " wash "
  done: Laundry time!
mqtt:
  broker: tcp://broker:1883
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Thresholds.OnWatts != 30 || cfg.Thresholds.OffWatts != 5 {
		t.Errorf("thresholds: got %v/%v, want 30/5", cfg.Thresholds.OnWatts, cfg.Thresholds.OffWatts)
	}
	if cfg.Timing.Debounce != 2*time.Minute {
		t.Errorf("debounce: got %v, want 2m", cfg.Timing.Debounce)
	}
	if cfg.Timing.PollInterval != 15*time.Second {
		t.Errorf("poll_interval: got %v, want 15s", cfg.Timing.PollInterval)
	}
	if cfg.Timing.IdlePollInterval != 5*time.Second {
		t.Errorf("idle_poll_interval should keep its default, got %v", cfg.Timing.IdlePollInterval)
	}
	if cfg.Timing.Heartbeat != 0 {
		t.Errorf("heartbeat: got %v, want disabled", cfg.Timing.Heartbeat)
	}
	if cfg.Device.Kind != "shelly" || cfg.Device.ID != "192.168.1.50" || cfg.Device.Channel != 1 {
		t.Errorf("device: got %+v", cfg.Device)
	}
	if cfg.Device.Timeout != 3*time.Second {
		t.Errorf("device.timeout: got %v, want 3s", cfg.Device.Timeout)
	}
	if cfg.Messages.Trigger != "wash" {
		t.Errorf("trigger should be trimmed, got %q", cfg.Messages.Trigger)
	}
	if cfg.Messages.Done != "Laundry time!" {
		t.Errorf("done: got %q", cfg.Messages.Done)
	}
	if cfg.DryRun() {
		t.Error("shelly config should not be a dry run")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
device:
  kind: tasmota
  id: washer
mqtt:
  broker: tcp://broker:1883
line:
  channel_secret: from-file
  channel_token: from-file
`)
	t.Setenv("WASHER_LINE_CHANNEL_TOKEN", "from-env")
	t.Setenv("WASHER_TIMING_DEBOUNCE", "45s")
	t.Setenv("WASHER_THRESHOLDS_ON_WATTS", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LINE.ChannelToken != "from-env" {
		t.Errorf("channel_token: got %q, want from-env", cfg.LINE.ChannelToken)
	}
	if cfg.LINE.ChannelSecret != "from-file" {
		t.Errorf("channel_secret: got %q, want from-file", cfg.LINE.ChannelSecret)
	}
	if cfg.Timing.Debounce != 45*time.Second {
		t.Errorf("debounce: got %v, want 45s", cfg.Timing.Debounce)
	}
	if cfg.Thresholds.OnWatts != 50 {
		t.Errorf("on_watts: got %v, want 50", cfg.Thresholds.OnWatts)
	}
	if cfg.TasmotaBroker() != "tcp://broker:1883" {
		t.Errorf("tasmota broker should fall back to mqtt.broker, got %q", cfg.TasmotaBroker())
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "thresholds: [unclosed\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func validConfig() Config {
	return Config{
		Thresholds: Thresholds{OnWatts: 20, OffWatts: 10},
		Timing: Timing{
			Debounce:         3 * time.Minute,
			PollInterval:     10 * time.Second,
			IdlePollInterval: 5 * time.Second,
			Heartbeat:        15 * time.Minute,
		},
		Device:   Device{Kind: "tasmota", ID: "washer", ImpPerKWh: 1000},
		LINE:     LINE{ChannelSecret: "secret", ChannelToken: "token"},
		Messages: Messages{Trigger: "1"},
		MQTT:     MQTT{Broker: "tcp://broker:1883"},
		Log:      Log{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"on_equals_off", func(c *Config) { c.Thresholds.OnWatts = 10 }, "must be greater than"},
		{"on_below_off", func(c *Config) { c.Thresholds.OnWatts = 5 }, "must be greater than"},
		{"negative_off", func(c *Config) { c.Thresholds.OffWatts = -1 }, "off_watts must not be negative"},
		{"zero_poll", func(c *Config) { c.Timing.PollInterval = 0 }, "poll_interval must be positive"},
		{"zero_idle_poll", func(c *Config) { c.Timing.IdlePollInterval = 0 }, "idle_poll_interval must be positive"},
		{"negative_debounce", func(c *Config) { c.Timing.Debounce = -time.Second }, "debounce must not be negative"},
		{"zero_debounce_ok", func(c *Config) { c.Timing.Debounce = 0 }, ""},
		{"unknown_kind", func(c *Config) { c.Device.Kind = "zigbee" }, "unknown device.kind"},
		{"tasmota_without_id", func(c *Config) { c.Device.ID = "" }, "device.id"},
		{"tasmota_without_broker", func(c *Config) { c.MQTT.Broker = "" }, "broker"},
		{"shelly_without_host", func(c *Config) { c.Device = Device{Kind: "shelly"} }, "shelly host"},
		{"pulse_without_rate", func(c *Config) { c.Device = Device{Kind: "pulse"} }, "imp_per_kwh"},
		{"missing_secret", func(c *Config) { c.LINE.ChannelSecret = "" }, "channel_secret"},
		{"missing_token", func(c *Config) { c.LINE.ChannelToken = "" }, "channel_token"},
		{"fake_dry_run", func(c *Config) { c.Device = Device{Kind: "fake"}; c.LINE = LINE{} }, ""},
		{"empty_trigger", func(c *Config) { c.Messages.Trigger = "" }, "trigger"},
		{"bad_log_level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Timing.PollInterval = 0
	cfg.LINE = LINE{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"poll_interval", "channel_secret", "channel_token"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestReadSkipsValidation(t *testing.T) {
	path := writeConfig(t, `
device:
  kind: fake
  samples: [5, 30, 8]
line:
  channel_token: token-without-secret
`)

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Device.Samples) != 3 || cfg.Device.Samples[1] != 30 {
		t.Errorf("samples: got %v", cfg.Device.Samples)
	}
	if err := cfg.ValidateDevice(); err != nil {
		t.Errorf("device should be valid: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should reject a token without a secret")
	}
}

func TestTasmotaCredentials(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		user     string
		password string
	}{
		{
			name: "shared broker uses mqtt login",
			cfg: Config{
				Device: Device{Username: "plug", Password: "plug-pw"},
				MQTT:   MQTT{Broker: "tcp://hub:1883", Username: "events", Password: "events-pw"},
			},
			user: "events", password: "events-pw",
		},
		{
			name: "separate broker uses device login",
			cfg: Config{
				Device: Device{Broker: "tcp://plugs:1883", Username: "plug", Password: "plug-pw"},
				MQTT:   MQTT{Broker: "tcp://hub:1883", Username: "events", Password: "events-pw"},
			},
			user: "plug", password: "plug-pw",
		},
		{
			name: "separate broker without login",
			cfg: Config{
				Device: Device{Broker: "tcp://plugs:1883"},
				MQTT:   MQTT{Username: "events", Password: "events-pw"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, password := tt.cfg.TasmotaCredentials()
			if user != tt.user || password != tt.password {
				t.Errorf("got %q/%q, want %q/%q", user, password, tt.user, tt.password)
			}
		})
	}
}
