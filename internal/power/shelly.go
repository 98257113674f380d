package power

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ShellyConfig describes a Shelly Gen1 plug (Plug S, 1PM) on the local network.
type ShellyConfig struct {
	// Host is the plug's address, optionally with scheme ("192.168.1.40").
	Host     string
	Username string
	Password string
	Channel  int
	Timeout  time.Duration
}

// ShellyReader polls /meter/<channel> on each read.
type ShellyReader struct {
	url      string
	username string
	password string
	client   *http.Client
}

type meterResponse struct {
	Power   float64 `json:"power"`
	IsValid bool    `json:"is_valid"`
}

// NewShellyReader builds a reader for the given plug.
func NewShellyReader(cfg ShellyConfig) (*ShellyReader, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("shelly: host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &ShellyReader{
		url:      fmt.Sprintf("%s/meter/%d", host, cfg.Channel),
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// ReadPower fetches the current meter value.
func (r *ShellyReader) ReadPower(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, fmt.Errorf("shelly: build request: %w", err)
	}
	if r.username != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("shelly: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("shelly: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var m meterResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return 0, fmt.Errorf("shelly: decode meter: %w", err)
	}
	if !m.IsValid {
		return 0, fmt.Errorf("shelly: meter reading not valid")
	}
	return m.Power, nil
}

// Close releases idle connections.
func (r *ShellyReader) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
