// Package source fetches raw readings from the remote data source.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/pkg/config"
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status from data source")

// DefaultTimeout bounds a single fetch.
const DefaultTimeout = 10 * time.Second

// Payload is the JSON document returned by the data source.
type Payload struct {
	Temperature      flexFloat `json:"temperature"`
	Humidity         flexFloat `json:"humidity"`
	Sound            flexFloat `json:"sound"`
	LastSync         flexTime  `json:"lastSync"`
	ConnectionStatus string    `json:"connectionStatus"`
}

// Sample converts the payload into a raw sample, rounding values to one decimal.
func (p *Payload) Sample() models.RawSample {
	return models.RawSample{
		Temperature:      round1(float64(p.Temperature)),
		Humidity:         round1(float64(p.Humidity)),
		Sound:            round1(float64(p.Sound)),
		ConnectionStatus: models.ParseConnectionStatus(p.ConnectionStatus),
		Timestamp:        time.Time(p.LastSync),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Client polls the data source over HTTP.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewClient creates a data-source client. Retries are left to the scheduler.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", config.UserAgent())

	return &Client{
		http:   httpClient,
		logger: logger.Named("source"),
		now:    time.Now,
	}
}

// Fetch retrieves the current sample for the configured device.
func (c *Client) Fetch(ctx context.Context, cfg models.CloudConfig) (models.RawSample, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("deviceId", cfg.DeviceID).
		SetQueryParam("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	if cfg.APIKey != "" {
		req.SetAuthToken(cfg.APIKey)
	}

	resp, err := req.Get(cfg.Endpoint)
	if err != nil {
		return models.RawSample{}, fmt.Errorf("fetch %s: %w", cfg.Endpoint, err)
	}
	if resp.IsError() {
		c.logger.Debug("data source returned error status",
			zap.String("endpoint", cfg.Endpoint),
			zap.Int("status_code", resp.StatusCode()),
		)
		return models.RawSample{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	var payload Payload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return models.RawSample{}, fmt.Errorf("decode payload: %w", err)
	}
	return payload.Sample(), nil
}

// flexFloat accepts a JSON number, a numeric string or null. Anything else decodes to 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexTime accepts an RFC 3339 string or epoch milliseconds. Unparseable input is left zero.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*t = flexTime(ts)
		}
		return nil
	}
	if ms, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*t = flexTime(time.UnixMilli(ms))
	}
	return nil
}
