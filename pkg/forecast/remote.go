package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/solariscontrol/solaris/pkg/common"
	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

const RemoteProviderName = "remote"

// remoteRequest matches what the hosted prediction model expects: the
// history is sent as a JSON encoded string.
type remoteRequest struct {
	HistoricalData string `json:"historicalData"`
	ModelName      string `json:"modelName"`
}

// Remote asks an external prediction service for the forecast.
type Remote struct {
	url       string
	modelName string
	client    *http.Client
}

// configuredRemote sets up flags for the remote provider.
func configuredRemote() *Remote {
	r := &Remote{
		client: common.HTTPClient(30 * time.Second),
	}
	remoteURL := lflag.String("forecast-remote-url", "", "URL of an external prediction service (enables the remote forecast provider)")
	modelName := lflag.String("forecast-remote-model", "energy_consumption_v1", "Model name sent to the prediction service")

	lflag.Do(func() {
		r.url = *remoteURL
		r.modelName = *modelName
		if r.url != "" {
			if err := r.Validate(); err != nil {
				panic(err)
			}
		}
	})

	return r
}

// NewRemote returns a Remote provider for the given service URL.
func NewRemote(serviceURL, modelName string, client *http.Client) *Remote {
	return &Remote{
		url:       serviceURL,
		modelName: modelName,
		client:    client,
	}
}

// Validate ensures the configuration is valid.
func (r *Remote) Validate() error {
	u, err := url.Parse(r.url)
	if err != nil {
		return fmt.Errorf("failed to parse forecast url (%s): %w", r.url, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("forecast url must be http or https: %s", r.url)
	}
	return nil
}

// Forecast posts the history and decodes the prediction.
func (r *Remote) Forecast(ctx context.Context, history []types.Telemetry) (types.Forecast, error) {
	if len(history) == 0 {
		return types.Forecast{}, ErrNoHistory
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return types.Forecast{}, fmt.Errorf("failed to marshal history: %w", err)
	}
	body, err := json.Marshal(remoteRequest{
		HistoricalData: string(historyJSON),
		ModelName:      r.modelName,
	})
	if err != nil {
		return types.Forecast{}, fmt.Errorf("failed to marshal forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return types.Forecast{}, fmt.Errorf("failed to create forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Ctx(ctx).DebugContext(ctx, "requesting remote forecast", slog.String("url", r.url), slog.Int("samples", len(history)))
	resp, err := r.client.Do(req)
	if err != nil {
		return types.Forecast{}, fmt.Errorf("failed to request forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Forecast{}, fmt.Errorf("forecast service returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var f types.Forecast
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return types.Forecast{}, fmt.Errorf("failed to decode forecast: %w", err)
	}
	if err := f.Validate(); err != nil {
		return types.Forecast{}, fmt.Errorf("forecast service returned an invalid forecast: %w", err)
	}
	f.Provider = RemoteProviderName
	if f.GeneratedAt.IsZero() {
		f.GeneratedAt = time.Now().UTC()
	}
	return f, nil
}
