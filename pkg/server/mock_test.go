package server

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solariscontrol/solaris/pkg/device"
	"github.com/solariscontrol/solaris/pkg/forecast"
	"github.com/solariscontrol/solaris/pkg/metrics"
	"github.com/solariscontrol/solaris/pkg/storage"
	"github.com/solariscontrol/solaris/pkg/types"
)

const (
	testEncryptionKey = "01234567890123456789012345678901"
	testIssuer        = "https://issuer.example.com"
	testAudience      = "test-audience"
)

var testNow = time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

// fakeDevice records pushed switch states and returns a fixed reading.
type fakeDevice struct {
	mu     sync.Mutex
	sample *types.Telemetry
	err    error
	pushed []types.SwitchState
}

func (d *fakeDevice) Telemetry(ctx context.Context) (types.Telemetry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return types.Telemetry{}, d.err
	}
	if d.sample == nil {
		return types.Telemetry{}, device.ErrNoTelemetry
	}
	return *d.sample, nil
}

func (d *fakeDevice) SetSwitches(ctx context.Context, states []types.SwitchState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushed = append(d.pushed, states...)
	return nil
}

func (d *fakeDevice) Close() error {
	return nil
}

// lastStates returns the most recent pushed state of every switch.
func (d *fakeDevice) lastStates() map[types.SwitchID]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	states := make(map[types.SwitchID]bool)
	for _, s := range d.pushed {
		states[s.ID] = s.State
	}
	return states
}

type mockForecaster struct {
	mock.Mock
}

func (m *mockForecaster) Forecast(ctx context.Context, history []types.Telemetry) (types.Forecast, error) {
	args := m.Called(ctx, history)
	return args.Get(0).(types.Forecast), args.Error(1)
}

// newTestServer returns a server backed by the in-memory store with auth
// bypassed.
func newTestServer(t *testing.T) (*Server, *storage.MemoryProvider, *fakeDevice) {
	t.Helper()
	db := storage.NewMemoryProvider()
	t.Cleanup(func() { _ = db.Close() })
	dev := &fakeDevice{}
	forecasts := forecast.NewMap()
	forecasts.SetProvider(forecast.ModelProviderName, forecast.NewModel())
	srv := &Server{
		storage:       db,
		device:        dev,
		forecasts:     forecasts,
		metrics:       metrics.New(),
		now:           func() time.Time { return testNow },
		encryptionKey: testEncryptionKey,
		bypassAuth:    true,
	}
	return srv, db, dev
}

func withUser(r *http.Request, user types.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

func testSample(level int) types.Telemetry {
	return types.Telemetry{
		Timestamp:        testNow.Add(-time.Minute),
		Voltage:          230.5,
		Current:          5.2,
		BatteryLevel:     level,
		PowerConsumption: 1198.6,
	}
}

// setupOIDCTest returns a verifier for tokens signed by a local key and a
// function that signs tokens for it.
func setupOIDCTest(t *testing.T) (tokenVerifier, func(email, subject string) string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&priv.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testAudience})

	sign := func(email, subject string) string {
		claims := map[string]any{
			"iss": testIssuer,
			"aud": testAudience,
			"sub": subject,
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		if email != "" {
			claims["email"] = email
		}
		payload, err := json.Marshal(claims)
		require.NoError(t, err)

		enc := base64.RawURLEncoding
		signingInput := enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`)) + "." + enc.EncodeToString(payload)
		digest := sha256.Sum256([]byte(signingInput))
		sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
		require.NoError(t, err)
		return signingInput + "." + enc.EncodeToString(sig)
	}
	return verifier.Verify, sign
}
