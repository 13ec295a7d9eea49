package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/resilience"
)

func fastGuard() GuardConfig {
	return GuardConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
	}
}

func TestRequest_Quality(t *testing.T) {
	assert.Equal(t, 80, Request{Downsample: 0.8}.Quality())
	assert.Equal(t, 100, Request{Downsample: 1}.Quality())
	assert.Equal(t, 1, Request{Downsample: 0}.Quality())
	assert.Equal(t, 100, Request{Downsample: 3}.Quality())
}

func TestEncode(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff}
	assert.Equal(t, raw, Encode(raw, model.EncodingBinary))
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), string(Encode(raw, model.EncodingBase64)))
}

func TestGuarded_PassesThrough(t *testing.T) {
	var got Request
	g := NewGuarded(CaptureFunc(func(_ context.Context, req Request) ([]byte, error) {
		got = req
		return []byte("shot"), nil
	}), fastGuard())

	req := Request{URL: "https://acme.com", Width: 10, Height: 5, Downsample: 0.8}
	img, err := g.Capture(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("shot"), img)
	assert.Equal(t, req, got)
}

func TestGuarded_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	g := NewGuarded(CaptureFunc(func(context.Context, Request) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("net::ERR_CONNECTION_RESET")
		}
		return []byte("ok"), nil
	}), fastGuard())

	img, err := g.Capture(context.Background(), Request{URL: "https://acme.com"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), img)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGuarded_WrapsFailureAsCaptureError(t *testing.T) {
	g := NewGuarded(CaptureFunc(func(context.Context, Request) ([]byte, error) {
		return nil, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}), fastGuard())

	_, err := g.Capture(context.Background(), Request{URL: "https://nowhere.invalid"})
	var ce *model.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "https://nowhere.invalid", ce.URL)
}

func TestGuarded_BreakerOpensPerHost(t *testing.T) {
	var calls atomic.Int32
	g := NewGuarded(CaptureFunc(func(_ context.Context, req Request) ([]byte, error) {
		calls.Add(1)
		if req.URL == "https://down.io" {
			return nil, errors.New("boom")
		}
		return []byte("ok"), nil
	}), fastGuard())

	for range 2 {
		_, _ = g.Capture(context.Background(), Request{URL: "https://down.io"})
	}
	before := calls.Load()
	_, err := g.Capture(context.Background(), Request{URL: "https://down.io/other"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "open circuit short-circuits the capture")

	_, err = g.Capture(context.Background(), Request{URL: "https://up.io"})
	require.NoError(t, err)
	assert.Equal(t, resilience.CircuitOpen, g.Breakers()["down.io"])
}

func TestGuarded_RateLimitHonorsContext(t *testing.T) {
	cfg := fastGuard()
	cfg.RatePerSec = 0.001
	cfg.Burst = 1
	g := NewGuarded(CaptureFunc(func(context.Context, Request) ([]byte, error) {
		return []byte("ok"), nil
	}), cfg)

	_, err := g.Capture(context.Background(), Request{URL: "https://acme.com"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Capture(ctx, Request{URL: "https://acme.com"})
	var ce *model.CaptureError
	assert.True(t, errors.As(err, &ce))
}

func TestManager_ClosedRejects(t *testing.T) {
	m := NewManager(ManagerConfig{})
	require.NoError(t, m.Close())
	_, err := m.Browser(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name string
		html string
		want BlockType
	}{
		{"plain page", "<html><body><h1>Pricing</h1></body></html>", BlockNone},
		{"cloudflare interstitial", "<title>Just a moment...</title><p>Checking your browser before accessing</p>", BlockCloudflare},
		{"cloudflare challenge", `<div id="cf-challenge-running"></div>`, BlockCloudflare},
		{"recaptcha", `<div class="g-recaptcha" data-sitekey="x"></div>`, BlockCaptcha},
		{"hcaptcha", `<div class="h-captcha"></div>`, BlockCaptcha},
		{"js shell", "<noscript>Please enable JavaScript to continue</noscript>", BlockJSShell},
		{"meta refresh", `<meta http-equiv="refresh" content="0;url=/login">`, BlockJSShell},
		{"large page with noscript", "<noscript>enable javascript</noscript>" + strings.Repeat("x", 3000), BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, kind := DetectBlock(tt.html)
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, kind)
		})
	}
}
