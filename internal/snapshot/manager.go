package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ManagerConfig configures the shared browser.
type ManagerConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// RecycleInterval bounds the lifetime of one browser process. Zero keeps
	// it for the life of the manager.
	RecycleInterval time.Duration
}

// Manager owns one browser per process. It launches lazily on first use and
// relaunches after RecycleInterval.
type Manager struct {
	cfg ManagerConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool

	nowFunc func() time.Time
}

// NewManager creates a Manager. No browser starts until Browser is called.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg, nowFunc: time.Now}
}

// Browser returns the live browser, launching or recycling it as needed.
func (m *Manager) Browser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, eris.New("browser: manager is closed")
	}
	if m.browser != nil && m.cfg.RecycleInterval > 0 && m.nowFunc().Sub(m.startAt) > m.cfg.RecycleInterval {
		zap.L().Info("browser: recycle interval reached", zap.Duration("uptime", m.nowFunc().Sub(m.startAt)))
		m.cleanup()
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = m.nowFunc()
	return b, nil
}

// Close shuts the browser down. Later calls to Browser fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "browser: launch")
		}
		wsURL = u
		m.lnch = l
		zap.L().Info("browser: launched local chrome", zap.String("url", wsURL))
	} else {
		zap.L().Info("browser: connecting to remote", zap.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return nil, eris.Wrap(err, "browser: connect")
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		zap.L().Warn("browser: ignore cert errors failed", zap.Error(err))
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			zap.L().Debug("browser: close", zap.Error(err))
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
