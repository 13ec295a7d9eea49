package snapshot

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/model"
)

// RodCapturer screenshots pages with a headless Chrome driven over DevTools.
type RodCapturer struct {
	mgr             *Manager
	stealth         bool
	detectBlocks    bool
	navigateTimeout time.Duration
}

// RodOption configures a RodCapturer.
type RodOption func(*RodCapturer)

// WithStealth toggles the anti-bot-detection page setup.
func WithStealth(on bool) RodOption {
	return func(c *RodCapturer) { c.stealth = on }
}

// WithBlockDetection toggles failing captures that land on a challenge page.
func WithBlockDetection(on bool) RodOption {
	return func(c *RodCapturer) { c.detectBlocks = on }
}

// WithNavigateTimeout bounds navigation plus load of a single capture.
func WithNavigateTimeout(d time.Duration) RodOption {
	return func(c *RodCapturer) {
		if d > 0 {
			c.navigateTimeout = d
		}
	}
}

// NewRodCapturer creates a capturer that borrows browsers from mgr.
func NewRodCapturer(mgr *Manager, opts ...RodOption) *RodCapturer {
	c := &RodCapturer{mgr: mgr, stealth: true, detectBlocks: true, navigateTimeout: 30 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Capture opens a fresh tab at the requested viewport, loads the URL and
// returns a full-page JPEG. Each capture gets its own tab, closed afterwards.
func (c *RodCapturer) Capture(ctx context.Context, req Request) ([]byte, error) {
	b, err := c.mgr.Browser(ctx)
	if err != nil {
		return nil, &model.CaptureError{URL: req.URL, Err: err}
	}

	page, err := c.openTab(b)
	if err != nil {
		return nil, &model.CaptureError{URL: req.URL, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			zap.L().Debug("snapshot: close tab", zap.Error(cerr))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, c.navigateTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             req.Width,
		Height:            req.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, &model.CaptureError{URL: req.URL, Err: eris.Wrap(err, "snapshot: set viewport")}
	}
	if err := p.Navigate(req.URL); err != nil {
		return nil, &model.CaptureError{URL: req.URL, Err: eris.Wrap(err, "snapshot: navigate")}
	}
	if err := p.WaitLoad(); err != nil {
		return nil, &model.CaptureError{URL: req.URL, Err: eris.Wrap(err, "snapshot: wait load")}
	}
	if c.detectBlocks {
		if err := checkBlocked(p); err != nil {
			return nil, &model.CaptureError{URL: req.URL, Err: err}
		}
	}

	quality := req.Quality()
	img, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		return nil, &model.CaptureError{URL: req.URL, Err: eris.Wrap(err, "snapshot: screenshot")}
	}
	return Encode(img, req.Encoding), nil
}

func (c *RodCapturer) openTab(b *rod.Browser) (*rod.Page, error) {
	if c.stealth {
		page, err := stealth.Page(b)
		return page, eris.Wrap(err, "snapshot: open stealth tab")
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	return page, eris.Wrap(err, "snapshot: open tab")
}

func checkBlocked(p *rod.Page) error {
	html, err := p.HTML()
	if err != nil {
		return eris.Wrap(err, "snapshot: read html")
	}
	if blocked, kind := DetectBlock(html); blocked {
		zap.L().Warn("snapshot: challenge page detected", zap.String("block", string(kind)))
		return eris.Wrapf(ErrBlocked, "snapshot: %s", kind)
	}
	return nil
}

// Encode renders raw image bytes in the requested payload encoding.
func Encode(img []byte, enc model.Encoding) []byte {
	if enc != model.EncodingBase64 {
		return img
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(img)))
	base64.StdEncoding.Encode(out, img)
	return out
}
