package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/service"
	"github.com/sells-group/hotspot/internal/snapshot"
	"github.com/sells-group/hotspot/internal/store"
)

const doc = `
defaults:
  width: 320
  track: [click, hover]
pages:
  - url: https://acme.com/
  - url: https://acme.com/pricing
    encoding: base64
    height: 200
  - url: https://acme.com/blog
    track: [context]
`

func newService(captures *atomic.Int32, fail bool) *service.Service {
	capturer := snapshot.CaptureFunc(func(_ context.Context, req snapshot.Request) ([]byte, error) {
		captures.Add(1)
		if fail {
			return nil, &model.CaptureError{URL: req.URL, Err: errors.New("timeout")}
		}
		return []byte("jpeg"), nil
	})
	return service.New(store.NewMemory(), capturer, nil, service.Options{})
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, f.Pages, 3)
	assert.Equal(t, 320, f.Defaults.Width)
	assert.Equal(t, "https://acme.com/pricing", f.Pages[1].URL)
	assert.Equal(t, "base64", f.Pages[1].Encoding)
}

func TestParse_MissingURL(t *testing.T) {
	_, err := Parse([]byte("pages:\n  - width: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url")
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("pages: [\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Pages, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Layers(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	base := model.DefaultPageConfig()

	cfg, err := f.Config(f.Pages[1], base)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.View.Width)
	assert.Equal(t, 200, cfg.View.Height)
	assert.Equal(t, model.EncodingBase64, cfg.View.Encoding)
	assert.Equal(t, []model.Category{model.CategoryClick, model.CategoryHover}, cfg.Hotspot.Track)

	cfg, err = f.Config(f.Pages[2], base)
	require.NoError(t, err)
	assert.Equal(t, []model.Category{model.CategoryContext}, cfg.Hotspot.Track)
	assert.Equal(t, 768, cfg.View.Height)

	assert.Equal(t, []model.Category{model.CategoryClick}, base.Hotspot.Track, "base is not mutated")

	_, err = f.Config(Entry{URL: "https://acme.com", Track: []string{"scroll"}}, base)
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	var captures atomic.Int32
	svc := newService(&captures, false)

	res, err := Import(context.Background(), svc, f, model.DefaultPageConfig(), Options{Concurrency: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Added, 3)
	assert.Zero(t, captures.Load())

	urls := make([]string, len(res.Added))
	for i, s := range res.Added {
		urls[i] = s.URL
	}
	sort.Strings(urls)
	assert.Equal(t, []string{"https://acme.com/", "https://acme.com/blog", "https://acme.com/pricing"}, urls)

	list, err := svc.ListPages(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestImport_Capture(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	var captures atomic.Int32
	svc := newService(&captures, false)

	res, err := Import(context.Background(), svc, f, model.DefaultPageConfig(), Options{Capture: true})
	require.NoError(t, err)
	assert.Len(t, res.Added, 3)
	assert.Equal(t, int32(3), captures.Load())

	for _, s := range res.Added {
		p, err := svc.GetPage(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg"), p.View())
	}
}

func TestImport_CollectsFailures(t *testing.T) {
	f, err := Parse([]byte(`
pages:
  - url: https://acme.com/
  - url: ftp://acme.com/file
  - url: https://acme.com/zero
    downsample: 7
`))
	require.NoError(t, err)
	var captures atomic.Int32
	svc := newService(&captures, true)

	res, err := Import(context.Background(), svc, f, model.DefaultPageConfig(), Options{Capture: true})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	// One invalid scheme, one invalid downsample, one failed capture.
	require.Len(t, res.Failures, 3)
	var ce *model.CaptureError
	found := false
	for _, fl := range res.Failures {
		if errors.As(fl.Err, &ce) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestImport_Cancelled(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	var captures atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Import(ctx, newService(&captures, false), f, model.DefaultPageConfig(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
