// Package seed loads page lists from YAML and registers them with the page
// service.
package seed

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hotspot/internal/model"
)

// File is the seed document.
//
//	defaults:
//	  width: 1280
//	  track: [click, hover]
//	pages:
//	  - url: https://acme.com/
//	  - url: https://acme.com/pricing
//	    encoding: base64
type File struct {
	Defaults Entry   `yaml:"defaults"`
	Pages    []Entry `yaml:"pages"`
}

// Entry describes one page. Zero fields fall back to the file defaults and
// then to the service defaults.
type Entry struct {
	URL        string   `yaml:"url"`
	Width      int      `yaml:"width"`
	Height     int      `yaml:"height"`
	Downsample float64  `yaml:"downsample"`
	Encoding   string   `yaml:"encoding"`
	Track      []string `yaml:"track"`
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a seed document and checks every entry has a URL.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}
	for i, e := range f.Pages {
		if strings.TrimSpace(e.URL) == "" {
			return nil, eris.Errorf("seed: page %d has no url", i)
		}
	}
	return &f, nil
}

// Config overlays e and then the file defaults onto base.
func (f *File) Config(e Entry, base model.PageConfig) (model.PageConfig, error) {
	cfg := base
	cfg.Hotspot.Track = append([]model.Category(nil), base.Hotspot.Track...)
	for _, layer := range []Entry{f.Defaults, e} {
		if layer.Width > 0 {
			cfg.View.Width = layer.Width
		}
		if layer.Height > 0 {
			cfg.View.Height = layer.Height
		}
		if layer.Downsample > 0 {
			cfg.View.Downsample = layer.Downsample
		}
		if layer.Encoding != "" {
			cfg.View.Encoding = model.Encoding(strings.ToLower(layer.Encoding))
		}
		if len(layer.Track) > 0 {
			track, err := model.ParseCategories(layer.Track)
			if err != nil {
				return model.PageConfig{}, eris.Wrapf(err, "seed: %s", e.URL)
			}
			cfg.Hotspot.Track = track
		}
	}
	return cfg, nil
}

// Service is the part of the page service an import needs.
type Service interface {
	AddPage(ctx context.Context, rawURL string, cfg *model.PageConfig) (*model.Page, error)
	View(ctx context.Context, id string, nocache bool) ([]byte, error)
}

// Options tunes Import.
type Options struct {
	// Capture takes the first snapshot of every added page.
	Capture bool
	// Concurrency bounds the pages processed at once. Default: 4.
	Concurrency int
}

// Failure records one entry that could not be imported.
type Failure struct {
	URL string
	Err error
}

// Result summarizes an import.
type Result struct {
	Added    []model.PageSummary
	Failures []Failure
}

// Import adds every page in f. Per-page failures are collected in the result;
// only a cancelled context aborts the run.
func Import(ctx context.Context, svc Service, f *File, base model.PageConfig, opts Options) (*Result, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}

	res := &Result{}
	var mu sync.Mutex
	fail := func(url string, err error) {
		mu.Lock()
		res.Failures = append(res.Failures, Failure{URL: url, Err: err})
		mu.Unlock()
		zap.L().Warn("seed: page failed", zap.String("url", url), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, e := range f.Pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cfg, err := f.Config(e, base)
			if err != nil {
				fail(e.URL, err)
				return nil
			}
			p, err := svc.AddPage(gctx, e.URL, &cfg)
			if err != nil {
				fail(e.URL, err)
				return nil
			}
			mu.Lock()
			res.Added = append(res.Added, p.Summary())
			mu.Unlock()

			if opts.Capture {
				if _, err := svc.View(gctx, p.ID, false); err != nil {
					fail(e.URL, eris.Wrapf(err, "seed: capture %s", p.ID))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "seed: import")
	}
	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "seed: import")
	}

	zap.L().Info("seed: import complete",
		zap.Int("added", len(res.Added)),
		zap.Int("failed", len(res.Failures)),
	)
	return res, nil
}
