package tracking

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot/internal/heatmap"
	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/snapshot"
)

type countingCapturer struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	last  snapshot.Request
	mu    sync.Mutex
}

func (c *countingCapturer) Capture(_ context.Context, req snapshot.Request) ([]byte, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.last = req
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return []byte("jpeg"), nil
}

func smallPage(track ...model.Category) *model.Page {
	p := model.NewPage("https://acme.com/pricing")
	p.Config.View.Width, p.Config.View.Height = 20, 10
	if len(track) > 0 {
		p.Config.Hotspot.Track = track
	}
	return p
}

func TestRecordEvent_LazyInitThenIncrement(t *testing.T) {
	fake := &countingCapturer{}
	s := NewState(smallPage(), fake)

	ok, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{X: 3.4, Y: 7.6})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), fake.calls.Load())

	g := s.Page().Grid(model.CategoryClick)
	require.NotNil(t, g)
	assert.Equal(t, 20, g.Width())
	assert.Equal(t, 10, g.Height())
	assert.Equal(t, int64(1), g.At(3, 8))
	assert.Equal(t, []byte("jpeg"), s.Page().View())

	_, err = s.RecordEvent(context.Background(), model.CategoryClick, model.Point{X: 3, Y: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(2), g.At(3, 8))
	assert.Equal(t, int32(1), fake.calls.Load(), "existing grid needs no capture")
}

func TestRecordEvent_CapturesWithPageSettings(t *testing.T) {
	fake := &countingCapturer{}
	p := smallPage()
	p.Config.View.Encoding = model.EncodingBase64
	s := NewState(p, fake)

	_, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{})
	require.NoError(t, err)
	assert.Equal(t, snapshot.Request{
		URL:        "https://acme.com/pricing",
		Width:      20,
		Height:     10,
		Downsample: 0.8,
		Encoding:   model.EncodingBase64,
	}, fake.last)
}

func TestRecordEvent_ClampsOutOfBounds(t *testing.T) {
	s := NewState(smallPage(), &countingCapturer{})
	for _, pt := range []model.Point{{X: -5, Y: -5}, {X: 500, Y: 500}, {X: math.NaN(), Y: math.Inf(1)}} {
		ok, err := s.RecordEvent(context.Background(), model.CategoryClick, pt)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	g := s.Page().Grid(model.CategoryClick)
	assert.Equal(t, int64(1), g.At(0, 0))
	assert.Equal(t, int64(1), g.At(19, 9))
	assert.Equal(t, int64(1), g.At(0, 9))
	assert.Equal(t, int64(3), g.Total())
}

func TestRecordEvent_UntrackedIsNoop(t *testing.T) {
	fake := &countingCapturer{}
	s := NewState(smallPage(), fake)

	ok, err := s.RecordEvent(context.Background(), model.CategoryHover, model.Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, s.Page().Grid(model.CategoryHover))
	assert.Zero(t, fake.calls.Load())
}

func TestRecordEvent_ConcurrentFirstEventsShareOneCapture(t *testing.T) {
	fake := &countingCapturer{delay: 20 * time.Millisecond}
	s := NewState(smallPage(), fake)

	const n = 200
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{X: float64(i % 20), Y: 4})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, int64(n), s.Page().Grid(model.CategoryClick).Total(), "no increment is lost")
}

func TestRecordEvent_CaptureFailure(t *testing.T) {
	fake := &countingCapturer{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	s := NewState(smallPage(), fake)

	ok, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{})
	assert.False(t, ok)
	var ce *model.CaptureError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "https://acme.com/pricing", ce.URL)
	assert.Nil(t, s.Page().Grid(model.CategoryClick), "no partial state after a failed capture")
	assert.Nil(t, s.Page().View())
}

func TestRecordEvent_InvalidDimensions(t *testing.T) {
	p := smallPage()
	p.Config.View.Width = 0
	fake := &countingCapturer{}
	s := NewState(p, fake)

	_, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{})
	var de *model.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Zero(t, fake.calls.Load())
}

func TestView_CachedAndNocache(t *testing.T) {
	fake := &countingCapturer{}
	s := NewState(smallPage(model.CategoryClick, model.CategoryHover), fake)

	v, err := s.View(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), v)
	assert.NotNil(t, s.Page().Grid(model.CategoryClick))
	assert.NotNil(t, s.Page().Grid(model.CategoryHover))

	_, err = s.View(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())

	_, err = s.View(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestView_ResizesOnDimensionChange(t *testing.T) {
	s := NewState(smallPage(), &countingCapturer{})
	_, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{X: 19, Y: 9})
	require.NoError(t, err)

	s.Page().Config.View.Width, s.Page().Config.View.Height = 40, 20
	_, err = s.View(context.Background(), true)
	require.NoError(t, err)

	g := s.Page().Grid(model.CategoryClick)
	assert.Equal(t, 40, g.Width())
	assert.Equal(t, int64(1), g.At(39, 19))
}

func TestActivation(t *testing.T) {
	s := NewState(smallPage(), &countingCapturer{})

	act, ok, err := s.Activation(context.Background(), model.CategoryClick)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, act, 20)
	assert.Len(t, act[0], 10)
	assert.InDelta(t, 0.5, act[0][0], 1e-12)

	_, err = s.RecordEvent(context.Background(), model.CategoryClick, model.Point{X: 2, Y: 2})
	require.NoError(t, err)
	act, _, err = s.Activation(context.Background(), model.CategoryClick)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-1)), act[2][2], 1e-12)

	_, ok, err = s.Activation(context.Background(), model.CategoryContext)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureGrid(t *testing.T) {
	s := NewState(smallPage(), &countingCapturer{})
	require.NoError(t, s.EnsureGrid(model.CategoryContext, 4, 3))
	assert.Equal(t, 4, s.Page().Grid(model.CategoryContext).Width())
	require.Error(t, s.EnsureGrid(model.CategoryContext, 0, 3))
}

func TestRecordEvent_EmptyGridIsRecaptured(t *testing.T) {
	fake := &countingCapturer{}
	p := smallPage()
	var cache model.PageCache
	cache.Tracking[model.CategoryClick] = heatmap.New(0, 0)
	p.SetCache(cache)
	s := NewState(p, fake)

	ok, err := s.RecordEvent(context.Background(), model.CategoryClick, model.Point{X: 3, Y: 3})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), fake.calls.Load())
	g := s.Page().Grid(model.CategoryClick)
	assert.Equal(t, 20, g.Width())
	assert.Equal(t, int64(1), g.At(3, 3))
}
