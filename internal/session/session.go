// Package session wires the capture pipeline together: frames in from
// the camera, paced sends out to the recognition backend, asynchronous
// results back through fusion and onto the overlay. All the state the
// original kiosk held as free variables lives here as fields with an
// explicit construction and teardown lifecycle.
package session

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kiosk-vision-go/internal/cache"
	"kiosk-vision-go/internal/camera"
	"kiosk-vision-go/internal/encode"
	"kiosk-vision-go/internal/fusion"
	"kiosk-vision-go/internal/mapper"
	"kiosk-vision-go/internal/overlay"
	"kiosk-vision-go/internal/record"
	"kiosk-vision-go/internal/transport"
	"kiosk-vision-go/internal/types"
)

const (
	// attRetryWindow is how soon after the last attendance send the
	// adaptive trigger may fire when fusion failed to resolve a name.
	attRetryWindow = 400 * time.Millisecond

	// attCheckInterval is the evaluation cadence of the attendance
	// trigger conditions, well under the retry window.
	attCheckInterval = 50 * time.Millisecond

	attCacheTTL  = 2 * time.Second
	funCacheTTL  = 2 * time.Second
	batchCacheSz = 8
)

// Settings are the live-tunable capture parameters. Swapped atomically
// so a config reload applies on the next frame without a restart.
type Settings struct {
	TargetWidth  int
	Quality      float64
	FunInterval  time.Duration
	BaseInterval time.Duration
}

// DisplayGeometry describes the kiosk display the overlay is mapped to.
type DisplayGeometry struct {
	Width  int
	Height int
	Fit    mapper.FitMode
}

// Options assembles a session. Source, Bus and Fusion are required.
type Options struct {
	Source           camera.Source
	Bus              transport.Bus
	ReleaseTransport func()
	Display          DisplayGeometry
	Fusion           *fusion.Engine
	Settings         Settings
	Recorder         *record.Writer
	Broadcast        func(any)
	Metrics          *Metrics
	Logger           zerolog.Logger
	WatchInterval    time.Duration
}

// Session runs one kiosk view's capture-and-fusion pipeline.
type Session struct {
	id      string
	logger  zerolog.Logger
	source  camera.Source
	bus     transport.Bus
	release func()

	encoder  *encode.Encoder
	encodeMu sync.Mutex
	fusion   *fusion.Engine
	renderer *overlay.Renderer
	metrics  *Metrics

	settings atomic.Pointer[Settings]

	display       DisplayGeometry
	watchInterval time.Duration

	frameMu   sync.Mutex
	lastFrame types.Frame
	hasFrame  bool

	geoMu     sync.Mutex
	videoW    int
	videoH    int
	snapW     int
	snapH     int
	transform mapper.Transform

	attInFlight atomic.Bool
	funInFlight atomic.Bool
	lastAttSend atomic.Int64 // unix nanos, 0 = never
	missingName atomic.Bool

	attCache *cache.Cache[types.ResultBatch]
	funCache *cache.Cache[types.ResultBatch]

	previewMu  sync.Mutex
	lastSnap   *image.RGBA
	detections []overlay.Detection

	recorder  *record.Writer
	broadcast func(any)

	counters statusCounters

	cancel  context.CancelFunc
	stopped chan struct{}
	stopSub func()
	once    sync.Once
	now     func() time.Time
}

func New(opts Options) *Session {
	settings := opts.Settings
	if settings.FunInterval <= 0 {
		settings.FunInterval = 350 * time.Millisecond
	}
	if settings.BaseInterval <= 0 {
		settings.BaseInterval = 1200 * time.Millisecond
	}

	s := &Session{
		id:            uuid.NewString(),
		logger:        opts.Logger.With().Str("component", "session").Logger(),
		source:        opts.Source,
		bus:           opts.Bus,
		release:       opts.ReleaseTransport,
		encoder:       encode.New(),
		fusion:        opts.Fusion,
		renderer:      overlay.New(opts.Display.Width, opts.Display.Height),
		metrics:       opts.Metrics,
		display:       opts.Display,
		watchInterval: opts.WatchInterval,
		attCache:      cache.New[types.ResultBatch](batchCacheSz, attCacheTTL),
		funCache:      cache.New[types.ResultBatch](batchCacheSz, funCacheTTL),
		recorder:      opts.Recorder,
		broadcast:     opts.Broadcast,
		now:           time.Now,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.fusion == nil {
		s.fusion = fusion.New(0, 0)
	}
	s.settings.Store(&settings)
	return s
}

// ID returns the session identity used in status and logs.
func (s *Session) ID() string {
	return s.id
}

// UpdateSettings swaps the live capture settings.
func (s *Session) UpdateSettings(settings Settings) {
	s.settings.Store(&settings)
	s.logger.Info().
		Int("target_width", settings.TargetWidth).
		Float64("quality", settings.Quality).
		Dur("fun_interval", settings.FunInterval).
		Dur("base_interval", settings.BaseInterval).
		Msg("capture settings updated")
}

// Start launches the pipeline goroutines: frame intake, the two pacing
// loops, the inbound event loop and the dimension watcher.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	events, unsubscribe := s.bus.Subscribe()
	s.stopSub = unsubscribe

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); s.frameLoop(ctx) }()
	go func() { defer wg.Done(); s.funLoop(ctx) }()
	go func() { defer wg.Done(); s.attLoop(ctx) }()
	go func() { defer wg.Done(); s.eventLoop(ctx, events) }()

	watcher := camera.NewWatcher(s.source.Dims, s.watchInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx, s.onDimsChange)
	}()

	go func() {
		wg.Wait()
		close(s.stopped)
	}()

	s.logger.Info().Str("session", s.id).Msg("pipeline started")
}

// Stop tears the session down: timers stop, the event subscription is
// removed, caches are cleared and the shared transport reference is
// released, not closed. Idempotent.
func (s *Session) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.stopped != nil {
			<-s.stopped
		}
		if s.stopSub != nil {
			s.stopSub()
		}
		s.attCache.Clear()
		s.funCache.Clear()
		s.fusion.Clear()
		if s.release != nil {
			s.release()
		}
		s.logger.Info().Str("session", s.id).Msg("pipeline stopped")
	})
}

func (s *Session) currentSettings() Settings {
	return *s.settings.Load()
}

func (s *Session) frameLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.source.Frames():
			if !ok {
				return
			}
			s.frameMu.Lock()
			s.lastFrame = frame
			s.hasFrame = true
			s.frameMu.Unlock()
			s.counters.framesIn.Add(1)
		}
	}
}

func (s *Session) latestFrame() (types.Frame, bool) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.lastFrame, s.hasFrame
}

// onDimsChange refreshes the display transform when the camera reports
// new native dimensions (hot-swap) or the first frame arrives.
func (s *Session) onDimsChange(w, h int) {
	s.geoMu.Lock()
	s.videoW, s.videoH = w, h
	s.recomputeTransformLocked()
	s.geoMu.Unlock()
	s.logger.Info().Int("width", w).Int("height", h).Msg("source dimensions changed")
}

func (s *Session) setSnapDims(w, h int) {
	s.geoMu.Lock()
	if w != s.snapW || h != s.snapH {
		s.snapW, s.snapH = w, h
		s.recomputeTransformLocked()
	}
	s.geoMu.Unlock()
}

func (s *Session) recomputeTransformLocked() {
	s.transform = mapper.Compute(
		float64(s.snapW), float64(s.snapH),
		float64(s.videoW), float64(s.videoH),
		float64(s.display.Width), float64(s.display.Height),
		s.display.Fit,
	)
}

func (s *Session) currentTransform() mapper.Transform {
	s.geoMu.Lock()
	defer s.geoMu.Unlock()
	return s.transform
}
