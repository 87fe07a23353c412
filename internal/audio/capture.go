package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/protocol"
)

// SourceFactory acquires the tracks for a capture mode. The default
// factory opens real devices; tests inject fakes.
type SourceFactory func(cfg config.CaptureConfig, mode Mode) ([]Source, error)

// DefaultSourceFactory opens system devices for the requested mode.
func DefaultSourceFactory(cfg config.CaptureConfig, mode Mode) ([]Source, error) {
	switch mode {
	case ModeMic:
		src, err := NewMicSource(cfg)
		if err != nil {
			return nil, err
		}
		return []Source{src}, nil
	case ModeTab:
		src, err := NewLoopbackSource(cfg)
		if err != nil {
			return nil, err
		}
		return []Source{src}, nil
	case ModeMixed:
		mic, err := NewMicSource(cfg)
		if err != nil {
			return nil, err
		}
		tab, err := NewLoopbackSource(cfg)
		if err != nil {
			mic.Close()
			return nil, err
		}
		return []Source{mic, tab}, nil
	}
	return nil, fmt.Errorf("unknown capture mode %q", mode)
}

// FrameSink receives completed PCM frames.
type FrameSink func(frame protocol.AudioFrame) error

// Capture owns the source → mixer → quantizer → framer pipeline for one
// session. Frames leave through the sink; nothing else crosses the
// realtime boundary.
type Capture struct {
	cfg     config.CaptureConfig
	factory SourceFactory
	sink    FrameSink
	log     *slog.Logger

	mu        sync.Mutex
	sources   []Source
	framer    *Framer
	mix       *mixer
	sessionID string
	seq       int
	running   bool
}

func NewCapture(cfg config.CaptureConfig, factory SourceFactory, sink FrameSink, logger *slog.Logger) *Capture {
	if factory == nil {
		factory = DefaultSourceFactory
	}
	return &Capture{
		cfg:     cfg,
		factory: factory,
		sink:    sink,
		log:     logger.With(slog.String("component", "capture")),
	}
}

// Start acquires the sources for mode and begins emitting frames.
// Acquisition failure is terminal for this attempt: the error is
// returned with its kind intact and nothing keeps running.
func (c *Capture) Start(sessionID string, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown capture mode %q", mode)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("capture already running")
	}
	c.mu.Unlock()

	sources, err := c.factory(c.cfg, mode)
	if err != nil {
		return err
	}

	frameSamples := c.cfg.SampleRate * c.cfg.FrameDurationMS / 1000

	c.mu.Lock()
	c.sources = sources
	c.framer = NewFramer(frameSamples)
	c.sessionID = sessionID
	c.seq = 0
	c.running = true
	if len(sources) == 2 {
		// allow at most five seconds of skew between the two devices
		c.mix = newMixer(c.cfg.MixGain, c.cfg.SampleRate*5)
		sources[0].SetCallback(func(samples []float32) {
			c.emit(c.mix.pushA(samples), false)
		})
		sources[1].SetCallback(func(samples []float32) {
			c.emit(c.mix.pushB(samples), false)
		})
	} else {
		c.mix = nil
		sources[0].SetCallback(func(samples []float32) {
			c.emit(samples, false)
		})
	}
	c.mu.Unlock()

	for _, src := range sources {
		if err := src.Start(); err != nil {
			c.release()
			return err
		}
	}

	c.log.Info("capture started",
		slog.String("session_id", sessionID),
		slog.String("mode", string(mode)),
		slog.Int("sources", len(sources)))
	return nil
}

// Stop flushes the partial frame, marks the stream final, and releases
// every acquired device. Safe to call on abnormal teardown.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	sources := c.sources
	c.mu.Unlock()

	for _, src := range sources {
		src.Stop()
	}

	c.mu.Lock()
	var tail []float32
	if c.framer != nil {
		tail = c.framer.Flush()
	}
	c.mu.Unlock()

	c.emitFrame(Quantize(tail), true)
	c.release()
	c.log.Info("capture stopped")
}

func (c *Capture) release() {
	c.mu.Lock()
	sources := c.sources
	c.sources = nil
	c.framer = nil
	c.mix = nil
	c.running = false
	c.mu.Unlock()

	for _, src := range sources {
		src.SetCallback(nil)
		src.Close()
	}
}

func (c *Capture) emit(samples []float32, final bool) {
	if len(samples) == 0 {
		return
	}
	c.mu.Lock()
	if !c.running || c.framer == nil {
		c.mu.Unlock()
		return
	}
	frames := c.framer.Push(samples)
	c.mu.Unlock()

	for _, frame := range frames {
		c.emitFrame(Quantize(frame), final)
	}
}

func (c *Capture) emitFrame(pcm []byte, final bool) {
	c.mu.Lock()
	sessionID := c.sessionID
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	frame := protocol.AudioFrame{
		SessionID:  sessionID,
		Sequence:   seq,
		SampleRate: c.cfg.SampleRate,
		Channels:   1,
		PCM:        pcm,
		Final:      final,
	}
	if err := c.sink(frame); err != nil {
		c.log.Warn("failed to hand off audio frame", slog.String("error", err.Error()))
	}
}
