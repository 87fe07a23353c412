package audio

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQuantizeClampsOutOfRange(t *testing.T) {
	pcm := Quantize([]float32{0, 1, -1, 1.5, -2.5})
	samples := DecodeS16(pcm)

	if samples[0] != 0 {
		t.Fatalf("expected silence to stay zero, got %f", samples[0])
	}
	if samples[3] != samples[1] {
		t.Fatalf("out-of-range sample must clamp to full scale: %f vs %f", samples[3], samples[1])
	}
	if samples[4] != samples[2] {
		t.Fatalf("negative out-of-range sample must clamp: %f vs %f", samples[4], samples[2])
	}
	if math.Abs(float64(samples[1])-1) > 0.001 {
		t.Fatalf("full-scale positive should round-trip near 1, got %f", samples[1])
	}
}

func TestFramerCarriesLeftover(t *testing.T) {
	f := NewFramer(4)

	frames := f.Push([]float32{1, 2, 3})
	if len(frames) != 0 {
		t.Fatalf("expected no complete frame yet, got %d", len(frames))
	}

	frames = f.Push([]float32{4, 5, 6})
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	want := []float32{1, 2, 3, 4}
	for i, v := range want {
		if frames[0][i] != v {
			t.Fatalf("frame[%d] = %f, want %f", i, frames[0][i], v)
		}
	}

	rest := f.Flush()
	if len(rest) != 2 || rest[0] != 5 || rest[1] != 6 {
		t.Fatalf("leftover = %v, want [5 6]", rest)
	}
}

func TestMixerAttenuatesAndAligns(t *testing.T) {
	m := newMixer(0.5, 0)

	if out := m.pushA([]float32{1, 1, 1}); out != nil {
		t.Fatalf("expected nothing until both sides have samples, got %v", out)
	}
	out := m.pushB([]float32{1, 1})
	if len(out) != 2 {
		t.Fatalf("expected 2 mixed samples, got %d", len(out))
	}
	for _, v := range out {
		if v != 1 {
			t.Fatalf("0.5*1 + 0.5*1 should be 1, got %f", v)
		}
	}

	// third sample from A still queued
	out = m.pushB([]float32{-1})
	if len(out) != 1 || out[0] != 0 {
		t.Fatalf("expected mixed [0], got %v", out)
	}
}

func TestMixerCapsLagWhenOneSourceStalls(t *testing.T) {
	m := newMixer(0.5, 8)

	// one side keeps delivering while the other is silent
	for i := 0; i < 100; i += 10 {
		chunk := make([]float32, 10)
		for j := range chunk {
			chunk[j] = float32(i+j) / 100
		}
		if out := m.pushA(chunk); out != nil {
			t.Fatalf("nothing should mix while the peer is stalled, got %v", out)
		}
	}
	if len(m.a) > 8 {
		t.Fatalf("stalled-peer backlog must stay within the lag cap, got %d samples", len(m.a))
	}

	// when the stalled side wakes up, the newest retained samples mix first
	out := m.pushB([]float32{0, 0})
	if len(out) != 2 {
		t.Fatalf("expected 2 mixed samples, got %d", len(out))
	}
	if out[0] != 0.5*0.92 || out[1] != 0.5*0.93 {
		t.Fatalf("oldest samples past the cap must be dropped, got %v", out)
	}
}

func TestCapturePipelineEmitsFrames(t *testing.T) {
	cfg := config.CaptureConfig{SampleRate: 100, FrameDurationMS: 100, MixGain: 0.5}

	samples := make([]float32, 25)
	for i := range samples {
		samples[i] = 0.25
	}
	factory := func(_ config.CaptureConfig, _ Mode) ([]Source, error) {
		return []Source{NewFakeSource("fake", samples, 7)}, nil
	}

	var frames []protocol.AudioFrame
	sink := func(f protocol.AudioFrame) error {
		frames = append(frames, f)
		return nil
	}

	c := NewCapture(cfg, factory, sink, testLogger())
	if err := c.Start("session-1", ModeMic); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Stop()

	// 25 samples at 10 per frame: two full frames plus a final flush of 5.
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if len(frames[0].PCM) != 20 {
		t.Fatalf("expected 10-sample frame (20 bytes), got %d", len(frames[0].PCM))
	}
	if frames[0].Final || frames[1].Final {
		t.Fatal("only the flushed frame may be final")
	}
	last := frames[len(frames)-1]
	if !last.Final {
		t.Fatal("expected final marker on flushed frame")
	}
	if len(last.PCM) != 10 {
		t.Fatalf("expected 5 leftover samples (10 bytes), got %d", len(last.PCM))
	}
	total := 0
	for _, f := range frames {
		total += len(f.PCM) / 2
	}
	if total != 25 {
		t.Fatalf("no sample may be dropped at a boundary: got %d of 25", total)
	}
	for i, f := range frames {
		if f.Sequence != i {
			t.Fatalf("frame %d has sequence %d", i, f.Sequence)
		}
	}
}

func TestCaptureStartFailureIsTerminal(t *testing.T) {
	cfg := config.CaptureConfig{SampleRate: 100, FrameDurationMS: 100, MixGain: 0.5}
	factory := func(_ config.CaptureConfig, _ Mode) ([]Source, error) {
		return []Source{&FailingSource{Err: ErrPermissionDenied}}, nil
	}
	c := NewCapture(cfg, factory, func(protocol.AudioFrame) error { return nil }, testLogger())

	err := c.Start("session-1", ModeMic)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission-denied kind, got %v", err)
	}

	// failed start must leave nothing running; a fresh start succeeds
	factoryOK := func(_ config.CaptureConfig, _ Mode) ([]Source, error) {
		return []Source{NewFakeSource("fake", nil, 8)}, nil
	}
	c2 := NewCapture(cfg, factoryOK, func(protocol.AudioFrame) error { return nil }, testLogger())
	if err := c2.Start("session-2", ModeMic); err != nil {
		t.Fatalf("fresh start should succeed: %v", err)
	}
	c2.Stop()
}

func TestCaptureRejectsUnknownMode(t *testing.T) {
	c := NewCapture(config.CaptureConfig{SampleRate: 100, FrameDurationMS: 100}, nil,
		func(protocol.AudioFrame) error { return nil }, testLogger())
	if err := c.Start("s", Mode("screen")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
