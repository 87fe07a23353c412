package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/vettalabs/vetta-core/internal/config"
)

// malgoSource captures from a system device (microphone or loopback of
// the shared output) via miniaudio. Samples arrive as S16 and are
// converted to float on the way out.
type malgoSource struct {
	name   string
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu sync.Mutex
	cb SampleCallback
}

// NewMicSource opens the default (or configured) capture device.
func NewMicSource(cfg config.CaptureConfig) (Source, error) {
	return newMalgoSource(cfg, malgo.Capture, "microphone")
}

// NewLoopbackSource opens a loopback capture of the shared output mix.
// Hosts without loopback support report ErrUnsupported; a loopback
// device that exposes no capture track reports ErrNoAudioTrack.
func NewLoopbackSource(cfg config.CaptureConfig) (Source, error) {
	return newMalgoSource(cfg, malgo.Loopback, "loopback")
}

func newMalgoSource(cfg config.CaptureConfig, deviceType malgo.DeviceType, name string) (Source, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w: %v", ErrUnsupported, err)
	}

	s := &malgoSource{name: name, ctx: ctx}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			s.mu.Lock()
			cb := s.cb
			s.mu.Unlock()
			if cb != nil && len(data) > 0 {
				cb(DecodeS16(data))
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		if deviceType == malgo.Loopback {
			return nil, fmt.Errorf("open %s device: %w: %v", name, ErrNoAudioTrack, err)
		}
		return nil, fmt.Errorf("open %s device: %w: %v", name, ErrPermissionDenied, err)
	}
	s.device = device
	return s, nil
}

func (s *malgoSource) Name() string { return s.name }

func (s *malgoSource) SetCallback(cb SampleCallback) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *malgoSource) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start %s capture: %w: %v", s.name, ErrPermissionDenied, err)
	}
	return nil
}

func (s *malgoSource) Stop() {
	s.device.Stop()
}

func (s *malgoSource) Close() {
	s.device.Uninit()
	s.ctx.Uninit()
	s.ctx.Free()
}
