// Package audio acquires raw audio, mixes and quantizes it, and emits
// fixed-duration PCM frames for the transcription pipeline.
package audio

import "errors"

// Capture failures are terminal for the attempt: the caller reports them
// and must not retry automatically. The three kinds stay distinguishable
// so the user can be told what actually went wrong.
var (
	ErrPermissionDenied = errors.New("audio source permission denied")
	ErrUnsupported      = errors.New("audio capture unsupported on this host")
	ErrNoAudioTrack     = errors.New("selected source carries no audio track")
)

// SampleCallback receives mono float32 samples in [-1, 1].
type SampleCallback func(samples []float32)

// Source is a single acquired audio track. Implementations push samples
// to the registered callback from their own capture context; they never
// share state with the consumer beyond that one-way handoff.
type Source interface {
	Name() string
	SetCallback(cb SampleCallback)
	Start() error
	Stop()
	Close()
}

// Mode selects which tracks a capture session acquires.
type Mode string

const (
	ModeMic   Mode = "mic"
	ModeTab   Mode = "tab"
	ModeMixed Mode = "mixed"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeMic, ModeTab, ModeMixed:
		return true
	}
	return false
}
