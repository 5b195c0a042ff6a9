package session

import "sona/voice/internal/transcript"

// Presenter receives everything the presentation surface needs: status text,
// transcript entries, listening/speaking indicators and the playback
// amplitude feed. Implementations must not call back into the controller.
type Presenter interface {
	Status(text string)
	TranscriptAppend(u transcript.Utterance)
	Listening(on bool)
	Speaking(on bool)
	Amplitude(level float64)
}

type NopPresenter struct{}

func (NopPresenter) Status(string)                         {}
func (NopPresenter) TranscriptAppend(transcript.Utterance) {}
func (NopPresenter) Listening(bool)                        {}
func (NopPresenter) Speaking(bool)                         {}
func (NopPresenter) Amplitude(float64)                     {}

// presenterObserver adapts a Presenter to the coordinator's observer.
type presenterObserver struct{ p Presenter }

func (o presenterObserver) Status(text string)                      { o.p.Status(text) }
func (o presenterObserver) TranscriptAppend(u transcript.Utterance) { o.p.TranscriptAppend(u) }
func (o presenterObserver) Listening(on bool)                       { o.p.Listening(on) }
func (o presenterObserver) Speaking(on bool)                        { o.p.Speaking(on) }
