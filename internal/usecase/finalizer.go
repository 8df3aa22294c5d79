package usecase

import (
	"errors"
	"fmt"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

var ErrNoTranscript = errors.New("no transcript captured")

type transcriptFinalizer struct {
	events ports.EventSink
}

func newTranscriptFinalizer(events ports.EventSink) transcriptFinalizer {
	return transcriptFinalizer{events: events}
}

// Finalize builds the stop result from what the bridge collected. A failure
// is only surfaced when nothing was transcribed.
func (f transcriptFinalizer) Finalize(bridge *delegateBridge) (domain.StopResult, error) {
	result := domain.StopResult{
		Transcript: bridge.aggregator.Raw(),
		Close:      bridge.closeInfo(),
	}

	if result.Transcript == "" {
		if failure := bridge.failure(); failure != "" {
			return result, fmt.Errorf("transcription failed: %s", failure)
		}
		return result, ErrNoTranscript
	}

	f.events.FinalTranscript(result.Transcript)
	return result, nil
}
