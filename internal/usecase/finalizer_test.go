package usecase

import (
	"errors"
	"strings"
	"testing"

	"speechstream/internal/domain"
)

func TestTranscriptFinalizerEmitsTranscript(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	bridge := newDelegateBridge(events, testLogger())
	bridge.aggregator.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "done"})
	bridge.OnClose(1000, "", true)

	result, err := newTranscriptFinalizer(events).Finalize(bridge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transcript != "done" || result.Close.Code != 1000 || !result.Close.Remote {
		t.Fatalf("unexpected result: %+v", result)
	}
	if finals := events.snapshotFinals(); len(finals) != 1 || finals[0] != "done" {
		t.Fatalf("expected final transcript event, got %q", finals)
	}
}

func TestTranscriptFinalizerFailureWithoutTranscript(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	bridge := newDelegateBridge(events, testLogger())
	bridge.OnError("broken pipe")

	_, err := newTranscriptFinalizer(events).Finalize(bridge)
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if len(events.snapshotFinals()) != 0 {
		t.Fatalf("no final transcript expected")
	}
}

func TestTranscriptFinalizerNoTranscript(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	_, err := newTranscriptFinalizer(events).Finalize(newDelegateBridge(events, testLogger()))
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
}
