package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"speechstream/internal/domain"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func TestPumpAudioChunksDeliversUntilEOF(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("ab"), []byte("cd")}}
	upload := newFakeUploadSession("s1")
	upload.state = domain.SessionStateOpen
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudioChunks(context.Background(), audio, upload, 256, events, testLogger(), done)
	<-done

	chunks := upload.snapshotChunks()
	if len(chunks) != 2 || string(chunks[0]) != "ab" || string(chunks[1]) != "cd" {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
	if errs := events.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestPumpAudioChunksStopsWhenSessionTerminal(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc"), []byte("def")}}
	upload := newFakeUploadSession("s1")
	upload.state = domain.SessionStateFailed
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudioChunks(context.Background(), audio, upload, 256, events, testLogger(), done)
	<-done

	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected audio stream error, got %+v", errs)
	}
	if audio.index != 1 {
		t.Fatalf("expected the pump to stop after the first chunk, read %d", audio.index)
	}
}

func TestPumpAudioChunksStopsOnCancelled(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioSession{chunks: [][]byte{[]byte("abc"), []byte("def")}}
	upload := &cancellingUploadSession{fakeUploadSession: newFakeUploadSession("s1")}
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudioChunks(context.Background(), audio, upload, 256, events, testLogger(), done)
	<-done

	if audio.index != 1 {
		t.Fatalf("expected the pump to stop after a cancelled result, read %d", audio.index)
	}
	if errs := events.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("cancellation must not be reported as an error: %+v", errs)
	}
}

func TestPumpAudioChunksReportsReadError(t *testing.T) {
	t.Parallel()

	audio := &errorAudioSession{err: errors.New("read failed")}
	upload := newFakeUploadSession("s1")
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudioChunks(context.Background(), audio, upload, 256, events, testLogger(), done)
	<-done

	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[0].code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected audio stream error")
	}
}

func TestPumpAudioChunksSilentAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	audio := &errorAudioSession{err: errors.New("file already closed")}
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudioChunks(ctx, audio, newFakeUploadSession("s1"), 256, events, testLogger(), done)
	<-done

	if errs := events.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("expected no errors after cancel, got %+v", errs)
	}
}

func TestWaitForClose(t *testing.T) {
	t.Parallel()

	closed := make(chan struct{})
	if waitForClose(context.Background(), closed, 10*time.Millisecond) {
		t.Fatalf("expected timeout")
	}
	if waitForClose(context.Background(), closed, 0) {
		t.Fatalf("expected no wait without grace")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if waitForClose(ctx, closed, time.Minute) {
		t.Fatalf("expected cancelled wait")
	}

	close(closed)
	if !waitForClose(context.Background(), closed, time.Minute) {
		t.Fatalf("expected close to be observed")
	}
}

type cancellingUploadSession struct {
	*fakeUploadSession
}

func (s *cancellingUploadSession) OnHasData(_ context.Context, _ []byte) domain.UploadResult {
	return domain.Cancelled()
}

type errorAudioSession struct {
	err error
}

func (s *errorAudioSession) Read(_ []byte) (int, error) { return 0, s.err }
func (s *errorAudioSession) Close() error               { return nil }
func (s *errorAudioSession) Stop() error                { return nil }
