package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

func pumpAudioChunks(
	ctx context.Context,
	audio ports.AudioSession,
	upload ports.UploadSession,
	chunkSize int,
	events ports.EventSink,
	log *logrus.Entry,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	var sent, dropped int
	defer func() {
		log.WithFields(logrus.Fields{"bytes_sent": sent, "chunks_dropped": dropped}).Debug("audio pump finished")
	}()

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			result := upload.OnHasData(ctx, buf[:n])
			switch result.Status {
			case domain.UploadDelivered:
				sent += result.Bytes
			case domain.UploadCancelled:
				return
			case domain.UploadNotReady:
				dropped++
				if upload.State().IsTerminal() {
					if ctx.Err() == nil {
						events.SessionError(domain.ErrorCodeAudioStream, "session stopped accepting audio")
					}
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// waitForClose waits for the remote close after the stop marker. It reports
// false when the timeout or ctx ran out first.
func waitForClose(ctx context.Context, closed <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-closed:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
