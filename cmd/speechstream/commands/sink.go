package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

// consoleSink prints live results to progress and the final transcript to out.
type consoleSink struct {
	mu       sync.Mutex
	progress io.Writer
	out      io.Writer
	log      *logrus.Entry
}

var _ ports.EventSink = (*consoleSink)(nil)

func newConsoleSink(progress, out io.Writer) *consoleSink {
	return &consoleSink{
		progress: progress,
		out:      out,
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (s *consoleSink) setLogger(log *logrus.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log.WithField("component", "cli")
}

func (s *consoleSink) logger() *logrus.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

func (s *consoleSink) SessionStateChanged(state domain.SessionState) {
	s.logger().WithField("state", state).Info("session state changed")
}

func (s *consoleSink) PartialTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.progress, "... %s\n", text)
}

func (s *consoleSink) FinalTranscript(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, text)
}

func (s *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	s.logger().WithField("code", code).Warn(detail)
}
