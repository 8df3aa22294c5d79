package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"speechstream/internal/ports"
)

const bytesPerSample = 2

// FileCapture replays a raw s16le PCM file as if it were a microphone.
type FileCapture struct {
	path     string
	realtime bool
	log      *logrus.Entry
}

// NewFileCapture reads path on Start. With realtime set, reads are paced to
// the configured sample rate.
func NewFileCapture(path string, realtime bool, log *logrus.Entry) *FileCapture {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileCapture{path: path, realtime: realtime, log: log.WithField("component", "audio")}
}

func (c *FileCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	c.log.WithFields(logrus.Fields{"path": c.path, "realtime": c.realtime}).Debug("starting file capture")

	s := &fileSession{
		file:     f,
		ctx:      ctx,
		stopped:  make(chan struct{}),
		realtime: c.realtime,
		rate:     cfg.SampleRate * cfg.Channels * bytesPerSample,
	}
	return s, nil
}

type fileSession struct {
	file     *os.File
	ctx      context.Context
	realtime bool
	rate     int

	started time.Time
	read    int64

	stopped  chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func (s *fileSession) Read(p []byte) (int, error) {
	select {
	case <-s.stopped:
		return 0, io.EOF
	case <-s.ctx.Done():
		return 0, io.EOF
	default:
	}

	n, err := s.file.Read(p)
	if err != nil && errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	if n > 0 && s.realtime {
		s.pace(n)
	}
	return n, err
}

// pace sleeps until the wall clock catches up with the audio read so far.
func (s *fileSession) pace(n int) {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.read += int64(n)
	due := s.started.Add(time.Duration(s.read) * time.Second / time.Duration(s.rate))
	wait := time.Until(due)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopped:
	case <-s.ctx.Done():
	}
}

func (s *fileSession) Close() error {
	return s.Stop()
}

func (s *fileSession) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.stopErr = s.file.Close()
	})
	return s.stopErr
}
