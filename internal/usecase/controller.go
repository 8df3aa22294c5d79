package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

var ErrNoActiveSession = errors.New("no active streaming session")

// SessionFactory builds a fresh upload session. Sessions are single use.
type SessionFactory func() (ports.UploadSession, error)

// Config controls capture and stop behavior.
type Config struct {
	Audio     ports.AudioConfig
	ChunkSize int
	// StopGrace bounds the wait for the service to close after the stop marker.
	StopGrace time.Duration
	Logger    *logrus.Entry
}

// SessionController drives one capture and upload session at a time.
type SessionController struct {
	audio      ports.AudioCapture
	newSession SessionFactory
	events     ports.EventSink
	finalizer  transcriptFinalizer
	cfg        Config
	log        *logrus.Entry

	mu      sync.Mutex
	current *activeSession
}

func NewSessionController(
	audio ports.AudioCapture,
	newSession SessionFactory,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SessionController{
		audio:      audio,
		newSession: newSession,
		events:     events,
		finalizer:  newTranscriptFinalizer(events),
		cfg:        cfg,
		log:        log.WithField("component", "controller"),
	}
}

// Start opens a new session and begins capturing. A running session is
// discarded first.
func (c *SessionController) Start(ctx context.Context) error {
	var previous *activeSession

	c.mu.Lock()
	if c.current != nil {
		previous = c.current
		c.current = nil
	}
	c.mu.Unlock()

	if previous != nil {
		c.log.Info("discarding previous session")
		c.stopSession(previous)
		c.finishSession(previous)
	}

	upload, err := c.newSession()
	if err != nil {
		return err
	}
	log := c.log.WithField("session_id", upload.ID())
	bridge := newDelegateBridge(c.events, log)
	upload.SetDelegate(bridge)

	bridge.emit(domain.SessionStateConnecting)
	if err := upload.Prepare(); err != nil {
		_ = upload.Close()
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		upload.StopUploaderPrepareThread()
		_ = upload.Close()
		cancel()
		return err
	}

	active := &activeSession{
		cancel:    cancel,
		audio:     audioSession,
		upload:    upload,
		bridge:    bridge,
		audioDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	go pumpAudioChunks(sessionCtx, active.audio, active.upload, c.cfg.ChunkSize, c.events, log, active.audioDone)

	log.Info("streaming started")
	return nil
}

// Stop ends capture, sends the stop marker and returns the transcript.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.StopResult{}, err
	}

	if err := active.stopCapture(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	if active.upload.State() == domain.SessionStateConnecting {
		// nothing was sent yet, so there is nothing to wait for
		active.upload.StopUploaderPrepareThread()
	}
	<-active.audioDone

	if active.upload.IsUploadPrepared() {
		if err := active.upload.Stop(); err == nil {
			if !waitForClose(ctx, active.bridge.closed, c.cfg.StopGrace) {
				c.log.Warn("service did not close the session within the stop grace")
			}
		}
	}

	_ = active.upload.Close()
	c.finishSession(active)

	return c.finalizer.Finalize(active.bridge)
}

// Abort cancels and discards an active session without a transcript.
func (c *SessionController) Abort() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}

	c.stopSession(active)
	c.finishSession(active)
	return nil
}

// Status returns the current session state.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	state := c.current.upload.State()
	return domain.Status{State: state, Active: !state.IsTerminal()}
}

// CaptureDone is closed once the current session has stopped taking audio,
// either because capture ended or the session left the open state. It is
// already closed when no session is active.
func (c *SessionController) CaptureDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.current.audioDone
}

func (c *SessionController) getCurrent() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}

func (c *SessionController) stopSession(active *activeSession) {
	active.cancel()
	active.upload.StopUploaderPrepareThread()
	_ = active.stopCapture()
	<-active.audioDone
	_ = active.upload.Close()
}

func (c *SessionController) finishSession(active *activeSession) {
	active.cancel()
	active.bridge.emit(active.upload.State())

	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()
}
