// Package session implements one streaming upload session: a single websocket
// connection that carries a start header, encoded audio frames and a stop
// marker to the recognition service, and relays inbound messages to a delegate.
//
// A Session moves through idle -> connecting -> open -> closed, with failed
// reachable from connecting or open. Closed and failed are terminal; sessions
// are not reusable.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"speechstream/internal/domain"
	"speechstream/internal/encoder"
	"speechstream/internal/ports"
)

var (
	ErrAlreadyPrepared = errors.New("session has already been prepared")
	ErrSessionClosed   = errors.New("session is closed")
)

var _ ports.UploadSession = (*Session)(nil)

// Config is fixed for the lifetime of a session.
type Config struct {
	ServerURL          string
	Headers            map[string]string
	AudioFormat        domain.AudioFormat
	InactivityTimeout  int
	InsecureSkipVerify bool
	SampleRate         int
	Channels           int
	OpusBitrate        int
}

// EncoderFactory builds the encoder for a session's audio format.
type EncoderFactory func(format domain.AudioFormat, opts encoder.Options) (ports.Encoder, error)

type Option func(*Session)

func WithLogger(log *logrus.Entry) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

func WithEncoderFactory(factory EncoderFactory) Option {
	return func(s *Session) {
		if factory != nil {
			s.newEncoder = factory
		}
	}
}

func WithID(id string) Option {
	return func(s *Session) {
		if strings.TrimSpace(id) != "" {
			s.id = id
		}
	}
}

// Session owns one transport and one encoder.
type Session struct {
	id         string
	cfg        Config
	secure     bool
	transport  ports.Transport
	encoder    ports.Encoder
	newEncoder EncoderFactory
	log        *logrus.Entry

	state atomic.String

	delegateMu sync.RWMutex
	delegate   ports.Delegate

	// sendMu serialises audio delivery with the transition to open, so no
	// audio frame can be written before the start header.
	sendMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	prepared chan struct{}

	releaseOnce sync.Once
	closeOnce   sync.Once
}

// New validates cfg and selects the encoder for cfg.AudioFormat.
func New(cfg Config, transport ports.Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	secure, err := isSecureURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		secure:     secure,
		transport:  transport,
		newEncoder: encoder.New,
		log:        logrus.NewEntry(logrus.StandardLogger()),
		prepared:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logrus.Fields{"component": "session", "session_id": s.id})
	s.state.Store(string(domain.SessionStateIdle))

	enc, err := s.newEncoder(cfg.AudioFormat, encoder.Options{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Bitrate:    cfg.OpusBitrate,
		Logger:     s.log,
	})
	if err != nil {
		return nil, err
	}
	s.encoder = enc
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.log.WithFields(logrus.Fields{
		"url":    cfg.ServerURL,
		"format": cfg.AudioFormat,
		"secure": secure,
	}).Info("new streaming session")
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Secure reports whether the server URL uses wss or https.
func (s *Session) Secure() bool { return s.secure }

func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

// IsUploadPrepared reports whether audio is currently forwarded.
func (s *Session) IsUploadPrepared() bool {
	return s.State() == domain.SessionStateOpen
}

// Prepare starts the connection attempt in the background and returns at once.
func (s *Session) Prepare() error {
	if !s.state.CompareAndSwap(string(domain.SessionStateIdle), string(domain.SessionStateConnecting)) {
		if s.State().IsTerminal() {
			return ErrSessionClosed
		}
		return ErrAlreadyPrepared
	}
	s.log.Debug("session state changed to connecting")
	go s.connect()
	return nil
}

// StopUploaderPrepareThread cancels an in-flight connection attempt. It has no
// effect once the session is open.
func (s *Session) StopUploaderPrepareThread() {
	s.cancel()
}

// Close tears the connection down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.log.Info("closing the websocket")
		if s.State() == domain.SessionStateConnecting {
			s.cancel()
		}
		err = s.transport.Close()
		s.terminate(domain.SessionStateClosed)
	})
	return err
}

func (s *Session) connect() {
	defer close(s.prepared)

	s.log.Info("connecting")
	s.encoder.Bind(s)

	opts := ports.ConnectOptions{
		URL:     s.cfg.ServerURL,
		Header:  s.header(),
		Handler: transportEvents{s: s},
	}
	if s.secure {
		opts.TLSConfig = s.trustPolicy()
	}

	err := s.transport.Connect(s.ctx, opts)
	if err == nil {
		s.open()
	}
	if s.State() == domain.SessionStateOpen {
		s.log.Info("connection established")
		return
	}

	if s.ctx.Err() != nil {
		s.log.Info("connection attempt cancelled")
		s.terminate(domain.SessionStateClosed)
		_ = s.transport.Close()
		return
	}

	if err == nil {
		err = errors.New("connection closed during handshake")
	}
	s.log.WithError(err).Error("connection failed")
	failed := s.terminate(domain.SessionStateFailed)
	_ = s.transport.Close()
	if failed {
		s.notifyError(fmt.Sprintf("connection failed: %v", err))
	}
}

// open is reached from the transport's open callback and from the connect
// task; only the first caller wins.
func (s *Session) open() {
	s.sendMu.Lock()
	if s.ctx.Err() != nil ||
		!s.state.CompareAndSwap(string(domain.SessionStateConnecting), string(domain.SessionStateOpen)) {
		s.sendMu.Unlock()
		return
	}
	s.log.Info("websocket connection opened")
	s.sendStartHeader()
	s.sendMu.Unlock()

	if d := s.currentDelegate(); d != nil {
		d.OnOpen()
	}
}

// terminate moves to a terminal state and releases the encoder. It reports
// whether this call performed the transition.
func (s *Session) terminate(to domain.SessionState) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	changed := s.transition(to)
	s.releaseOnce.Do(func() {
		if err := s.encoder.Close(); err != nil {
			s.log.WithError(err).Debug("encoder close failed")
		}
	})
	return changed
}

func (s *Session) transition(to domain.SessionState) bool {
	for {
		from := s.State()
		if from == to || from.IsTerminal() {
			return false
		}
		if s.state.CompareAndSwap(string(from), string(to)) {
			s.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("session state changed")
			return true
		}
	}
}

func (s *Session) header() http.Header {
	if len(s.cfg.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(s.cfg.Headers))
	for k, v := range s.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (s *Session) currentDelegate() ports.Delegate {
	s.delegateMu.RLock()
	defer s.delegateMu.RUnlock()
	return s.delegate
}

func (s *Session) notifyError(message string) {
	if d := s.currentDelegate(); d != nil {
		d.OnError(message)
	}
}

func isSecureURL(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, errors.New("server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("invalid server URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "wss", "https":
		return true, nil
	case "ws", "http":
		return false, nil
	default:
		return false, fmt.Errorf("invalid server URL %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// transportEvents adapts transport callbacks onto the session.
type transportEvents struct {
	s *Session
}

func (e transportEvents) OnOpen() {
	e.s.open()
}

func (e transportEvents) OnMessage(text string) {
	e.s.log.WithField("bytes", len(text)).Debug("message received")
	if d := e.s.currentDelegate(); d != nil {
		d.OnMessage(text)
	}
}

func (e transportEvents) OnClose(code int, reason string, remote bool) {
	e.s.log.WithFields(logrus.Fields{
		"code":   code,
		"reason": reason,
		"remote": remote,
	}).Info("websocket closed")
	e.s.terminate(domain.SessionStateClosed)
	if d := e.s.currentDelegate(); d != nil {
		d.OnClose(code, reason, remote)
	}
}

func (e transportEvents) OnError(err error) {
	message := "unknown transport error"
	if err != nil {
		message = err.Error()
	}
	e.s.log.WithError(err).Warn("websocket error")
	e.s.terminate(domain.SessionStateFailed)
	e.s.notifyError(message)
}
