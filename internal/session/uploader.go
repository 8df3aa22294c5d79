package session

import (
	"context"
	"errors"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

// SetDelegate replaces the delegate. A nil delegate silences notifications.
func (s *Session) SetDelegate(d ports.Delegate) {
	s.delegateMu.Lock()
	defer s.delegateMu.Unlock()
	s.delegate = d
}

// OnHasData forwards one captured chunk through the encoder.
//
// While the connection is being established the call blocks until the
// connect task finishes, then delivers the chunk if the session opened. A
// cancelled wait returns a cancelled result with zero bytes. Idle and
// terminal sessions return not ready without blocking.
func (s *Session) OnHasData(ctx context.Context, pcm []byte) domain.UploadResult {
	switch s.State() {
	case domain.SessionStateOpen:
		return s.deliver(pcm)
	case domain.SessionStateConnecting:
		s.log.Warn("waiting for connection to be established")
		select {
		case <-s.prepared:
		case <-ctx.Done():
			return domain.Cancelled()
		case <-s.ctx.Done():
			return domain.Cancelled()
		}
		return s.deliver(pcm)
	default:
		return domain.NotReady()
	}
}

func (s *Session) deliver(pcm []byte) domain.UploadResult {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.State() != domain.SessionStateOpen {
		return domain.NotReady()
	}
	n, err := s.encoder.EncodeAndWrite(pcm)
	if err != nil {
		s.log.WithError(err).Warn("failed to encode and write audio")
		return domain.Delivered(0)
	}
	return domain.Delivered(n)
}

// Upload writes a text frame. A send before the socket is open is logged and
// returned as ports.ErrNotConnected.
func (s *Session) Upload(message string) error {
	if err := s.transport.SendText(message); err != nil {
		s.logSendErr(err, "text")
		return err
	}
	return nil
}

// UploadBytes writes a binary frame. It is the sink encoders write to.
func (s *Session) UploadBytes(data []byte) error {
	if err := s.transport.SendBinary(data); err != nil {
		s.logSendErr(err, "binary")
		return err
	}
	return nil
}

// Stop sends the zero-length binary frame that marks the end of audio.
func (s *Session) Stop() error {
	s.log.Info("sending end of audio marker")
	return s.UploadBytes([]byte{})
}

func (s *Session) logSendErr(err error, kind string) {
	entry := s.log.WithError(err).WithField("frame", kind)
	if errors.Is(err, ports.ErrNotConnected) {
		entry.Warn("dropping frame, websocket not connected")
		return
	}
	entry.Error("failed to send frame")
}
