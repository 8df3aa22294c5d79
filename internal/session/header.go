package session

import (
	"crypto/tls"

	"github.com/goccy/go-json"

	"speechstream/internal/domain"
)

// startHeader field order is part of the wire format.
type startHeader struct {
	Action            string             `json:"action"`
	ContentType       domain.AudioFormat `json:"content-type"`
	InterimResults    bool               `json:"interim_results"`
	Continuous        bool               `json:"continuous"`
	InactivityTimeout int                `json:"inactivity_timeout"`
}

func buildStartHeader(cfg Config) ([]byte, error) {
	return json.Marshal(startHeader{
		Action:            "start",
		ContentType:       cfg.AudioFormat,
		InterimResults:    true,
		Continuous:        true,
		InactivityTimeout: cfg.InactivityTimeout,
	})
}

// sendStartHeader must run with sendMu held, right after the move to open.
func (s *Session) sendStartHeader() {
	header, err := buildStartHeader(s.cfg)
	if err != nil {
		s.log.WithError(err).Error("failed to encode start header")
		return
	}
	s.log.WithField("header", string(header)).Info("sending init message")
	if err := s.Upload(string(header)); err != nil {
		return
	}
	if err := s.encoder.OnStart(); err != nil {
		s.log.WithError(err).Warn("encoder start failed")
	}
}

// trustPolicy returns the TLS configuration used for secure URLs. Certificate
// verification is only disabled when InsecureSkipVerify is set.
func (s *Session) trustPolicy() *tls.Config {
	if s.cfg.InsecureSkipVerify {
		s.log.Warn("certificate verification disabled, any server certificate will be accepted")
		return &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}
