package usecase

import (
	"speechstream/internal/ports"
)

type activeSession struct {
	cancel func()
	audio  ports.AudioSession
	upload ports.UploadSession
	bridge *delegateBridge

	audioDone chan struct{}
}

func (s *activeSession) stopCapture() error {
	return s.audio.Stop()
}
