package encoder

import (
	"sync"

	"speechstream/internal/ports"
)

// Raw forwards PCM unchanged.
type Raw struct {
	mu       sync.RWMutex
	uploader ports.Uploader
}

func NewRaw() *Raw {
	return &Raw{}
}

func (r *Raw) Bind(uploader ports.Uploader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploader = uploader
}

// EncodeAndWrite uploads pcm as one binary frame. Empty buffers are skipped
// so they are never mistaken for the end of audio marker.
func (r *Raw) EncodeAndWrite(pcm []byte) (int, error) {
	if len(pcm) == 0 {
		return 0, nil
	}
	r.mu.RLock()
	uploader := r.uploader
	r.mu.RUnlock()
	if uploader == nil {
		return 0, errNotBound
	}
	if err := uploader.UploadBytes(pcm); err != nil {
		return 0, err
	}
	return len(pcm), nil
}

func (r *Raw) OnStart() error { return nil }

func (r *Raw) Close() error { return nil }
