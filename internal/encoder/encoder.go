// Package encoder turns captured 16-bit PCM into the payload announced by the
// session's content type.
package encoder

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	errNotBound          = errors.New("encoder is not bound to an uploader")
)

// Options configure the compressed encoder; the raw encoder ignores them.
type Options struct {
	SampleRate int
	Channels   int
	Bitrate    int
	Logger     *logrus.Entry
}

// New selects the encoder variant for format.
func New(format domain.AudioFormat, opts Options) (ports.Encoder, error) {
	switch format.Kind() {
	case domain.EncoderKindRaw:
		return NewRaw(), nil
	case domain.EncoderKindCompressed:
		return NewOggOpus(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
