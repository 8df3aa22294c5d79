package encoder

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"

	"speechstream/internal/encoder/ogg"
	"speechstream/internal/ports"
)

const (
	frameDuration   = 20 // ms
	maxOpusPacket   = 4000
	defaultRate     = 16000
	defaultChannels = 1
	bytesPerSample  = 2
	granulePerFrame = ogg.GranuleRate * frameDuration / 1000
)

// OggOpus encodes 20ms PCM frames with Opus and ships one Ogg page per packet.
type OggOpus struct {
	mu sync.Mutex

	uploader ports.Uploader
	enc      *opus.Encoder
	stream   *ogg.Stream
	log      *logrus.Entry

	channels     int
	frameSamples int
	pending      []byte
	packet       []byte
	samples      []int16

	started bool
	closed  bool
}

func NewOggOpus(opts Options) (*OggOpus, error) {
	rate := opts.SampleRate
	if rate <= 0 {
		rate = defaultRate
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = defaultChannels
	}

	enc, err := opus.NewEncoder(rate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if opts.Bitrate > 0 {
		if err := enc.SetBitrate(opts.Bitrate); err != nil {
			return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
		}
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	frameSamples := rate * frameDuration / 1000
	return &OggOpus{
		enc:          enc,
		stream:       ogg.NewStream(ogg.RandomSerial(), rate, channels),
		log:          log.WithField("encoder", "ogg_opus"),
		channels:     channels,
		frameSamples: frameSamples,
		packet:       make([]byte, maxOpusPacket),
		samples:      make([]int16, frameSamples*channels),
	}, nil
}

func (o *OggOpus) Bind(uploader ports.Uploader) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uploader = uploader
}

// OnStart emits the OpusHead and OpusTags pages.
func (o *OggOpus) OnStart() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startLocked()
}

func (o *OggOpus) startLocked() error {
	if o.started {
		return nil
	}
	if o.uploader == nil {
		return errNotBound
	}
	o.started = true
	for _, page := range o.stream.Headers() {
		if err := o.uploader.UploadBytes(page); err != nil {
			return err
		}
	}
	return nil
}

// EncodeAndWrite encodes every complete frame in pcm and returns the number
// of bytes uploaded. A trailing partial frame waits for the next call.
func (o *OggOpus) EncodeAndWrite(pcm []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0, fmt.Errorf("ogg opus encoder is closed")
	}
	if err := o.startLocked(); err != nil {
		return 0, err
	}

	o.pending = append(o.pending, pcm...)
	frameBytes := o.frameSamples * o.channels * bytesPerSample

	written := 0
	for len(o.pending) >= frameBytes {
		for i := range o.samples {
			o.samples[i] = int16(binary.LittleEndian.Uint16(o.pending[i*bytesPerSample:]))
		}
		o.pending = o.pending[frameBytes:]

		n, err := o.enc.Encode(o.samples, o.packet)
		if err != nil {
			return written, fmt.Errorf("opus encode failed: %w", err)
		}
		page, err := o.stream.Packet(o.packet[:n], granulePerFrame)
		if err != nil {
			return written, err
		}
		if err := o.uploader.UploadBytes(page); err != nil {
			return written, err
		}
		written += len(page)
	}

	if len(o.pending) == 0 {
		o.pending = nil
	} else {
		o.pending = append([]byte(nil), o.pending...)
	}
	return written, nil
}

// Close releases the encoder. The socket is already past the stop marker by
// now, so no end-of-stream page is written.
func (o *OggOpus) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	if len(o.pending) > 0 {
		o.log.WithField("bytes", len(o.pending)).Debug("dropping partial frame at end of stream")
	}
	o.pending = nil
	return nil
}
