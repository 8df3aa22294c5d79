package ports

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"

	"speechstream/internal/domain"
)

// ErrNotConnected is returned by transports asked to send before the socket is open.
var ErrNotConnected = errors.New("transport is not connected")

// TransportHandler receives connection callbacks from the transport's own goroutine.
type TransportHandler interface {
	OnOpen()
	OnMessage(text string)
	OnClose(code int, reason string, remote bool)
	OnError(err error)
}

// ConnectOptions describes a single connection attempt.
type ConnectOptions struct {
	URL       string
	Header    http.Header
	TLSConfig *tls.Config
	Handler   TransportHandler
}

// Transport owns one socket for the lifetime of a session.
type Transport interface {
	// Connect performs one blocking handshake. It calls Handler.OnOpen before returning nil.
	Connect(ctx context.Context, opts ConnectOptions) error
	SendText(text string) error
	SendBinary(data []byte) error
	Close() error
}

// Uploader is the sink an encoder writes its output to.
type Uploader interface {
	UploadBytes(data []byte) error
}

// Encoder turns captured PCM into the on-wire payload.
type Encoder interface {
	Bind(uploader Uploader)
	EncodeAndWrite(pcm []byte) (int, error)
	OnStart() error
	Close() error
}

// Delegate receives lifecycle and transcript events for one session.
type Delegate interface {
	OnOpen()
	OnMessage(text string)
	OnError(message string)
	OnClose(code int, reason string, remote bool)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// UploadSession is what the controller drives for one utterance stream.
type UploadSession interface {
	ID() string
	SetDelegate(d Delegate)
	Prepare() error
	StopUploaderPrepareThread()
	OnHasData(ctx context.Context, pcm []byte) domain.UploadResult
	Stop() error
	Close() error
	State() domain.SessionState
	IsUploadPrepared() bool
}

// EventSink emits controller state and transcripts to the application.
type EventSink interface {
	SessionStateChanged(state domain.SessionState)
	PartialTranscript(text string)
	FinalTranscript(text string)
	SessionError(code domain.ErrorCode, detail string)
}
