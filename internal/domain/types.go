package domain

import "strings"

// SessionState models the streaming upload lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateOpen       SessionState = "open"
	SessionStateClosed     SessionState = "closed"
	SessionStateFailed     SessionState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateClosed || s == SessionStateFailed
}

// AudioFormat is the content type announced to the recognition service.
type AudioFormat string

const (
	AudioFormatL16     AudioFormat = "audio/l16;rate=16000"
	AudioFormatOggOpus AudioFormat = "audio/ogg;codecs=opus"
)

// EncoderKind identifies the encoder variant a format maps to.
type EncoderKind string

const (
	EncoderKindRaw        EncoderKind = "raw"
	EncoderKindCompressed EncoderKind = "compressed"
	EncoderKindUnknown    EncoderKind = "unknown"
)

// Kind maps the format to an encoder variant.
func (f AudioFormat) Kind() EncoderKind {
	normalized := strings.ToLower(strings.ReplaceAll(string(f), " ", ""))
	switch {
	case strings.HasPrefix(normalized, "audio/l16"):
		return EncoderKindRaw
	case normalized == string(AudioFormatOggOpus):
		return EncoderKindCompressed
	default:
		return EncoderKindUnknown
	}
}

// CloseInfo is the close payload passed through from the transport.
type CloseInfo struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
	Remote bool   `json:"remote"`
}

// UploadStatus tells the producer what happened to a chunk.
type UploadStatus string

const (
	UploadDelivered UploadStatus = "delivered"
	UploadNotReady  UploadStatus = "not_ready"
	UploadCancelled UploadStatus = "cancelled"
)

// UploadResult is returned for every chunk handed to the uploader.
type UploadResult struct {
	Status UploadStatus
	Bytes  int
}

func Delivered(n int) UploadResult { return UploadResult{Status: UploadDelivered, Bytes: n} }
func NotReady() UploadResult       { return UploadResult{Status: UploadNotReady} }
func Cancelled() UploadResult      { return UploadResult{Status: UploadCancelled} }

// ErrorCode identifies errors surfaced to the application sink.
type ErrorCode string

const (
	ErrorCodeConnect     ErrorCode = "connect"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeAudioStream ErrorCode = "audio_stream"
	ErrorCodeAudioStop   ErrorCode = "audio_stop"
	ErrorCodeEncoder     ErrorCode = "encoder"
)

// TranscriptKind identifies whether a result is interim or final.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is a parsed recognition result.
type TranscriptEvent struct {
	Kind        TranscriptKind `json:"kind"`
	Text        string         `json:"text"`
	ResultIndex int            `json:"resultIndex"`
}

// StopResult is returned once streaming has been stopped.
type StopResult struct {
	Transcript string    `json:"transcript"`
	Close      CloseInfo `json:"close"`
}

// Status summarizes the controller's runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}
