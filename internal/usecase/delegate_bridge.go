package usecase

import (
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"speechstream/internal/domain"
	"speechstream/internal/ports"
)

// recognitionMessage is the subset of the service's JSON messages we act on.
type recognitionMessage struct {
	State       string              `json:"state"`
	Error       string              `json:"error"`
	ResultIndex int                 `json:"result_index"`
	Results     []recognitionResult `json:"results"`
}

type recognitionResult struct {
	Final        bool `json:"final"`
	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
}

// parseRecognitionMessage turns one inbound message into transcript events.
// The first alternative of each result is used.
func parseRecognitionMessage(text string) (recognitionMessage, []domain.TranscriptEvent, error) {
	var msg recognitionMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return msg, nil, err
	}

	events := make([]domain.TranscriptEvent, 0, len(msg.Results))
	for i, result := range msg.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		kind := domain.TranscriptKindPartial
		if result.Final {
			kind = domain.TranscriptKindFinal
		}
		events = append(events, domain.TranscriptEvent{
			Kind:        kind,
			Text:        strings.TrimSpace(result.Alternatives[0].Transcript),
			ResultIndex: msg.ResultIndex + i,
		})
	}
	return msg, events, nil
}

// delegateBridge receives session callbacks and feeds the application sink.
type delegateBridge struct {
	events     ports.EventSink
	aggregator *transcriptAggregator
	log        *logrus.Entry

	mu      sync.Mutex
	opened  bool
	last    domain.SessionState
	lastErr string
	close   domain.CloseInfo

	closed    chan struct{}
	closeOnce sync.Once
}

var _ ports.Delegate = (*delegateBridge)(nil)

func newDelegateBridge(events ports.EventSink, log *logrus.Entry) *delegateBridge {
	return &delegateBridge{
		events:     events,
		aggregator: newTranscriptAggregator(),
		log:        log,
		closed:     make(chan struct{}),
	}
}

func (b *delegateBridge) OnOpen() {
	b.mu.Lock()
	b.opened = true
	b.mu.Unlock()
	b.emit(domain.SessionStateOpen)
}

func (b *delegateBridge) OnMessage(text string) {
	msg, events, err := parseRecognitionMessage(text)
	if err != nil {
		b.log.WithError(err).Warn("ignoring unparseable message")
		return
	}
	if msg.Error != "" {
		b.recordError(msg.Error)
		b.events.SessionError(domain.ErrorCodeTransport, msg.Error)
		return
	}
	if msg.State != "" {
		b.log.WithField("state", msg.State).Debug("service state")
	}

	for _, event := range events {
		if event.Text == "" {
			continue
		}
		b.aggregator.Add(event)
		b.events.PartialTranscript(event.Text)
	}
}

func (b *delegateBridge) OnError(message string) {
	b.mu.Lock()
	opened := b.opened
	b.mu.Unlock()

	b.recordError(message)
	code := domain.ErrorCodeTransport
	if !opened {
		code = domain.ErrorCodeConnect
	}
	b.events.SessionError(code, message)
	b.emit(domain.SessionStateFailed)
}

func (b *delegateBridge) OnClose(code int, reason string, remote bool) {
	b.mu.Lock()
	b.close = domain.CloseInfo{Code: code, Reason: reason, Remote: remote}
	b.mu.Unlock()

	b.closeOnce.Do(func() { close(b.closed) })
	b.emit(domain.SessionStateClosed)
}

// emit forwards a state change once, and never after a terminal state.
func (b *delegateBridge) emit(state domain.SessionState) {
	b.mu.Lock()
	if b.last == state || b.last.IsTerminal() {
		b.mu.Unlock()
		return
	}
	b.last = state
	b.mu.Unlock()
	b.events.SessionStateChanged(state)
}

func (b *delegateBridge) recordError(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErr = message
}

func (b *delegateBridge) closeInfo() domain.CloseInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.close
}

func (b *delegateBridge) failure() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
