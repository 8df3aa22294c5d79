package usecase

import (
	"sort"
	"strings"
	"sync"

	"speechstream/internal/domain"
)

// transcriptAggregator keeps the latest text per result index. The service
// may resend a result several times before marking it final.
type transcriptAggregator struct {
	mu           sync.Mutex
	finals       map[int]string
	pending      string
	pendingIndex int
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{finals: make(map[int]string)}
}

func (a *transcriptAggregator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	if event.Kind == domain.TranscriptKindFinal {
		a.finals[event.ResultIndex] = text
		if a.pendingIndex == event.ResultIndex {
			a.pending = ""
		}
		return
	}
	a.pending = text
	a.pendingIndex = event.ResultIndex
}

// Raw joins final results in index order. An interim result that never
// became final is appended so audio spoken right before stop is not lost.
func (a *transcriptAggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	indexes := make([]int, 0, len(a.finals))
	for idx := range a.finals {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	parts := make([]string, 0, len(indexes)+1)
	for _, idx := range indexes {
		parts = append(parts, a.finals[idx])
	}
	if a.pending != "" {
		if _, done := a.finals[a.pendingIndex]; !done {
			parts = append(parts, a.pending)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
