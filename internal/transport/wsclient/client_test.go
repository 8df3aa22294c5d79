package wsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechstream/internal/ports"
)

type serverFrame struct {
	kind int
	data []byte
}

// newTestServer upgrades every request and hands the socket to fn.
func newTestServer(t *testing.T, fn func(ws *websocket.Conn, r *http.Request)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		fn(ws, r)
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnectOpensAndForwardsMessages(t *testing.T) {
	t.Parallel()

	_, url := newTestServer(t, func(ws *websocket.Conn, _ *http.Request) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"state":"listening"}`))
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1000, "done"))
		_, _, _ = ws.ReadMessage()
	})

	handler := newRecordingHandler()
	client := New(WithCloseGrace(100 * time.Millisecond))
	require.NoError(t, client.Connect(context.Background(), ports.ConnectOptions{URL: url, Handler: handler}))

	select {
	case <-handler.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected close callback")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, 1, handler.opens)
	assert.Equal(t, []string{`{"state":"listening"}`}, handler.messages)
	assert.Equal(t, 1000, handler.closeCode)
	assert.Equal(t, "done", handler.closeReason)
	assert.True(t, handler.closeRemote)
	assert.Empty(t, handler.errors)
}

func TestConnectSendsHeaders(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	_, url := newTestServer(t, func(ws *websocket.Conn, r *http.Request) {
		got <- r.Header.Get("X-Watson-Authorization-Token")
		_, _, _ = ws.ReadMessage()
	})

	client := New(WithCloseGrace(100 * time.Millisecond))
	header := http.Header{}
	header.Set("X-Watson-Authorization-Token", "tok")
	require.NoError(t, client.Connect(context.Background(), ports.ConnectOptions{URL: url, Header: header}))
	defer client.Close()

	select {
	case token := <-got:
		assert.Equal(t, "tok", token)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the request")
	}
}

func TestSendBeforeConnectIsRejected(t *testing.T) {
	t.Parallel()

	client := New()
	assert.ErrorIs(t, client.SendText("hello"), ports.ErrNotConnected)
	assert.ErrorIs(t, client.SendBinary([]byte{1}), ports.ErrNotConnected)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestFramesArriveInOrderIncludingEmptyBinary(t *testing.T) {
	t.Parallel()

	frames := make(chan serverFrame, 8)
	_, url := newTestServer(t, func(ws *websocket.Conn, _ *http.Request) {
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			frames <- serverFrame{kind: kind, data: data}
		}
	})

	client := New(WithCloseGrace(200 * time.Millisecond))
	require.NoError(t, client.Connect(context.Background(), ports.ConnectOptions{URL: url}))
	require.NoError(t, client.SendText(`{"action":"start"}`))
	require.NoError(t, client.SendBinary([]byte{9, 9}))
	require.NoError(t, client.SendBinary([]byte{}))
	require.NoError(t, client.Close())

	var got []serverFrame
	for f := range frames {
		got = append(got, f)
	}
	require.Len(t, got, 3)
	assert.Equal(t, websocket.TextMessage, got[0].kind)
	assert.Equal(t, websocket.BinaryMessage, got[1].kind)
	assert.Equal(t, websocket.BinaryMessage, got[2].kind)
	assert.Empty(t, got[2].data)

	assert.ErrorIs(t, client.SendBinary([]byte{1}), ports.ErrNotConnected)
}

func TestLocalCloseIsReportedAsNotRemote(t *testing.T) {
	t.Parallel()

	_, url := newTestServer(t, func(ws *websocket.Conn, _ *http.Request) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	handler := newRecordingHandler()
	client := New(WithCloseGrace(500 * time.Millisecond))
	require.NoError(t, client.Connect(context.Background(), ports.ConnectOptions{URL: url, Handler: handler}))
	require.NoError(t, client.Close())

	select {
	case <-handler.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected close callback")
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.False(t, handler.closeRemote)
	assert.Equal(t, websocket.CloseNormalClosure, handler.closeCode)
}

func TestConnectFailureReturnsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	handler := newRecordingHandler()
	client := New()
	err := client.Connect(context.Background(), ports.ConnectOptions{
		URL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		Handler: handler,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Zero(t, handler.opens)

	err = client.Connect(context.Background(), ports.ConnectOptions{URL: "ws://127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnectHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New()
	err := client.Connect(ctx, ports.ConnectOptions{URL: "ws://127.0.0.1:1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "connect"))
}

type recordingHandler struct {
	mu          sync.Mutex
	opens       int
	messages    []string
	errors      []error
	closeCode   int
	closeReason string
	closeRemote bool
	closed      chan struct{}
	closeOnce   sync.Once
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{})}
}

func (h *recordingHandler) OnOpen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
}

func (h *recordingHandler) OnMessage(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, text)
}

func (h *recordingHandler) OnClose(code int, reason string, remote bool) {
	h.mu.Lock()
	h.closeCode = code
	h.closeReason = reason
	h.closeRemote = remote
	h.mu.Unlock()
	h.closeOnce.Do(func() { close(h.closed) })
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}
