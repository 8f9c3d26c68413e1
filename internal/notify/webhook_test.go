package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/pkg/models"
)

type capturingServer struct {
	*httptest.Server

	mu       sync.Mutex
	payloads []Payload
}

func newCapturingServer(t *testing.T) *capturingServer {
	t.Helper()
	s := &capturingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		s.mu.Lock()
		s.payloads = append(s.payloads, p)
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *capturingServer) received() []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payload(nil), s.payloads...)
}

func TestNotifierRunCompleted(t *testing.T) {
	server := newCapturingServer(t)
	n := NewNotifier(models.Notify{WebhookURL: server.URL}, nil)
	require.NotNil(t, n)

	n.RunCompleted(context.Background(), "run-1", 3*time.Minute, map[string]string{"aggregate": "2m"})

	payloads := server.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, "completed", payloads[0].Event)
	assert.Equal(t, "run-1", payloads[0].RunID)
	assert.True(t, payloads[0].Success)
	assert.Equal(t, "3m0s", payloads[0].Duration)
	assert.Equal(t, "2m", payloads[0].Stages["aggregate"])
}

func TestNotifierRunFailed(t *testing.T) {
	server := newCapturingServer(t)
	n := NewNotifier(models.Notify{WebhookURL: server.URL}, nil)

	n.RunFailed(context.Background(), "run-2", assert.AnError, nil)

	payloads := server.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, "failed", payloads[0].Event)
	assert.False(t, payloads[0].Success)
	assert.NotEmpty(t, payloads[0].Error)
}

func TestNotifierEventFilter(t *testing.T) {
	server := newCapturingServer(t)
	n := NewNotifier(models.Notify{WebhookURL: server.URL, Events: []string{"failed"}}, nil)

	n.RunCompleted(context.Background(), "run-3", time.Minute, nil)
	assert.Empty(t, server.received())

	n.RunFailed(context.Background(), "run-3", assert.AnError, nil)
	assert.Len(t, server.received(), 1)
}

func TestNotifierUnconfigured(t *testing.T) {
	n := NewNotifier(models.Notify{}, nil)
	assert.Nil(t, n)

	// Nil notifier methods are safe no-ops
	n.RunCompleted(context.Background(), "run-4", time.Minute, nil)
	n.RunFailed(context.Background(), "run-4", assert.AnError, nil)
}

func TestNotifierDeliveryFailureIsSilent(t *testing.T) {
	// Unreachable endpoint: delivery fails without affecting the caller
	n := NewNotifier(models.Notify{WebhookURL: "http://127.0.0.1:1/hook"}, nil)
	n.RunCompleted(context.Background(), "run-5", time.Minute, nil)
}
