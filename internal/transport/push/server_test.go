package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformtesting "feelink-client-go/internal/platform/testing"
)

type handlerRecorder struct {
	bodies []string
	err    error
}

func (h *handlerRecorder) HandleRaw(ctx context.Context, raw []byte) error {
	h.bodies = append(h.bodies, string(raw))
	return h.err
}

func newTestServer(t *testing.T, handler *handlerRecorder) *Server {
	t.Helper()

	server, err := NewServer(Config{
		IP:      "127.0.0.1",
		Port:    0,
		Handler: handler,
		Logger:  platformtesting.SetupTestLogger(t),
	})
	require.NoError(t, err)
	return server
}

func TestNotifyForwardsBodyToHandler(t *testing.T) {
	handler := &handlerRecorder{}
	server := newTestServer(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/notify",
		strings.NewReader(`{"conversation_id":"abc12345"}`))
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, handler.bodies, 1)
	assert.Contains(t, handler.bodies[0], "abc12345")
}

func TestNotifyRejectsEmptyBody(t *testing.T) {
	handler := &handlerRecorder{}
	server := newTestServer(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(""))
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, handler.bodies)
}

func TestNotifyReportsHandlerFailure(t *testing.T) {
	handler := &handlerRecorder{err: errors.New("bad payload")}
	server := newTestServer(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, &handlerRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(Config{Logger: platformtesting.SetupTestLogger(t)})
	require.Error(t, err)
}
