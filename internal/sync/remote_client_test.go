package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/models"
)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

func captureServer(t *testing.T, status int, reply string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	ch := make(chan capturedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- capturedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: string(body)}
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestDispatch_routes(t *testing.T) {
	tests := []struct {
		typ    models.EventType
		method string
		path   string
	}{
		{models.EventTypeDhikrTap, http.MethodPost, "/api/v1/counter/tap"},
		{models.EventTypeGoalUpdate, http.MethodPost, "/api/v1/goals"},
		{models.EventTypePrayerDebtUpdate, http.MethodPatch, "/api/prayer-debt/progress"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			srv, reqs := captureServer(t, http.StatusOK, "")
			payload := `{"count": 33,  "note":"spacing kept"}`
			ev := &models.OfflineEvent{ID: "evt-1", Type: tt.typ, Payload: json.RawMessage(payload)}

			require.NoError(t, NewRemoteClient(srv.URL+"/").Dispatch(context.Background(), ev))

			got := <-reqs
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, payload, got.Body, "payload is sent byte for byte")
			assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
			assert.Equal(t, "evt-1", got.Header.Get(OfflineEventIDHeader))
		})
	}
}

func TestDispatch_anyTwoHundredIsSuccess(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent} {
		srv, _ := captureServer(t, status, "")
		ev := &models.OfflineEvent{ID: "x", Type: models.EventTypeDhikrTap, Payload: json.RawMessage(`{}`)}
		assert.NoError(t, NewRemoteClient(srv.URL).Dispatch(context.Background(), ev), "status %d", status)
	}
}

func TestDispatch_nonSuccessStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusUnprocessableEntity, `{"error":"bad goal"}`)
	ev := &models.OfflineEvent{ID: "x", Type: models.EventTypeGoalUpdate, Payload: json.RawMessage(`{}`)}

	err := NewRemoteClient(srv.URL).Dispatch(context.Background(), ev)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDispatch))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	assert.Equal(t, `{"error":"bad goal"}`, se.Body)
}

func TestDispatch_unroutable(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, "")
	ev := &models.OfflineEvent{ID: "x", Type: "sync_settings", Payload: json.RawMessage(`{}`)}

	err := NewRemoteClient(srv.URL).Dispatch(context.Background(), ev)

	assert.True(t, apperrors.Is(err, apperrors.ErrUnroutableEvent))
	assert.Empty(t, reqs)
}

func TestDispatch_notConfigured(t *testing.T) {
	ev := &models.OfflineEvent{ID: "x", Type: models.EventTypeDhikrTap, Payload: json.RawMessage(`{}`)}
	err := NewRemoteClient("").Dispatch(context.Background(), ev)
	assert.True(t, apperrors.Is(err, apperrors.ErrSyncNotConfigured))
}

func TestDispatch_transportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ev := &models.OfflineEvent{ID: "x", Type: models.EventTypeDhikrTap, Payload: json.RawMessage(`{}`)}
	err := NewRemoteClient(url).Dispatch(context.Background(), ev)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDispatch, apperrors.CodeOf(err))
}

func TestDispatch_contextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ev := &models.OfflineEvent{ID: "x", Type: models.EventTypeDhikrTap, Payload: json.RawMessage(`{}`)}
	err := NewRemoteClient(srv.URL).Dispatch(ctx, ev)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithRoutes(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, "")
	c := NewRemoteClient(srv.URL, WithRoutes(map[models.EventType]Route{
		"custom": {Method: http.MethodPut, Path: "/custom"},
	}), WithHTTPClient(&http.Client{Timeout: time.Second}))

	ev := &models.OfflineEvent{ID: "x", Type: "custom", Payload: json.RawMessage(`{}`)}
	require.NoError(t, c.Dispatch(context.Background(), ev))

	got := <-reqs
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/custom", got.Path)

	ev.Type = models.EventTypeDhikrTap
	assert.True(t, apperrors.Is(c.Dispatch(context.Background(), ev), apperrors.ErrUnroutableEvent))
}

func TestStatusError_Error(t *testing.T) {
	assert.Equal(t, "remote returned 500", (&StatusError{StatusCode: 500}).Error())
	assert.Equal(t, "remote returned 502: upstream", (&StatusError{StatusCode: 502, Body: "upstream"}).Error())
}
