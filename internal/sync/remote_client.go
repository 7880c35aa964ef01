package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/models"
)

// OfflineEventIDHeader carries the event id so the server can drop replays.
const OfflineEventIDHeader = "X-Offline-Event-Id"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// Route is the remote endpoint an event type is delivered to.
type Route struct {
	Method string
	Path   string
}

// DefaultRoutes maps each event type to its remote endpoint.
var DefaultRoutes = map[models.EventType]Route{
	models.EventTypeDhikrTap:         {Method: http.MethodPost, Path: "/api/v1/counter/tap"},
	models.EventTypeGoalUpdate:       {Method: http.MethodPost, Path: "/api/v1/goals"},
	models.EventTypePrayerDebtUpdate: {Method: http.MethodPatch, Path: "/api/prayer-debt/progress"},
}

// StatusError is a non-2xx response from the remote service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned %d: %s", e.StatusCode, e.Body)
}

// RemoteOption configures a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithRoutes replaces the route table.
func WithRoutes(routes map[models.EventType]Route) RemoteOption {
	return func(c *RemoteClient) { c.routes = routes }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(c *RemoteClient) { c.httpClient = client }
}

// RemoteClient delivers offline events to the NamazPro24 API over HTTP.
type RemoteClient struct {
	baseURL    string
	routes     map[models.EventType]Route
	httpClient *http.Client
}

// NewRemoteClient creates a RemoteClient for baseURL.
func NewRemoteClient(baseURL string, opts ...RemoteOption) *RemoteClient {
	c := &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		routes:  DefaultRoutes,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch sends the event payload, unmodified, to the endpoint for its type.
// Any 2xx response is success.
func (c *RemoteClient) Dispatch(ctx context.Context, event *models.OfflineEvent) error {
	if c.baseURL == "" {
		return apperrors.New(apperrors.ErrSyncNotConfigured, "remote base URL is not configured")
	}

	route, ok := c.routes[event.Type]
	if !ok {
		return apperrors.New(apperrors.ErrUnroutableEvent, fmt.Sprintf("no route for event type %q", event.Type))
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, c.baseURL+route.Path, bytes.NewReader(event.Payload))
	if err != nil {
		return apperrors.DispatchError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OfflineEventIDHeader, event.ID.String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.DispatchError(fmt.Sprintf("%s %s", route.Method, route.Path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.DispatchError(
			fmt.Sprintf("%s %s", route.Method, route.Path),
			&StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))},
		)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
