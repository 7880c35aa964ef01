package api

import (
	"bytes"

	"github.com/gin-gonic/gin"

	"github.com/ahmed11551/namazpro24/internal/logging"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
)

// ReplayedHeader is set on responses served from the replay table.
const ReplayedHeader = "X-Offline-Replayed"

type replay struct {
	status      int
	contentType string
	body        []byte
}

// recordingWriter keeps a copy of the response body.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// dedupe answers a repeated offline event with the response its first
// successful delivery got, so a client that lost the acknowledgement can
// resend without the action being applied twice. Requests without the event
// id header pass through.
func (s *Server) dedupe() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(syncpkg.OfflineEventIDHeader)
		if id == "" {
			c.Next()
			return
		}
		key := c.FullPath() + " " + id

		s.mu.Lock()
		prev, seen := s.replays[key]
		s.mu.Unlock()
		if seen {
			logging.Debug("offline event replayed", map[string]interface{}{
				"event_id": id,
				"path":     c.FullPath(),
			})
			c.Header(ReplayedHeader, "true")
			c.Data(prev.status, prev.contentType, prev.body)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status < 200 || status > 299 {
			return
		}
		s.mu.Lock()
		s.replays[key] = replay{
			status:      status,
			contentType: rw.Header().Get("Content-Type"),
			body:        bytes.Clone(rw.body.Bytes()),
		}
		s.mu.Unlock()
	}
}
