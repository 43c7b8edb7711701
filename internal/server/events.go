package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/orderevents"
)

const defaultHeartbeat = 15 * time.Second

// StreamOrderEvents is a server-sent event stream of one audience. Events
// missed while disconnected are not replayed; clients resync by polling
// list-orders with updated_since.
func (s *Server) StreamOrderEvents(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	a, _ := actorFromContext(c)

	audience, ok := orderevents.ParseAudience(c.Param("audience"))
	if !ok {
		AbortWithError(c, domainerr.Invalid("audience", "invalid_audience", "audience must be kitchen, cashier or waitstaff"))
		return
	}
	if !a.Is(actor.RoleSupervisor) && string(a.Role) != string(audience) {
		AbortWithError(c, ErrForbidden)
		return
	}

	waiterID := a.ID
	if a.Is(actor.RoleSupervisor) {
		if requested := strings.TrimSpace(c.Query("waiter_id")); requested != "" {
			waiterID = requested
		}
	}
	key := orderevents.StreamKey(audience, waiterID)

	subscription, err := s.hub.Subscribe(key)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	settings := s.settings.Get()
	heartbeatEvery := settings.StreamHeartbeat()
	if heartbeatEvery <= 0 {
		heartbeatEvery = defaultHeartbeat
	}

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	ready, _ := json.Marshal(gin.H{
		"stream":                key,
		"poll_interval_seconds": settings.PollIntervalSeconds,
	})
	if _, err := fmt.Fprintf(writer, "event: ready\ndata: %s\n\n", ready); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeOrderEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeOrderEvent(w io.Writer, event orderevents.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
	return err
}
