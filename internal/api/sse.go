package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/logger"
)

const (
	headerContentType     = "Content-Type"
	headerCacheControl    = "Cache-Control"
	headerConnection      = "Connection"
	headerXAccelBuffering = "X-Accel-Buffering"

	sseContentType = "text/event-stream"

	eventTypeSnapshot     = "snapshot"
	eventTypeStreamClosed = "stream_closed"
)

// event is one server-sent event.
type event struct {
	Type string
	Data any
}

// StreamJob handles GET /api/jobs/:id/stream. Snapshots are pushed
// whenever progress changes, with keepalive comments in between. The
// stream ends after a final snapshot plus a stream_closed event once
// the job turns terminal, or when the maximum stream duration elapses
// (a timeout, not an error).
func (h *Handlers) StreamJob(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	// Subscribe before the initial snapshot read. The tracker persists a
	// snapshot before publishing, so a job that turns terminal ahead of
	// the subscription still shows up in the read below.
	updates, stop := h.jobs.Subscribe(ctx, jobID)
	defer stop()

	snap, err := h.jobs.GetSnapshot(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("failed to get job for stream",
			logger.String("job_id", jobID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Writer.Flush()

	if err := writeEvent(c.Writer, event{Type: eventTypeSnapshot, Data: snap}); err != nil {
		h.logger.Debug("stream write failed", logger.Error(err))
		return
	}
	if snap.Status != domain.JobStatusRunning {
		h.closeStream(c.Writer, jobID, "completed")
		return
	}

	keepalive := time.NewTicker(h.stream.KeepaliveInterval)
	defer keepalive.Stop()
	deadline := time.NewTimer(h.stream.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				h.closeStream(c.Writer, jobID, "subscription lost")
				return
			}
			if err := writeEvent(c.Writer, event{Type: eventTypeSnapshot, Data: snap}); err != nil {
				h.logger.Debug("stream write failed (client gone)",
					logger.String("job_id", jobID), logger.Error(err))
				return
			}
			if snap.Status != domain.JobStatusRunning {
				h.closeStream(c.Writer, jobID, "completed")
				return
			}
		case <-keepalive.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				h.logger.Debug("stream heartbeat failed (client gone)",
					logger.String("job_id", jobID))
				return
			}
		case <-deadline.C:
			h.closeStream(c.Writer, jobID, "timeout")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handlers) closeStream(w gin.ResponseWriter, jobID, reason string) {
	err := writeEvent(w, event{
		Type: eventTypeStreamClosed,
		Data: gin.H{"job_id": jobID, "reason": reason},
	})
	if err != nil {
		h.logger.Debug("failed to write stream_closed event",
			logger.String("job_id", jobID), logger.Error(err))
	}
}

func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set(headerContentType, sseContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
}

func writeEvent(w gin.ResponseWriter, e event) error {
	if e.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", e.Type); err != nil {
			return fmt.Errorf("write event type: %w", err)
		}
	}

	payload, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}

	w.Flush()
	return nil
}

func writeHeartbeat(w gin.ResponseWriter) error {
	if _, err := fmt.Fprintf(w, ": keepalive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.Flush()
	return nil
}
