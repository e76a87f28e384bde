package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailspend/mailspend/internal/repo"
)

// StatusResponse reports ingestion progress for the dashboard.
type StatusResponse struct {
	Version          string     `json:"version"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	PollInterval     string     `json:"poll_interval"`
	Transactions     int64      `json:"transactions"`
	Failures         int64      `json:"failures"`
	LatestOccurredAt *time.Time `json:"latest_occurred_at,omitempty"`
	Watermark        *time.Time `json:"watermark,omitempty"`
	WatermarkMessage string     `json:"watermark_message_id,omitempty"`
}

// Status returns pipeline progress: stored/failed counts, the newest stored
// transaction date, and the current watermark position.
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	txCount, latest, err := repo.TransactionsStats(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read transaction stats")
		return
	}
	failCount, err := repo.CountFailures(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read failure stats")
		return
	}
	wm, err := repo.GetWatermark(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read watermark")
		return
	}

	resp := StatusResponse{
		Version:          h.Version,
		UptimeSeconds:    int64(time.Since(h.StartedAt).Seconds()),
		PollInterval:     h.PollInterval.String(),
		Transactions:     txCount,
		Failures:         failCount,
		LatestOccurredAt: latest,
		WatermarkMessage: wm.LastMessageID,
	}
	if !wm.LastTimestamp.IsZero() {
		ts := wm.LastTimestamp
		resp.Watermark = &ts
	}
	ok(c, http.StatusOK, resp)
}
