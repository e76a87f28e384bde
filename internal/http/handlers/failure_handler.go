package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailspend/mailspend/internal/domain"
	"github.com/mailspend/mailspend/internal/repo"
)

// ListFailuresResponse wraps a page of permanently skipped messages.
type ListFailuresResponse struct {
	Failures   []domain.MessageFailure `json:"failures"`
	Pagination Pagination              `json:"pagination"`
}

// ListFailures returns a paginated page of messages the pipeline skipped
// permanently (malformed output or exhausted retries), newest first. It gives
// operators an audit surface for extraction misfires.
func (h *Handler) ListFailures(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := repo.CountFailures(ctx, h.DB)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not count failures")
		return
	}
	items, err := repo.ListFailuresPage(ctx, h.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list failures")
		return
	}
	if items == nil {
		items = []domain.MessageFailure{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListFailuresResponse{
		Failures: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
