// Package handlers exposes the read-only dashboard API over the transaction
// store. All endpoints serve data the pipeline has already committed; nothing
// here mutates state.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mailspend/mailspend/internal/domain"
	"github.com/mailspend/mailspend/internal/repo"
	"github.com/mailspend/mailspend/internal/utils"
)

// Handler bundles the dependencies shared by all API endpoints.
type Handler struct {
	DB           *gorm.DB
	PollInterval time.Duration
	Version      string
	StartedAt    time.Time
}

// New constructs a Handler ready to be mounted on the router.
func New(db *gorm.DB, pollInterval time.Duration, version string) *Handler {
	return &Handler{
		DB:           db,
		PollInterval: pollInterval,
		Version:      version,
		StartedAt:    time.Now().UTC(),
	}
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTransactionsResponse wraps a page of transactions and pagination info.
type ListTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

// SummaryResponse groups stored transactions by category.
type SummaryResponse struct {
	Categories []repo.CategoryTotal `json:"categories"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// dateLayouts accepted for the from/to query parameters.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseQueryTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseFilter builds a repo.TransactionFilter from query parameters. The
// second return value is a human-readable message for the first invalid
// parameter, or "" when the filter is valid.
func parseFilter(c *gin.Context) (repo.TransactionFilter, string) {
	var f repo.TransactionFilter

	if s := c.Query("from"); s != "" {
		t, ok := parseQueryTime(s)
		if !ok {
			return f, "from must be YYYY-MM-DD or RFC 3339"
		}
		f.From = t
	}
	if s := c.Query("to"); s != "" {
		t, ok := parseQueryTime(s)
		if !ok {
			return f, "to must be YYYY-MM-DD or RFC 3339"
		}
		f.To = t
	}
	if s := c.Query("min_amount"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return f, "min_amount must be a decimal number"
		}
		f.MinAmount = &d
	}
	if s := c.Query("max_amount"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return f, "max_amount must be a decimal number"
		}
		f.MaxAmount = &d
	}
	f.Category = c.Query("category")
	f.Search = c.Query("q")
	return f, ""
}

// ListTransactions returns a filtered, paginated page of stored transactions
// in ascending occurred_at order.
//
// Query parameters: page, page_size, from, to, category, min_amount,
// max_amount, q (substring match on merchant or subject).
func (h *Handler) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	filter, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}
	page, pageSize := clampPagination(c)

	total, err := repo.CountTransactions(ctx, h.DB, filter)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not count transactions")
		return
	}
	items, err := repo.ListTransactionsPage(ctx, h.DB, filter, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list transactions")
		return
	}
	if items == nil {
		items = []domain.Transaction{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTransactionsResponse{
		Transactions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetTransaction returns a single stored transaction by its UUID.
func (h *Handler) GetTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	tx, err := repo.GetTransaction(ctx, h.DB, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load transaction")
		return
	}
	if tx == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
		return
	}
	ok(c, http.StatusOK, tx)
}

// Summary returns per-category transaction counts and amount totals, honoring
// the same filters as ListTransactions.
func (h *Handler) Summary(c *gin.Context) {
	ctx := c.Request.Context()

	filter, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}

	totals, err := repo.CategorySummary(ctx, h.DB, filter)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not summarize transactions")
		return
	}
	if totals == nil {
		totals = []repo.CategoryTotal{}
	}
	ok(c, http.StatusOK, SummaryResponse{Categories: totals})
}
