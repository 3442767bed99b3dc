package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/github"
	"golang.org/x/time/rate"
)

// Fetcher walks an organization's migrations page by page
type Fetcher struct {
	PageSize int
	// Delay is the minimum spacing between two page requests
	Delay  time.Duration
	Logger *slog.Logger
}

// NewFetcher creates a fetcher with the given page size and delay
func NewFetcher(pageSize int, delay time.Duration, logger *slog.Logger) *Fetcher {
	if pageSize <= 0 || pageSize > github.DefaultMigrationPageSize {
		pageSize = github.DefaultMigrationPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{PageSize: pageSize, Delay: delay, Logger: logger}
}

// Page is one fetched page
type Page struct {
	// Number is 1-based in fetch order
	Number int
	Nodes  []github.MigrationNode
	// EstimatedTotalPages is 0 until a total count has been seen
	EstimatedTotalPages int
	HasMore             bool
}

// PageWalker fetches one organization's pages, most recent first
type PageWalker struct {
	provider Provider
	org      string
	pageSize int
	limiter  *rate.Limiter
	logger   *slog.Logger

	cursor   *string
	pages    int
	estimate int
	done     bool
}

// Walk starts a walk over org's migrations
func (f *Fetcher) Walk(provider Provider, org string) *PageWalker {
	limit := rate.Inf
	if f.Delay > 0 {
		limit = rate.Every(f.Delay)
	}
	return &PageWalker{
		provider: provider,
		org:      org,
		pageSize: f.PageSize,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   f.Logger,
	}
}

// Done reports whether the walk has ended
func (w *PageWalker) Done() bool {
	return w.done
}

// Pages returns the number of pages requested so far, including one that
// failed
func (w *PageWalker) Pages() int {
	return w.pages
}

// EstimatedTotalPages returns the page estimate, 0 if unknown
func (w *PageWalker) EstimatedTotalPages() int {
	return w.estimate
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Next fetches the next older page. A dangling reference ends the walk with
// a *DanglingReferenceError; any other failure ends it with a
// *PageFetchError. Calling Next after the walk ended returns nil, nil.
func (w *PageWalker) Next(ctx context.Context) (*Page, error) {
	if w.done {
		return nil, nil
	}
	if err := w.limiter.Wait(ctx); err != nil {
		w.done = true
		return nil, &PageFetchError{Org: w.org, Page: w.pages + 1, Err: err}
	}

	w.pages++
	resp, err := w.provider.ListOrganizationMigrations(ctx, w.org, w.pageSize, w.cursor)
	if err != nil {
		w.done = true
		if github.IsDanglingReferenceError(err) {
			w.logger.Warn("Dangling reference in migration page, ending pagination early",
				"org", w.org,
				"page", w.pages,
				"error", err)
			return nil, &DanglingReferenceError{Org: w.org, Page: w.pages, Err: err}
		}
		return nil, &PageFetchError{Org: w.org, Page: w.pages, Err: err}
	}

	if w.pages == 1 && resp.TotalCount != nil && *resp.TotalCount > 0 {
		w.estimate = ceilDiv(*resp.TotalCount, w.pageSize)
	}
	// the estimate only ever grows
	if w.pages > w.estimate && w.estimate > 0 {
		w.estimate = w.pages
	}

	if resp.HasPreviousPage && resp.StartCursor != "" {
		next := resp.StartCursor
		w.cursor = &next
	} else {
		w.done = true
	}

	w.logger.Debug("Fetched migration page",
		"org", w.org,
		"page", w.pages,
		"estimated_total_pages", w.estimate,
		"nodes", len(resp.Nodes),
		"has_more", !w.done)

	return &Page{
		Number:              w.pages,
		Nodes:               resp.Nodes,
		EstimatedTotalPages: w.estimate,
		HasMore:             !w.done,
	}, nil
}
