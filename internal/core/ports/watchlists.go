package ports

import (
	"context"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// WatchlistStore persists user-defined watchlists.
type WatchlistStore interface {
	CreateWatchlist(ctx context.Context, w *domain.Watchlist) error
	UpdateWatchlist(ctx context.Context, w *domain.Watchlist) error
	DeleteWatchlist(ctx context.Context, id string) error
	GetWatchlist(ctx context.Context, id string) (*domain.Watchlist, error)
	ListWatchlists(ctx context.Context) ([]domain.Watchlist, error)

	// ListEnabledWatchlists returns only watchlists the evaluator should run.
	ListEnabledWatchlists(ctx context.Context) ([]domain.Watchlist, error)
}

// AlertStore persists alerts generated by the watchlist evaluator.
// Deleting a watchlist must not cascade here: alerts carry a denormalized
// watchlist name and outlive their watchlist.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *domain.Alert) error
	ListAlerts(ctx context.Context, unreadOnly bool, limit int) ([]domain.Alert, error)
	SetAlertRead(ctx context.Context, id string, read bool) error
	DeleteAlert(ctx context.Context, id string) error
	MarkAllAlerts(ctx context.Context, read bool) error
	DeleteAllAlerts(ctx context.Context) error
	CountUnread(ctx context.Context) (int, error)
}
