package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"staywatch/models"
)

// Store is the persistence contract consumed by the execution engine and the
// scheduler. Two interchangeable implementations exist: PostgresStore and
// SQLiteStore. Lookups return (nil, nil) when the row does not exist.
type Store interface {
	CreateSearch(ctx context.Context, s *models.Search) error
	GetSearch(ctx context.Context, id uuid.UUID) (*models.Search, error)
	GetSearchByName(ctx context.Context, name string) (*models.Search, error)
	GetAllSearches(ctx context.Context, enabledOnly bool) ([]models.Search, error)
	UpdateSearch(ctx context.Context, s *models.Search) error
	DeleteSearch(ctx context.Context, id uuid.UUID) error
	UpdateSearchSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun *time.Time) error
	GetSearchesDueForExecution(ctx context.Context, now time.Time) ([]models.Search, error)

	SaveSearchResult(ctx context.Context, r *models.SearchResult) error
	GetSearchResults(ctx context.Context, searchID uuid.UUID, limit int) ([]models.SearchResult, error)
	GetLatestSearchResult(ctx context.Context, searchID uuid.UUID) (*models.SearchResult, error)
	MarkResultNotified(ctx context.Context, resultID uuid.UUID) error

	CreateExecution(ctx context.Context, e *models.SearchExecution) error
	UpdateExecution(ctx context.Context, e *models.SearchExecution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*models.SearchExecution, error)
	GetLatestExecution(ctx context.Context, searchID uuid.UUID) (*models.SearchExecution, error)

	LogNotification(ctx context.Context, l *models.NotificationLog) error
	GetNotificationLogs(ctx context.Context, searchID uuid.UUID, limit int) ([]models.NotificationLog, error)

	Close() error
}
