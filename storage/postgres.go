package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"staywatch/models"
)

// PostgresStore backs the daemon with a shared Postgres database. Collection
// fields and result payloads live in jsonb columns so the schema stays flat.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS searches (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		enabled BOOLEAN DEFAULT TRUE,
		date_ranges JSONB,
		stay_lengths JSONB,
		resorts JSONB,
		accommodation_types JSONB,
		frequency TEXT,
		custom_cron TEXT,
		last_run TIMESTAMPTZ,
		next_run TIMESTAMPTZ,
		notify_email TEXT,
		notify_only_changes BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS search_results (
		id UUID PRIMARY KEY,
		search_id UUID NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		timestamp TIMESTAMPTZ,
		availabilities JSONB,
		changes JSONB,
		notification_sent BOOLEAN DEFAULT FALSE,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS search_executions (
		id UUID PRIMARY KEY,
		search_id UUID NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		status TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		total_checks INTEGER DEFAULT 0,
		completed_checks INTEGER DEFAULT 0,
		found_availabilities INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS notification_logs (
		id BIGSERIAL PRIMARY KEY,
		search_id UUID NOT NULL REFERENCES searches(id) ON DELETE CASCADE,
		result_id UUID,
		sent_at TIMESTAMPTZ,
		recipient TEXT,
		subject TEXT,
		new_count INTEGER DEFAULT 0,
		removed_count INTEGER DEFAULT 0,
		success BOOLEAN DEFAULT FALSE,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_searches_due ON searches(enabled, next_run);
	CREATE INDEX IF NOT EXISTS idx_results_search ON search_results(search_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_executions_search ON search_executions(search_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_search ON notification_logs(search_id, sent_at);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const pgSearchCols = `id, name, enabled, date_ranges, stay_lengths, resorts, accommodation_types,
		frequency, custom_cron, last_run, next_run, notify_email, notify_only_changes, created_at, updated_at`

func (s *PostgresStore) CreateSearch(ctx context.Context, search *models.Search) error {
	if search.ID == uuid.Nil {
		search.ID = uuid.New()
	}
	now := time.Now()
	if search.CreatedAt.IsZero() {
		search.CreatedAt = now
	}
	search.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO searches (`+pgSearchCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		search.ID, search.Name, search.Enabled,
		mustJSON(search.DateRanges), mustJSON(search.StayLengths),
		mustJSON(search.Resorts), mustJSON(search.AccommodationTypes),
		string(search.Schedule.Frequency), search.Schedule.CustomCron,
		search.Schedule.LastRun, search.Schedule.NextRun,
		search.Notifications.Email, search.Notifications.OnlyChanges,
		search.CreatedAt, search.UpdatedAt)
	return err
}

func (s *PostgresStore) GetSearch(ctx context.Context, id uuid.UUID) (*models.Search, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSearchCols+` FROM searches WHERE id = $1`, id)
	return scanPGSearch(row)
}

func (s *PostgresStore) GetSearchByName(ctx context.Context, name string) (*models.Search, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSearchCols+` FROM searches WHERE name = $1`, name)
	return scanPGSearch(row)
}

func (s *PostgresStore) GetAllSearches(ctx context.Context, enabledOnly bool) ([]models.Search, error) {
	query := `SELECT ` + pgSearchCols + ` FROM searches`
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGSearches(rows)
}

func (s *PostgresStore) UpdateSearch(ctx context.Context, search *models.Search) error {
	search.UpdatedAt = time.Now()
	_, err := s.pool.Exec(ctx, `
		UPDATE searches SET name = $1, enabled = $2, date_ranges = $3, stay_lengths = $4,
			resorts = $5, accommodation_types = $6, frequency = $7, custom_cron = $8,
			notify_email = $9, notify_only_changes = $10, updated_at = $11
		WHERE id = $12`,
		search.Name, search.Enabled,
		mustJSON(search.DateRanges), mustJSON(search.StayLengths),
		mustJSON(search.Resorts), mustJSON(search.AccommodationTypes),
		string(search.Schedule.Frequency), search.Schedule.CustomCron,
		search.Notifications.Email, search.Notifications.OnlyChanges,
		search.UpdatedAt, search.ID)
	return err
}

func (s *PostgresStore) DeleteSearch(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM searches WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) UpdateSearchSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun *time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE searches SET last_run = $1, next_run = $2, updated_at = $3 WHERE id = $4`,
		lastRun, nextRun, time.Now(), id)
	return err
}

func (s *PostgresStore) GetSearchesDueForExecution(ctx context.Context, now time.Time) ([]models.Search, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgSearchCols+` FROM searches
		WHERE enabled = TRUE AND (next_run IS NULL OR next_run <= $1)
		ORDER BY created_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPGSearches(rows)
}

func (s *PostgresStore) SaveSearchResult(ctx context.Context, r *models.SearchResult) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_results (id, search_id, timestamp, availabilities, changes, notification_sent, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SearchID, r.Timestamp,
		mustJSON(r.Availabilities), mustJSON(r.Changes), r.NotificationSent, r.Error)
	return err
}

func (s *PostgresStore) GetSearchResults(ctx context.Context, searchID uuid.UUID, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, search_id, timestamp, availabilities, changes, notification_sent, error
		FROM search_results WHERE search_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		searchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		r, err := scanPGResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) GetLatestSearchResult(ctx context.Context, searchID uuid.UUID) (*models.SearchResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, search_id, timestamp, availabilities, changes, notification_sent, error
		FROM search_results WHERE search_id = $1 ORDER BY timestamp DESC LIMIT 1`,
		searchID)
	r, err := scanPGResult(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) MarkResultNotified(ctx context.Context, resultID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE search_results SET notification_sent = TRUE WHERE id = $1`, resultID)
	return err
}

func (s *PostgresStore) CreateExecution(ctx context.Context, e *models.SearchExecution) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_executions (id, search_id, status, started_at, completed_at,
			total_checks, completed_checks, found_availabilities, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.SearchID, string(e.Status), e.StartedAt, e.CompletedAt,
		e.TotalChecks, e.CompletedChecks, e.FoundAvailabilities, e.Error)
	return err
}

func (s *PostgresStore) UpdateExecution(ctx context.Context, e *models.SearchExecution) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE search_executions SET status = $1, completed_at = $2, total_checks = $3,
			completed_checks = $4, found_availabilities = $5, error = $6
		WHERE id = $7`,
		string(e.Status), e.CompletedAt, e.TotalChecks,
		e.CompletedChecks, e.FoundAvailabilities, e.Error, e.ID)
	return err
}

func (s *PostgresStore) GetExecution(ctx context.Context, id uuid.UUID) (*models.SearchExecution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, search_id, status, started_at, completed_at,
			total_checks, completed_checks, found_availabilities, error
		FROM search_executions WHERE id = $1`, id)
	return scanPGExecution(row)
}

func (s *PostgresStore) GetLatestExecution(ctx context.Context, searchID uuid.UUID) (*models.SearchExecution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, search_id, status, started_at, completed_at,
			total_checks, completed_checks, found_availabilities, error
		FROM search_executions WHERE search_id = $1 ORDER BY started_at DESC LIMIT 1`,
		searchID)
	return scanPGExecution(row)
}

func (s *PostgresStore) LogNotification(ctx context.Context, l *models.NotificationLog) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO notification_logs (search_id, result_id, sent_at, recipient, subject,
			new_count, removed_count, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		l.SearchID, l.ResultID, l.SentAt, l.Recipient, l.Subject,
		l.NewCount, l.RemovedCount, l.Success, l.Error).Scan(&l.ID)
}

func (s *PostgresStore) GetNotificationLogs(ctx context.Context, searchID uuid.UUID, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, search_id, result_id, sent_at, recipient, subject,
			new_count, removed_count, success, error
		FROM notification_logs WHERE search_id = $1 ORDER BY sent_at DESC LIMIT $2`,
		searchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		var errMsg *string
		if err := rows.Scan(&l.ID, &l.SearchID, &l.ResultID, &l.SentAt, &l.Recipient, &l.Subject,
			&l.NewCount, &l.RemovedCount, &l.Success, &errMsg); err != nil {
			return nil, err
		}
		if errMsg != nil {
			l.Error = *errMsg
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanPGSearch(row pgx.Row) (*models.Search, error) {
	var search models.Search
	var frequency string
	var dateRanges, stayLengths, resorts, types []byte
	var customCron, email *string
	var lastRun, nextRun *time.Time

	err := row.Scan(&search.ID, &search.Name, &search.Enabled, &dateRanges, &stayLengths,
		&resorts, &types, &frequency, &customCron, &lastRun, &nextRun,
		&email, &search.Notifications.OnlyChanges, &search.CreatedAt, &search.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(dateRanges, &search.DateRanges); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(stayLengths, &search.StayLengths); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(resorts, &search.Resorts); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(types, &search.AccommodationTypes); err != nil {
		return nil, err
	}
	search.Schedule.Frequency = models.Frequency(frequency)
	if customCron != nil {
		search.Schedule.CustomCron = *customCron
	}
	search.Schedule.LastRun = lastRun
	search.Schedule.NextRun = nextRun
	if email != nil {
		search.Notifications.Email = *email
	}
	return &search, nil
}

func collectPGSearches(rows pgx.Rows) ([]models.Search, error) {
	var searches []models.Search
	for rows.Next() {
		s, err := scanPGSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *s)
	}
	return searches, rows.Err()
}

func scanPGResult(row pgx.Row) (*models.SearchResult, error) {
	var r models.SearchResult
	var availabilities, changes []byte
	var errMsg *string

	err := row.Scan(&r.ID, &r.SearchID, &r.Timestamp, &availabilities, &changes, &r.NotificationSent, &errMsg)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(availabilities, &r.Availabilities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(changes, &r.Changes); err != nil {
		return nil, err
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func scanPGExecution(row pgx.Row) (*models.SearchExecution, error) {
	var e models.SearchExecution
	var status string
	var errMsg *string

	err := row.Scan(&e.ID, &e.SearchID, &status, &e.StartedAt, &e.CompletedAt,
		&e.TotalChecks, &e.CompletedChecks, &e.FoundAvailabilities, &errMsg)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Status = models.ExecutionStatus(status)
	if errMsg != nil {
		e.Error = *errMsg
	}
	return &e, nil
}
