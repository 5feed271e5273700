package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"staywatch/models"
)

// SQLiteStore is the embedded single-file backend. Collection-valued search
// fields and result payloads are stored as JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS searches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		enabled BOOLEAN DEFAULT TRUE,
		date_ranges JSON,
		stay_lengths JSON,
		resorts JSON,
		accommodation_types JSON,
		frequency TEXT,
		custom_cron TEXT,
		last_run DATETIME,
		next_run DATETIME,
		notify_email TEXT,
		notify_only_changes BOOLEAN DEFAULT TRUE,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS search_results (
		id TEXT PRIMARY KEY,
		search_id TEXT NOT NULL,
		timestamp DATETIME,
		availabilities JSON,
		changes JSON,
		notification_sent BOOLEAN DEFAULT FALSE,
		error TEXT,
		FOREIGN KEY (search_id) REFERENCES searches(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS search_executions (
		id TEXT PRIMARY KEY,
		search_id TEXT NOT NULL,
		status TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		total_checks INTEGER DEFAULT 0,
		completed_checks INTEGER DEFAULT 0,
		found_availabilities INTEGER DEFAULT 0,
		error TEXT,
		FOREIGN KEY (search_id) REFERENCES searches(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS notification_logs (
		id INTEGER PRIMARY KEY,
		search_id TEXT NOT NULL,
		result_id TEXT,
		sent_at DATETIME,
		recipient TEXT,
		subject TEXT,
		new_count INTEGER DEFAULT 0,
		removed_count INTEGER DEFAULT 0,
		success BOOLEAN DEFAULT FALSE,
		error TEXT,
		FOREIGN KEY (search_id) REFERENCES searches(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_searches_due ON searches(enabled, next_run);
	CREATE INDEX IF NOT EXISTS idx_results_search ON search_results(search_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_executions_search ON search_executions(search_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_search ON notification_logs(search_id, sent_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const sqliteSearchCols = `id, name, enabled, date_ranges, stay_lengths, resorts, accommodation_types,
		frequency, custom_cron, last_run, next_run, notify_email, notify_only_changes, created_at, updated_at`

func (s *SQLiteStore) CreateSearch(ctx context.Context, search *models.Search) error {
	if search.ID == uuid.Nil {
		search.ID = uuid.New()
	}
	now := time.Now()
	if search.CreatedAt.IsZero() {
		search.CreatedAt = now
	}
	search.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO searches (`+sqliteSearchCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		search.ID.String(), search.Name, search.Enabled,
		mustJSON(search.DateRanges), mustJSON(search.StayLengths),
		mustJSON(search.Resorts), mustJSON(search.AccommodationTypes),
		string(search.Schedule.Frequency), search.Schedule.CustomCron,
		search.Schedule.LastRun, search.Schedule.NextRun,
		search.Notifications.Email, search.Notifications.OnlyChanges,
		search.CreatedAt, search.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetSearch(ctx context.Context, id uuid.UUID) (*models.Search, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteSearchCols+` FROM searches WHERE id = ?`, id.String())
	return scanSQLiteSearch(row)
}

func (s *SQLiteStore) GetSearchByName(ctx context.Context, name string) (*models.Search, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteSearchCols+` FROM searches WHERE name = ?`, name)
	return scanSQLiteSearch(row)
}

func (s *SQLiteStore) GetAllSearches(ctx context.Context, enabledOnly bool) ([]models.Search, error) {
	query := `SELECT ` + sqliteSearchCols + ` FROM searches`
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteSearches(rows)
}

func (s *SQLiteStore) UpdateSearch(ctx context.Context, search *models.Search) error {
	search.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE searches SET name = ?, enabled = ?, date_ranges = ?, stay_lengths = ?,
			resorts = ?, accommodation_types = ?, frequency = ?, custom_cron = ?,
			notify_email = ?, notify_only_changes = ?, updated_at = ?
		WHERE id = ?`,
		search.Name, search.Enabled,
		mustJSON(search.DateRanges), mustJSON(search.StayLengths),
		mustJSON(search.Resorts), mustJSON(search.AccommodationTypes),
		string(search.Schedule.Frequency), search.Schedule.CustomCron,
		search.Notifications.Email, search.Notifications.OnlyChanges,
		search.UpdatedAt, search.ID.String())
	return err
}

func (s *SQLiteStore) DeleteSearch(ctx context.Context, id uuid.UUID) error {
	// Results, executions and notification logs cascade.
	_, err := s.db.ExecContext(ctx, `DELETE FROM searches WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) UpdateSearchSchedule(ctx context.Context, id uuid.UUID, lastRun, nextRun *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE searches SET last_run = ?, next_run = ?, updated_at = ? WHERE id = ?`,
		lastRun, nextRun, time.Now(), id.String())
	return err
}

func (s *SQLiteStore) GetSearchesDueForExecution(ctx context.Context, now time.Time) ([]models.Search, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteSearchCols+` FROM searches
		WHERE enabled = TRUE AND (next_run IS NULL OR next_run <= ?)
		ORDER BY created_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSQLiteSearches(rows)
}

func (s *SQLiteStore) SaveSearchResult(ctx context.Context, r *models.SearchResult) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_results (id, search_id, timestamp, availabilities, changes, notification_sent, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.SearchID.String(), r.Timestamp,
		mustJSON(r.Availabilities), mustJSON(r.Changes), r.NotificationSent, r.Error)
	return err
}

func (s *SQLiteStore) GetSearchResults(ctx context.Context, searchID uuid.UUID, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_id, timestamp, availabilities, changes, notification_sent, error
		FROM search_results WHERE search_id = ? ORDER BY timestamp DESC LIMIT ?`,
		searchID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetLatestSearchResult(ctx context.Context, searchID uuid.UUID) (*models.SearchResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_id, timestamp, availabilities, changes, notification_sent, error
		FROM search_results WHERE search_id = ? ORDER BY timestamp DESC LIMIT 1`,
		searchID.String())
	r, err := scanSQLiteResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) MarkResultNotified(ctx context.Context, resultID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE search_results SET notification_sent = TRUE WHERE id = ?`, resultID.String())
	return err
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, e *models.SearchExecution) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_executions (id, search_id, status, started_at, completed_at,
			total_checks, completed_checks, found_availabilities, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.SearchID.String(), string(e.Status), e.StartedAt, e.CompletedAt,
		e.TotalChecks, e.CompletedChecks, e.FoundAvailabilities, e.Error)
	return err
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, e *models.SearchExecution) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE search_executions SET status = ?, completed_at = ?, total_checks = ?,
			completed_checks = ?, found_availabilities = ?, error = ?
		WHERE id = ?`,
		string(e.Status), e.CompletedAt, e.TotalChecks,
		e.CompletedChecks, e.FoundAvailabilities, e.Error, e.ID.String())
	return err
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id uuid.UUID) (*models.SearchExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_id, status, started_at, completed_at,
			total_checks, completed_checks, found_availabilities, error
		FROM search_executions WHERE id = ?`, id.String())
	return scanSQLiteExecution(row)
}

func (s *SQLiteStore) GetLatestExecution(ctx context.Context, searchID uuid.UUID) (*models.SearchExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_id, status, started_at, completed_at,
			total_checks, completed_checks, found_availabilities, error
		FROM search_executions WHERE search_id = ? ORDER BY started_at DESC LIMIT 1`,
		searchID.String())
	return scanSQLiteExecution(row)
}

func (s *SQLiteStore) LogNotification(ctx context.Context, l *models.NotificationLog) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_logs (search_id, result_id, sent_at, recipient, subject,
			new_count, removed_count, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.SearchID.String(), l.ResultID.String(), l.SentAt, l.Recipient, l.Subject,
		l.NewCount, l.RemovedCount, l.Success, l.Error)
	if err != nil {
		return err
	}
	l.ID, _ = result.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetNotificationLogs(ctx context.Context, searchID uuid.UUID, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_id, result_id, sent_at, recipient, subject,
			new_count, removed_count, success, error
		FROM notification_logs WHERE search_id = ? ORDER BY sent_at DESC LIMIT ?`,
		searchID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		var sid, rid string
		var errMsg sql.NullString
		if err := rows.Scan(&l.ID, &sid, &rid, &l.SentAt, &l.Recipient, &l.Subject,
			&l.NewCount, &l.RemovedCount, &l.Success, &errMsg); err != nil {
			return nil, err
		}
		l.SearchID, _ = uuid.Parse(sid)
		l.ResultID, _ = uuid.Parse(rid)
		l.Error = errMsg.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSearch(row rowScanner) (*models.Search, error) {
	var search models.Search
	var id, frequency string
	var dateRanges, stayLengths, resorts, types []byte
	var customCron, email sql.NullString
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&id, &search.Name, &search.Enabled, &dateRanges, &stayLengths,
		&resorts, &types, &frequency, &customCron, &lastRun, &nextRun,
		&email, &search.Notifications.OnlyChanges, &search.CreatedAt, &search.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	search.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse search id: %w", err)
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
	search.Schedule.CustomCron = customCron.String
	if lastRun.Valid {
		t := lastRun.Time
		search.Schedule.LastRun = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		search.Schedule.NextRun = &t
	}
	search.Notifications.Email = email.String
	return &search, nil
}

func collectSQLiteSearches(rows *sql.Rows) ([]models.Search, error) {
	var searches []models.Search
	for rows.Next() {
		s, err := scanSQLiteSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *s)
	}
	return searches, rows.Err()
}

func scanSQLiteResult(row rowScanner) (*models.SearchResult, error) {
	var r models.SearchResult
	var id, searchID string
	var availabilities, changes []byte
	var errMsg sql.NullString

	err := row.Scan(&id, &searchID, &r.Timestamp, &availabilities, &changes, &r.NotificationSent, &errMsg)
	if err != nil {
		return nil, err
	}
	r.ID, _ = uuid.Parse(id)
	r.SearchID, _ = uuid.Parse(searchID)
	if err := unmarshalJSON(availabilities, &r.Availabilities); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(changes, &r.Changes); err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return &r, nil
}

func scanSQLiteExecution(row rowScanner) (*models.SearchExecution, error) {
	var e models.SearchExecution
	var id, searchID, status string
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&id, &searchID, &status, &e.StartedAt, &completedAt,
		&e.TotalChecks, &e.CompletedChecks, &e.FoundAvailabilities, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.ID, _ = uuid.Parse(id)
	e.SearchID, _ = uuid.Parse(searchID)
	e.Status = models.ExecutionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	e.Error = errMsg.String
	return &e, nil
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
