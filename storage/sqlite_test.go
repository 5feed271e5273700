package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"staywatch/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func fixtureSearch(t *testing.T, name string) *models.Search {
	t.Helper()
	from, _ := models.ParseDate("2026-07-01")
	to, _ := models.ParseDate("2026-07-31")
	return &models.Search{
		Name:               name,
		Enabled:            true,
		DateRanges:         []models.DateRange{{From: from, To: to}},
		StayLengths:        []int{7},
		Resorts:            []int{1, 3},
		AccommodationTypes: []int{10},
		Schedule:           models.Schedule{Frequency: models.FrequencyEvery2Hours},
		Notifications:      models.Notifications{Email: "alerts@example.com", OnlyChanges: true},
	}
}

func TestSearchRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	search := fixtureSearch(t, "july")
	if err := store.CreateSearch(ctx, search); err != nil {
		t.Fatalf("CreateSearch: %v", err)
	}
	if search.ID == uuid.Nil {
		t.Fatal("CreateSearch did not assign an id")
	}

	got, err := store.GetSearch(ctx, search.ID)
	if err != nil {
		t.Fatalf("GetSearch: %v", err)
	}
	if got == nil {
		t.Fatal("GetSearch returned nil for existing search")
	}
	if got.Name != "july" || !got.Enabled {
		t.Errorf("got %+v", got)
	}
	if len(got.DateRanges) != 1 || models.FormatDate(got.DateRanges[0].From) != "2026-07-01" {
		t.Errorf("date ranges = %+v", got.DateRanges)
	}
	if len(got.StayLengths) != 1 || got.StayLengths[0] != 7 {
		t.Errorf("stay lengths = %v", got.StayLengths)
	}
	if got.Schedule.Frequency != models.FrequencyEvery2Hours {
		t.Errorf("frequency = %s", got.Schedule.Frequency)
	}
	if got.Notifications.Email != "alerts@example.com" || !got.Notifications.OnlyChanges {
		t.Errorf("notifications = %+v", got.Notifications)
	}

	byName, err := store.GetSearchByName(ctx, "july")
	if err != nil {
		t.Fatalf("GetSearchByName: %v", err)
	}
	if byName == nil || byName.ID != search.ID {
		t.Errorf("byName = %+v", byName)
	}
}

func TestGetSearchMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSearch(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetSearch: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v for missing id, want nil", got)
	}

	byName, err := store.GetSearchByName(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSearchByName: %v", err)
	}
	if byName != nil {
		t.Errorf("got %+v for missing name, want nil", byName)
	}
}

func TestGetAllSearchesEnabledFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	on := fixtureSearch(t, "on")
	store.CreateSearch(ctx, on)
	off := fixtureSearch(t, "off")
	off.Enabled = false
	store.CreateSearch(ctx, off)

	all, err := store.GetAllSearches(ctx, false)
	if err != nil {
		t.Fatalf("GetAllSearches: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	enabled, err := store.GetAllSearches(ctx, true)
	if err != nil {
		t.Fatalf("GetAllSearches enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("enabled = %+v", enabled)
	}
}

func TestUpdateSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	search := fixtureSearch(t, "before")
	store.CreateSearch(ctx, search)

	search.Name = "after"
	search.StayLengths = []int{3, 7}
	if err := store.UpdateSearch(ctx, search); err != nil {
		t.Fatalf("UpdateSearch: %v", err)
	}

	got, _ := store.GetSearch(ctx, search.ID)
	if got.Name != "after" || len(got.StayLengths) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestScheduleAndDueSearches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	neverRun := fixtureSearch(t, "never-run")
	store.CreateSearch(ctx, neverRun)

	due := fixtureSearch(t, "due")
	store.CreateSearch(ctx, due)
	past := now.Add(-time.Hour)
	store.UpdateSearchSchedule(ctx, due.ID, &past, &past)

	later := fixtureSearch(t, "later")
	store.CreateSearch(ctx, later)
	future := now.Add(time.Hour)
	store.UpdateSearchSchedule(ctx, later.ID, &past, &future)

	disabled := fixtureSearch(t, "disabled")
	disabled.Enabled = false
	store.CreateSearch(ctx, disabled)

	got, err := store.GetSearchesDueForExecution(ctx, now)
	if err != nil {
		t.Fatalf("GetSearchesDueForExecution: %v", err)
	}
	names := map[string]bool{}
	for _, s := range got {
		names[s.Name] = true
	}
	if len(got) != 2 || !names["never-run"] || !names["due"] {
		t.Errorf("due searches = %v", names)
	}

	reloaded, _ := store.GetSearch(ctx, due.ID)
	if reloaded.Schedule.LastRun == nil || !reloaded.Schedule.LastRun.Equal(past) {
		t.Errorf("lastRun = %v, want %v", reloaded.Schedule.LastRun, past)
	}
}

func TestResultRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	search := fixtureSearch(t, "results")
	store.CreateSearch(ctx, search)

	if latest, err := store.GetLatestSearchResult(ctx, search.ID); err != nil || latest != nil {
		t.Fatalf("latest on empty store = %+v, %v; want nil, nil", latest, err)
	}

	offer := models.Availability{
		ResortID:            1,
		AccommodationTypeID: 10,
		DateFrom:            "2026-07-01",
		DateTo:              "2026-07-08",
		Nights:              7,
		PriceTotal:          910,
		Available:           true,
	}
	first := &models.SearchResult{
		SearchID:       search.ID,
		Timestamp:      time.Now().Add(-time.Hour),
		Availabilities: []models.Availability{offer},
		Changes:        models.Changes{New: []models.Availability{offer}, Removed: []models.Availability{}},
	}
	if err := store.SaveSearchResult(ctx, first); err != nil {
		t.Fatalf("SaveSearchResult: %v", err)
	}

	second := &models.SearchResult{
		SearchID:       search.ID,
		Timestamp:      time.Now(),
		Availabilities: []models.Availability{offer},
		Changes:        models.Changes{New: []models.Availability{}, Removed: []models.Availability{}},
	}
	store.SaveSearchResult(ctx, second)

	latest, err := store.GetLatestSearchResult(ctx, search.ID)
	if err != nil {
		t.Fatalf("GetLatestSearchResult: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest = %s, want %s", latest.ID, second.ID)
	}
	if len(latest.Availabilities) != 1 || latest.Availabilities[0].Key() != offer.Key() {
		t.Errorf("availabilities = %+v", latest.Availabilities)
	}

	results, err := store.GetSearchResults(ctx, search.ID, 1)
	if err != nil {
		t.Fatalf("GetSearchResults: %v", err)
	}
	if len(results) != 1 || results[0].ID != second.ID {
		t.Errorf("limited results = %+v", results)
	}

	if err := store.MarkResultNotified(ctx, second.ID); err != nil {
		t.Fatalf("MarkResultNotified: %v", err)
	}
	latest, _ = store.GetLatestSearchResult(ctx, search.ID)
	if !latest.NotificationSent {
		t.Error("notification flag not persisted")
	}
}

func TestExecutionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	search := fixtureSearch(t, "exec")
	store.CreateSearch(ctx, search)

	if e, err := store.GetLatestExecution(ctx, search.ID); err != nil || e != nil {
		t.Fatalf("latest on empty store = %+v, %v; want nil, nil", e, err)
	}

	exec := &models.SearchExecution{
		SearchID:    search.ID,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		TotalChecks: 24,
	}
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	done := time.Now().UTC().Truncate(time.Second)
	exec.Status = models.ExecutionStatusCompleted
	exec.CompletedChecks = 24
	exec.FoundAvailabilities = 3
	exec.CompletedAt = &done
	if err := store.UpdateExecution(ctx, exec); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}

	got, err := store.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != models.ExecutionStatusCompleted || got.CompletedChecks != 24 || got.FoundAvailabilities != 3 {
		t.Errorf("got %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("completedAt = %v, want %v", got.CompletedAt, done)
	}

	latest, _ := store.GetLatestExecution(ctx, search.ID)
	if latest == nil || latest.ID != exec.ID {
		t.Errorf("latest = %+v", latest)
	}
}

func TestNotificationLogRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	search := fixtureSearch(t, "notify")
	store.CreateSearch(ctx, search)

	entry := &models.NotificationLog{
		SearchID:  search.ID,
		ResultID:  uuid.New(),
		SentAt:    time.Now().UTC().Truncate(time.Second),
		Recipient: "alerts@example.com",
		Subject:   "StayWatch: notify",
		NewCount:  2,
		Success:   true,
	}
	if err := store.LogNotification(ctx, entry); err != nil {
		t.Fatalf("LogNotification: %v", err)
	}
	if entry.ID == 0 {
		t.Error("LogNotification did not backfill the row id")
	}

	logs, err := store.GetNotificationLogs(ctx, search.ID, 10)
	if err != nil {
		t.Fatalf("GetNotificationLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Recipient != "alerts@example.com" || logs[0].NewCount != 2 || !logs[0].Success {
		t.Errorf("logs = %+v", logs)
	}
}

func TestDeleteSearchCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	search := fixtureSearch(t, "doomed")
	store.CreateSearch(ctx, search)
	store.SaveSearchResult(ctx, &models.SearchResult{SearchID: search.ID, Timestamp: time.Now()})
	store.CreateExecution(ctx, &models.SearchExecution{SearchID: search.ID, Status: models.ExecutionStatusCompleted, StartedAt: time.Now()})

	if err := store.DeleteSearch(ctx, search.ID); err != nil {
		t.Fatalf("DeleteSearch: %v", err)
	}

	if got, _ := store.GetSearch(ctx, search.ID); got != nil {
		t.Error("search still present after delete")
	}
	if latest, _ := store.GetLatestSearchResult(ctx, search.ID); latest != nil {
		t.Error("results not cascaded")
	}
	if exec, _ := store.GetLatestExecution(ctx, search.ID); exec != nil {
		t.Error("executions not cascaded")
	}
}
