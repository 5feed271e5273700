package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"staywatch/booking"
	"staywatch/config"
	"staywatch/engine"
	"staywatch/httpapi"
	"staywatch/limiter"
	"staywatch/logging"
	"staywatch/models"
	"staywatch/notify"
	"staywatch/scheduler"
	"staywatch/storage"
)

var (
	runSearch = flag.String("run", "", "Run one search by name or id, then exit")
	runDue    = flag.Bool("run-due", false, "Run all due searches once and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogDir)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting staywatch...")

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	if err := seedSearches(ctx, store, cfg); err != nil {
		log.Fatalf("Failed to seed searches: %v", err)
	}

	client := booking.NewHTTPClient(booking.Config{
		BaseURL:     cfg.Booking.BaseURL,
		MetadataTTL: cfg.Booking.MetadataTTL,
	})

	eng := engine.New(
		store,
		client,
		buildNotifier(cfg),
		limiter.NewRateLimiter(rateConfig(cfg)),
		limiter.NewConcurrencyLimiter("probe", cfg.Limiter.MaxProbes),
		limiter.NewConcurrencyLimiter("search", cfg.Limiter.MaxSearches),
		retryConfig(cfg),
	)

	// One-shot modes
	if *runSearch != "" {
		search, err := resolveSearch(ctx, store, *runSearch)
		if err != nil {
			log.Fatalf("Failed to resolve search %q: %v", *runSearch, err)
		}
		if _, err := eng.ExecuteSearch(ctx, search.ID); err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		return
	}
	if *runDue {
		if err := eng.ExecuteAllDueSearches(ctx); err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(&cfg.Scheduler, eng)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := httpapi.NewServer(store, eng)
	go func() {
		if err := server.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	cancel()
	log.Println("Goodbye!")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		store, err := storage.NewPostgresStore(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to Postgres")
		return store, nil
	case "sqlite":
		store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		log.Printf("SQLite database: %s", cfg.Storage.DBPath)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	smtp := notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	}
	if smtp.Configured() {
		log.Printf("Email notifications via %s:%d", smtp.Host, smtp.Port)
		return notify.NewEmailNotifier(smtp)
	}
	log.Println("SMTP not configured, notifications go to stderr")
	return notify.NewConsoleNotifier()
}

func rateConfig(cfg *config.Config) limiter.RateLimiterConfig {
	rc := limiter.DefaultRateLimiterConfig()
	rc.MinDelay = time.Duration(cfg.Limiter.MinDelayMS) * time.Millisecond
	rc.MaxDelay = time.Duration(cfg.Limiter.MaxDelayMS) * time.Millisecond
	rc.Adaptive = cfg.Limiter.Adaptive
	return rc
}

func retryConfig(cfg *config.Config) limiter.RetryConfig {
	rc := limiter.DefaultRetryConfig()
	if cfg.Limiter.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.Limiter.RetryAttempts
	}
	return rc
}

// seedSearches creates searches declared in config/searches/*.yaml that do
// not exist yet. Existing searches are never overwritten, so edits made via
// the API survive restarts.
func seedSearches(ctx context.Context, store storage.Store, cfg *config.Config) error {
	for name, seed := range cfg.Searches {
		existing, err := store.GetSearchByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		search, err := seedToSearch(seed)
		if err != nil {
			return fmt.Errorf("seed search %q: %w", name, err)
		}
		if err := store.CreateSearch(ctx, search); err != nil {
			return fmt.Errorf("create seeded search %q: %w", name, err)
		}
		log.Printf("Seeded search %q from config", name)
	}
	return nil
}

func seedToSearch(seed *config.SeedSearch) (*models.Search, error) {
	search := &models.Search{
		Name:               seed.Name,
		Enabled:            true,
		StayLengths:        seed.StayLengths,
		Resorts:            seed.Resorts,
		AccommodationTypes: seed.AccommodationTypes,
		Schedule: models.Schedule{
			Frequency:  models.Frequency(seed.Frequency),
			CustomCron: seed.CustomCron,
		},
		Notifications: models.Notifications{
			Email:       seed.NotifyEmail,
			OnlyChanges: true,
		},
	}
	if seed.Enabled != nil {
		search.Enabled = *seed.Enabled
	}
	if seed.NotifyOnlyChanges != nil {
		search.Notifications.OnlyChanges = *seed.NotifyOnlyChanges
	}
	if search.Schedule.Frequency == "" {
		search.Schedule.Frequency = models.FrequencyHourly
	}

	for _, r := range seed.DateRanges {
		from, err := models.ParseDate(r.From)
		if err != nil {
			return nil, fmt.Errorf("date range from: %w", err)
		}
		to, err := models.ParseDate(r.To)
		if err != nil {
			return nil, fmt.Errorf("date range to: %w", err)
		}
		search.DateRanges = append(search.DateRanges, models.DateRange{From: from, To: to})
	}
	return search, nil
}

func resolveSearch(ctx context.Context, store storage.Store, ref string) (*models.Search, error) {
	if id, err := uuid.Parse(ref); err == nil {
		search, err := store.GetSearch(ctx, id)
		if err != nil {
			return nil, err
		}
		if search != nil {
			return search, nil
		}
	}
	search, err := store.GetSearchByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if search == nil {
		return nil, fmt.Errorf("no search named or identified by %q", ref)
	}
	return search, nil
}
