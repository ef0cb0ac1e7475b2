package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"jobradar/internal/config"
	"jobradar/internal/database"
	"jobradar/internal/database/migration"
	"jobradar/internal/database/postgres"
	"jobradar/internal/database/sqlite"
	"jobradar/internal/dedupe"
	"jobradar/internal/events"
	"jobradar/internal/fetcher"
	"jobradar/internal/pipeline"
	"jobradar/internal/ratelimit"
	"jobradar/internal/repository"
	"jobradar/internal/scheduler"
	"jobradar/internal/scraper"
	"jobradar/internal/ws"
)

// Container owns every long-lived component and the order they shut down
// in. Everything else receives its dependencies from here.
type Container struct {
	Cfg    config.Config
	Logger *log.Logger

	DB        database.DB
	rateStore *ratelimit.RedisStore

	Jobs    repository.JobRepository
	Configs repository.SearchConfigRepository
	RunLog  repository.ScrapeLogRepository

	Limiter   *ratelimit.Limiter
	Hub       *ws.Hub
	Publisher events.Publisher
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
}

func NewContainer(ctx context.Context, cfg config.Config) (*Container, error) {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	c := &Container{Cfg: cfg, Logger: logger}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.DB = db

	c.Jobs = repository.NewSQLJobRepository(db)
	c.Configs = repository.NewSQLSearchConfigRepository(db)
	c.RunLog = repository.NewSQLScrapeLogRepository(db)

	if err := c.Configs.SeedDefaults(ctx); err != nil {
		logger.Printf("[App] seed search configs failed | err=%v", err)
	}

	var store ratelimit.Store
	if cfg.RateLimit.RedisAddr != "" {
		rs, err := ratelimit.NewRedisStore(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, time.Hour, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.rateStore = rs
		store = rs
		logger.Printf("[App] rate limit state | store=redis addr=%s", cfg.RateLimit.RedisAddr)
	} else {
		store = ratelimit.NewMemoryStore()
		logger.Printf("[App] rate limit state | store=memory")
	}
	c.Limiter = ratelimit.New(store, ratelimit.Options{
		HourlyCap: cfg.RateLimit.HourlyCap,
		BaseDelay: cfg.RateLimit.BaseDelay,
		MaxDelay:  cfg.RateLimit.MaxDelay,
	})

	c.Hub = ws.NewHub(logger)
	notifier := ws.NewNotifier(c.Hub)

	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.EnrichSubject, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Publisher = pub
	} else {
		c.Publisher = events.NoopPublisher{}
		logger.Printf("[App] enrichment queue disabled | reason=no NATS_URL")
	}

	c.Scheduler = scheduler.New(logger)

	progress := func(task, source, message string, current, total int) {
		c.Scheduler.SetProgress(task, current, total, message)
		notifier.Publish(ws.ProgressEvent{
			Task:    task,
			Source:  source,
			Message: message,
			Current: current,
			Total:   total,
		})
	}

	c.Pipeline = pipeline.New(pipeline.Params{
		Jobs:    c.Jobs,
		Configs: c.Configs,
		RunLog:  c.RunLog,
		Dedupe:  dedupe.NewEngine(c.Jobs, dedupe.DefaultThreshold, logger),
		Browser: scraper.NewNavigator(c.Limiter, logger, scraper.Options{
			Headless:        cfg.Scraper.Headless,
			MaxPages:        cfg.Scraper.MaxPages,
			NavigateTimeout: cfg.Scraper.NavigateTimeout,
			PageIdleTimeout: cfg.Scraper.PageIdleTimeout,
		}),
		Crawler:   scraper.NewHTTPSource(c.Limiter, logger, cfg.Scraper.MaxPages),
		Fetcher:   fetcher.New(c.Limiter, logger),
		Publisher: c.Publisher,
		Progress:  progress,
		Logger:    logger,
	})

	if err := c.registerTasks(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Container) registerTasks() error {
	intervals := map[string]int{
		scheduler.TaskScrape:       c.Cfg.Scheduler.ScrapeIntervalMin,
		scheduler.TaskDescriptions: c.Cfg.Scheduler.DescriptionsIntervalMin,
		scheduler.TaskEnrichment:   c.Cfg.Scheduler.EnrichmentIntervalMin,
	}
	runners := map[string]scheduler.Runner{
		scheduler.TaskScrape: func(ctx context.Context) (string, error) {
			s, err := c.Pipeline.RunScrape(ctx, pipeline.ScrapeParams{})
			return fmt.Sprintf("runs=%d found=%d added=%d updated=%d skipped=%d failed=%d",
				s.Runs, s.Found, s.Added, s.Updated, s.Skipped, s.Failed), err
		},
		scheduler.TaskDescriptions: func(ctx context.Context) (string, error) {
			s, err := c.Pipeline.FetchDescriptions(ctx, 50)
			return fmt.Sprintf("candidates=%d updated=%d missed=%d", s.Candidates, s.Updated, s.Missed), err
		},
		scheduler.TaskEnrichment: func(ctx context.Context) (string, error) {
			s, err := c.Pipeline.TriggerEnrichment(ctx, 100)
			return fmt.Sprintf("queued=%d failed=%d", s.Queued, s.Failed), err
		},
	}
	for name, run := range runners {
		min := intervals[name]
		if min <= 0 {
			min = 60
		}
		if err := c.Scheduler.Register(name, time.Duration(min)*time.Minute, run); err != nil {
			return err
		}
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.Config, logger *log.Logger) (database.DB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		runner := migration.Runner{Dir: "migrations", Logger: logger}
		if err := runner.Run(ctx, db.SQLDB()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Printf("[App] database ready | driver=postgres")
		return db, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Database.SQLitePath, err)
		}
		logger.Printf("[App] database ready | driver=sqlite path=%s", cfg.Database.SQLitePath)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Database.Driver)
	}
}

func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.rateStore != nil {
		_ = c.rateStore.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
