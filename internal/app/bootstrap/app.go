package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/salon-booking-platform/internal/api/router"
	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/audit"
	"github.com/wolfman30/salon-booking-platform/internal/calendar"
	"github.com/wolfman30/salon-booking-platform/internal/catalog"
	appconfig "github.com/wolfman30/salon-booking-platform/internal/config"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/livefeed"
	"github.com/wolfman30/salon-booking-platform/internal/notify"
	"github.com/wolfman30/salon-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/salon-booking-platform/internal/payments/promptpay"
	"github.com/wolfman30/salon-booking-platform/internal/points"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// App is the assembled booking service.
type App struct {
	Handler   http.Handler
	Service   *appointments.Service
	Bus       *events.Bus
	Settings  settings.Writer
	Deliverer *events.Deliverer

	pool    *pgxpool.Pool
	redis   *redis.Client
	auditDB *sql.DB
	logger  *logging.Logger
}

// Run starts background delivery and blocks until ctx is done.
func (a *App) Run(ctx context.Context) {
	if a.Deliverer == nil {
		<-ctx.Done()
		return
	}
	a.Deliverer.Start(ctx)
}

// Close releases every connection the app opened.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.auditDB != nil {
		_ = a.auditDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Build wires stores, subscribers and HTTP handlers from configuration.
// USE_MEMORY_STORE selects in-process stores with synchronous event
// delivery; otherwise Postgres backs everything and events flow through
// the outbox.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load timezone %q: %w", cfg.Timezone, err)
	}

	app := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	bookingMetrics := metrics.NewBookingMetrics(reg)
	ready := map[string]router.Pinger{}

	// Settings.
	var (
		settingsStore    settings.Provider
		settingsWriter   settings.Writer
		settingsCacheTTL = cfg.SettingsCacheTTL
	)
	if app.redis = BuildRedisClient(ctx, cfg, logger, true); app.redis != nil {
		rs := settings.NewRedisStore(app.redis)
		settingsStore, settingsWriter = rs, rs
		client := app.redis
		ready["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		ms := settings.NewMemoryStore()
		settingsStore, settingsWriter = ms, ms
		logger.Warn("settings kept in memory; changes are lost on restart")
	}
	provider := settings.NewCachedProvider(settingsStore, settingsCacheTTL)
	app.Settings = settingsWriter

	// Storage and event delivery.
	var (
		repo          appointments.Repository
		customerStore customers.Store
		cat           catalog.Catalog
		processed     events.ProcessedTracker
	)
	if cfg.UseMemoryStore {
		processed = events.NewMemoryProcessedStore()
		app.Bus = events.NewBus(processed, logger).WithMetrics(bookingMetrics)
		repo = appointments.NewInMemoryRepository(events.NewSyncPublisher(app.Bus, logger), logger)
		customerStore = customers.NewMemoryStore()
		services, err := LoadCatalogFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		cat = catalog.NewMemoryCatalog(services...)
		logger.Info("using in-memory stores", "services", len(services))
	} else {
		pool, err := BuildPostgresPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.pool = pool
		ready["postgres"] = pool.Ping

		processed = events.NewProcessedStore(pool)
		app.Bus = events.NewBus(processed, logger).WithMetrics(bookingMetrics)
		repo = appointments.NewPostgresRepository(pool)
		customerStore = customers.NewPostgresStore(pool)
		cat = catalog.NewPostgresCatalog(pool)
		app.Deliverer = events.NewDeliverer(events.NewOutboxStore(pool), app.Bus, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxInterval)
	}

	directory := customers.NewDirectory(customerStore, logger)
	app.Service = appointments.NewService(
		repo,
		appointments.NewChecker(repo, provider),
		cat,
		logger,
		appointments.WithCustomerResolver(directory),
		appointments.WithMetrics(bookingMetrics),
		appointments.WithLocation(loc),
	)

	// Notifications.
	var awsCfg *aws.Config
	if cfg.EmailProvider == "ses" || cfg.SESFromEmail != "" || cfg.EventsQueueURL != "" {
		loaded, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		awsCfg = &loaded
	}
	dispatcherOpts := []notify.DispatcherOption{notify.WithDispatcherMetrics(bookingMetrics)}
	line, err := BuildLineClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if line != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithLine(line, cfg.LineAdminTargets))
	} else {
		logger.Warn("LINE messaging disabled: LINE_CHANNEL_TOKEN not set")
	}
	email, emailProvider, err := BuildEmailSender(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	if email != nil && cfg.AdminEmail != "" {
		dispatcherOpts = append(dispatcherOpts, notify.WithAdminEmail(email, cfg.AdminEmail))
		logger.Info("admin email enabled", "provider", emailProvider)
	}
	notifier := notify.NewSubscriber(notify.NewDispatcher(provider, logger, dispatcherOpts...), cfg.PublicBaseURL)
	// Separate consumers so a failed admin route never re-sends a customer message.
	app.Bus.Subscribe("notify-customer", notifier.ForChannel(settings.ChannelCustomer), notify.EventTypes...)
	app.Bus.Subscribe("notify-admin", notifier.ForChannel(settings.ChannelAdmin), notify.EventTypes...)

	ledger := points.NewLedger(directory, provider, logger, points.WithCompletionNotifier(notifier))
	app.Bus.Subscribe("points", ledger, points.EventTypes...)

	// Calendar.
	cal, err := calendar.New(ctx, calendar.Config{
		CalendarID:      cfg.GoogleCalendarID,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Timezone:        cfg.Timezone,
		Endpoint:        cfg.GoogleCalendarEndpoint,
		Timeout:         cfg.CalendarRequestTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cal.Enabled() {
		app.Bus.Subscribe("calendar", calendar.NewSubscriber(cal, app.Service, provider, logger), calendar.EventTypes...)
	} else {
		logger.Info("calendar sync disabled: GOOGLE_CALENDAR_ID not set")
	}

	// Live feed.
	hub := livefeed.NewHub(logger,
		livefeed.WithSnapshot(app.Service, loc),
		livefeed.WithAllowedOrigins(cfg.CORSOrigins),
	)
	app.Bus.Subscribe("livefeed", hub, livefeed.EventTypes...)

	// Audit trail.
	var auditHandler *audit.Handler
	if !cfg.UseMemoryStore {
		db, err := BuildAuditDB(cfg)
		if err != nil {
			return nil, err
		}
		if db != nil {
			app.auditDB = db
			ready["audit"] = db.PingContext
			trail := audit.NewService(db)
			app.Bus.Subscribe("audit", trail, audit.EventTypes...)
			auditHandler = audit.NewHandler(trail, logger)
		}
	}

	// Downstream queue.
	if cfg.EventsQueueURL != "" && awsCfg != nil {
		forwarder := events.NewSQSForwarder(sqs.NewFromConfig(*awsCfg), cfg.EventsQueueURL)
		app.Bus.Subscribe("sqs", forwarder)
	}

	lineVerifier, err := BuildLineVerifier(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.LineTrustUserHeader:
		logger.Warn("trusting unverified X-Line-User-Id headers; development only")
	case lineVerifier == nil:
		logger.Warn("LINE login disabled: LINE_LOGIN_CHANNEL_ID not set, customer requests are anonymous")
	}

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Appointments:       appointments.NewHandler(app.Service, logger),
		Customers:          customers.NewHandler(directory, logger),
		Settings:           settings.NewHandler(provider, settingsWriter, provider, logger),
		PromptPay:          promptpay.NewHandler(app.Service, provider, logger),
		Audit:              auditHandler,
		LiveFeed:           hub,
		Ready:              ready,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		LineVerifier:       lineVerifier,
		TrustLineHeader:    cfg.LineTrustUserHeader,
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimitRPS:       float64(cfg.RateLimitRPS),
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	ok = true
	return app, nil
}
