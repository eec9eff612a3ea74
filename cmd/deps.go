package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	auditPostgres "github.com/frahmantamala/facilities-maintenance/internal/audit/postgres"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/auth/directory"
	authMemory "github.com/frahmantamala/facilities-maintenance/internal/auth/memory"
	authRedis "github.com/frahmantamala/facilities-maintenance/internal/auth/redis"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	callPostgres "github.com/frahmantamala/facilities-maintenance/internal/call/postgres"
	"github.com/frahmantamala/facilities-maintenance/internal/calltype"
	calltypePostgres "github.com/frahmantamala/facilities-maintenance/internal/calltype/postgres"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
	notificationPostgres "github.com/frahmantamala/facilities-maintenance/internal/notification/postgres"
	"github.com/frahmantamala/facilities-maintenance/internal/user"
	userPostgres "github.com/frahmantamala/facilities-maintenance/internal/user/postgres"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

// initDB opens the pgx-backed pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

func initRedis(ctx context.Context, cfg internal.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// App holds the wired services shared by the server and the workers.
type App struct {
	Config *internal.Config
	Logger *slog.Logger
	Clock  clock.Clock

	DB    *sqlx.DB
	Gorm  *gorm.DB
	Redis *goredis.Client

	Bus   *events.EventBus
	Queue *notification.Queue

	Audit         *audit.Recorder
	Auth          *auth.Service
	Users         *user.Service
	CallTypes     *calltype.Service
	Calls         *call.Service
	Coordinators  *notification.CoordinatorService
	Dispatcher    *notification.Dispatcher
	Records       *notificationPostgres.RecordRepository
	Notifier      *notification.Notifier
	EventHandler  *notification.EventHandler
	Redeliverer   *notification.Redeliverer
	IdentityStore *userPostgres.UserRepository
}

func newApp(ctx context.Context, cfg *internal.Config, lg *slog.Logger) (*App, error) {
	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: lg,
		Clock:  clock.Real(),
		DB:     db,
		Gorm:   gdb,
		Bus:    events.NewEventBus(lg),
	}

	var backend auth.Backend
	switch cfg.Session.Backend {
	case internal.SessionBackendRedis:
		client, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		app.Redis = client
		backend = authRedis.NewSessionBackend(client, cfg.Redis.KeyPrefix)
	default:
		lg.Warn("using in-memory session backend; sessions are lost on restart")
		backend = authMemory.NewSessionBackend(app.Clock)
	}

	app.Audit = audit.NewRecorder(auditPostgres.NewAuditRepository(db), lg, cfg.Audit.Timeout, app.Clock)

	identities := userPostgres.NewUserRepository(gdb)
	app.IdentityStore = identities

	csrf := auth.NewCSRFSigner(cfg.Security.SessionSecret)
	store := auth.NewSessionStore(backend, app.Clock, csrf, app.Audit, auth.StoreConfig{
		Timeout:              cfg.Session.Timeout,
		RegenerationInterval: cfg.Session.RegenerationInterval,
		RegenerationGrace:    cfg.Session.RegenerationGrace,
		StrictFingerprint:    cfg.Session.StrictFingerprint,
	}, lg)
	app.Auth = auth.NewService(newDirectory(cfg.Directory, gdb, lg), identities, store, csrf, app.Audit, app.Clock, cfg.Directory.Timeout, lg)
	app.Users = user.NewService(identities, app.Audit, cfg.Security.BCryptCost, lg)
	app.CallTypes = calltype.NewService(calltypePostgres.NewCallTypeRepository(gdb), lg)

	app.Calls = call.NewService(
		callPostgres.NewCallRepository(gdb),
		app.CallTypes,
		identities,
		app.Bus,
		app.Audit,
		app.Clock,
		lg,
	)

	coordinators := notificationPostgres.NewCoordinatorRepository(gdb)
	app.Coordinators = notification.NewCoordinatorService(coordinators, app.Audit, app.Clock, lg)

	app.Records = notificationPostgres.NewRecordRepository(gdb)
	app.Dispatcher = notification.NewDispatcher(
		app.Records,
		newMailer(cfg, lg),
		notification.NewRenderer(cfg.Mail.BaseURL),
		notification.DispatcherConfig{
			DeliveryMode: cfg.Notification.DeliveryMode,
			SendTimeout:  cfg.Notification.SendTimeout,
		},
		app.Clock,
		lg,
	)
	app.Notifier = notification.NewNotifier(notification.NewRouter(coordinators, lg), app.Dispatcher, identities, lg)
	app.Redeliverer = notification.NewRedeliverer(app.Dispatcher, app.Records, notification.RedelivererConfig{
		MaxAttempts: cfg.Notification.MaxAttempts,
		Interval:    cfg.Notification.RedeliveryInterval,
		Rate:        cfg.Notification.RedeliveryRate,
		StaleAfter:  cfg.Notification.PendingStaleAfter,
	}, lg)

	return app, nil
}

// StartNotifications starts the worker queue and subscribes it to call
// events.
func (a *App) StartNotifications() {
	a.Queue = notification.NewQueue(notification.QueueConfig{
		Workers: a.Config.Notification.Workers,
		Size:    a.Config.Notification.QueueSize,
	}, func(ctx context.Context, job notification.Job) {
		a.Notifier.Notify(ctx, job)
	}, a.Logger)

	a.EventHandler = notification.NewEventHandler(a.Queue, a.Logger)
	a.EventHandler.Register(a.Bus)
}

// Close drains in-flight work then releases connections.
func (a *App) Close(ctx context.Context) {
	a.Bus.Wait()
	if a.Queue != nil {
		if err := a.Queue.Shutdown(ctx); err != nil {
			a.Logger.Warn("notification queue did not drain before shutdown", "error", err, "pending", a.Queue.Len())
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
}

func newDirectory(cfg internal.DirectoryConfig, gdb *gorm.DB, lg *slog.Logger) auth.IdentityProvider {
	if cfg.Backend == internal.DirectoryBackendHTTP {
		lg.Info("using remote identity directory", "url", cfg.URL)
		return directory.NewHTTP(directory.HTTPConfig{
			BaseURL: cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, lg)
	}
	return directory.NewLocal(gdb)
}

func newMailer(cfg *internal.Config, lg *slog.Logger) notification.Mailer {
	if cfg.Notification.DeliveryMode == internal.DeliveryModeLogOnly {
		lg.Info("notification delivery is log only")
		return notification.NewLogMailer(lg)
	}
	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:        cfg.Mail.Host,
		Port:        cfg.Mail.Port,
		Username:    cfg.Mail.Username,
		Password:    cfg.Mail.Password,
		FromAddress: cfg.Mail.FromAddress,
		FromName:    cfg.Mail.FromName,
	})
}
