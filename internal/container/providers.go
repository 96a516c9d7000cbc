package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/routing"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/directory"
	"github.com/garyjia/approval-engine/internal/infrastructure/export"
	"github.com/garyjia/approval-engine/internal/infrastructure/messaging"
	"github.com/garyjia/approval-engine/internal/infrastructure/metrics"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/pkg/database"
	"github.com/garyjia/approval-engine/pkg/utils"
)

// MemberStore is the members table: a role directory that can be seeded
type MemberStore interface {
	port.RoleDirectory
	Upsert(ctx context.Context, m entity.Membership) error
}

// StoreBundle holds the persistence layer for one driver.
type StoreBundle struct {
	TxManager port.TransactionManager
	Chains    port.ChainRepository
	Requests  port.RequestRepository
	Actions   port.ActionRepository
	Members   MemberStore

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the database connection
func (b *StoreBundle) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the database connections
func (b *StoreBundle) Close() error {
	return b.close()
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Workflow     service.WorkflowService
	Chains       service.ChainService
	Notification service.NotificationService
}

// ProvideStore opens the configured database, runs the embedded migrations
// and builds the repositories.
func ProvideStore(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dbCfg := database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}

	switch cfg.Driver {
	case database.DriverSQLite:
		return provideSQLite(dbCfg, logger)
	case database.DriverPostgres:
		return providePostgres(ctx, dbCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func provideSQLite(cfg database.Config, logger *zap.Logger) (*StoreBundle, error) {
	sqlDB, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := migrate(sqlDB, database.DriverSQLite, logger); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := sqlite.NewDB(sqlDB.DB, logger)
	return &StoreBundle{
		TxManager: db,
		Chains:    sqlite.NewChainRepository(db, logger),
		Requests:  sqlite.NewRequestRepository(db, logger),
		Actions:   sqlite.NewActionRepository(db, logger),
		Members:   sqlite.NewMemberRepository(db, logger),
		ping:      sqlDB.PingContext,
		close:     sqlDB.Close,
	}, nil
}

func providePostgres(ctx context.Context, cfg database.Config, logger *zap.Logger) (*StoreBundle, error) {
	pool, err := database.NewPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sqlDB := database.FromPool(pool, logger)
	if err := migrate(sqlDB, database.DriverPostgres, logger); err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, err
	}

	db := postgres.NewDB(pool, logger)
	return &StoreBundle{
		TxManager: db,
		Chains:    postgres.NewChainRepository(db, logger),
		Requests:  postgres.NewRequestRepository(db, logger),
		Actions:   postgres.NewActionRepository(db, logger),
		Members:   postgres.NewMemberRepository(db, logger),
		ping:      pool.Ping,
		close: func() error {
			err := sqlDB.Close()
			pool.Close()
			return err
		},
	}, nil
}

func migrate(db *database.DB, driver string, logger *zap.Logger) error {
	fsys, err := database.EmbeddedMigrations(driver)
	if err != nil {
		return err
	}
	if err := database.NewMigrator(db, logger).RunMigrations(fsys); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ProvideDirectory builds the role directory with lookup retries. With the
// database source, configured members are upserted into the members table.
func ProvideDirectory(ctx context.Context, cfg *DirectoryConfig, members MemberStore, logger *zap.Logger) (port.RoleDirectory, error) {
	var base port.RoleDirectory
	switch cfg.Source {
	case "database":
		for _, m := range cfg.Members {
			if err := members.Upsert(ctx, m); err != nil {
				return nil, fmt.Errorf("seed member %s: %w", m.UserID, err)
			}
		}
		if len(cfg.Members) > 0 {
			logger.Info("Seeded company members", zap.Int("count", len(cfg.Members)))
		}
		base = members
	case "static":
		base = directory.NewStatic(cfg.Members)
	default:
		return nil, fmt.Errorf("unsupported directory source %q", cfg.Source)
	}

	return directory.NewRetrying(base, directory.RetryConfig{
		MaxAttempts:    cfg.LookupAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}, logger), nil
}

// ProvidePublisher connects to NATS when enabled, otherwise logs events.
// The returned close function is never nil.
func ProvidePublisher(cfg *MessagingConfig, logger *zap.Logger) (port.EventPublisher, func() error, error) {
	if !cfg.Enabled {
		logger.Info("NATS disabled, approval events are logged only")
		return messaging.NewLogPublisher(logger), func() error { return nil }, nil
	}

	pub, err := messaging.Connect(messaging.Config{
		URL:           cfg.URL,
		SubjectPrefix: cfg.SubjectPrefix,
		ClientName:    cfg.ClientName,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, pub.Close, nil
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKeyValueLogger(logger.Named("dispatcher"))))
}

// ServiceDeps holds what ProvideServices wires together
type ServiceDeps struct {
	Store      *StoreBundle
	Directory  port.RoleDirectory
	Publisher  port.EventPublisher
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Recorder // optional
	Logger     *zap.Logger
}

// ProvideServices builds the routing components, the workflow engine and the
// application services, and subscribes notification and metrics handlers.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps.Store == nil || deps.Directory == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("store, directory and dispatcher are required")
	}

	logger := utils.NewKeyValueLogger(deps.Logger)
	selector := routing.NewSelector(deps.Store.Chains, logger)
	materializer := routing.NewMaterializer(deps.Directory, logger)

	engine := workflow.NewEngine(
		deps.Store.Requests,
		deps.Store.Actions,
		deps.Store.TxManager,
		materializer,
		logger,
		workflow.WithDispatcher(deps.Dispatcher),
	)

	notifications := service.NewNotificationService(deps.Store.Requests, materializer, deps.Publisher, logger)
	notifications.Register(deps.Dispatcher)

	if deps.Metrics != nil {
		deps.Dispatcher.SubscribeAll("metrics", deps.Metrics.Handle)
	}

	return &ServiceBundle{
		Workflow: service.NewWorkflowService(service.WorkflowDeps{
			Selector:     selector,
			Materializer: materializer,
			Engine:       engine,
			Requests:     deps.Store.Requests,
			Actions:      deps.Store.Actions,
			Directory:    deps.Directory,
			TxManager:    deps.Store.TxManager,
			Dispatcher:   deps.Dispatcher,
			Exporter:     export.NewXLSXExporter(deps.Logger),
			Logger:       logger,
		}),
		Chains:       service.NewChainService(deps.Store.Chains, deps.Store.TxManager, logger),
		Notification: notifications,
	}, nil
}
