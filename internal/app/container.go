// Package app provides the dependency injection container for the application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/infra/config"
	"github.com/runoshun/research-crew/internal/infra/gitstore"
	"github.com/runoshun/research-crew/internal/infra/ids"
	"github.com/runoshun/research-crew/internal/infra/jsonstore"
	"github.com/runoshun/research-crew/internal/infra/logging"
	"github.com/runoshun/research-crew/internal/infra/pgstore"
	"github.com/runoshun/research-crew/internal/infra/sqlitestore"
	"github.com/runoshun/research-crew/internal/usecase"
	"github.com/runoshun/research-crew/internal/usecase/shared"
)

// Config holds the application paths.
type Config struct {
	DataDir   string // Path to the .rcrew directory
	StorePath string // Resolved store file or repository path (empty for postgres)
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
// Components that coordinate writers (locks, engine) are created once and
// shared by every use case so one process serializes its own writes.
type Container struct {
	// Ports (interfaces bound to implementations)
	Store         domain.Store
	Clock         domain.Clock
	IDs           domain.IDGenerator
	Logger        domain.Logger
	ConfigLoader  domain.ConfigLoader
	ConfigManager domain.ConfigManager

	// Pointer fields
	AppConfig *domain.Config
	Diag      *slog.Logger // Process diagnostics on stderr
	locks     *shared.KeyedLocker
	resolver  *shared.Resolver
	sync      *shared.SessionSync
	engine    *shared.Engine
	detector  *shared.Detector
	closers   []io.Closer

	// Configuration
	Config Config
}

// New creates a new Container for the given data directory.
// It loads the merged configuration and opens the configured store backend.
// The caller must call Close.
func New(ctx context.Context, dataDir string) (*Container, error) {
	configLoader := config.NewLoader(dataDir)
	appConfig, err := configLoader.Load()
	if err != nil {
		return nil, err
	}

	cfg := Config{
		DataDir:   dataDir,
		StorePath: ResolveStorePath(dataDir, appConfig.Store),
	}

	store, err := OpenStore(ctx, cfg.StorePath, appConfig.Store)
	if err != nil {
		return nil, err
	}

	logger := logging.New(dataDir, logging.ParseLevel(appConfig.Log.Level))
	diag := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(appConfig.Log.Level),
	}))

	c := newContainer(cfg, appConfig, store, domain.RealClock{}, ids.UUIDGenerator{}, logger, diag)
	c.ConfigLoader = configLoader
	c.ConfigManager = config.NewManager(dataDir)
	c.closers = append(c.closers, store, logger)
	return c, nil
}

// NewWithDeps creates a new Container with custom dependencies for testing.
// The store is not closed by Close.
func NewWithDeps(cfg Config, appConfig *domain.Config, store domain.Store, clock domain.Clock, idGen domain.IDGenerator, logger domain.Logger) *Container {
	if appConfig == nil {
		appConfig = domain.NewDefaultConfig()
	}
	if logger == nil {
		logger = domain.NopLogger{}
	}
	diag := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newContainer(cfg, appConfig, store, clock, idGen, logger, diag)
}

func newContainer(cfg Config, appConfig *domain.Config, store domain.Store, clock domain.Clock, idGen domain.IDGenerator, logger domain.Logger, diag *slog.Logger) *Container {
	c := &Container{
		Store:     store,
		Clock:     clock,
		IDs:       idGen,
		Logger:    logger,
		AppConfig: appConfig,
		Diag:      diag,
		Config:    cfg,
	}

	timeout := c.storeTimeout()
	retry := shared.DefaultRetryPolicy()
	retry.Attempts = max(appConfig.Tasks.TransientAttempts, 1)

	c.locks = shared.NewKeyedLocker()
	c.resolver = shared.NewResolver(store, timeout)
	c.sync = shared.NewSessionSync(store, store, c.locks, clock, logger, timeout)
	c.engine = shared.NewEngine(store, c.resolver, c.sync, c.locks, clock, logger, shared.EngineOptions{
		Retry:        retry,
		StoreTimeout: timeout,
	})
	c.detector = shared.NewDetector(store, clock, timeout)
	return c
}

// ResolveStorePath returns the store location for the configured backend.
// A relative [store] path is resolved against the data directory.
func ResolveStorePath(dataDir string, sc domain.StoreConfig) string {
	if sc.Backend == domain.BackendPostgres {
		return ""
	}
	if sc.Path == "" {
		return domain.DefaultStorePath(dataDir, sc.Backend)
	}
	if filepath.IsAbs(sc.Path) {
		return sc.Path
	}
	return filepath.Join(dataDir, sc.Path)
}

// OpenStore opens the backend named by sc.Backend.
func OpenStore(ctx context.Context, path string, sc domain.StoreConfig) (domain.Store, error) {
	switch sc.Backend {
	case domain.BackendJSON, "":
		return jsonstore.New(path), nil
	case domain.BackendGit:
		s, err := gitstore.New(path, sc.Namespace)
		if err != nil {
			return nil, err
		}
		return s, nil
	case domain.BackendSQLite:
		s, err := sqlitestore.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case domain.BackendPostgres:
		if sc.DSN == "" {
			return nil, fmt.Errorf("[store] dsn is required for the postgres backend: %w", domain.ErrValidation)
		}
		schema := sc.Namespace
		if schema == "" {
			schema = domain.DefaultNamespace
		}
		s, err := pgstore.Open(ctx, sc.DSN, schema)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, sc.Backend)
	}
}

// Close releases the store and log files opened by New.
func (c *Container) Close() error {
	var firstErr error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

func (c *Container) storeTimeout() time.Duration {
	if c.AppConfig.Store.Timeout > 0 {
		return c.AppConfig.Store.Timeout
	}
	return domain.DefaultStoreTimeout
}

// UseCase factory methods

// InitStoreUseCase returns a new InitStore use case.
func (c *Container) InitStoreUseCase() *usecase.InitStore {
	return usecase.NewInitStore(c.Store, c.ConfigManager)
}

// ShowConfigUseCase returns a new ShowConfig use case.
func (c *Container) ShowConfigUseCase() *usecase.ShowConfig {
	return usecase.NewShowConfig(c.ConfigManager, c.ConfigLoader)
}

// InitConfigUseCase returns a new InitConfig use case.
func (c *Container) InitConfigUseCase() *usecase.InitConfig {
	return usecase.NewInitConfig(c.ConfigManager)
}

// CreateSessionUseCase returns a new CreateSession use case.
func (c *Container) CreateSessionUseCase() *usecase.CreateSession {
	return usecase.NewCreateSession(c.Store, c.IDs, c.Clock, c.Logger, c.storeTimeout())
}

// ListSessionsUseCase returns a new ListSessions use case.
func (c *Container) ListSessionsUseCase() *usecase.ListSessions {
	return usecase.NewListSessions(c.Store, c.storeTimeout())
}

// DeleteSessionUseCase returns a new DeleteSession use case.
func (c *Container) DeleteSessionUseCase() *usecase.DeleteSession {
	return usecase.NewDeleteSession(c.Store, c.locks, c.Logger, c.storeTimeout())
}

// CreateTaskUseCase returns a new CreateTask use case.
func (c *Container) CreateTaskUseCase() *usecase.CreateTask {
	return usecase.NewCreateTask(c.Store, c.Store, c.sync, c.locks, c.IDs, c.Clock, c.Logger, usecase.CreateTaskOptions{
		StoreTimeout: c.storeTimeout(),
		MaxRetries:   c.AppConfig.Tasks.MaxRetries,
		RejectCycles: c.AppConfig.Tasks.RejectCycles,
	})
}

// AddDependencyUseCase returns a new AddDependency use case.
func (c *Container) AddDependencyUseCase() *usecase.AddDependency {
	return usecase.NewAddDependency(c.Store, c.engine, c.locks, c.Logger, c.storeTimeout(), c.AppConfig.Tasks.RejectCycles)
}

// DeleteTaskUseCase returns a new DeleteTask use case.
func (c *Container) DeleteTaskUseCase() *usecase.DeleteTask {
	return usecase.NewDeleteTask(c.Store, c.sync, c.locks, c.Logger, c.storeTimeout())
}

// TransitionTaskUseCase returns a new TransitionTask use case.
func (c *Container) TransitionTaskUseCase() *usecase.TransitionTask {
	return usecase.NewTransitionTask(c.engine, c.resolver)
}

// UpdateProgressUseCase returns a new UpdateProgress use case.
func (c *Container) UpdateProgressUseCase() *usecase.UpdateProgress {
	return usecase.NewUpdateProgress(c.engine)
}

// CompleteTaskUseCase returns a new CompleteTask use case.
func (c *Container) CompleteTaskUseCase() *usecase.CompleteTask {
	return usecase.NewCompleteTask(c.engine, c.resolver)
}

// FailTaskUseCase returns a new FailTask use case.
func (c *Container) FailTaskUseCase() *usecase.FailTask {
	return usecase.NewFailTask(c.engine)
}

// RetryTaskUseCase returns a new RetryTask use case.
func (c *Container) RetryTaskUseCase() *usecase.RetryTask {
	return usecase.NewRetryTask(c.engine)
}

// CancelTaskUseCase returns a new CancelTask use case.
func (c *Container) CancelTaskUseCase() *usecase.CancelTask {
	return usecase.NewCancelTask(c.engine)
}

// ShowTaskUseCase returns a new ShowTask use case.
func (c *Container) ShowTaskUseCase() *usecase.ShowTask {
	return usecase.NewShowTask(c.Store, c.Store, c.resolver, c.storeTimeout())
}

// ListSessionTasksUseCase returns a new ListSessionTasks use case.
func (c *Container) ListSessionTasksUseCase() *usecase.ListSessionTasks {
	return usecase.NewListSessionTasks(c.Store, c.Store, c.storeTimeout())
}

// ReadyTasksUseCase returns a new ReadyTasks use case.
func (c *Container) ReadyTasksUseCase() *usecase.ReadyTasks {
	return usecase.NewReadyTasks(c.Store, c.resolver, c.storeTimeout())
}

// SessionProgressUseCase returns a new SessionProgress use case.
func (c *Container) SessionProgressUseCase() *usecase.SessionProgress {
	return usecase.NewSessionProgress(c.Store, c.Store, c.storeTimeout())
}

// SessionDashboardUseCase returns a new SessionDashboard use case.
func (c *Container) SessionDashboardUseCase() *usecase.SessionDashboard {
	return usecase.NewSessionDashboard(c.Store, c.Store, c.Clock, c.storeTimeout(), c.AppConfig.Tasks.StaleAfter)
}

// RecentChangesUseCase returns a new RecentChanges use case.
func (c *Container) RecentChangesUseCase() *usecase.RecentChanges {
	return usecase.NewRecentChanges(c.Store, c.Clock, c.storeTimeout())
}

// FindStaleUseCase returns a new FindStale use case.
func (c *Container) FindStaleUseCase() *usecase.FindStale {
	return usecase.NewFindStale(c.detector, c.Clock, c.AppConfig.Tasks.StaleAfter)
}

// MarkStaleUseCase returns a new MarkStale use case.
func (c *Container) MarkStaleUseCase() *usecase.MarkStale {
	return usecase.NewMarkStale(c.detector, c.engine, c.Clock, c.Logger, c.AppConfig.Tasks.StaleAfter)
}

// SweepStaleUseCase returns a new SweepStale use case.
// stdout receives one line per sweep.
func (c *Container) SweepStaleUseCase(stdout io.Writer) *usecase.SweepStale {
	return usecase.NewSweepStale(c.MarkStaleUseCase(), stdout)
}

// ApplyPlanUseCase returns a new ApplyPlan use case.
func (c *Container) ApplyPlanUseCase() *usecase.ApplyPlan {
	return usecase.NewApplyPlan(c.CreateSessionUseCase(), c.CreateTaskUseCase(), c.Store, c.storeTimeout())
}
