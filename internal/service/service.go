package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"salesanalysis/backend/internal/analysis"
	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/loader"
)

var (
	ErrNoData            = errors.New("no dataset loaded")
	ErrLoadInProgress    = errors.New("a load is already running for this mode")
	ErrUnknownMode       = errors.New("unknown data mode")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrDatasetChanged    = errors.New("dataset was replaced while the request ran")
	ErrInvalidTransition = analysis.ErrInvalidTransition
	ErrUnknownKey        = analysis.ErrUnknownKey
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// API is the part of the sheet API used outside the analysis pipeline.
type API interface {
	AllMasterData(ctx context.Context) (domain.MasterData, error)
	Activities(ctx context.Context) ([]domain.Activity, error)
	AddActivity(ctx context.Context, in domain.ActivityInput) (domain.MutationResult, error)
	UpdateActivity(ctx context.Context, id string, in domain.ActivityInput) (domain.MutationResult, error)
	DeleteActivity(ctx context.Context, id string) (domain.MutationResult, error)
	AddContact(ctx context.Context, in domain.ContactInput) (domain.MutationResult, error)
	ActionList(ctx context.Context, yearMonth string) ([]domain.ActionItem, error)
	UpdateActionStatus(ctx context.Context, yearMonth string, contactID string, status string) (domain.MutationResult, error)
	ProposalProducts(ctx context.Context, yearMonth string) ([]domain.ProposalProduct, error)
	PerformanceData(ctx context.Context) ([]domain.PerformanceRow, error)
	PerformanceRawData(ctx context.Context) ([]domain.PerformanceDetail, error)
	Goals(ctx context.Context, yearMonth string) (domain.Goals, error)
}

// CacheTTL bounds how long master and performance data are served from cache.
// Zero values fall back to a day.
type CacheTTL struct {
	Master      time.Duration
	Performance time.Duration
}

type Service struct {
	loader      *loader.Loader
	api         API
	store       *cache.Store
	master      cache.MasterCache
	masterTTL   time.Duration
	logger      *zap.Logger
	workspaces  map[domain.Mode]*Workspace
	actions     *actionBoard
	performance *performanceBoard
	location    *time.Location
}

func New(l *loader.Loader, api API, store *cache.Store, master cache.MasterCache, ttl CacheTTL, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if master == nil {
		master = cache.NewMemoryMasterCache(nil)
	}
	if ttl.Master <= 0 {
		ttl.Master = 24 * time.Hour
	}
	if ttl.Performance <= 0 {
		ttl.Performance = 24 * time.Hour
	}

	workspaces := make(map[domain.Mode]*Workspace, len(domain.Modes))
	for _, mode := range domain.Modes {
		workspaces[mode] = newWorkspace(mode)
	}

	return &Service{
		loader:      l,
		api:         api,
		store:       store,
		master:      master,
		masterTTL:   ttl.Master,
		logger:      logger.With(zap.String("component", "service")),
		workspaces:  workspaces,
		actions:     newActionBoard(),
		performance: newPerformanceBoard(ttl.Performance),
		location:    time.Local,
	}
}

func (s *Service) workspace(mode domain.Mode) (*Workspace, error) {
	ws, ok := s.workspaces[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return ws, nil
}

// Startup restores every mode from the persistent cache so data can be shown
// before any network round trip.
func (s *Service) Startup(ctx context.Context) {
	for _, mode := range domain.Modes {
		result, ok := s.loader.Restore(ctx, mode)
		if !ok {
			continue
		}
		ws := s.workspaces[mode]
		ws.mu.Lock()
		ws.commit(result)
		ws.mu.Unlock()
		s.logger.Info("dataset restored from cache",
			zap.String("mode", string(mode)),
			zap.Int("records", len(result.Dataset.Records)),
			zap.Time("loaded_at", result.Dataset.LoadedAt),
		)
	}
}

func (s *Service) Status(mode domain.Mode) (Status, error) {
	ws, err := s.workspace(mode)
	if err != nil {
		return Status{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.status(), nil
}

// Load replaces the mode's dataset with a fresh full fetch. The previous
// dataset stays in place until the new one is complete.
func (s *Service) Load(ctx context.Context, mode domain.Mode) (Status, error) {
	ws, err := s.workspace(mode)
	if err != nil {
		return Status{}, err
	}
	if !ws.loading.CompareAndSwap(false, true) {
		return Status{}, ErrLoadInProgress
	}
	defer ws.loading.Store(false)

	ws.mu.Lock()
	ws.progress = domain.LoadProgress{}
	ws.mu.Unlock()

	result, err := s.loader.Load(ctx, mode, func(p domain.LoadProgress) {
		ws.mu.Lock()
		ws.progress = p
		ws.mu.Unlock()
	})
	if err != nil {
		return Status{}, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.commit(result)
	ws.lastRunID = result.RunID
	ws.rerunSearch()
	return ws.status(), nil
}

// CheckStaleness records and returns whether the server has newer data than
// the cached copy. It never touches the dataset.
func (s *Service) CheckStaleness(ctx context.Context, mode domain.Mode) (domain.Staleness, error) {
	ws, err := s.workspace(mode)
	if err != nil {
		return domain.Staleness{}, err
	}
	staleness, err := s.loader.CheckStaleness(ctx, mode)
	if err != nil {
		return domain.Staleness{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	// an unpersisted load leaves an older timestamp in the cache
	if ws.loaded && ws.dataset.LoadedAt.After(staleness.CachedAt) {
		staleness = loader.Assess(staleness.ServerModified, ws.dataset.LoadedAt)
	}
	ws.staleness = staleness
	return staleness, nil
}

// Invalidate deletes the persisted dataset and forgets the in-memory copy.
func (s *Service) Invalidate(ctx context.Context, mode domain.Mode) (Status, error) {
	ws, err := s.workspace(mode)
	if err != nil {
		return Status{}, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !s.loader.Invalidate(ctx, mode) {
		s.logger.Warn("cache invalidation incomplete", zap.String("mode", string(mode)))
	}
	ws.clear()
	return ws.status(), nil
}
