// Package loader fetches full datasets from the sheet API, keeps the
// persistent cache in step with them and replaces provisional summary rows
// with detail rows on demand.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/xid"
)

const (
	DefaultChunkSize = 3000
	StaleNotice      = "新しいデータがあります - 「一括読み込み」を実行してください"
)

var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// API is the subset of the sheet API client the loader needs.
type API interface {
	SalesAnalysisData(ctx context.Context) ([]domain.TransactionRecord, error)
	OrderAnalysisPage(ctx context.Context, offset int, limit int) ([]domain.TransactionRecord, int, error)
	OrderDetailsByRep(ctx context.Context, repName string) ([]domain.TransactionRecord, error)
	CustomerPhones(ctx context.Context) (domain.ReferenceData, error)
	SheetLastModified(ctx context.Context) (time.Time, error)
}

type ProgressFunc func(domain.LoadProgress)

type Result struct {
	RunID     string               `json:"run_id"`
	Dataset   domain.Dataset       `json:"dataset"`
	Reference domain.ReferenceData `json:"reference"`
	// ReferenceFresh is false when the reference fetch failed and Reference
	// came from the cache (or is empty).
	ReferenceFresh bool `json:"reference_fresh"`
	// Persisted is false when the dataset could not be written to the cache.
	// The in-memory dataset is valid either way.
	Persisted bool `json:"persisted"`
}

type Loader struct {
	api       API
	cache     *cache.Store
	chunkSize int
	logger    *zap.Logger
	now       func() time.Time
	details   singleflight.Group
}

func New(api API, store *cache.Store, chunkSize int, logger *zap.Logger) (*Loader, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 0 {
		return nil, ErrInvalidChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		api:       api,
		cache:     store,
		chunkSize: chunkSize,
		logger:    logger.With(zap.String("component", "loader")),
		now:       time.Now,
	}, nil
}

// Load fetches the whole dataset for mode. Reference data is fetched
// concurrently and both requests settle before Load returns. Any failure of
// the primary fetch discards everything accumulated so far.
func (l *Loader) Load(ctx context.Context, mode domain.Mode, onProgress ProgressFunc) (*Result, error) {
	runID := xid.New("load")
	logger := l.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))
	started := l.now()

	var (
		records   []domain.TransactionRecord
		reference domain.ReferenceData
		refOK     bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := l.api.CustomerPhones(gctx)
		if err != nil {
			logger.Warn("reference fetch failed", zap.Error(err))
			return nil
		}
		reference = ref
		refOK = true
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = l.fetch(gctx, mode, onProgress)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warn("load failed", zap.Error(err))
		return nil, fmt.Errorf("load %s data: %w", mode, err)
	}

	loadedAt := l.now().UTC()
	result := &Result{
		RunID:          runID,
		Dataset:        domain.Dataset{Mode: mode, Records: records, LoadedAt: loadedAt},
		Reference:      reference,
		ReferenceFresh: refOK,
	}

	result.Persisted = l.cache.SaveSnapshot(ctx, cache.DatasetKey(mode), cache.TimestampKey(mode), records, loadedAt)
	if refOK {
		l.cache.SetJSON(ctx, cache.ReferenceKey, reference)
	} else {
		l.cache.GetJSON(ctx, cache.ReferenceKey, &result.Reference)
	}

	logger.Info("load finished",
		zap.Int("records", len(records)),
		zap.Bool("persisted", result.Persisted),
		zap.Bool("reference_fresh", refOK),
		zap.Duration("elapsed", l.now().Sub(started)),
	)
	return result, nil
}

func (l *Loader) fetch(ctx context.Context, mode domain.Mode, onProgress ProgressFunc) ([]domain.TransactionRecord, error) {
	if !mode.Chunked() {
		records, err := l.api.SalesAnalysisData(ctx)
		if err != nil {
			return nil, err
		}
		report(onProgress, len(records), len(records))
		return records, nil
	}

	var (
		records []domain.TransactionRecord
		offset  int
	)
	for {
		chunk, total, err := l.api.OrderAnalysisPage(ctx, offset, l.chunkSize)
		if err != nil {
			return nil, fmt.Errorf("chunk at offset %d: %w", offset, err)
		}
		records = append(records, chunk...)
		report(onProgress, len(records), total)

		if len(chunk) < l.chunkSize || len(records) >= total {
			return records, nil
		}
		offset += l.chunkSize
	}
}

func report(onProgress ProgressFunc, loaded int, total int) {
	if onProgress == nil {
		return
	}
	progress := domain.LoadProgress{Loaded: loaded, Total: total}
	if total > 0 {
		progress.Fraction = float64(loaded) / float64(total)
	}
	onProgress(progress)
}

// Restore reads the last persisted dataset for mode. The second return value
// is false when nothing usable is cached.
func (l *Loader) Restore(ctx context.Context, mode domain.Mode) (*Result, bool) {
	var records []domain.TransactionRecord
	if !l.cache.GetJSON(ctx, cache.DatasetKey(mode), &records) {
		return nil, false
	}
	loadedAt, _ := l.cache.Timestamp(ctx, cache.TimestampKey(mode))

	result := &Result{
		Dataset:   domain.Dataset{Mode: mode, Records: records, LoadedAt: loadedAt},
		Persisted: true,
	}
	l.cache.GetJSON(ctx, cache.ReferenceKey, &result.Reference)
	return result, true
}

// CheckStaleness compares the server's last-modified time with the cached
// timestamp. A missing timestamp counts as the epoch.
func (l *Loader) CheckStaleness(ctx context.Context, mode domain.Mode) (domain.Staleness, error) {
	serverModified, err := l.api.SheetLastModified(ctx)
	if err != nil {
		l.logger.Warn("staleness check failed", zap.String("mode", string(mode)), zap.Error(err))
		return domain.Staleness{}, err
	}
	cachedAt, _ := l.cache.Timestamp(ctx, cache.TimestampKey(mode))

	return Assess(serverModified, cachedAt), nil
}

// Assess compares the server's modification time with the time the local
// copy was taken, at millisecond precision.
func Assess(serverModified time.Time, cachedAt time.Time) domain.Staleness {
	status := domain.Staleness{CachedAt: cachedAt, ServerModified: serverModified}
	if serverModified.UnixMilli() > cachedAt.UnixMilli() {
		status.Stale = true
		status.Notice = StaleNotice
	}
	return status
}

// Backfill replaces repFullName's summary rows with detail rows fetched from
// the API. When no such summary row exists the input is returned unchanged
// and nothing is fetched. Concurrent requests for the same representative
// share one fetch.
func (l *Loader) Backfill(ctx context.Context, mode domain.Mode, records []domain.TransactionRecord, repFullName string) ([]domain.TransactionRecord, bool, error) {
	if !hasSummary(records, repFullName) {
		return records, false, nil
	}

	key := string(mode) + "|" + repFullName
	v, err, shared := l.details.Do(key, func() (any, error) {
		return l.api.OrderDetailsByRep(ctx, repFullName)
	})
	if err != nil {
		l.logger.Warn("backfill failed", zap.String("mode", string(mode)), zap.String("rep", repFullName), zap.Error(err))
		return records, false, fmt.Errorf("backfill %s: %w", repFullName, err)
	}
	details := v.([]domain.TransactionRecord)

	merged := make([]domain.TransactionRecord, 0, len(records)+len(details))
	for _, rec := range records {
		if rec.IsSummary && rec.RepName == repFullName {
			continue
		}
		merged = append(merged, rec)
	}
	merged = append(merged, details...)

	l.logger.Info("backfill finished",
		zap.String("mode", string(mode)),
		zap.String("rep", repFullName),
		zap.Int("details", len(details)),
		zap.Bool("shared", shared),
	)
	return merged, true, nil
}

// SaveRecords replaces the persisted dataset for mode, keeping its timestamp.
// Callers persist a backfilled dataset only once it is known to still be the
// current one.
func (l *Loader) SaveRecords(ctx context.Context, mode domain.Mode, records []domain.TransactionRecord) bool {
	return l.cache.SetJSON(ctx, cache.DatasetKey(mode), records)
}

// Invalidate drops the persisted dataset and its timestamp for mode.
func (l *Loader) Invalidate(ctx context.Context, mode domain.Mode) bool {
	dataOK := l.cache.Delete(ctx, cache.DatasetKey(mode))
	tsOK := l.cache.Delete(ctx, cache.TimestampKey(mode))
	return dataOK && tsOK
}

func hasSummary(records []domain.TransactionRecord, repFullName string) bool {
	for _, rec := range records {
		if rec.IsSummary && rec.RepName == repFullName {
			return true
		}
	}
	return false
}
