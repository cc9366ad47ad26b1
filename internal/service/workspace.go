package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"salesanalysis/backend/internal/analysis"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/loader"
)

// Workspace owns everything the analysis screen shows for one data mode.
// Fields below mu are guarded by it; loading is only flipped by Load.
type Workspace struct {
	mode    domain.Mode
	loading atomic.Bool

	mu         sync.Mutex
	dataset    domain.Dataset
	reference  domain.ReferenceData
	loaded     bool
	persisted  bool
	generation uint64
	progress   domain.LoadProgress
	staleness  domain.Staleness
	lastRunID  string

	criteria analysis.Criteria
	searched bool
	filtered []domain.TransactionRecord
	drill    *analysis.Drilldown
}

type Status struct {
	Mode        domain.Mode         `json:"mode"`
	Loaded      bool                `json:"loaded"`
	Loading     bool                `json:"loading"`
	RecordCount int                 `json:"record_count"`
	LoadedAt    time.Time           `json:"loaded_at"`
	Persisted   bool                `json:"persisted"`
	Progress    domain.LoadProgress `json:"progress"`
	Staleness   domain.Staleness    `json:"staleness"`
	LastRunID   string              `json:"last_run_id,omitempty"`
}

// View is what the analysis screen renders after any state change.
type View struct {
	Mode     domain.Mode       `json:"mode"`
	Criteria analysis.Criteria `json:"criteria"`
	// Empty is set when a search ran over loaded data and matched nothing.
	Empty bool `json:"empty"`
	analysis.Snapshot
}

func newWorkspace(mode domain.Mode) *Workspace {
	return &Workspace{mode: mode, drill: analysis.NewDrilldown()}
}

func (w *Workspace) commit(result *loader.Result) {
	w.dataset = result.Dataset
	w.reference = result.Reference
	w.loaded = true
	w.persisted = result.Persisted
	w.generation++
	w.staleness = domain.Staleness{}
	w.progress = domain.LoadProgress{
		Loaded:   len(result.Dataset.Records),
		Total:    len(result.Dataset.Records),
		Fraction: 1,
	}
}

func (w *Workspace) clear() {
	w.dataset = domain.Dataset{Mode: w.mode}
	w.reference = domain.ReferenceData{}
	w.loaded = false
	w.persisted = false
	w.generation++
	w.progress = domain.LoadProgress{}
	w.staleness = domain.Staleness{}
	w.criteria = analysis.Criteria{}
	w.searched = false
	w.filtered = nil
	w.drill = analysis.NewDrilldown()
}

func (w *Workspace) status() Status {
	return Status{
		Mode:        w.mode,
		Loaded:      w.loaded,
		Loading:     w.loading.Load(),
		RecordCount: len(w.dataset.Records),
		LoadedAt:    w.dataset.LoadedAt,
		Persisted:   w.persisted,
		Progress:    w.progress,
		Staleness:   w.staleness,
		LastRunID:   w.lastRunID,
	}
}

func (w *Workspace) search() {
	w.filtered = analysis.Filter(w.dataset.Records, w.criteria)
	w.drill.Reset(w.filtered, w.reference)
	w.searched = true
}

func (w *Workspace) rerunSearch() {
	if w.searched {
		w.search()
	}
}

func (w *Workspace) view() View {
	return View{
		Mode:     w.mode,
		Criteria: w.criteria,
		Empty:    w.searched && len(w.filtered) == 0,
		Snapshot: w.drill.Snapshot(),
	}
}

func (s *Service) lockedWorkspace(mode domain.Mode, requireData bool) (*Workspace, func(), error) {
	ws, err := s.workspace(mode)
	if err != nil {
		return nil, nil, err
	}
	ws.mu.Lock()
	if requireData && !ws.loaded {
		ws.mu.Unlock()
		return nil, nil, ErrNoData
	}
	return ws, ws.mu.Unlock, nil
}

func (s *Service) FilterOptions(mode domain.Mode, abbr string) (domain.FilterOptions, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return domain.FilterOptions{}, err
	}
	defer unlock()
	return analysis.FilterOptions(ws.dataset.Records, ws.reference, abbr), nil
}

// SetCriteria replaces the form criteria. The client and representative
// keys belong to the suggestion selections and are kept.
func (s *Service) SetCriteria(mode domain.Mode, criteria analysis.Criteria) (analysis.Criteria, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return analysis.Criteria{}, err
	}
	defer unlock()
	ws.setForm(criteria)
	return ws.criteria, nil
}

func (w *Workspace) setForm(criteria analysis.Criteria) {
	if criteria.StartYearMonth != "" && criteria.EndYearMonth != "" && criteria.StartYearMonth > criteria.EndYearMonth {
		criteria.StartYearMonth, criteria.EndYearMonth = criteria.EndYearMonth, criteria.StartYearMonth
	}
	criteria.ClientKey = w.criteria.ClientKey
	criteria.RepKey = w.criteria.RepKey
	w.criteria = criteria
}

// Search filters with the current criteria and resets the drilldown to the
// representative view.
func (s *Service) Search(mode domain.Mode) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	ws.search()
	return ws.view(), nil
}

func (s *Service) SearchWith(mode domain.Mode, criteria analysis.Criteria) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	ws.setForm(criteria)
	ws.search()
	return ws.view(), nil
}

// ClearFilters drops every criterion and selection and leaves the drilldown.
func (s *Service) ClearFilters(mode domain.Mode) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	ws.criteria = analysis.Criteria{}
	ws.searched = false
	ws.filtered = nil
	ws.drill.Clear()
	return ws.view(), nil
}

// SuggestClients searches the whole dataset. A blank query clears the
// active client selection.
func (s *Service) SuggestClients(mode domain.Mode, query string) ([]domain.ClientSuggestion, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	suggestions := analysis.SuggestClients(query, ws.dataset.Records)
	if suggestions == nil {
		ws.criteria.ClientKey = ""
		return []domain.ClientSuggestion{}, nil
	}
	return suggestions, nil
}

// SuggestReps is scoped to abbr, or to the current abbreviation criterion
// when abbr is empty.
func (s *Service) SuggestReps(mode domain.Mode, query string, abbr string) ([]domain.RepSuggestion, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if abbr == "" {
		abbr = ws.criteria.Abbr
	}
	suggestions := analysis.SuggestReps(query, ws.dataset.Records, abbr)
	if suggestions == nil {
		ws.criteria.RepKey = ""
		return []domain.RepSuggestion{}, nil
	}
	return suggestions, nil
}

// SelectClientSuggestion sets the normalized client key; an empty key clears it.
func (s *Service) SelectClientSuggestion(mode domain.Mode, key string) (analysis.Criteria, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return analysis.Criteria{}, err
	}
	defer unlock()
	ws.criteria.ClientKey = key
	return ws.criteria, nil
}

// SelectRepSuggestion sets the family-name key; an empty key clears it.
func (s *Service) SelectRepSuggestion(mode domain.Mode, key string) (analysis.Criteria, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return analysis.Criteria{}, err
	}
	defer unlock()
	ws.criteria.RepKey = key
	return ws.criteria, nil
}

// SelectRep drills into a representative. When the bucket still holds
// summary rows, detail rows are fetched first, the search is re-run and the
// same family name is selected again. A backfill failure leaves the state as
// it was.
func (s *Service) SelectRep(ctx context.Context, mode domain.Mode, key string) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return View{}, err
	}

	err = ws.drill.SelectRep(key)
	if !errors.Is(err, analysis.ErrBackfillRequired) {
		defer unlock()
		if err != nil {
			return View{}, err
		}
		return ws.view(), nil
	}

	row, _ := ws.drill.Rep(key)
	names := analysis.SummaryRepNames(row)
	records := ws.dataset.Records
	generation := ws.generation
	unlock()

	for _, name := range names {
		records, _, err = s.loader.Backfill(ctx, mode, records, name)
		if err != nil {
			return View{}, err
		}
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	// a load in flight may already have persisted its snapshot
	if ws.generation != generation || ws.loading.Load() {
		return View{}, ErrDatasetChanged
	}
	if !s.loader.SaveRecords(ctx, mode, records) {
		s.logger.Warn("backfilled dataset kept in memory only", zap.String("mode", string(mode)))
	}
	ws.dataset.Records = records
	ws.generation++
	ws.search()

	err = ws.drill.SelectRep(key)
	if errors.Is(err, analysis.ErrBackfillRequired) {
		s.logger.Warn("summary rows remain after backfill", zap.String("mode", string(mode)), zap.String("rep", key))
		err = ws.drill.ForceSelectRep(key)
	}
	if err != nil {
		return View{}, err
	}
	return ws.view(), nil
}

func (s *Service) SelectClient(mode domain.Mode, key string) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, true)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	if err := ws.drill.SelectClient(key); err != nil {
		return View{}, err
	}
	return ws.view(), nil
}

func (s *Service) Back(mode domain.Mode) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	if err := ws.drill.Back(); err != nil {
		return View{}, err
	}
	return ws.view(), nil
}

func (s *Service) SortReps(mode domain.Mode, field string) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	if err := ws.drill.Sort(field); err != nil {
		return View{}, errors.Join(ErrInvalidInput, err)
	}
	return ws.view(), nil
}

func (s *Service) View(mode domain.Mode) (View, error) {
	ws, unlock, err := s.lockedWorkspace(mode, false)
	if err != nil {
		return View{}, err
	}
	defer unlock()
	return ws.view(), nil
}
