package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"salesanalysis/backend/internal/actionlist"
	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/domain"
)

// MasterData returns customers, departments and contacts, served from the
// TTL cache unless refresh is set or the entry expired.
func (s *Service) MasterData(ctx context.Context, refresh bool) (domain.MasterData, error) {
	if refresh {
		if err := s.master.Delete(ctx, cache.MasterKey); err != nil {
			s.logger.Warn("master cache delete failed", zap.Error(err))
		}
	} else {
		cached, ok, err := s.master.Get(ctx, cache.MasterKey)
		if err != nil {
			s.logger.Warn("master cache read failed", zap.Error(err))
		}
		if ok {
			return *cached, nil
		}
	}

	data, err := s.api.AllMasterData(ctx)
	if err != nil {
		return domain.MasterData{}, err
	}
	if err := s.master.Set(ctx, cache.MasterKey, &data, s.masterTTL); err != nil {
		s.logger.Warn("master cache write failed", zap.Error(err))
	}
	return data, nil
}

func (s *Service) Departments(ctx context.Context, company string) ([]string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, ErrInvalidInput
	}
	data, err := s.MasterData(ctx, false)
	if err != nil {
		return nil, err
	}
	departments := data.Departments[company]
	if departments == nil {
		departments = []string{}
	}
	return departments, nil
}

func (s *Service) Contacts(ctx context.Context, company string, department string) ([]string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, ErrInvalidInput
	}
	data, err := s.MasterData(ctx, false)
	if err != nil {
		return nil, err
	}
	contacts := data.Contacts[domain.ContactKey(company, strings.TrimSpace(department))]
	if contacts == nil {
		contacts = []string{}
	}
	return contacts, nil
}

// AddContact registers a contact upstream and appends it to the cached
// master data so it is selectable before the next refresh.
func (s *Service) AddContact(ctx context.Context, in domain.ContactInput) (domain.MutationResult, error) {
	in.Company = strings.TrimSpace(in.Company)
	in.Department = strings.TrimSpace(in.Department)
	in.ContactName = strings.TrimSpace(in.ContactName)
	if in.Company == "" || in.ContactName == "" {
		return domain.MutationResult{}, ErrInvalidInput
	}

	result, err := s.api.AddContact(ctx, in)
	if err != nil {
		return domain.MutationResult{}, err
	}
	s.logMutation(ctx, "contact_add", in.Company, result.RequestID)

	cached, ok, err := s.master.Get(ctx, cache.MasterKey)
	if err != nil || !ok {
		return result, nil
	}
	if cached.Contacts == nil {
		cached.Contacts = make(map[string][]string)
	}
	key := domain.ContactKey(in.Company, in.Department)
	cached.Contacts[key] = append(cached.Contacts[key], in.ContactName)
	if err := s.master.Set(ctx, cache.MasterKey, cached, s.masterTTL); err != nil {
		s.logger.Warn("master cache write failed", zap.Error(err))
	}
	return result, nil
}

// Activities lists recorded activities, optionally for one representative.
func (s *Service) Activities(ctx context.Context, salesRep string) ([]domain.Activity, error) {
	activities, err := s.api.Activities(ctx)
	if err != nil {
		return nil, err
	}
	if salesRep == "" {
		return activities, nil
	}
	out := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if a.SalesRep == salesRep {
			out = append(out, a)
		}
	}
	return out, nil
}

func validateActivity(in domain.ActivityInput) error {
	if strings.TrimSpace(in.SalesRep) == "" || strings.TrimSpace(in.Company) == "" {
		return ErrInvalidInput
	}
	if len(in.Contacts) == 0 || strings.TrimSpace(in.Reaction) == "" {
		return ErrInvalidInput
	}
	return nil
}

// RecordActivity posts a new activity. The write cannot be observed
// directly, so the activity list is re-fetched and Verified reports whether
// a matching record came back.
func (s *Service) RecordActivity(ctx context.Context, in domain.ActivityInput) (domain.MutationResult, error) {
	if err := validateActivity(in); err != nil {
		return domain.MutationResult{}, err
	}
	result, err := s.api.AddActivity(ctx, in)
	if err != nil {
		return domain.MutationResult{}, err
	}
	s.logMutation(ctx, "activity_add", in.Company, result.RequestID)

	result.Verified = s.verifyActivities(ctx, func(list []domain.Activity) bool {
		for _, a := range list {
			if a.Datetime == in.Datetime && a.Company == in.Company && a.SalesRep == in.SalesRep {
				return true
			}
		}
		return false
	})
	return result, nil
}

func (s *Service) UpdateActivity(ctx context.Context, id string, in domain.ActivityInput) (domain.MutationResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.MutationResult{}, ErrInvalidInput
	}
	if err := validateActivity(in); err != nil {
		return domain.MutationResult{}, err
	}
	result, err := s.api.UpdateActivity(ctx, id, in)
	if err != nil {
		return domain.MutationResult{}, err
	}
	s.logMutation(ctx, "activity_update", id, result.RequestID)

	result.Verified = s.verifyActivities(ctx, func(list []domain.Activity) bool {
		for _, a := range list {
			if a.ID == id {
				return a.Company == in.Company && a.Reaction == in.Reaction && a.Note == in.Note
			}
		}
		return false
	})
	return result, nil
}

func (s *Service) DeleteActivity(ctx context.Context, id string) (domain.MutationResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.MutationResult{}, ErrInvalidInput
	}
	result, err := s.api.DeleteActivity(ctx, id)
	if err != nil {
		return domain.MutationResult{}, err
	}
	s.logMutation(ctx, "activity_delete", id, result.RequestID)

	result.Verified = s.verifyActivities(ctx, func(list []domain.Activity) bool {
		for _, a := range list {
			if a.ID == id {
				return false
			}
		}
		return true
	})
	return result, nil
}

func (s *Service) verifyActivities(ctx context.Context, check func([]domain.Activity) bool) bool {
	list, err := s.api.Activities(ctx)
	if err != nil {
		s.logger.Warn("mutation verification fetch failed", zap.Error(err))
		return false
	}
	return check(list)
}

// actionBoard keeps the last fetched action list per year-month so status
// changes can be applied locally before the server confirms them.
type actionBoard struct {
	mu    sync.Mutex
	lists map[string][]domain.ActionItem
}

func newActionBoard() *actionBoard {
	return &actionBoard{lists: make(map[string][]domain.ActionItem)}
}

type ActionListQuery struct {
	YearMonth string
	SalesRep  string
	Status    string
	SortBy    string
}

func (s *Service) ActionList(ctx context.Context, q ActionListQuery) (domain.ActionListResponse, error) {
	if strings.TrimSpace(q.YearMonth) == "" || !actionlist.ValidSortKey(q.SortBy) {
		return domain.ActionListResponse{}, ErrInvalidInput
	}
	if q.Status != "" && !actionlist.ValidStatus(q.Status) {
		return domain.ActionListResponse{}, ErrInvalidInput
	}

	items, err := s.api.ActionList(ctx, q.YearMonth)
	if err != nil {
		return domain.ActionListResponse{}, err
	}
	if items == nil {
		items = []domain.ActionItem{}
	}

	s.actions.mu.Lock()
	s.actions.lists[q.YearMonth] = items
	s.actions.mu.Unlock()

	return buildActionList(q, items), nil
}

func buildActionList(q ActionListQuery, items []domain.ActionItem) domain.ActionListResponse {
	visible := actionlist.Filter(items, q.SalesRep, q.Status)
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = actionlist.SortDaysSince
	}
	actionlist.Sort(visible, sortBy)
	completed, total := actionlist.Progress(items)
	return domain.ActionListResponse{
		YearMonth: q.YearMonth,
		Items:     visible,
		SalesReps: actionlist.SalesReps(items),
		Completed: completed,
		Total:     total,
	}
}

// UpdateActionStatus applies the change to the cached list at once and then
// posts it. The returned progress reflects the local change.
func (s *Service) UpdateActionStatus(ctx context.Context, yearMonth string, contactID string, status string) (domain.MutationResult, domain.ActionListResponse, error) {
	if strings.TrimSpace(yearMonth) == "" || strings.TrimSpace(contactID) == "" || !actionlist.ValidStatus(status) {
		return domain.MutationResult{}, domain.ActionListResponse{}, ErrInvalidInput
	}

	s.actions.mu.Lock()
	items := s.actions.lists[yearMonth]
	actionlist.SetStatus(items, yearMonth, contactID, status)
	snapshot := append([]domain.ActionItem(nil), items...)
	s.actions.mu.Unlock()

	result, err := s.api.UpdateActionStatus(ctx, yearMonth, contactID, status)
	if err != nil {
		return domain.MutationResult{}, domain.ActionListResponse{}, err
	}
	s.logMutation(ctx, "action_status", contactID, result.RequestID)
	return result, buildActionList(ActionListQuery{YearMonth: yearMonth}, snapshot), nil
}

func (s *Service) ProposalProducts(ctx context.Context, yearMonth string) ([]domain.ProposalProduct, error) {
	products, err := s.api.ProposalProducts(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.ProposalProduct{}
	}
	return products, nil
}

func (s *Service) logMutation(ctx context.Context, action string, entityID string, requestID string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Subject: "system"}
	}
	s.logger.Info("mutation sent",
		zap.String("action", action),
		zap.String("entity", entityID),
		zap.String("request_id", requestID),
		zap.String("actor", actor.Subject),
	)
}
