package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesanalysis/backend/internal/actionlist"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/sheetapi"
)

func TestMasterDataIsServedFromCache(t *testing.T) {
	env := newTestEnv(t)
	env.fake.master = domain.MasterData{
		Customers:   []string{"A社"},
		Departments: map[string][]string{"A社": {"営業部", "総務部"}},
		Contacts:    map[string][]string{"A社_営業部": {"田中"}},
	}
	ctx := context.Background()

	data, err := env.svc.MasterData(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A社"}, data.Customers)

	departments, err := env.svc.Departments(ctx, "A社")
	require.NoError(t, err)
	assert.Equal(t, []string{"営業部", "総務部"}, departments)

	contacts, err := env.svc.Contacts(ctx, "A社", "営業部")
	require.NoError(t, err)
	assert.Equal(t, []string{"田中"}, contacts)

	none, err := env.svc.Contacts(ctx, "A社", "経理部")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, 1, env.fake.count(&env.fake.masterCalls))

	_, err = env.svc.MasterData(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, env.fake.count(&env.fake.masterCalls))

	_, err = env.svc.Departments(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddContactUpdatesCachedMaster(t *testing.T) {
	env := newTestEnv(t)
	env.fake.master = domain.MasterData{Contacts: map[string][]string{"A社_営業部": {"田中"}}}
	ctx := context.Background()

	_, err := env.svc.MasterData(ctx, false)
	require.NoError(t, err)

	result, err := env.svc.AddContact(ctx, domain.ContactInput{Company: "A社", Department: "営業部", ContactName: " 鈴木 "})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 1, env.fake.postCount(sheetapi.ActionAddContact))

	contacts, err := env.svc.Contacts(ctx, "A社", "営業部")
	require.NoError(t, err)
	assert.Equal(t, []string{"田中", "鈴木"}, contacts)
	assert.Equal(t, 1, env.fake.count(&env.fake.masterCalls))

	_, err = env.svc.AddContact(ctx, domain.ContactInput{Company: "A社"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func activityInput() domain.ActivityInput {
	return domain.ActivityInput{
		Datetime: "2025-04-10T10:00",
		Type:     "訪問",
		SalesRep: "山田",
		Company:  "A社",
		Dept:     "営業部",
		Contacts: []string{"田中"},
		Reaction: "好反応",
		Met:      "会えた",
		Note:     "見積依頼あり",
	}
}

func TestActivityMutationsAreVerifiedByRefetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.RecordActivity(ctx, activityInput())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.True(t, result.Verified)
	assert.NotEmpty(t, result.RequestID)

	list, err := env.svc.Activities(ctx, "山田")
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID
	assert.Equal(t, "101", id)

	others, err := env.svc.Activities(ctx, "佐藤")
	require.NoError(t, err)
	assert.Empty(t, others)

	edited := activityInput()
	edited.Note = "受注見込み"
	result, err = env.svc.UpdateActivity(ctx, id, edited)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	result, err = env.svc.DeleteActivity(ctx, id)
	require.NoError(t, err)
	assert.True(t, result.Verified)
}

func TestUnobservedWriteIsAcceptedButNotVerified(t *testing.T) {
	env := newTestEnv(t)
	env.fake.dropWrites = true

	result, err := env.svc.RecordActivity(context.Background(), activityInput())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.False(t, result.Verified)
}

func TestRecordActivityRejectsIncompleteInput(t *testing.T) {
	env := newTestEnv(t)
	in := activityInput()
	in.Contacts = nil

	_, err := env.svc.RecordActivity(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, env.fake.postCount(sheetapi.ActionAddActivity))
}

func TestActionListStatusUpdateIsOptimistic(t *testing.T) {
	env := newTestEnv(t)
	ym := actionlist.YearMonthLabel(2025, 4)
	env.fake.actions = []domain.ActionItem{
		{ID: "1", YearMonth: ym, SalesRep: "山田", Company: "A社", Status: actionlist.StatusCompleted},
		{ID: "2", YearMonth: ym, SalesRep: "佐藤", Company: "B社", Status: actionlist.StatusPending},
		{ID: "3", YearMonth: ym, SalesRep: "山田", Company: "C社", Status: actionlist.StatusPending},
	}
	ctx := context.Background()

	resp, err := env.svc.ActionList(ctx, ActionListQuery{YearMonth: ym, SalesRep: "山田"})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, 1, resp.Completed)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, []string{"佐藤", "山田"}, resp.SalesReps)

	result, progress, err := env.svc.UpdateActionStatus(ctx, ym, "2", actionlist.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 1, env.fake.postCount(sheetapi.ActionUpdateActionStatus))

	_, _, err = env.svc.UpdateActionStatus(ctx, ym, "2", "done")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.ActionList(ctx, ActionListQuery{YearMonth: ym, SortBy: "random"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProposalProductsNeverNil(t *testing.T) {
	env := newTestEnv(t)
	products, err := env.svc.ProposalProducts(context.Background(), "2025年4月")
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}
