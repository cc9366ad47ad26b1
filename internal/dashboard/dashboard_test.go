package dashboard

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesanalysis/backend/internal/domain"
)

var tokyo = time.FixedZone("JST", 9*60*60)

func visit(datetime string, company string, met string, rep string) domain.Activity {
	return domain.Activity{Datetime: datetime, Company: company, Met: met, SalesRep: rep, Contact: "担当 " + company}
}

func april() Query {
	return Query{Year: 2025, Month: 4}
}

func TestSummarizeAgainstGoals(t *testing.T) {
	goals := domain.Goals{{Company: "トヨタ販売", Target: 4}, {Company: "日産", Target: 0}}
	activities := []domain.Activity{
		visit("2025-04-01T09:00", "トヨタ販売 本店", MetHit, "山田"),
		visit("2025-04-03T09:00", "トヨタ販売", MetPartial, "佐藤"),
		visit("2025-04-05T09:00", "トヨタ", MetMiss, "山田"),
		visit("2025-04-06T09:00", "ホンダ", MetHit, "山田"),
		visit("2025-04-07T09:00", "ホンダ", "", "山田"),
		visit("2025-05-01T09:00", "トヨタ販売", MetHit, "山田"),
		visit("not a date", "トヨタ販売", MetHit, "山田"),
	}

	got := Summarize(activities, goals, april(), tokyo)
	assert.Equal(t, "2025年4月", got.YearMonth)
	require.Len(t, got.Companies, 3)

	toyota := got.Companies[0]
	assert.Equal(t, "トヨタ販売", toyota.Company)
	assert.Equal(t, int64(3), toyota.TotalAttack, "partial names on either side are credited to the goal")
	assert.Equal(t, int64(1), toyota.Count)
	assert.Equal(t, int64(25), toyota.Progress)
	assert.Equal(t, int64(3), toyota.Remaining)
	assert.Equal(t, int64(33), toyota.HitRate)

	assert.Equal(t, domain.CompanyStat{Company: "日産"}, got.Companies[1])

	honda := got.Companies[2]
	assert.Equal(t, "ホンダ", honda.Company)
	assert.Equal(t, int64(2), honda.TotalAttack)
	assert.Equal(t, int64(50), honda.HitRate)

	assert.Equal(t, TotalLabel, got.Total.Company)
	assert.Equal(t, int64(4), got.Total.Target)
	assert.Equal(t, int64(5), got.Total.TotalAttack)
	assert.Equal(t, int64(2), got.Total.Count)
	assert.Equal(t, int64(50), got.Total.Progress)
	assert.Equal(t, int64(40), got.Total.HitRate)

	require.Len(t, got.Visits, 4, "activities without an outcome are not visits")
	assert.Equal(t, "ホンダ", got.Visits[0].Company)
	assert.Equal(t, "2025-04-01T09:00", got.Visits[3].Datetime)
	assert.Equal(t, "トヨタ販売", got.Visits[3].Company)
}

func TestSummarizeFilters(t *testing.T) {
	activities := []domain.Activity{
		visit("2025-04-01T09:00", "A社", MetHit, "山田"),
		visit("2025-04-02T09:00", "A社", MetMiss, "佐藤"),
		visit("2025-04-03T09:00", "B社", MetMiss, "山田"),
	}

	q := april()
	q.SalesRep = "山田"
	got := Summarize(activities, nil, q, tokyo)
	assert.Equal(t, int64(2), got.Total.TotalAttack)

	q = april()
	q.Result = MetMiss
	got = Summarize(activities, nil, q, tokyo)
	assert.Equal(t, int64(3), got.Total.TotalAttack, "the outcome filter only narrows the visit list")
	require.Len(t, got.Visits, 2)
	assert.Equal(t, "B社", got.Visits[0].Company)
}

func TestParseDatetimeConvertsOffsets(t *testing.T) {
	ts, ok := ParseDatetime("2025-03-31T20:00:00Z", tokyo)
	require.True(t, ok)
	assert.Equal(t, time.April, ts.Month(), "UTC evening is the next morning in Tokyo")

	ts, ok = ParseDatetime("2025/04/10 08:30", tokyo)
	require.True(t, ok)
	assert.Equal(t, 10, ts.Day())

	_, ok = ParseDatetime("", tokyo)
	assert.False(t, ok)
}

func TestGoalsDecodeKeepsSheetOrder(t *testing.T) {
	var goals domain.Goals
	require.NoError(t, json.Unmarshal([]byte(`{"日産": 3, "トヨタ販売": "5", "ホンダ": null}`), &goals))
	assert.Equal(t, domain.Goals{{Company: "日産", Target: 3}, {Company: "トヨタ販売", Target: 5}, {Company: "ホンダ", Target: 0}}, goals)

	require.NoError(t, json.Unmarshal([]byte(`null`), &goals))
	assert.Empty(t, goals)

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &goals))
}
