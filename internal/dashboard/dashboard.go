// Package dashboard summarizes a month of visits against per-company goals.
package dashboard

import (
	"math"
	"sort"
	"strings"
	"time"

	"salesanalysis/backend/internal/actionlist"
	"salesanalysis/backend/internal/domain"
)

// Visit outcomes recorded on an activity.
const (
	MetHit     = "○"
	MetPartial = "△"
	MetMiss    = "×"
)

const TotalLabel = "計"

var datetimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseDatetime reads an activity timestamp. Zone-less values are taken in
// loc; values with an offset are converted to it.
func ParseDatetime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.In(loc), true
	}
	for _, layout := range datetimeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type Query struct {
	Year     int
	Month    int
	SalesRep string
	// Result limits the visit list to one outcome; company figures are not
	// affected.
	Result string
}

type companyState struct {
	stat   domain.CompanyStat
	visits []domain.Activity
}

// Summarize counts the month's activities per company. Every goal company is
// listed in goal order, followed by companies that were visited without a
// goal in first-visit order. An activity is credited to the last goal company
// whose name contains, or is contained in, the activity's company.
func Summarize(activities []domain.Activity, goals domain.Goals, q Query, loc *time.Location) domain.DashboardSummary {
	if loc == nil {
		loc = time.Local
	}

	index := make(map[string]int, len(goals))
	states := make([]*companyState, 0, len(goals))
	for _, goal := range goals {
		if _, dup := index[goal.Company]; dup {
			continue
		}
		index[goal.Company] = len(states)
		states = append(states, &companyState{stat: domain.CompanyStat{Company: goal.Company, Target: goal.Target}})
	}

	for _, a := range activities {
		ts, ok := ParseDatetime(a.Datetime, loc)
		if !ok || ts.Year() != q.Year || int(ts.Month()) != q.Month {
			continue
		}
		if q.SalesRep != "" && a.SalesRep != q.SalesRep {
			continue
		}

		company := matchGoal(goals, a.Company)
		if company == "" {
			company = a.Company
		}
		i, ok := index[company]
		if !ok {
			i = len(states)
			index[company] = i
			states = append(states, &companyState{stat: domain.CompanyStat{Company: company}})
		}
		st := states[i]
		st.stat.TotalAttack++
		switch a.Met {
		case MetHit:
			st.stat.Hit++
			st.stat.Count++
			st.visits = append(st.visits, a)
		case MetPartial:
			st.stat.Triangle++
			st.visits = append(st.visits, a)
		case MetMiss:
			st.stat.Miss++
			st.visits = append(st.visits, a)
		}
	}

	out := domain.DashboardSummary{
		YearMonth: actionlist.YearMonthLabel(q.Year, q.Month),
		Companies: make([]domain.CompanyStat, 0, len(states)),
		Total:     domain.CompanyStat{Company: TotalLabel},
		Visits:    make([]domain.Visit, 0),
	}
	sortKeys := make([]int64, 0)
	for _, st := range states {
		finish(&st.stat)
		out.Companies = append(out.Companies, st.stat)
		accumulate(&out.Total, st.stat)

		for _, v := range st.visits {
			if q.Result != "" && v.Met != q.Result {
				continue
			}
			out.Visits = append(out.Visits, domain.Visit{
				Company:    st.stat.Company,
				Department: v.Dept,
				Contact:    contactOf(v),
				Datetime:   v.Datetime,
				Met:        v.Met,
				SalesRep:   v.SalesRep,
			})
			key := int64(math.MinInt64)
			if ts, ok := ParseDatetime(v.Datetime, loc); ok {
				key = ts.UnixMilli()
			}
			sortKeys = append(sortKeys, key)
		}
	}
	finish(&out.Total)

	sort.Stable(newestFirst{visits: out.Visits, keys: sortKeys})
	return out
}

func matchGoal(goals domain.Goals, company string) string {
	matched := ""
	for _, goal := range goals {
		if strings.Contains(company, goal.Company) || strings.Contains(goal.Company, company) {
			matched = goal.Company
		}
	}
	return matched
}

func finish(stat *domain.CompanyStat) {
	stat.Progress = percent(stat.Count, stat.Target)
	stat.Remaining = max(0, stat.Target-stat.Count)
	stat.HitRate = percent(stat.Hit, stat.TotalAttack)
}

func accumulate(total *domain.CompanyStat, stat domain.CompanyStat) {
	total.Target += stat.Target
	total.Count += stat.Count
	total.TotalAttack += stat.TotalAttack
	total.Hit += stat.Hit
	total.Triangle += stat.Triangle
	total.Miss += stat.Miss
}

// percent rounds half up; a zero denominator yields 0.
func percent(n int64, d int64) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Floor(float64(n)*100/float64(d) + 0.5))
}

func contactOf(a domain.Activity) string {
	if a.Contact != "" {
		return a.Contact
	}
	return strings.Join(a.Contacts, "、")
}

type newestFirst struct {
	visits []domain.Visit
	keys   []int64
}

func (n newestFirst) Len() int           { return len(n.visits) }
func (n newestFirst) Less(i, j int) bool { return n.keys[i] > n.keys[j] }
func (n newestFirst) Swap(i, j int) {
	n.visits[i], n.visits[j] = n.visits[j], n.visits[i]
	n.keys[i], n.keys[j] = n.keys[j], n.keys[i]
}
