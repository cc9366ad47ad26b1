// Package actionlist filters, orders and summarizes the monthly follow-up list.
package actionlist

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"salesanalysis/backend/internal/domain"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusSkip       = "skip"
)

const (
	SortDaysSince    = "daysSince"
	SortDaysSinceAsc = "daysSinceAsc"
	SortCompany      = "company"
	SortStatus       = "status"
)

var statusRank = map[string]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusSkip:       3,
}

func ValidStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

func ValidSortKey(key string) bool {
	switch key {
	case "", SortDaysSince, SortDaysSinceAsc, SortCompany, SortStatus:
		return true
	}
	return false
}

// YearMonthLabel formats the key the action list sheet is indexed by.
func YearMonthLabel(year int, month int) string {
	return fmt.Sprintf("%d年%d月", year, month)
}

// Filter keeps items for rep and status; an empty argument matches everything.
func Filter(items []domain.ActionItem, rep string, status string) []domain.ActionItem {
	out := make([]domain.ActionItem, 0, len(items))
	for _, item := range items {
		if rep != "" && item.SalesRep != rep {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Sort orders items in place. daysSince puts items never visited first and
// then the longest gap; daysSinceAsc is the reverse with unvisited items
// last. Unknown statuses rank as pending.
func Sort(items []domain.ActionItem, key string) {
	switch key {
	case SortDaysSince:
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].DaysSince, items[j].DaysSince
			if a == nil || b == nil {
				return a == nil && b != nil
			}
			return *a > *b
		})
	case SortDaysSinceAsc:
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].DaysSince, items[j].DaysSince
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return *a < *b
		})
	case SortCompany:
		c := collate.New(language.Japanese)
		sort.SliceStable(items, func(i, j int) bool {
			return c.CompareString(items[i].Company, items[j].Company) < 0
		})
	case SortStatus:
		sort.SliceStable(items, func(i, j int) bool {
			return statusRank[items[i].Status] < statusRank[items[j].Status]
		})
	}
}

// Progress counts completed items over the whole list.
func Progress(items []domain.ActionItem) (completed int, total int) {
	for _, item := range items {
		if item.Status == StatusCompleted {
			completed++
		}
	}
	return completed, len(items)
}

// SalesReps returns the distinct non-empty representatives, sorted.
func SalesReps(items []domain.ActionItem) []string {
	seen := make(map[string]struct{})
	reps := make([]string, 0)
	for _, item := range items {
		rep := strings.TrimSpace(item.SalesRep)
		if rep == "" {
			continue
		}
		if _, ok := seen[rep]; ok {
			continue
		}
		seen[rep] = struct{}{}
		reps = append(reps, rep)
	}
	sort.Strings(reps)
	return reps
}

// SetStatus updates the matching item in place and reports whether one was found.
func SetStatus(items []domain.ActionItem, yearMonth string, id string, status string) bool {
	for i := range items {
		if items[i].ID == id && items[i].YearMonth == yearMonth {
			items[i].Status = status
			return true
		}
	}
	return false
}
