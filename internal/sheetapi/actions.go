package sheetapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"salesanalysis/backend/internal/domain"
)

const (
	ActionSalesAnalysisData  = "getSalesAnalysisData"
	ActionOrderAnalysisData  = "getOrderAnalysisData"
	ActionOrderDetailsByRep  = "getOrderDetailsByRep"
	ActionCustomerPhones     = "getCustomerPhones"
	ActionSheetLastModified  = "getSheetLastModified"
	ActionAllMasterData      = "getAllMasterData"
	ActionActionList         = "getActionList"
	ActionActivities         = "getActivities"
	ActionProposalProducts   = "getProposalProducts"
	ActionPerformanceData    = "getPerformanceData"
	ActionPerformanceRawData = "getPerformanceRawData"
	ActionGoals              = "getGoals"
	ActionAddActivity        = "addActivity"
	ActionUpdateActivity     = "updateActivity"
	ActionDeleteActivity     = "deleteActivity"
	ActionAddContact         = "addContact"
	ActionUpdateActionStatus = "updateActionStatus"
)

func (c *Client) SalesAnalysisData(ctx context.Context) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	if _, err := c.Get(ctx, ActionSalesAnalysisData, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// OrderAnalysisPage returns one offset/limit window and the server-reported total.
func (c *Client) OrderAnalysisPage(ctx context.Context, offset int, limit int) ([]domain.TransactionRecord, int, error) {
	var records []domain.TransactionRecord
	total, err := c.Get(ctx, ActionOrderAnalysisData, params("offset", itoa(offset), "limit", itoa(limit)), &records)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (c *Client) OrderDetailsByRep(ctx context.Context, repName string) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	if _, err := c.Get(ctx, ActionOrderDetailsByRep, params("repName", repName), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) CustomerPhones(ctx context.Context) (domain.ReferenceData, error) {
	var ref domain.ReferenceData
	if _, err := c.Get(ctx, ActionCustomerPhones, nil, &ref); err != nil {
		return domain.ReferenceData{}, err
	}
	return ref, nil
}

func (c *Client) SheetLastModified(ctx context.Context) (time.Time, error) {
	var payload struct {
		LastModified json.RawMessage `json:"lastModified"`
	}
	if _, err := c.Get(ctx, ActionSheetLastModified, nil, &payload); err != nil {
		return time.Time{}, err
	}
	ts, err := parseTimestamp(payload.LastModified)
	if err != nil {
		return time.Time{}, &TransportError{Action: ActionSheetLastModified, Err: err}
	}
	return ts, nil
}

func (c *Client) AllMasterData(ctx context.Context) (domain.MasterData, error) {
	var data domain.MasterData
	if _, err := c.Get(ctx, ActionAllMasterData, nil, &data); err != nil {
		return domain.MasterData{}, err
	}
	return data, nil
}

func (c *Client) ActionList(ctx context.Context, yearMonth string) ([]domain.ActionItem, error) {
	var items []domain.ActionItem
	if _, err := c.Get(ctx, ActionActionList, params("yearMonth", yearMonth), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Activities(ctx context.Context) ([]domain.Activity, error) {
	var activities []domain.Activity
	if _, err := c.Get(ctx, ActionActivities, nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (c *Client) ProposalProducts(ctx context.Context, yearMonth string) ([]domain.ProposalProduct, error) {
	var products []domain.ProposalProduct
	if _, err := c.Get(ctx, ActionProposalProducts, params("yearMonth", yearMonth), &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) PerformanceData(ctx context.Context) ([]domain.PerformanceRow, error) {
	var rows []domain.PerformanceRow
	if _, err := c.Get(ctx, ActionPerformanceData, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// PerformanceRawData returns the order lines behind the performance sheet.
func (c *Client) PerformanceRawData(ctx context.Context) ([]domain.PerformanceDetail, error) {
	var details []domain.PerformanceDetail
	if _, err := c.Get(ctx, ActionPerformanceRawData, nil, &details); err != nil {
		return nil, err
	}
	return details, nil
}

// Goals returns the visit targets for a "2025年4月" style month.
func (c *Client) Goals(ctx context.Context, yearMonth string) (domain.Goals, error) {
	var goals domain.Goals
	if _, err := c.Get(ctx, ActionGoals, params("yearMonth", yearMonth), &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

func (c *Client) AddActivity(ctx context.Context, in domain.ActivityInput) (domain.MutationResult, error) {
	return c.Post(ctx, ActionAddActivity, activityPayload(in))
}

func (c *Client) UpdateActivity(ctx context.Context, id string, in domain.ActivityInput) (domain.MutationResult, error) {
	payload := activityPayload(in)
	payload["id"] = id
	return c.Post(ctx, ActionUpdateActivity, payload)
}

func (c *Client) DeleteActivity(ctx context.Context, id string) (domain.MutationResult, error) {
	return c.Post(ctx, ActionDeleteActivity, map[string]any{"id": id})
}

func (c *Client) AddContact(ctx context.Context, in domain.ContactInput) (domain.MutationResult, error) {
	return c.Post(ctx, ActionAddContact, map[string]any{
		"company":     in.Company,
		"department":  in.Department,
		"contactName": in.ContactName,
	})
}

func (c *Client) UpdateActionStatus(ctx context.Context, yearMonth string, contactID string, status string) (domain.MutationResult, error) {
	return c.Post(ctx, ActionUpdateActionStatus, map[string]any{
		"yearMonth": yearMonth,
		"contactId": contactID,
		"status":    status,
	})
}

func activityPayload(in domain.ActivityInput) map[string]any {
	return map[string]any{
		"datetime":   in.Datetime,
		"type":       in.Type,
		"salesRep":   in.SalesRep,
		"company":    in.Company,
		"department": in.Dept,
		"contacts":   in.Contacts,
		"reaction":   in.Reaction,
		"met":        in.Met,
		"note":       in.Note,
		"proposals":  in.Proposals,
	}
}

// parseTimestamp accepts an RFC 3339 string or epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return time.Time{}, fmt.Errorf("missing lastModified")
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		text = strings.TrimSpace(s)
	}
	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006/01/02 15:04:05"} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", text)
}
