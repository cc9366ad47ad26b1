package analysis

import (
	"errors"

	"salesanalysis/backend/internal/domain"
)

var (
	ErrInvalidTransition = errors.New("invalid drilldown transition")
	ErrUnknownKey        = errors.New("unknown drilldown key")
	ErrInvalidSortField  = errors.New("invalid sort field")
	// ErrBackfillRequired is returned by SelectRep when the chosen bucket still
	// holds provisional summary rows that must be replaced by detail rows first.
	ErrBackfillRequired = errors.New("representative needs detail backfill")
)

type View string

const (
	RepView     View = "rep"
	ClientView  View = "client"
	ProductView View = "product"
	Exited      View = "exited"
)

// Snapshot is the renderable state of a Drilldown.
type Snapshot struct {
	View        View                `json:"view"`
	Sort        SortState           `json:"sort"`
	RepKey      string              `json:"rep_key,omitempty"`
	ClientKey   string              `json:"client_key,omitempty"`
	Rep         *domain.RepRow      `json:"rep,omitempty"`
	Client      *domain.ClientRow   `json:"client,omitempty"`
	Reps        []domain.RepRow     `json:"reps,omitempty"`
	Clients     []domain.ClientRow  `json:"clients,omitempty"`
	Products    []domain.ProductRow `json:"products,omitempty"`
	TotalAmount int64               `json:"total_amount"`
	RecordCount int                 `json:"record_count"`
}

// Drilldown walks Tier 1 (representatives) → Tier 2 (clients) → Tier 3
// (products). It is not safe for concurrent use.
type Drilldown struct {
	view      View
	sort      SortState
	reference domain.ReferenceData
	filtered  []domain.TransactionRecord

	reps     []domain.RepRow
	clients  []domain.ClientRow
	products []domain.ProductRow

	repKey    string
	clientKey string
}

func NewDrilldown() *Drilldown {
	return &Drilldown{view: Exited, sort: DefaultSort}
}

// Reset rebuilds Tier 1 from a freshly filtered record set and returns to
// RepView. The current sort survives a reset.
func (d *Drilldown) Reset(filtered []domain.TransactionRecord, reference domain.ReferenceData) {
	d.filtered = filtered
	d.reference = reference
	d.reps = AggregateByRep(filtered, reference)
	SortReps(d.reps, d.sort)
	d.clients = nil
	d.products = nil
	d.repKey = ""
	d.clientKey = ""
	d.view = RepView
}

// Clear drops the aggregated data and leaves the drilldown. The sort
// survives.
func (d *Drilldown) Clear() {
	d.filtered = nil
	d.reps = nil
	d.clients = nil
	d.products = nil
	d.repKey = ""
	d.clientKey = ""
	d.view = Exited
}

func (d *Drilldown) View() View {
	return d.view
}

func (d *Drilldown) RepKey() string {
	return d.repKey
}

// Rep looks up a Tier 1 bucket by family name.
func (d *Drilldown) Rep(key string) (domain.RepRow, bool) {
	for _, row := range d.reps {
		if row.RepLastName == key {
			return row, true
		}
	}
	return domain.RepRow{}, false
}

func (d *Drilldown) SelectRep(key string) error {
	if d.view != RepView {
		return ErrInvalidTransition
	}
	row, ok := d.Rep(key)
	if !ok {
		return ErrUnknownKey
	}
	if row.HasSummary {
		return ErrBackfillRequired
	}
	d.repKey = key
	d.clients = AggregateByClient(row.Items)
	d.view = ClientView
	return nil
}

// ForceSelectRep enters ClientView even when the bucket still carries summary
// rows. Used after a backfill attempt that could not replace them.
func (d *Drilldown) ForceSelectRep(key string) error {
	if d.view != RepView {
		return ErrInvalidTransition
	}
	row, ok := d.Rep(key)
	if !ok {
		return ErrUnknownKey
	}
	d.repKey = key
	d.clients = AggregateByClient(row.Items)
	d.view = ClientView
	return nil
}

func (d *Drilldown) SelectClient(key string) error {
	if d.view != ClientView {
		return ErrInvalidTransition
	}
	for _, row := range d.clients {
		if row.ClientNormalized == key {
			d.clientKey = key
			d.products = AggregateByProduct(row.Items)
			d.view = ProductView
			return nil
		}
	}
	return ErrUnknownKey
}

func (d *Drilldown) Back() error {
	switch d.view {
	case ProductView:
		d.products = nil
		d.clientKey = ""
		d.view = ClientView
	case ClientView:
		d.clients = nil
		d.repKey = ""
		d.view = RepView
	case RepView:
		d.view = Exited
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Sort applies the toggle rule to Tier 1. The new order is visible the next
// time RepView is rendered.
func (d *Drilldown) Sort(field string) error {
	if !validSortField(field) {
		return ErrInvalidSortField
	}
	d.sort = d.sort.Toggle(field)
	SortReps(d.reps, d.sort)
	return nil
}

func (d *Drilldown) SortState() SortState {
	return d.sort
}

func (d *Drilldown) Snapshot() Snapshot {
	snap := Snapshot{
		View:        d.view,
		Sort:        d.sort,
		RepKey:      d.repKey,
		ClientKey:   d.clientKey,
		TotalAmount: SumAmount(d.filtered),
		RecordCount: len(d.filtered),
	}
	switch d.view {
	case RepView:
		snap.Reps = append([]domain.RepRow(nil), d.reps...)
	case ClientView:
		if row, ok := d.Rep(d.repKey); ok {
			snap.Rep = &row
		}
		snap.Clients = append([]domain.ClientRow(nil), d.clients...)
	case ProductView:
		if row, ok := d.Rep(d.repKey); ok {
			snap.Rep = &row
		}
		for i := range d.clients {
			if d.clients[i].ClientNormalized == d.clientKey {
				client := d.clients[i]
				snap.Client = &client
				break
			}
		}
		snap.Products = append([]domain.ProductRow(nil), d.products...)
	}
	return snap
}
