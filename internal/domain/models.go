package domain

import "time"

// ItemLine is one item row on a record: a catalog item name and a quantity.
type ItemLine struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// Record is one collection or delivery transaction submitted by a collector.
// The as-recorded fields are immutable after creation; the verification
// overlay (status, verified items, remark, verifier, verified-at) is written
// exactly once by the verification transition.
type Record struct {
	ID            string     `json:"id"`
	CollectorID   string     `json:"collector_id"`
	CollectorName string     `json:"collector_name"`
	Customer      string     `json:"customer"`
	Type          string     `json:"type"`
	Items         []ItemLine `json:"items"`
	InCharge      string     `json:"in_charge"`
	Signature     string     `json:"signature,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	VerificationStatus string     `json:"verification_status"`
	VerifiedItems      []ItemLine `json:"verified_items,omitempty"`
	VerifiedBy         string     `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	Remark             string     `json:"remark,omitempty"`
}

type SubmitRecordRequest struct {
	Customer  string     `json:"customer"`
	Type      string     `json:"type"`
	Items     []ItemLine `json:"items"`
	InCharge  string     `json:"in_charge"`
	Signature string     `json:"signature"`
}

type VerifyRecordRequest struct {
	VerifiedItems []ItemLine `json:"verified_items"`
	Remark        string     `json:"remark"`
}

type RecordResponse struct {
	Record Record `json:"record"`
}

// RecordListResponse carries a record page plus per-status counts for the
// history tabs.
type RecordListResponse struct {
	Records  []Record       `json:"records"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Filtered int            `json:"filtered"`
}

// RecordListFilter narrows a record listing. Zero-valued fields match
// everything.
type RecordListFilter struct {
	CollectorID string
	Customer    string
	Type        string
	Status      string
	From        *time.Time
	To          *time.Time
}

type PoolResponse struct {
	Customer  string `json:"customer"`
	Item      string `json:"item"`
	Available int    `json:"available"`
}

// FlatRow is one (record, effective item line) pair, the unit of report
// aggregation.
type FlatRow struct {
	RecordID      string    `json:"record_id"`
	CollectorID   string    `json:"collector_id"`
	CollectorName string    `json:"collector_name"`
	Customer      string    `json:"customer"`
	Item          string    `json:"item"`
	Type          string    `json:"type"`
	Qty           int       `json:"qty"`
	Timestamp     time.Time `json:"timestamp"`
	Status        string    `json:"status"`
}

// GrandTotalRow is one (customer, item) rollup across all collectors.
type GrandTotalRow struct {
	Customer          string     `json:"customer"`
	Item              string     `json:"item"`
	Collected         int        `json:"collected"`
	Delivered         int        `json:"delivered"`
	NetPending        int        `json:"net_pending"`
	CollectedBy       []string   `json:"collected_by"`
	DeliveredBy       []string   `json:"delivered_by"`
	FirstCollectionAt *time.Time `json:"first_collection_at,omitempty"`
	LastDeliveryAt    *time.Time `json:"last_delivery_at,omitempty"`
}

// SeriesPoint is one group in a collected-vs-delivered chart series.
type SeriesPoint struct {
	Key       string `json:"key"`
	Collected int    `json:"collected"`
	Delivered int    `json:"delivered"`
}

type ItemShare struct {
	Item string `json:"item"`
	Qty  int    `json:"qty"`
}

// SummaryReport backs the verified-summary and pre-verification views; the
// two differ only in which statuses feed the flat rows.
type SummaryReport struct {
	Statuses        []string        `json:"statuses"`
	TotalCollected  int             `json:"total_collected"`
	TotalDelivered  int             `json:"total_delivered"`
	NetPending      int             `json:"net_pending"`
	CollectionLines int             `json:"collection_lines"`
	DeliveryLines   int             `json:"delivery_lines"`
	GrandTotals     []GrandTotalRow `json:"grand_totals"`
	GroupBy         string          `json:"group_by"`
	Series          []SeriesPoint   `json:"series"`
	ItemShares      []ItemShare     `json:"item_shares"`
}

// PerfPoint is a per-dimension collected/delivered/pending breakdown.
type PerfPoint struct {
	Key        string `json:"key"`
	Collected  int    `json:"collected"`
	Delivered  int    `json:"delivered"`
	NetPending int    `json:"net_pending"`
}

type DeviationPoint struct {
	Key      string  `json:"key"`
	Approved int     `json:"approved"`
	Deviated int     `json:"deviated"`
	Rate     float64 `json:"rate"`
}

// ExecutiveRow shows one record with recorded and verified quantity totals
// side by side for deviation auditing. VerifiedQty is nil while pending.
type ExecutiveRow struct {
	RecordID      string    `json:"record_id"`
	Customer      string    `json:"customer"`
	CollectorName string    `json:"collector_name"`
	Type          string    `json:"type"`
	RecordedQty   int       `json:"recorded_qty"`
	VerifiedQty   *int      `json:"verified_qty,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// ManagementReport is the all-status executive view.
type ManagementReport struct {
	TotalRecords       int              `json:"total_records"`
	Approved           int              `json:"approved"`
	Deviated           int              `json:"deviated"`
	Pending            int              `json:"pending"`
	TotalCollected     int              `json:"total_collected"`
	TotalDelivered     int              `json:"total_delivered"`
	NetPending         int              `json:"net_pending"`
	DeviationRate      float64          `json:"deviation_rate"`
	DeliveryRate       float64          `json:"delivery_rate"`
	OverDeliveredPairs int              `json:"over_delivered_pairs"`
	ByCustomer         []PerfPoint      `json:"by_customer"`
	ByCollector        []PerfPoint      `json:"by_collector"`
	ByItem             []PerfPoint      `json:"by_item"`
	DailyTrend         []SeriesPoint    `json:"daily_trend"`
	CustomerDeviation  []DeviationPoint `json:"customer_deviation"`
	CollectorDeviation []DeviationPoint `json:"collector_deviation"`
	ExecutiveRows      []ExecutiveRow   `json:"executive_rows"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller attached to a request context.
type Actor struct {
	Username    string
	DisplayName string
	Role        string
}

// UserAccount holds auth credentials. Password is a bcrypt hash at rest.
type UserAccount struct {
	Username    string
	Password    string
	DisplayName string
	Role        string
	Active      bool
	CreatedAt   time.Time
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDeviated = "deviated"
)

const (
	TypeCollection = "collection"
	TypeDelivery   = "delivery"
)

const (
	RoleCollector = "collector"
	RoleReceiver  = "receiver"
)

// Customers is the fixed customer catalog.
var Customers = []string{"abc", "efg", "pqr", "xyz"}

// Items is the fixed item catalog.
var Items = []string{"Blanket", "Shirt", "Handkerchief"}

func IsKnownCustomer(name string) bool {
	for _, c := range Customers {
		if c == name {
			return true
		}
	}
	return false
}

func IsKnownItem(name string) bool {
	for _, it := range Items {
		if it == name {
			return true
		}
	}
	return false
}

// IsVerified reports whether a status is terminal (approved or deviated).
func IsVerified(status string) bool {
	return status == StatusApproved || status == StatusDeviated
}
