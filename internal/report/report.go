package report

import (
	"slices"
	"time"

	"github.com/ekameshwar10/Laundry-track/internal/domain"
	"github.com/ekameshwar10/Laundry-track/internal/ledger"
)

// Group dimensions accepted by the chart series.
const (
	GroupByCustomer  = "customer"
	GroupByCollector = "collector"
	GroupByItem      = "item"
	GroupByDate      = "date"
)

// RowFilter narrows flat rows before any grouping happens. Zero-valued
// fields match everything.
type RowFilter struct {
	CollectorID string
	Customer    string
	Item        string
	From        *time.Time
	To          *time.Time
}

func (f RowFilter) matches(row domain.FlatRow) bool {
	if f.CollectorID != "" && row.CollectorID != f.CollectorID {
		return false
	}
	if f.Customer != "" && row.Customer != f.Customer {
		return false
	}
	if f.Item != "" && row.Item != f.Item {
		return false
	}
	if f.From != nil && row.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && row.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// Flatten expands records into one row per effective item line, keeping only
// records whose status is in the given set. An empty status set keeps all.
func Flatten(records []domain.Record, statuses []string) []domain.FlatRow {
	keep := func(status string) bool {
		if len(statuses) == 0 {
			return true
		}
		return slices.Contains(statuses, status)
	}

	rows := make([]domain.FlatRow, 0, len(records))
	for _, rec := range records {
		if !keep(rec.VerificationStatus) {
			continue
		}
		for _, line := range ledger.EffectiveItems(rec) {
			rows = append(rows, domain.FlatRow{
				RecordID:      rec.ID,
				CollectorID:   rec.CollectorID,
				CollectorName: rec.CollectorName,
				Customer:      rec.Customer,
				Item:          line.Name,
				Type:          rec.Type,
				Qty:           line.Qty,
				Timestamp:     rec.CreatedAt,
				Status:        rec.VerificationStatus,
			})
		}
	}
	return rows
}

// Filter applies a row filter, returning the surviving rows.
func Filter(rows []domain.FlatRow, f RowFilter) []domain.FlatRow {
	out := make([]domain.FlatRow, 0, len(rows))
	for _, row := range rows {
		if f.matches(row) {
			out = append(out, row)
		}
	}
	return out
}

// GrandTotals rolls filtered rows up by (customer, item) across all
// collectors, tracking who touched each pool and the collection/delivery
// time bounds.
func GrandTotals(rows []domain.FlatRow) []domain.GrandTotalRow {
	type key struct{ customer, item string }
	type acc struct {
		collected, delivered int
		collectedBy          map[string]struct{}
		deliveredBy          map[string]struct{}
		firstCollection      *time.Time
		lastDelivery         *time.Time
	}

	totals := make(map[key]*acc)
	for _, row := range rows {
		k := key{row.Customer, row.Item}
		a, ok := totals[k]
		if !ok {
			a = &acc{
				collectedBy: make(map[string]struct{}),
				deliveredBy: make(map[string]struct{}),
			}
			totals[k] = a
		}
		switch row.Type {
		case domain.TypeCollection:
			a.collected += row.Qty
			a.collectedBy[row.CollectorName] = struct{}{}
			if a.firstCollection == nil || row.Timestamp.Before(*a.firstCollection) {
				ts := row.Timestamp
				a.firstCollection = &ts
			}
		case domain.TypeDelivery:
			a.delivered += row.Qty
			a.deliveredBy[row.CollectorName] = struct{}{}
			if a.lastDelivery == nil || row.Timestamp.After(*a.lastDelivery) {
				ts := row.Timestamp
				a.lastDelivery = &ts
			}
		}
	}

	out := make([]domain.GrandTotalRow, 0, len(totals))
	for k, a := range totals {
		out = append(out, domain.GrandTotalRow{
			Customer:          k.customer,
			Item:              k.item,
			Collected:         a.collected,
			Delivered:         a.delivered,
			NetPending:        floorZero(a.collected - a.delivered),
			CollectedBy:       sortedKeys(a.collectedBy),
			DeliveredBy:       sortedKeys(a.deliveredBy),
			FirstCollectionAt: a.firstCollection,
			LastDeliveryAt:    a.lastDelivery,
		})
	}
	slices.SortFunc(out, func(a, b domain.GrandTotalRow) int {
		if a.Customer == b.Customer {
			return cmpString(a.Item, b.Item)
		}
		return cmpString(a.Customer, b.Customer)
	})
	return out
}

// Series groups filtered rows into a collected-vs-delivered chart series by
// the requested dimension, sorted ascending by group key. Unknown dimensions
// fall back to customer.
func Series(rows []domain.FlatRow, groupBy string) []domain.SeriesPoint {
	keyOf := func(row domain.FlatRow) string {
		switch groupBy {
		case GroupByCollector:
			return row.CollectorName
		case GroupByItem:
			return row.Item
		case GroupByDate:
			return row.Timestamp.UTC().Format("2006-01-02")
		default:
			return row.Customer
		}
	}

	points := make(map[string]*domain.SeriesPoint)
	for _, row := range rows {
		k := keyOf(row)
		p, ok := points[k]
		if !ok {
			p = &domain.SeriesPoint{Key: k}
			points[k] = p
		}
		switch row.Type {
		case domain.TypeCollection:
			p.Collected += row.Qty
		case domain.TypeDelivery:
			p.Delivered += row.Qty
		}
	}

	out := make([]domain.SeriesPoint, 0, len(points))
	for _, p := range points {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b domain.SeriesPoint) int {
		return cmpString(a.Key, b.Key)
	})
	return out
}

// ItemShares totals collected quantity per item over filtered rows.
func ItemShares(rows []domain.FlatRow) []domain.ItemShare {
	shares := make(map[string]int)
	for _, row := range rows {
		if row.Type != domain.TypeCollection {
			continue
		}
		shares[row.Item] += row.Qty
	}
	out := make([]domain.ItemShare, 0, len(shares))
	for item, qty := range shares {
		out = append(out, domain.ItemShare{Item: item, Qty: qty})
	}
	slices.SortFunc(out, func(a, b domain.ItemShare) int {
		if a.Qty == b.Qty {
			return cmpString(a.Item, b.Item)
		}
		// Largest share first.
		return b.Qty - a.Qty
	})
	return out
}

// BuildSummary renders the summary view over the given statuses. The
// verified-summary view passes {approved, deviated}; the pre-verification
// view passes {pending}.
func BuildSummary(records []domain.Record, statuses []string, filter RowFilter, groupBy string) domain.SummaryReport {
	if groupBy == "" {
		groupBy = GroupByCustomer
	}
	rows := Filter(Flatten(records, statuses), filter)

	totalCollected := 0
	totalDelivered := 0
	collectionLines := 0
	deliveryLines := 0
	for _, row := range rows {
		switch row.Type {
		case domain.TypeCollection:
			totalCollected += row.Qty
			collectionLines++
		case domain.TypeDelivery:
			totalDelivered += row.Qty
			deliveryLines++
		}
	}

	return domain.SummaryReport{
		Statuses:        statuses,
		TotalCollected:  totalCollected,
		TotalDelivered:  totalDelivered,
		NetPending:      floorZero(totalCollected - totalDelivered),
		CollectionLines: collectionLines,
		DeliveryLines:   deliveryLines,
		GrandTotals:     GrandTotals(rows),
		GroupBy:         groupBy,
		Series:          Series(rows, groupBy),
		ItemShares:      ItemShares(rows),
	}
}

// BuildManagement renders the all-status executive view. Quantity KPIs and
// breakdowns use verified rows only; record counts, deviation rates and the
// executive table cover every record that survives the filter.
func BuildManagement(records []domain.Record, filter RowFilter) domain.ManagementReport {
	allRows := Filter(Flatten(records, nil), filter)
	verifiedRows := make([]domain.FlatRow, 0, len(allRows))
	for _, row := range allRows {
		if domain.IsVerified(row.Status) {
			verifiedRows = append(verifiedRows, row)
		}
	}

	// Distinct records surviving the row filter.
	recordByID := make(map[string]domain.Record, len(records))
	for _, rec := range records {
		recordByID[rec.ID] = rec
	}
	seen := make(map[string]struct{})
	filtered := make([]domain.Record, 0, len(allRows))
	for _, row := range allRows {
		if _, ok := seen[row.RecordID]; ok {
			continue
		}
		seen[row.RecordID] = struct{}{}
		filtered = append(filtered, recordByID[row.RecordID])
	}

	rpt := domain.ManagementReport{TotalRecords: len(filtered)}
	for _, rec := range filtered {
		switch rec.VerificationStatus {
		case domain.StatusApproved:
			rpt.Approved++
		case domain.StatusDeviated:
			rpt.Deviated++
		default:
			rpt.Pending++
		}
	}

	for _, row := range verifiedRows {
		switch row.Type {
		case domain.TypeCollection:
			rpt.TotalCollected += row.Qty
		case domain.TypeDelivery:
			rpt.TotalDelivered += row.Qty
		}
	}
	rpt.NetPending = floorZero(rpt.TotalCollected - rpt.TotalDelivered)

	if verifiedTotal := rpt.Approved + rpt.Deviated; verifiedTotal > 0 {
		rpt.DeviationRate = float64(rpt.Deviated) / float64(verifiedTotal)
	}
	if rpt.TotalCollected > 0 {
		rpt.DeliveryRate = float64(rpt.TotalDelivered) / float64(rpt.TotalCollected)
	}
	rpt.OverDeliveredPairs = overDeliveredPairs(verifiedRows)

	rpt.ByCustomer = perfPoints(verifiedRows, GroupByCustomer)
	rpt.ByCollector = perfPoints(verifiedRows, GroupByCollector)
	rpt.ByItem = perfPoints(verifiedRows, GroupByItem)
	rpt.DailyTrend = Series(verifiedRows, GroupByDate)
	rpt.CustomerDeviation = deviationPoints(filtered, func(rec domain.Record) string { return rec.Customer })
	rpt.CollectorDeviation = deviationPoints(filtered, func(rec domain.Record) string { return rec.CollectorName })
	rpt.ExecutiveRows = executiveRows(filtered)

	return rpt
}

// overDeliveredPairs counts (customer, item) pools whose verified delivered
// quantity exceeds the verified collected quantity. The pool itself floors at
// zero; this surfaces the anomaly without changing that contract.
func overDeliveredPairs(verifiedRows []domain.FlatRow) int {
	type key struct{ customer, item string }
	net := make(map[key]int)
	for _, row := range verifiedRows {
		k := key{row.Customer, row.Item}
		switch row.Type {
		case domain.TypeCollection:
			net[k] += row.Qty
		case domain.TypeDelivery:
			net[k] -= row.Qty
		}
	}
	count := 0
	for _, n := range net {
		if n < 0 {
			count++
		}
	}
	return count
}

func perfPoints(rows []domain.FlatRow, groupBy string) []domain.PerfPoint {
	series := Series(rows, groupBy)
	out := make([]domain.PerfPoint, 0, len(series))
	for _, p := range series {
		out = append(out, domain.PerfPoint{
			Key:        p.Key,
			Collected:  p.Collected,
			Delivered:  p.Delivered,
			NetPending: floorZero(p.Collected - p.Delivered),
		})
	}
	return out
}

func deviationPoints(records []domain.Record, keyOf func(domain.Record) string) []domain.DeviationPoint {
	points := make(map[string]*domain.DeviationPoint)
	for _, rec := range records {
		if !domain.IsVerified(rec.VerificationStatus) {
			continue
		}
		k := keyOf(rec)
		p, ok := points[k]
		if !ok {
			p = &domain.DeviationPoint{Key: k}
			points[k] = p
		}
		if rec.VerificationStatus == domain.StatusDeviated {
			p.Deviated++
		} else {
			p.Approved++
		}
	}
	out := make([]domain.DeviationPoint, 0, len(points))
	for _, p := range points {
		if total := p.Approved + p.Deviated; total > 0 {
			p.Rate = float64(p.Deviated) / float64(total)
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b domain.DeviationPoint) int {
		return cmpString(a.Key, b.Key)
	})
	return out
}

func executiveRows(records []domain.Record) []domain.ExecutiveRow {
	out := make([]domain.ExecutiveRow, 0, len(records))
	for _, rec := range records {
		row := domain.ExecutiveRow{
			RecordID:      rec.ID,
			Customer:      rec.Customer,
			CollectorName: rec.CollectorName,
			Type:          rec.Type,
			RecordedQty:   ledger.SumQty(rec.Items),
			Status:        rec.VerificationStatus,
			Timestamp:     rec.CreatedAt,
		}
		if domain.IsVerified(rec.VerificationStatus) {
			qty := ledger.SumQty(ledger.EffectiveItems(rec))
			row.VerifiedQty = &qty
		}
		out = append(out, row)
	}
	// Newest first, id as a stable tiebreak.
	slices.SortFunc(out, func(a, b domain.ExecutiveRow) int {
		if a.Timestamp.Equal(b.Timestamp) {
			return cmpString(a.RecordID, b.RecordID)
		}
		if a.Timestamp.After(b.Timestamp) {
			return -1
		}
		return 1
	})
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
