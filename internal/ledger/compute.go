package ledger

import (
	"sort"
	"time"
)

// The engine is purely computational: batch rows carry only the current
// quantity, so any past quantity is reconstructed by adding the sale-line
// draws recorded after the instant of interest back onto the batch. Sale
// lines are the append-only event log that makes this derivable. If a
// batch-correction or write-off feature ever mutates quantities outside
// sale lines, this add-back must learn about those events too.

// ProductRef identifies one product of the tenant.
type ProductRef struct {
	ID   int64
	Name string
}

// BatchState is a batch as it stands now, with the rates it was bought at.
type BatchState struct {
	ID          int64
	ProductID   int64
	AddedAt     time.Time
	Quantity    int64
	CostRate    float64
	SellingRate float64
}

// PurchaseEvent is one purchase line dated by its owning document.
type PurchaseEvent struct {
	ProductID    int64
	Quantity     int64
	TotalCost    float64
	TotalSelling float64
	OccurredAt   time.Time
}

// SaleEvent is one sale line dated by its owning document. BatchID attributes
// the draw to the batch it came from for the add-back reconstruction.
type SaleEvent struct {
	BatchID      int64
	ProductID    int64
	Quantity     int64
	TotalCost    float64
	TotalSelling float64
	OccurredAt   time.Time
}

// ComputeInput is everything the engine needs for one tenant and window:
// all batches created on or before end, purchase events inside the window,
// and every sale event on or after start.
type ComputeInput struct {
	Products  []ProductRef
	Batches   []BatchState
	Purchases []PurchaseEvent
	Sales     []SaleEvent
}

// Compute renders the ledger rows for [start, end]. Opening reconstructs each
// pre-start batch's quantity at the start instant; closing does the same at
// the end instant; purchases and sales sum the window's line snapshots.
func Compute(in ComputeInput, start, end time.Time, mode Mode) []ProductLedgerRow {
	// Add-back sums per batch: draws on/after start restore the opening
	// quantity, draws strictly after end restore the closing quantity.
	addBackOpen := make(map[int64]int64)
	addBackClose := make(map[int64]int64)
	for _, ev := range in.Sales {
		if !ev.OccurredAt.Before(start) {
			addBackOpen[ev.BatchID] += ev.Quantity
		}
		if ev.OccurredAt.After(end) {
			addBackClose[ev.BatchID] += ev.Quantity
		}
	}

	type accum struct {
		openQty, closeQty             int64
		openCost, openSelling         float64
		closeCost, closeSelling       float64
		purchaseQty, saleQty          int64
		purchaseCost, purchaseSelling float64
		saleCost, saleSelling         float64
	}
	byProduct := make(map[int64]*accum, len(in.Products))
	acc := func(productID int64) *accum {
		a, ok := byProduct[productID]
		if !ok {
			a = &accum{}
			byProduct[productID] = a
		}
		return a
	}

	for _, b := range in.Batches {
		if b.AddedAt.After(end) {
			continue
		}
		a := acc(b.ProductID)
		closeQty := b.Quantity + addBackClose[b.ID]
		a.closeQty += closeQty
		a.closeCost += float64(closeQty) * b.CostRate
		a.closeSelling += float64(closeQty) * b.SellingRate
		if b.AddedAt.Before(start) {
			openQty := b.Quantity + addBackOpen[b.ID]
			a.openQty += openQty
			a.openCost += float64(openQty) * b.CostRate
			a.openSelling += float64(openQty) * b.SellingRate
		}
	}
	for _, ev := range in.Purchases {
		if ev.OccurredAt.Before(start) || ev.OccurredAt.After(end) {
			continue
		}
		a := acc(ev.ProductID)
		a.purchaseQty += ev.Quantity
		a.purchaseCost += ev.TotalCost
		a.purchaseSelling += ev.TotalSelling
	}
	for _, ev := range in.Sales {
		if ev.OccurredAt.Before(start) || ev.OccurredAt.After(end) {
			continue
		}
		a := acc(ev.ProductID)
		a.saleQty += ev.Quantity
		a.saleCost += ev.TotalCost
		a.saleSelling += ev.TotalSelling
	}

	rows := make([]ProductLedgerRow, 0, len(in.Products))
	for _, p := range in.Products {
		a := byProduct[p.ID]
		if a == nil {
			a = &accum{}
		}
		row := ProductLedgerRow{
			ProductID:   p.ID,
			ProductName: p.Name,
			Opening:     snapshot(a.openQty, a.openCost, a.openSelling),
			Purchases:   snapshot(a.purchaseQty, a.purchaseCost, a.purchaseSelling),
			Sales:       snapshot(a.saleQty, a.saleCost, a.saleSelling),
			Closing:     snapshot(a.closeQty, a.closeCost, a.closeSelling),
		}
		if mode == ModeSparse && row.Opening.IsZero() && row.Purchases.IsZero() && row.Sales.IsZero() && row.Closing.IsZero() {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductName < rows[j].ProductName })
	return rows
}

// snapshot derives weighted-average rates from value sums; zero quantity
// yields zero averages rather than a division fault.
func snapshot(qty int64, totalCost, totalSelling float64) Snapshot {
	if qty == 0 {
		return Snapshot{}
	}
	return Snapshot{
		Quantity:        qty,
		AvgCostPrice:    totalCost / float64(qty),
		AvgSellingPrice: totalSelling / float64(qty),
	}
}
