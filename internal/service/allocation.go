package service

import (
	"math"

	"stockledger/internal/model"

	"github.com/google/uuid"
)

// lineDemand is the stock one sale line asks for.
type lineDemand struct {
	ProductID uuid.UUID
	Quantity  int
}

// productDebit is the aggregate demand on one product across a sale.
type productDebit struct {
	ProductID uuid.UUID
	Available int
	Requested int
	Lines     []int // indices into the sale's lines, in input order
}

// lineSnapshot is the stock a line saw before and after its own debit.
type lineSnapshot struct {
	Previous int
	New      int
}

type allocation struct {
	Debits    []productDebit // order of first appearance in the sale
	Snapshots []lineSnapshot // one per line, same index as the input
}

// allocate checks a sale's demand against one consistent read of stock.
// Lines naming the same product are summed before comparing, so two lines of
// 3 and 4 against a stock of 6 fail together. Every short product is reported
// in one InsufficientStock error. On success each line gets sequential
// snapshots within its product: line k sees stock minus the lines before it.
// Every product referenced by lines must be present in stock, and every line
// quantity must be positive.
func allocate(lines []lineDemand, stock map[uuid.UUID]model.Product) (*allocation, error) {
	byProduct := make(map[uuid.UUID]int, len(lines))
	var debits []productDebit
	for i, l := range lines {
		idx, seen := byProduct[l.ProductID]
		if !seen {
			idx = len(debits)
			byProduct[l.ProductID] = idx
			debits = append(debits, productDebit{
				ProductID: l.ProductID,
				Available: stock[l.ProductID].StockQuantity,
			})
		}
		debits[idx].Requested = addCapped(debits[idx].Requested, l.Quantity)
		debits[idx].Lines = append(debits[idx].Lines, i)
	}

	var shortfalls []Shortfall
	for _, d := range debits {
		if d.Requested > d.Available {
			shortfalls = append(shortfalls, Shortfall{
				ProductID:   d.ProductID,
				ProductName: stock[d.ProductID].Name,
				Requested:   d.Requested,
				Available:   d.Available,
				Missing:     d.Requested - d.Available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return nil, insufficientStock(shortfalls)
	}

	snapshots := make([]lineSnapshot, len(lines))
	for _, d := range debits {
		running := d.Available
		for _, i := range d.Lines {
			snapshots[i] = lineSnapshot{Previous: running, New: running - lines[i].Quantity}
			running -= lines[i].Quantity
		}
	}
	return &allocation{Debits: debits, Snapshots: snapshots}, nil
}

// addCapped adds two non-negative quantities, saturating at math.MaxInt. A
// saturated demand is always larger than any stock, so it fails the check.
func addCapped(sum, qty int) int {
	if qty > math.MaxInt-sum {
		return math.MaxInt
	}
	return sum + qty
}
