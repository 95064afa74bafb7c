package cart

import (
	"strings"
	"time"

	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

// LineKey is the composite identity of a cart line. Two lines with the same
// key are the same line and are always merged, never duplicated.
type LineKey struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	SKU       string `json:"sku"`
}

// Validate rejects keys missing the product or SKU identity.
func (k LineKey) Validate() error {
	if strings.TrimSpace(k.ProductID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(k.SKU) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	return nil
}

// Line is one purchasable unit the shopper has selected. UnitPrice is
// snapshotted at add-time; later catalog price changes never alter it.
type Line struct {
	LineKey
	UnitPrice   types.Money `json:"unit_price"`
	Quantity    int         `json:"quantity"`
	StockLimit  *int        `json:"stock_limit,omitempty"`
	DisplayName string      `json:"display_name"`
	ImageRef    string      `json:"image_ref,omitempty"`
}

// Subtotal returns unit price times quantity.
func (l Line) Subtotal() types.Money {
	return l.UnitPrice.MulInt(l.Quantity)
}

func (l Line) clone() Line {
	out := l
	if l.StockLimit != nil {
		limit := *l.StockLimit
		out.StockLimit = &limit
	}
	return out
}

// Snapshot is an immutable copy of the cart taken when checkout begins.
// Pricing during checkout comes solely from the snapshot, never from a live
// cart read.
type Snapshot struct {
	Owner   string    `json:"owner"`
	Lines   []Line    `json:"lines"`
	TakenAt time.Time `json:"taken_at"`
}

// Empty reports whether the snapshot holds no lines.
func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Total sums unit price times quantity across all lines.
func (s Snapshot) Total() types.Money {
	if len(s.Lines) == 0 {
		return types.Money{}
	}
	total := s.Lines[0].Subtotal()
	for _, line := range s.Lines[1:] {
		sum, err := total.Add(line.Subtotal())
		if err != nil {
			continue
		}
		total = sum
	}
	return total
}
