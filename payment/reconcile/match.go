package reconcile

import (
	"fmt"
	"strings"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/ledger"
)

type Mismatch struct {
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

// MismatchError means the ledger holds a transaction for the reference that
// does not settle the request. The request stays pending.
type MismatchError struct {
	Reference string
	Signature string
	Fields    []Mismatch
}

func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, m := range e.Fields {
		parts[i] = fmt.Sprintf("%s: want %q, got %q", m.Field, m.Want, m.Got)
	}
	return fmt.Sprintf("transfer %s for %s does not match: %s", e.Signature, e.Reference, strings.Join(parts, ", "))
}

// match compares what the ledger shows against the stored request. Amounts
// must be equal at the asset's precision.
func match(p *db.PaymentRequest, a asset.Asset, t *ledger.Transfer) error {
	var diffs []Mismatch
	if t.Recipient != p.Recipient {
		diffs = append(diffs, Mismatch{Field: "recipient", Want: p.Recipient, Got: t.Recipient})
	}
	if t.Mint != p.SplToken {
		diffs = append(diffs, Mismatch{Field: "splToken", Want: p.SplToken, Got: t.Mint})
	}

	want := p.Amount.Truncate(a.Decimals)
	got := t.Amount.Truncate(a.Decimals)
	if !got.Equal(want) {
		diffs = append(diffs, Mismatch{
			Field: "amount",
			Want:  want.StringFixed(a.Decimals),
			Got:   got.StringFixed(a.Decimals),
		})
	}

	if len(diffs) == 0 {
		return nil
	}
	return &MismatchError{Reference: p.Reference, Signature: t.Signature, Fields: diffs}
}
