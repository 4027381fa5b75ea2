// Package asset describes the two settlement assets a checkout can be paid in:
// the ledger's native coin and one configured fungible token.
package asset

import (
	"errors"
	"fmt"
	"strings"
)

const (
	NativeSymbol   = "SOL"
	NativeDecimals = 9

	FungibleDecimals = 6
)

// ErrUnsupported is returned for any selector outside the configured pair.
var ErrUnsupported = errors.New("unsupported asset")

type Asset struct {
	Symbol   string // upper case, stored on the payment request as its token
	Mint     string // empty for the native asset
	Decimals int32  // fractional digits amounts are truncated to
	PriceID  string // oracle id used to look up the USD price
}

func (a Asset) Native() bool {
	return a.Mint == ""
}

func (a Asset) String() string {
	return a.Symbol
}

// Set is the closed set of accepted assets.
type Set struct {
	Native   Asset
	Fungible Asset
}

func NewSet(nativePriceID, fungibleSymbol, fungibleMint, fungiblePriceID string) Set {
	return Set{
		Native: Asset{
			Symbol:   NativeSymbol,
			Decimals: NativeDecimals,
			PriceID:  nativePriceID,
		},
		Fungible: Asset{
			Symbol:   strings.ToUpper(fungibleSymbol),
			Mint:     fungibleMint,
			Decimals: FungibleDecimals,
			PriceID:  fungiblePriceID,
		},
	}
}

// Normalize maps a client supplied selector ("sol", "Daddy", ...) onto the set.
func (s Set) Normalize(selector string) (Asset, error) {
	switch strings.ToUpper(strings.TrimSpace(selector)) {
	case s.Native.Symbol:
		return s.Native, nil
	case s.Fungible.Symbol:
		return s.Fungible, nil
	}
	return Asset{}, fmt.Errorf("%w: %q", ErrUnsupported, selector)
}

// ForRecord resolves the asset a stored request was created with.
func (s Set) ForRecord(symbol, mint string) (Asset, error) {
	a, err := s.Normalize(symbol)
	if err != nil {
		return Asset{}, err
	}
	if a.Mint != mint {
		return Asset{}, fmt.Errorf("%w: %s with mint %q", ErrUnsupported, symbol, mint)
	}
	return a, nil
}
