// Package solanapay encodes and parses Solana Pay transfer request links.
package solanapay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/shopspring/decimal"
)

const (
	Scheme        = "solana"
	publicKeySize = 32
)

var ErrInvalidURL = errors.New("invalid solana pay url")

// TransferRequest is the content of a solana: payment link.
type TransferRequest struct {
	Recipient  string
	Amount     decimal.Decimal // zero means the wallet asks the payer
	SplToken   string          // mint; empty for SOL
	References []string
	Label      string
	Message    string
	Memo       string
}

// ValidPublicKey reports whether s is a base58 encoded 32 byte key.
func ValidPublicKey(s string) bool {
	if s == "" {
		return false
	}
	return len(base58.Decode(s)) == publicKeySize
}

// Encode renders r as a transfer request URI. Parameters keep the order
// wallets expect: amount, spl-token, reference, label, message, memo.
func Encode(r TransferRequest) (string, error) {
	if !ValidPublicKey(r.Recipient) {
		return "", fmt.Errorf("%w: recipient %q", ErrInvalidURL, r.Recipient)
	}
	if r.Amount.IsNegative() {
		return "", fmt.Errorf("%w: negative amount %s", ErrInvalidURL, r.Amount)
	}

	var params []string
	add := func(k, v string) {
		params = append(params, k+"="+url.QueryEscape(v))
	}

	if !r.Amount.IsZero() {
		add("amount", r.Amount.String())
	}
	if r.SplToken != "" {
		if !ValidPublicKey(r.SplToken) {
			return "", fmt.Errorf("%w: spl-token %q", ErrInvalidURL, r.SplToken)
		}
		add("spl-token", r.SplToken)
	}
	for _, ref := range r.References {
		if !ValidPublicKey(ref) {
			return "", fmt.Errorf("%w: reference %q", ErrInvalidURL, ref)
		}
		add("reference", ref)
	}
	if r.Label != "" {
		add("label", r.Label)
	}
	if r.Message != "" {
		add("message", r.Message)
	}
	if r.Memo != "" {
		add("memo", r.Memo)
	}

	uri := Scheme + ":" + r.Recipient
	if len(params) > 0 {
		uri += "?" + strings.Join(params, "&")
	}
	return uri, nil
}

// Parse is the inverse of Encode.
func Parse(uri string) (TransferRequest, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != Scheme {
		return TransferRequest{}, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	r := TransferRequest{Recipient: u.Opaque}
	if !ValidPublicKey(r.Recipient) {
		return TransferRequest{}, fmt.Errorf("%w: recipient %q", ErrInvalidURL, r.Recipient)
	}

	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if v := q.Get("amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil || amount.IsNegative() {
			return TransferRequest{}, fmt.Errorf("%w: amount %q", ErrInvalidURL, v)
		}
		r.Amount = amount
	}
	if v := q.Get("spl-token"); v != "" {
		if !ValidPublicKey(v) {
			return TransferRequest{}, fmt.Errorf("%w: spl-token %q", ErrInvalidURL, v)
		}
		r.SplToken = v
	}
	for _, ref := range q["reference"] {
		if !ValidPublicKey(ref) {
			return TransferRequest{}, fmt.Errorf("%w: reference %q", ErrInvalidURL, ref)
		}
		r.References = append(r.References, ref)
	}
	r.Label = q.Get("label")
	r.Message = q.Get("message")
	r.Memo = q.Get("memo")
	return r, nil
}
