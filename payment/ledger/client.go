// Package ledger finds the transfer that settled a payment reference on
// Solana, using the node's JSON-RPC API.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	lamportDecimals = 9
	signatureLimit  = 1000

	DefaultCommitment = "confirmed"
)

// Commitments lists the levels getSignaturesForAddress accepts.
var Commitments = []string{"confirmed", "finalized"}

var (
	// ErrNotFound means no successful transaction references the query yet.
	ErrNotFound = errors.New("transfer not found")
	// ErrQueryTimeout means the node did not answer within the deadline.
	ErrQueryTimeout = errors.New("ledger query timed out")
)

// Query identifies the transfer to look for.
type Query struct {
	Reference string
	Recipient string
	Mint      string // empty for SOL

	// Accept picks the settling transfer when several transactions carry
	// Reference. Nil accepts the oldest successful one.
	Accept func(*Transfer) bool
}

// Transfer is what the ledger shows for a reference. Amount and Mint describe
// what Recipient received; Recipient is empty when the query's recipient was
// not credited at all.
type Transfer struct {
	Signature    string
	Slot         uint64
	BlockTime    time.Time
	Recipient    string
	Mint         string
	Amount       decimal.Decimal
	Confirmation string
}

type Options struct {
	Commitment string        // confirmed or finalized
	Timeout    time.Duration // HTTP timeout per call
	RPS        float64       // calls per second, unlimited when <= 0
}

// Client queries a Solana RPC node.
type Client struct {
	rpc        *rpc.Client
	commitment string
	limiter    *rate.Limiter
}

func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	hc := &http.Client{Timeout: opts.Timeout}
	rc, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}

	c := &Client{
		rpc:        rc,
		commitment: opts.Commitment,
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	if c.commitment == "" {
		c.commitment = DefaultCommitment
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return c, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrQueryTimeout, method, err)
	}

	err := c.rpc.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s", ErrQueryTimeout, method)
	}
	return fmt.Errorf("%s: %w", method, err)
}

// FindTransfer walks the successful transactions carrying q.Reference from
// oldest to newest and returns the first one q.Accept takes. When none is
// accepted the newest one is returned, so the caller can report why it does
// not settle the request.
func (c *Client) FindTransfer(ctx context.Context, q Query) (*Transfer, error) {
	var sigs []signatureInfo
	err := c.call(ctx, &sigs, "getSignaturesForAddress", q.Reference, map[string]interface{}{
		"commitment": c.commitment,
		"limit":      signatureLimit,
	})
	if err != nil {
		return nil, err
	}

	// Signatures come newest first.
	var last *Transfer
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Err != nil {
			continue
		}
		t, err := c.transfer(ctx, sigs[i], q)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		if q.Accept == nil || q.Accept(t) {
			return t, nil
		}
		last = t
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

// transfer fetches one transaction. It returns nil when the node no longer
// has it or it failed.
func (c *Client) transfer(ctx context.Context, sig signatureInfo, q Query) (*Transfer, error) {
	var tx *rpcTransaction
	err := c.call(ctx, &tx, "getTransaction", sig.Signature, map[string]interface{}{
		"commitment":                     c.commitment,
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return nil, nil
	}

	t := observe(tx, q)
	t.Signature = sig.Signature
	t.Confirmation = sig.ConfirmationStatus
	if t.Confirmation == "" {
		t.Confirmation = c.commitment
	}
	return t, nil
}

// observe works out what q.Recipient received in tx. The requested asset is
// looked at first; if it did not move, any other credit to the recipient is
// reported so the caller can tell a wrong asset from a missing payment.
func observe(tx *rpcTransaction, q Query) *Transfer {
	t := &Transfer{Slot: tx.Slot}
	if tx.BlockTime != nil {
		t.BlockTime = time.Unix(*tx.BlockTime, 0).UTC()
	}

	native := func() bool {
		d := lamportDelta(tx, q.Recipient)
		if !d.IsPositive() {
			return false
		}
		t.Recipient, t.Mint, t.Amount = q.Recipient, "", d
		return true
	}
	token := func(mint string) bool {
		d := tokenDelta(tx.Meta, q.Recipient, mint)
		if !d.IsPositive() {
			return false
		}
		t.Recipient, t.Mint, t.Amount = q.Recipient, mint, d
		return true
	}

	if q.Mint != "" {
		if token(q.Mint) || native() {
			return t
		}
	} else if native() {
		return t
	}

	for _, b := range tx.Meta.PostTokenBalances {
		if b.Owner == q.Recipient && b.Mint != q.Mint && token(b.Mint) {
			return t
		}
	}
	return t
}

func lamportDelta(tx *rpcTransaction, account string) decimal.Decimal {
	for i, k := range tx.Transaction.Message.AccountKeys {
		if k.Pubkey != account {
			continue
		}
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			return decimal.Zero
		}
		return decimal.New(tx.Meta.PostBalances[i]-tx.Meta.PreBalances[i], -lamportDecimals)
	}
	return decimal.Zero
}

// tokenDelta sums the change of every token account of mint owned by owner.
// Accounts created by the transaction have no pre balance.
func tokenDelta(meta *txMeta, owner, mint string) decimal.Decimal {
	sum := func(bals []tokenBalance) decimal.Decimal {
		total := decimal.Zero
		for _, b := range bals {
			if b.Owner != owner || b.Mint != mint {
				continue
			}
			raw, err := decimal.NewFromString(b.UITokenAmount.Amount)
			if err != nil {
				continue
			}
			total = total.Add(raw.Shift(-b.UITokenAmount.Decimals))
		}
		return total
	}
	return sum(meta.PostTokenBalances).Sub(sum(meta.PreTokenBalances))
}
