// Package checkout turns a purchase intent into a stored payment request and
// the Solana Pay link the customer settles it with.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/solanapay"
)

const (
	DefaultLabel = "My Store Payment"
	DefaultMemo  = "Payment from MyStore.com"

	maxReferenceAttempts = 5
)

var shippingCosts = map[string]decimal.Decimal{
	"standard": decimal.NewFromInt(10),
	"priority": decimal.NewFromInt(50),
}

// ShippingCost returns the USD surcharge for method and whether it is known.
func ShippingCost(method string) (decimal.Decimal, bool) {
	c, ok := shippingCosts[method]
	return c, ok
}

// Input is a purchase intent as received from a client.
type Input struct {
	Price     decimal.Decimal `json:"price"`
	CartTotal decimal.Decimal `json:"cartTotal"`
	Token     string          `json:"token" validate:"required"`
	FirstName string          `json:"firstName" validate:"required,max=128"`
	LastName  string          `json:"lastName" validate:"required,max=128"`
	Email     string          `json:"email" validate:"required,email,max=255"`
	Memo      string          `json:"memo" validate:"max=255"`

	PhoneNumber    string `json:"phoneNumber" validate:"max=64"`
	AddressLine1   string `json:"addressLine1" validate:"max=255"`
	AddressLine2   string `json:"addressLine2" validate:"max=255"`
	City           string `json:"city" validate:"max=128"`
	State          string `json:"state" validate:"max=128"`
	ZipCode        string `json:"zipCode" validate:"max=32"`
	Country        string `json:"country" validate:"max=64"`
	ShippingMethod string `json:"shippingMethod" validate:"omitempty,oneof=standard priority"`

	IP string `json:"-" validate:"omitempty,ip"`
}

// baseTotal is the fiat amount before shipping: price, or cartTotal when no
// price was given.
func (in Input) baseTotal() decimal.Decimal {
	if !in.Price.IsZero() {
		return in.Price
	}
	return in.CartTotal
}

type Config struct {
	Recipient   string
	Label       string
	DefaultMemo string
}

// Factory creates payment requests.
type Factory struct {
	store     db.Store
	converter Converter
	assets    asset.Set
	cfg       Config
	validator *validator.Validate

	now          func() time.Time
	newReference func() (string, error)
}

type Option func(*Factory)

func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

func WithReferenceGenerator(gen func() (string, error)) Option {
	return func(f *Factory) { f.newReference = gen }
}

func NewFactory(store db.Store, prices Pricer, assets asset.Set, cfg Config, opts ...Option) *Factory {
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.DefaultMemo == "" {
		cfg.DefaultMemo = DefaultMemo
	}
	f := &Factory{
		store:        store,
		converter:    Converter{Prices: prices},
		assets:       assets,
		cfg:          cfg,
		validator:    newValidator(),
		now:          time.Now,
		newReference: NewReference,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create validates in, prices it, persists a pending request under a fresh
// reference and returns the request with its payment link. Nothing is stored
// when validation or pricing fails.
func (f *Factory) Create(ctx context.Context, in Input) (*db.PaymentRequest, string, error) {
	if err := f.validate(in); err != nil {
		return nil, "", err
	}

	a, err := f.assets.Normalize(in.Token)
	if err != nil {
		return nil, "", err
	}

	base := in.baseTotal()
	shipping := decimal.Zero
	if in.ShippingMethod != "" {
		shipping, _ = ShippingCost(in.ShippingMethod)
	}
	total := base.Add(shipping)

	amount, err := f.converter.Convert(ctx, total, a)
	if err != nil {
		return nil, "", err
	}
	if !amount.IsPositive() {
		verr := &ValidationError{}
		verr.add("price", fmt.Sprintf("is too small to be paid in %s", a.Symbol))
		return nil, "", verr
	}

	memo := in.Memo
	if memo == "" {
		memo = f.cfg.DefaultMemo
	}

	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref, err := f.newReference()
		if err != nil {
			return nil, "", fmt.Errorf("generate reference: %w", err)
		}
		exists, err := f.store.ReferenceExists(ctx, ref)
		if err != nil {
			return nil, "", err
		}
		if exists {
			continue
		}

		p := &db.PaymentRequest{
			Reference:      ref,
			Recipient:      f.cfg.Recipient,
			Token:          a.Symbol,
			SplToken:       a.Mint,
			Amount:         amount,
			Label:          f.cfg.Label,
			Message:        "Payment for $" + base.String(),
			Memo:           memo,
			FirstName:      in.FirstName,
			LastName:       in.LastName,
			Email:          in.Email,
			PhoneNumber:    in.PhoneNumber,
			IP:             in.IP,
			AddressLine1:   in.AddressLine1,
			AddressLine2:   in.AddressLine2,
			City:           in.City,
			State:          in.State,
			ZipCode:        in.ZipCode,
			Country:        in.Country,
			ShippingMethod: in.ShippingMethod,
			ShippingCost:   shipping,
			CartTotal:      base,
			Status:         db.StatusPending,
		}

		link, err := solanapay.Encode(solanapay.TransferRequest{
			Recipient:  p.Recipient,
			Amount:     p.Amount,
			SplToken:   p.SplToken,
			References: []string{p.Reference},
			Label:      p.Label,
			Message:    p.Message,
			Memo:       p.Memo,
		})
		if err != nil {
			return nil, "", err
		}
		p.PaymentLink = link

		now := f.now()
		p.CreatedAt, p.UpdatedAt = now, now

		err = f.store.Create(ctx, p)
		if errors.Is(err, db.ErrDuplicateReference) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return p, link, nil
	}

	return nil, "", fmt.Errorf("no unique reference after %d attempts", maxReferenceAttempts)
}
