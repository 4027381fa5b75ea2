package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusCancelled
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusVerified, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// PaymentRequest is one checkout awaiting settlement on the ledger.
// Everything but Status, Signature, VerifiedAt and UpdatedAt is fixed at creation.
// Shipping and address fields are only set for orders that carry them.
type PaymentRequest struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	Reference   string          `gorm:"size:64;not null;uniqueIndex" json:"reference"` // base58 public key, on-chain marker
	Recipient   string          `gorm:"size:64;not null" json:"recipient"`             // destination wallet
	Token       string          `gorm:"size:16;not null" json:"token"`                 // asset symbol, SOL or the fungible symbol
	SplToken    string          `gorm:"size:64" json:"splToken,omitempty"`             // mint, empty for SOL
	Amount      decimal.Decimal `gorm:"type:decimal(38,9);not null" json:"amount"`     // in asset units, truncated at creation
	Label       string          `gorm:"size:128" json:"label,omitempty"`
	Message     string          `gorm:"size:255" json:"message,omitempty"`
	Memo        string          `gorm:"size:255" json:"memo,omitempty"`
	PaymentLink string          `gorm:"type:text" json:"url,omitempty"`

	FirstName    string `gorm:"size:128;not null" json:"firstName"`
	LastName     string `gorm:"size:128;not null" json:"lastName"`
	Email        string `gorm:"size:255;not null" json:"email"`
	PhoneNumber  string `gorm:"size:64" json:"phoneNumber,omitempty"`
	IP           string `gorm:"size:64" json:"ip,omitempty"`
	AddressLine1 string `gorm:"size:255" json:"addressLine1,omitempty"`
	AddressLine2 string `gorm:"size:255" json:"addressLine2,omitempty"`
	City         string `gorm:"size:128" json:"city,omitempty"`
	State        string `gorm:"size:128" json:"state,omitempty"`
	ZipCode      string `gorm:"size:32" json:"zipCode,omitempty"`
	Country      string `gorm:"size:64" json:"country,omitempty"`

	ShippingMethod string          `gorm:"size:16" json:"shippingMethod,omitempty"` // standard, priority
	ShippingCost   decimal.Decimal `gorm:"type:decimal(18,2)" json:"shippingCost"`
	CartTotal      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"cartTotal"` // fiat, before shipping

	Status     Status     `gorm:"size:16;not null;default:pending;index:idx_status_created,priority:1" json:"status"`
	Signature  string     `gorm:"size:128" json:"signature,omitempty"`
	CreatedAt  time.Time  `gorm:"index:idx_status_created,priority:2" json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// HasShipping reports whether the request carries a shipping surcharge.
func (p *PaymentRequest) HasShipping() bool {
	return p.ShippingMethod != ""
}

// FiatTotal is what the customer was quoted in USD: cart plus shipping.
func (p *PaymentRequest) FiatTotal() decimal.Decimal {
	return p.CartTotal.Add(p.ShippingCost)
}
