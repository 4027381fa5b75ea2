// Package notify tells a downstream system that a payment was verified.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"go-cryptopay/payment/db"
)

const HeaderNotificationID = "X-Notification-ID"

// Payload is the JSON body posted for a verified payment. Address and
// shipping fields are only present for requests that carry them.
type Payload struct {
	Reference   string          `json:"reference"`
	Recipient   string          `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token"`
	SplToken    string          `json:"splToken,omitempty"`
	Memo        string          `json:"memo,omitempty"`
	Status      db.Status       `json:"status"`
	Signature   string          `json:"signature"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	IP          string          `json:"ip,omitempty"`

	AddressLine1   string           `json:"addressLine1,omitempty"`
	AddressLine2   string           `json:"addressLine2,omitempty"`
	City           string           `json:"city,omitempty"`
	State          string           `json:"state,omitempty"`
	ZipCode        string           `json:"zipCode,omitempty"`
	Country        string           `json:"country,omitempty"`
	ShippingMethod string           `json:"shippingMethod,omitempty"`
	ShippingCost   *decimal.Decimal `json:"shippingCost,omitempty"`

	CartTotal   decimal.Decimal `json:"cartTotal"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CreatedAt   time.Time       `json:"createdAt"`
	VerifiedAt  *time.Time      `json:"verifiedAt,omitempty"`
}

func NewPayload(p *db.PaymentRequest) Payload {
	pl := Payload{
		Reference:    p.Reference,
		Recipient:    p.Recipient,
		Amount:       p.Amount,
		Token:        p.Token,
		SplToken:     p.SplToken,
		Memo:         p.Memo,
		Status:       p.Status,
		Signature:    p.Signature,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		PhoneNumber:  p.PhoneNumber,
		IP:           p.IP,
		AddressLine1: p.AddressLine1,
		AddressLine2: p.AddressLine2,
		City:         p.City,
		State:        p.State,
		ZipCode:      p.ZipCode,
		Country:      p.Country,
		CartTotal:    p.CartTotal,
		TotalAmount:  p.FiatTotal(),
		CreatedAt:    p.CreatedAt,
		VerifiedAt:   p.VerifiedAt,
	}
	if p.HasShipping() {
		cost := p.ShippingCost
		pl.ShippingMethod = p.ShippingMethod
		pl.ShippingCost = &cost
	}
	return pl
}

// DeliveryError reports a notification the sink did not accept.
type DeliveryError struct {
	Reference      string
	NotificationID string
	StatusCode     int // 0 when no response was received
	Err            error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notify %s (%s): webhook answered %d", e.Reference, e.NotificationID, e.StatusCode)
	}
	return fmt.Sprintf("notify %s (%s): %v", e.Reference, e.NotificationID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Webhook posts each verified payment once to a fixed URL. Failed deliveries
// are reported to the caller and not retried.
type Webhook struct {
	client *resty.Client
	url    string
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

func (w *Webhook) Notify(ctx context.Context, p *db.PaymentRequest) error {
	id := uuid.NewString()
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader(HeaderNotificationID, id).
		SetBody(NewPayload(p)).
		Post(w.url)
	if err != nil {
		return &DeliveryError{Reference: p.Reference, NotificationID: id, Err: err}
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &DeliveryError{Reference: p.Reference, NotificationID: id, StatusCode: resp.StatusCode()}
	}
	return nil
}
