package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/solanapay"
	"go-cryptopay/utils"
)

type shippingView struct {
	Method string          `json:"method"`
	Cost   decimal.Decimal `json:"cost"`
}

type createResponse struct {
	URL         string          `json:"url"`
	Reference   string          `json:"reference"`
	TokenUsed   string          `json:"tokenUsed"`
	Amount      decimal.Decimal `json:"amount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Shipping    *shippingView   `json:"shipping,omitempty"`
}

type statusResponse struct {
	Reference  string          `json:"reference"`
	Status     db.Status       `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Token      string          `json:"token"`
	SplToken   string          `json:"splToken,omitempty"`
	Signature  string          `json:"signature,omitempty"`
	URL        string          `json:"url"`
	CreatedAt  time.Time       `json:"createdAt"`
	VerifiedAt *time.Time      `json:"verifiedAt,omitempty"`
}

var errBadReference = utils.NewStatusError(errors.New("invalid reference"), http.StatusBadRequest)

// CreatePayment handles POST /api/pay.
func (h *Handler) CreatePayment(c *gin.Context) {
	var in checkout.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}
	in.IP = c.ClientIP()

	p, link, err := h.factory.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := createResponse{
		URL:         link,
		Reference:   p.Reference,
		TokenUsed:   p.Token,
		Amount:      p.Amount,
		TotalAmount: p.FiatTotal(),
	}
	if p.HasShipping() {
		resp.Shipping = &shippingView{Method: p.ShippingMethod, Cost: p.ShippingCost}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) lookup(c *gin.Context) (*db.PaymentRequest, bool) {
	ref := c.Param("reference")
	if !solanapay.ValidPublicKey(ref) {
		h.fail(c, errBadReference)
		return nil, false
	}
	p, err := h.store.FindByReference(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return p, true
}

// PaymentStatus handles GET /api/pay/:reference.
func (h *Handler) PaymentStatus(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Reference:  p.Reference,
		Status:     p.Status,
		Amount:     p.Amount,
		Token:      p.Token,
		SplToken:   p.SplToken,
		Signature:  p.Signature,
		URL:        p.PaymentLink,
		CreatedAt:  p.CreatedAt,
		VerifiedAt: p.VerifiedAt,
	})
}

// PaymentQR handles GET /api/pay/:reference/qr and renders the stored link.
func (h *Handler) PaymentQR(c *gin.Context) {
	p, ok := h.lookup(c)
	if !ok {
		return
	}
	png, err := solanapay.QRCode(p.PaymentLink, 512)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}
