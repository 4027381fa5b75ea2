// Package controllers holds the gin handlers of the checkout API.
package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-cryptopay/log"
	"go-cryptopay/payment/asset"
	"go-cryptopay/payment/checkout"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/price"
	"go-cryptopay/payment/reconcile"
	"go-cryptopay/utils"
)

type Creator interface {
	Create(ctx context.Context, in checkout.Input) (*db.PaymentRequest, string, error)
}

type Reconciler interface {
	RunCycle(ctx context.Context) (reconcile.CycleReport, error)
}

type AdminConfig struct {
	PasswordHash []byte // bcrypt
	JWTSecret    []byte
	TokenTTL     time.Duration
}

// Handler serves the checkout, status, health and admin endpoints.
type Handler struct {
	factory    Creator
	store      db.Store
	reconciler Reconciler
	admin      AdminConfig
	logger     *zap.Logger
	now        func() time.Time
}

func New(factory Creator, store db.Store, reconciler Reconciler, admin AdminConfig) *Handler {
	if admin.TokenTTL <= 0 {
		admin.TokenTTL = 12 * time.Hour
	}
	return &Handler{
		factory:    factory,
		store:      store,
		reconciler: reconciler,
		admin:      admin,
		logger:     log.L().Named("http"),
		now:        time.Now,
	}
}

// classify attaches the HTTP status an error should be answered with.
func classify(err error) error {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, asset.ErrUnsupported):
		return utils.NewStatusError(err, http.StatusBadRequest)
	case errors.Is(err, price.ErrPriceUnavailable):
		return utils.NewStatusError(err, http.StatusServiceUnavailable)
	case errors.Is(err, db.ErrNotFound):
		return utils.NewStatusError(err, http.StatusNotFound)
	}
	return err
}

func (h *Handler) fail(c *gin.Context, err error) {
	err = classify(err)
	status := utils.StatusOf(err)

	body := gin.H{"error": err.Error()}
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		if status == http.StatusInternalServerError {
			body["error"] = "Internal Server Error"
		}
	}
	c.AbortWithStatusJSON(status, body)
}
