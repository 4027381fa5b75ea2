package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"go-cryptopay/payment/db"
)

const maxListLimit = 1000

// AdminLogin handles POST /admin/login and returns a signed session token.
func (h *Handler) AdminLogin(c *gin.Context) {
	var body struct {
		Password string `json:"password"`
	}
	if c.Bind(&body) != nil {
		return
	}

	if bcrypt.CompareHashAndPassword(h.admin.PasswordHash, []byte(body.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}

	now := h.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.admin.TokenTTL)),
	})
	signed, err := token.SignedString(h.admin.JWTSecret)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed})
}

// ListPayments handles GET /admin/payments?status=&limit=.
func (h *Handler) ListPayments(c *gin.Context) {
	status, ok := db.ParseStatus(c.DefaultQuery("status", string(db.StatusPending)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	list, err := h.store.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []db.PaymentRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": list, "count": len(list)})
}

// Reconcile handles POST /admin/reconcile by running one cycle now.
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.RunCycle(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
