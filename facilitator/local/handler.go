package local

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator"
)

// RegisterRoutes exposes f over HTTP with the endpoints FacilitatorClient
// calls: GET /supported, POST /verify and POST /settle.
// Zero timeouts fall back to x402.DefaultTimeouts.
func RegisterRoutes(r gin.IRoutes, f facilitator.Interface, timeouts x402.TimeoutConfig) {
	if timeouts.VerifyTimeout <= 0 {
		timeouts.VerifyTimeout = x402.DefaultTimeouts.VerifyTimeout
	}
	if timeouts.SettleTimeout <= 0 {
		timeouts.SettleTimeout = x402.DefaultTimeouts.SettleTimeout
	}

	r.GET("/supported", func(c *gin.Context) {
		supported, err := f.Supported(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, supported)
	})

	r.POST("/verify", func(c *gin.Context) {
		var body facilitator.VerifyRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeouts.VerifyTimeout)
		defer cancel()

		result, err := f.Verify(ctx, body.PaymentPayload, body.PaymentRequirements)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	r.POST("/settle", func(c *gin.Context) {
		var body facilitator.SettleRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeouts.SettleTimeout)
		defer cancel()

		result, err := f.Settle(ctx, body.PaymentPayload, body.PaymentRequirements)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})
}
