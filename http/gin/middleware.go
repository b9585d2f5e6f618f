// Package gin provides an x402 paywall middleware for gin routers.
package gin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator"
	x402http "github.com/mxber2022/duck-x402/http"
	"github.com/mxber2022/duck-x402/http/internal/helpers"
)

// Context keys set on a paid request.
const (
	PaymentContextKey     = "x402_payment"
	SettlementContextKey  = "x402_settlement"
	RequirementContextKey = "x402_requirement"
)

// RequirementsFunc prices a single request. Returning an error aborts the
// request with 500 before any challenge is sent.
type RequirementsFunc func(c *gin.Context) ([]x402.PaymentRequirements, error)

// Config configures NewX402Middleware.
type Config struct {
	// Facilitator verifies and settles payments. Required.
	Facilitator facilitator.Interface

	// Fallback is tried when Facilitator returns an error.
	Fallback facilitator.Interface

	// PaymentRequirements is used when Requirements is nil.
	PaymentRequirements []x402.PaymentRequirements
	Requirements        RequirementsFunc

	// Resource describes the protected resource. URL and Description default
	// to the request URL.
	Resource x402.ResourceInfo

	// VerifyOnly skips settlement.
	VerifyOnly bool

	Logger *zap.Logger
}

// NewX402Middleware gates the following handlers behind an x402 payment.
// Requests without X-PAYMENT get a 402 challenge. A valid payment is
// verified and settled, the settlement is echoed in X-PAYMENT-RESPONSE, and
// the verify and settle responses are stored on the gin context.
func NewX402Middleware(config Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Facilitator == nil {
		panic("x402 gin middleware: facilitator is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), x402.DefaultTimeouts.VerifyTimeout)
	supported, err := config.Facilitator.Supported(ctx)
	cancel()
	if err != nil {
		logger.Warn("failed to load supported payment kinds from facilitator", zap.Error(err))
	}

	return func(c *gin.Context) {
		reqLogger := logger.With(zap.String("path", c.Request.URL.Path))

		requirements := config.PaymentRequirements
		if config.Requirements != nil {
			var err error
			requirements, err = config.Requirements(c)
			if err != nil {
				reqLogger.Error("failed to price request", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to price resource"})
				return
			}
		}
		requirements = x402http.MergeSupportedExtra(requirements, supported)

		resource := config.Resource
		if resource.URL == "" {
			resource.URL = helpers.BuildResourceURL(c.Request)
		}
		if resource.Description == "" {
			resource.Description = "Payment required for " + c.Request.URL.Path
		}

		if c.GetHeader(helpers.PaymentHeader) == "" {
			reqLogger.Debug("no payment header provided")
			sendPaymentRequired(c, resource, requirements, "Payment required")
			return
		}

		payment, err := helpers.ParsePaymentHeader(c.Request)
		if err != nil {
			reqLogger.Warn("invalid payment header", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Invalid payment header",
			})
			return
		}

		requirement, err := x402.FindMatchingRequirement(payment, requirements)
		if err != nil {
			reqLogger.Warn("no matching requirement", zap.Error(err))
			sendPaymentRequired(c, resource, requirements, "No matching payment requirement")
			return
		}

		verifyResp, err := config.Facilitator.Verify(c.Request.Context(), *payment, *requirement)
		if err != nil && config.Fallback != nil {
			reqLogger.Warn("primary facilitator failed, trying fallback", zap.Error(err))
			verifyResp, err = config.Fallback.Verify(c.Request.Context(), *payment, *requirement)
		}
		if err != nil {
			reqLogger.Error("facilitator verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Payment verification failed",
			})
			return
		}
		if !verifyResp.IsValid {
			reqLogger.Warn("payment verification failed", zap.String("reason", verifyResp.InvalidReason))
			sendPaymentRequired(c, resource, requirements, verifyResp.InvalidReason)
			return
		}
		reqLogger.Info("payment verified", zap.String("payer", verifyResp.Payer))

		if !config.VerifyOnly {
			settleResp, err := config.Facilitator.Settle(c.Request.Context(), *payment, *requirement)
			if err != nil && config.Fallback != nil && errors.Is(err, x402.ErrFacilitatorUnavailable) {
				reqLogger.Warn("primary facilitator settlement failed, trying fallback", zap.Error(err))
				settleResp, err = config.Fallback.Settle(c.Request.Context(), *payment, *requirement)
			}
			if err != nil {
				reqLogger.Error("settlement failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"x402Version": x402.X402Version,
					"error":       "Payment settlement failed",
				})
				return
			}
			if !settleResp.Success {
				reqLogger.Warn("settlement unsuccessful", zap.String("reason", settleResp.ErrorReason))
				sendPaymentRequired(c, resource, requirements, settleResp.ErrorReason)
				return
			}
			reqLogger.Info("payment settled", zap.String("transaction", settleResp.Transaction))

			if err := helpers.AddPaymentResponseHeader(c.Writer.Header(), settleResp); err != nil {
				reqLogger.Warn("failed to add payment response header", zap.Error(err))
			}
			c.Set(SettlementContextKey, settleResp)
		}

		c.Set(PaymentContextKey, verifyResp)
		c.Set(RequirementContextKey, requirement)
		c.Next()
	}
}

func sendPaymentRequired(c *gin.Context, resource x402.ResourceInfo, requirements []x402.PaymentRequirements, errMsg string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, helpers.PaymentRequiredBody(resource, requirements, errMsg))
}

// GetPaymentFromContext returns the verified payment, or nil on an unpaid
// request.
func GetPaymentFromContext(c *gin.Context) *x402.VerifyResponse {
	value, ok := c.Get(PaymentContextKey)
	if !ok {
		return nil
	}
	resp, _ := value.(*x402.VerifyResponse)
	return resp
}

// GetSettlementFromContext returns the settlement, or nil when the request
// was not settled.
func GetSettlementFromContext(c *gin.Context) *x402.SettleResponse {
	value, ok := c.Get(SettlementContextKey)
	if !ok {
		return nil
	}
	resp, _ := value.(*x402.SettleResponse)
	return resp
}

// GetRequirementFromContext returns the requirement the payment answered.
func GetRequirementFromContext(c *gin.Context) *x402.PaymentRequirements {
	value, ok := c.Get(RequirementContextKey)
	if !ok {
		return nil
	}
	req, _ := value.(*x402.PaymentRequirements)
	return req
}
