package resourceserver

import (
	"fmt"
	"strings"
	"time"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/validation"
)

// Config configures the reference invoice server.
type Config struct {
	Addr string

	// Network is the CAIP-2 network invoices are paid on.
	Network string

	// Asset and Decimals default to the network's payment token.
	Asset    string
	Decimals int32

	// PayTo receives every payment.
	PayTo string

	// InvoiceTTL expires pending invoices. Zero never expires them.
	InvoiceTTL time.Duration

	// EndpointPath serves a protected resource. An invoiceId query pays that
	// invoice; without one the request is priced at ResourcePrice.
	EndpointPath  string
	ResourcePrice string

	MaxTimeoutSeconds int
}

// DefaultConfig returns a DuckChain configuration without a payee.
func DefaultConfig() Config {
	return Config{
		Addr:              ":4000",
		Network:           x402.NetworkDuckChain,
		InvoiceTTL:        24 * time.Hour,
		EndpointPath:      "/pay",
		ResourcePrice:     "$0.01",
		MaxTimeoutSeconds: 60,
	}
}

// Validate checks the configuration and fills token defaults from the
// network.
func (c *Config) Validate() error {
	if err := x402.ValidateNetwork(c.Network); err != nil {
		return err
	}
	if err := validation.ValidateAddress(c.PayTo); err != nil {
		return fmt.Errorf("payTo: %w", err)
	}

	chain, err := x402.GetChainConfig(c.Network)
	if c.Asset == "" {
		if err != nil {
			return fmt.Errorf("asset is required for network %s", c.Network)
		}
		c.Asset = chain.TokenAddress
	}
	if err := validation.ValidateAddress(c.Asset); err != nil {
		return fmt.Errorf("asset: %w", err)
	}
	if c.Decimals == 0 && err == nil && strings.EqualFold(c.Asset, chain.TokenAddress) {
		c.Decimals = int32(chain.Decimals)
	}
	if c.Decimals <= 0 {
		return fmt.Errorf("decimals must be positive, got %d", c.Decimals)
	}

	if c.EndpointPath == "" {
		c.EndpointPath = "/pay"
	}
	if !strings.HasPrefix(c.EndpointPath, "/") {
		return fmt.Errorf("endpoint path %q must start with /", c.EndpointPath)
	}
	if c.ResourcePrice == "" {
		c.ResourcePrice = "$0.01"
	}
	if _, err := validation.AtomicAmount(c.ResourcePrice, c.Decimals); err != nil {
		return fmt.Errorf("resource price: %w", err)
	}
	if c.InvoiceTTL < 0 {
		return fmt.Errorf("invoice TTL must not be negative")
	}
	if c.MaxTimeoutSeconds <= 0 {
		c.MaxTimeoutSeconds = 60
	}
	return nil
}

// tokenExtra returns the EIP-712 domain of the configured asset when it is
// the network's default token.
func (c *Config) tokenExtra() map[string]interface{} {
	chain, err := x402.GetChainConfig(c.Network)
	if err != nil || !strings.EqualFold(chain.TokenAddress, c.Asset) {
		return nil
	}
	return chain.EIP712Extra()
}
