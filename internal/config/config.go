// Package config loads process configuration once at start-up from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	x402 "github.com/mxber2022/duck-x402"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the whole process configuration.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	// Network is the CAIP-2 payment network shared by client and server.
	Network string `env:"PAYMENT_NETWORK" envDefault:"eip155:5545"`

	Log    LogConfig
	Client ClientConfig
	Server ServerConfig
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT"`
}

// ClientConfig configures the MCP tool server and its paying client.
type ClientConfig struct {
	PrivateKey string `env:"PRIVATE_KEY"`

	// BaseURL is the resource server every request is sent to.
	BaseURL      string `env:"BASE_URL" envDefault:"http://localhost:4000"`
	EndpointPath string `env:"ENDPOINT_PATH" envDefault:"/pay"`

	// Token overrides the network's default payment token.
	Token string `env:"PAYMENT_TOKEN"`

	// MaxPaymentAmount caps a single payment in atomic units. Empty means
	// no cap.
	MaxPaymentAmount string `env:"MAX_PAYMENT_AMOUNT"`

	// SignerQueueDepth > 0 serializes signing through a queue of that depth.
	SignerQueueDepth int `env:"SIGNER_QUEUE_DEPTH" envDefault:"0"`

	ToolTimeout time.Duration `env:"TOOL_TIMEOUT" envDefault:"120s"`
	Transport   string        `env:"MCP_TRANSPORT" envDefault:"stdio"`
	MCPAddr     string        `env:"MCP_ADDR" envDefault:":8080"`
}

// ServerConfig configures the reference resource server.
type ServerConfig struct {
	Addr          string        `env:"RESOURCE_ADDR" envDefault:":4000"`
	PayTo         string        `env:"PAY_TO"`
	EndpointPath  string        `env:"ENDPOINT_PATH" envDefault:"/pay"`
	ResourcePrice string        `env:"RESOURCE_PRICE" envDefault:"$0.01"`
	InvoiceTTL    time.Duration `env:"INVOICE_TTL" envDefault:"24h"`

	// FacilitatorURL selects a remote facilitator. Empty verifies and
	// settles in process.
	FacilitatorURL           string `env:"FACILITATOR_URL"`
	FacilitatorAuthorization string `env:"FACILITATOR_AUTHORIZATION"`

	// ServeFacilitator mounts the in-process facilitator's HTTP API under
	// /facilitator.
	ServeFacilitator bool `env:"SERVE_FACILITATOR" envDefault:"false"`
}

// Load reads files (default ".env", which may be absent) into the process
// environment without overriding variables already set, then parses Config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load %s: %w", strings.Join(files, ", "), err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := x402.ValidateNetwork(cfg.Network); err != nil {
		return nil, fmt.Errorf("PAYMENT_NETWORK: %w", err)
	}
	return cfg, nil
}

// ValidateClient checks the settings the MCP tool server needs.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Client.PrivateKey) == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BASE_URL %q must be an http(s) URL", c.Client.BaseURL)
	}
	if c.Client.Token != "" && !common.IsHexAddress(c.Client.Token) {
		return fmt.Errorf("PAYMENT_TOKEN %q is not an address", c.Client.Token)
	}
	if _, err := c.MaxAmount(); err != nil {
		return err
	}
	if _, err := c.Tokens(); err != nil {
		return fmt.Errorf("PAYMENT_NETWORK: %w", err)
	}
	if c.Client.SignerQueueDepth < 0 {
		return fmt.Errorf("SIGNER_QUEUE_DEPTH must not be negative")
	}
	if c.Client.ToolTimeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT must be positive")
	}
	switch c.Client.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("MCP_TRANSPORT %q must be %s or %s", c.Client.Transport, TransportStdio, TransportHTTP)
	}
	return nil
}

// ValidateServer checks the settings the resource server needs.
func (c *Config) ValidateServer() error {
	if !common.IsHexAddress(c.Server.PayTo) {
		return fmt.Errorf("PAY_TO %q must be an address", c.Server.PayTo)
	}
	if c.Server.InvoiceTTL <= 0 {
		return fmt.Errorf("INVOICE_TTL must be positive")
	}
	if c.Server.FacilitatorURL != "" {
		u, err := url.Parse(c.Server.FacilitatorURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("FACILITATOR_URL %q is not a URL", c.Server.FacilitatorURL)
		}
	}
	return nil
}

// MaxAmount parses MAX_PAYMENT_AMOUNT; nil means no cap.
func (c *Config) MaxAmount() (*big.Int, error) {
	if c.Client.MaxPaymentAmount == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(c.Client.MaxPaymentAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("MAX_PAYMENT_AMOUNT %q must be a positive integer", c.Client.MaxPaymentAmount)
	}
	return amount, nil
}

// Tokens returns the token the client signs for: the network default, or
// PAYMENT_TOKEN when set.
func (c *Config) Tokens() ([]x402.TokenConfig, error) {
	chain, err := x402.GetChainConfig(c.Network)
	if err != nil {
		return nil, err
	}
	token := chain.TokenConfig(1)
	if c.Client.Token != "" {
		token.Address = c.Client.Token
	}
	return []x402.TokenConfig{token}, nil
}
