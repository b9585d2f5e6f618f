package x402

import (
	"fmt"
	"strconv"
	"strings"
)

// CAIP-2 network identifiers
const (
	// EVM Mainnets
	NetworkBase      = "eip155:8453"
	NetworkPolygon   = "eip155:137"
	NetworkAvalanche = "eip155:43114"
	NetworkEthereum  = "eip155:1"
	NetworkDuckChain = "eip155:5545"

	// EVM Testnets
	NetworkBaseSepolia   = "eip155:84532"
	NetworkPolygonAmoy   = "eip155:80002"
	NetworkAvalancheFuji = "eip155:43113"
	NetworkSepolia       = "eip155:11155111"
)

// ChainConfig holds the default payment token of a chain.
type ChainConfig struct {
	// Network is the CAIP-2 network identifier.
	Network string

	// V1Name is the legacy network name used by version 1 challenges.
	V1Name string

	// TokenAddress is the default payment token contract.
	TokenAddress string

	TokenSymbol string
	Decimals    uint8

	// EIP3009Name and EIP3009Version are the token's EIP-712 domain parameters.
	EIP3009Name    string
	EIP3009Version string

	// RPCURL and ExplorerURL are informational and never dialed.
	RPCURL      string
	ExplorerURL string
}

// Predefined chain configurations
var (
	// DuckChain pays in the DUCK token. The chain's native currency is TON.
	DuckChain = ChainConfig{
		Network:        NetworkDuckChain,
		V1Name:         "duckchain",
		TokenAddress:   "0xdA65892eA771d3268610337E9964D916028B7dAD",
		TokenSymbol:    "DUCK",
		Decimals:       18,
		EIP3009Name:    "DUCK",
		EIP3009Version: "1",
		RPCURL:         "https://rpc.duckchain.io",
		ExplorerURL:    "https://explorer.duckchain.io",
	}

	BaseMainnet = ChainConfig{
		Network:        NetworkBase,
		V1Name:         "base",
		TokenAddress:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	BaseSepolia = ChainConfig{
		Network:        NetworkBaseSepolia,
		V1Name:         "base-sepolia",
		TokenAddress:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}

	PolygonMainnet = ChainConfig{
		Network:        NetworkPolygon,
		V1Name:         "polygon",
		TokenAddress:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	PolygonAmoy = ChainConfig{
		Network:        NetworkPolygonAmoy,
		V1Name:         "polygon-amoy",
		TokenAddress:   "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}

	AvalancheMainnet = ChainConfig{
		Network:        NetworkAvalanche,
		V1Name:         "avalanche",
		TokenAddress:   "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	AvalancheFuji = ChainConfig{
		Network:        NetworkAvalancheFuji,
		V1Name:         "avalanche-fuji",
		TokenAddress:   "0x5425890298aed601595a70AB815c96711a31Bc65",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	EthereumMainnet = ChainConfig{
		Network:        NetworkEthereum,
		V1Name:         "ethereum",
		TokenAddress:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: "2",
	}

	Sepolia = ChainConfig{
		Network:        NetworkSepolia,
		V1Name:         "sepolia",
		TokenAddress:   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		TokenSymbol:    "USDC",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: "2",
	}
)

var knownChains = []ChainConfig{
	DuckChain,
	BaseMainnet,
	BaseSepolia,
	PolygonMainnet,
	PolygonAmoy,
	AvalancheMainnet,
	AvalancheFuji,
	EthereumMainnet,
	Sepolia,
}

var (
	chainByNetwork = make(map[string]ChainConfig, len(knownChains))
	chainByV1Name  = make(map[string]ChainConfig, len(knownChains))
)

func init() {
	for _, c := range knownChains {
		chainByNetwork[c.Network] = c
		chainByV1Name[c.V1Name] = c
	}
}

// GetChainConfig returns the chain configuration for a CAIP-2 network identifier.
func GetChainConfig(network string) (ChainConfig, error) {
	config, ok := chainByNetwork[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return config, nil
}

// NetworkFromV1Name maps a legacy network name such as "base-sepolia" to its
// CAIP-2 identifier. Identifiers already in CAIP-2 form pass through.
func NetworkFromV1Name(name string) (string, error) {
	if c, ok := chainByV1Name[name]; ok {
		return c.Network, nil
	}
	if _, err := GetChainID(name); err == nil {
		return name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidNetwork, name)
}

// V1NameForNetwork is the inverse of NetworkFromV1Name.
func V1NameForNetwork(network string) (string, error) {
	c, ok := chainByNetwork[network]
	if !ok {
		return "", fmt.Errorf("%w: no legacy name for %s", ErrInvalidNetwork, network)
	}
	return c.V1Name, nil
}

// ValidateNetwork checks that network is a well-formed EIP-155 CAIP-2 identifier.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}
	_, err := GetChainID(network)
	return err
}

// GetChainID extracts the chain ID from a CAIP-2 EVM network identifier.
func GetChainID(network string) (int64, error) {
	namespace, reference, ok := strings.Cut(network, ":")
	if !ok {
		return 0, fmt.Errorf("%w: invalid CAIP-2 format: %s", ErrInvalidNetwork, network)
	}
	if namespace != "eip155" {
		return 0, fmt.Errorf("%w: not an EVM network: %s", ErrInvalidNetwork, network)
	}
	chainID, err := strconv.ParseInt(reference, 10, 64)
	if err != nil || chainID <= 0 {
		return 0, fmt.Errorf("%w: invalid chain ID: %s", ErrInvalidNetwork, reference)
	}
	return chainID, nil
}

// TokenConfig returns the chain's default payment token with the given priority.
func (c ChainConfig) TokenConfig(priority int) TokenConfig {
	return TokenConfig{
		Address:  c.TokenAddress,
		Symbol:   c.TokenSymbol,
		Decimals: int(c.Decimals),
		Priority: priority,
		Name:     c.EIP3009Name,
	}
}

// EIP712Extra returns the requirement "extra" map a server advertises for
// this chain's token.
func (c ChainConfig) EIP712Extra() map[string]interface{} {
	return map[string]interface{}{
		"name":    c.EIP3009Name,
		"version": c.EIP3009Version,
	}
}
