// Package eip3009 builds, signs and verifies transferWithAuthorization
// messages as EIP-712 typed data.
package eip3009

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402 "github.com/mxber2022/duck-x402"
)

// validAfterSkew backdates validAfter to tolerate clock drift between the
// payer and the verifier.
const validAfterSkew = 10

type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// Domain identifies the token contract that will execute the transfer.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// CreateAuthorization returns a fresh authorization valid for timeoutSeconds
// from now, with a random nonce.
func CreateAuthorization(from, to common.Address, value *big.Int, timeoutSeconds int) (*Authorization, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now().Unix()
	return &Authorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  big.NewInt(now - validAfterSkew),
		ValidBefore: big.NewInt(now + int64(timeoutSeconds)),
		Nonce:       nonce,
	}, nil
}

func GenerateNonce() ([32]byte, error) {
	var nonce [32]byte
	_, err := rand.Read(nonce[:])
	return nonce, err
}

func typedData(domain Domain, auth *Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       (*math.HexOrDecimal256)(auth.Value),
			"validAfter":  (*math.HexOrDecimal256)(auth.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(auth.ValidBefore),
			"nonce":       common.BytesToHash(auth.Nonce[:]).Hex(),
		},
	}
}

// Digest returns the EIP-712 hash that is signed for auth under domain.
func Digest(domain Domain, auth *Authorization) ([]byte, error) {
	td := typedData(domain, auth)

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}

// SignAuthorization signs auth and returns the 65-byte signature as 0x hex
// with v in {27, 28}.
func SignAuthorization(privateKey *ecdsa.PrivateKey, domain Domain, auth *Authorization) (string, error) {
	digest, err := Digest(domain, auth)
	if err != nil {
		return "", err
	}
	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign authorization: %w", err)
	}
	signature[64] += 27
	return "0x" + hex.EncodeToString(signature), nil
}

// RecoverSigner returns the address that produced signatureHex over auth.
func RecoverSigner(domain Domain, auth *Authorization, signatureHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest, err := Digest(domain, auth)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// FromPayload converts the wire authorization back into typed form.
func FromPayload(a x402.EVMAuthorization) (*Authorization, error) {
	if !common.IsHexAddress(a.From) || !common.IsHexAddress(a.To) {
		return nil, fmt.Errorf("authorization addresses are malformed")
	}
	value, ok := new(big.Int).SetString(a.Value, 10)
	if !ok {
		return nil, fmt.Errorf("authorization value %q is not an integer", a.Value)
	}
	validAfter, ok := new(big.Int).SetString(a.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("authorization validAfter %q is not an integer", a.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(a.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("authorization validBefore %q is not an integer", a.ValidBefore)
	}
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(a.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return nil, fmt.Errorf("authorization nonce must be 32 hex bytes")
	}

	auth := &Authorization{
		From:        common.HexToAddress(a.From),
		To:          common.HexToAddress(a.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
	}
	copy(auth.Nonce[:], nonceBytes)
	return auth, nil
}

// ToPayload converts auth into its wire form.
func ToPayload(auth *Authorization) x402.EVMAuthorization {
	return x402.EVMAuthorization{
		From:        auth.From.Hex(),
		To:          auth.To.Hex(),
		Value:       auth.Value.String(),
		ValidAfter:  auth.ValidAfter.String(),
		ValidBefore: auth.ValidBefore.String(),
		Nonce:       common.BytesToHash(auth.Nonce[:]).Hex(),
	}
}

// DomainFor resolves the EIP-712 domain of a requirement. The token name and
// version come from the requirement's extra data, falling back to the known
// defaults of the chain's payment token.
func DomainFor(req *x402.PaymentRequirements) (Domain, error) {
	chainID, err := x402.GetChainID(req.Network)
	if err != nil {
		return Domain{}, err
	}
	if !common.IsHexAddress(req.Asset) {
		return Domain{}, fmt.Errorf("%w: asset %q is not an address", x402.ErrInvalidToken, req.Asset)
	}

	name, _ := req.Extra["name"].(string)
	version, _ := req.Extra["version"].(string)
	if name == "" || version == "" {
		chain, err := x402.GetChainConfig(req.Network)
		if err != nil || !strings.EqualFold(chain.TokenAddress, req.Asset) {
			return Domain{}, fmt.Errorf("missing EIP-3009 parameters name and version for asset %s", req.Asset)
		}
		if name == "" {
			name = chain.EIP3009Name
		}
		if version == "" {
			version = chain.EIP3009Version
		}
	}

	return Domain{
		Name:              name,
		Version:           version,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(req.Asset),
	}, nil
}
