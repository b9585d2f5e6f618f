package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/mxber2022/duck-x402"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// challengeSchemas holds one compiled schema per supported x402Version.
var challengeSchemas = map[int]*gojsonschema.Schema{
	x402.X402VersionV1: mustSchema("schemas/challenge_v1.json"),
	x402.X402Version:   mustSchema("schemas/challenge_v2.json"),
}

func mustSchema(name string) *gojsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("validation: read %s: %v", name, err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("validation: compile %s: %v", name, err))
	}
	return schema
}

// ParseChallenge validates a 402 response body against the schema of its
// declared x402Version and returns it in version 2 form. Every failure is a
// protocol error.
func ParseChallenge(body []byte) (*x402.PaymentRequired, error) {
	var head struct {
		X402Version *int `json:"x402Version"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, x402.NewError(x402.CodeProtocol, "challenge body is not a JSON object", err)
	}
	if head.X402Version == nil {
		return nil, x402.NewError(x402.CodeProtocol, "challenge has no x402Version", x402.ErrUnsupportedVersion)
	}

	version := *head.X402Version
	schema, ok := challengeSchemas[version]
	if !ok {
		return nil, x402.NewError(x402.CodeProtocol, fmt.Sprintf("unrecognized x402Version %d", version), x402.ErrUnsupportedVersion).
			WithDetails("x402Version", version)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, x402.NewError(x402.CodeProtocol, "challenge schema validation failed", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return nil, x402.NewError(x402.CodeProtocol, "challenge does not match x402 schema", x402.ErrInvalidRequirements).
			WithDetails("problems", strings.Join(problems, "; "))
	}

	if version == x402.X402VersionV1 {
		var v1 x402.PaymentRequiredV1
		if err := json.Unmarshal(body, &v1); err != nil {
			return nil, x402.NewError(x402.CodeProtocol, "decode v1 challenge", err)
		}
		out, err := v1.ToV2()
		if err != nil {
			return nil, x402.NewError(x402.CodeProtocol, "normalize v1 challenge", err)
		}
		return out, nil
	}

	var challenge x402.PaymentRequired
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, x402.NewError(x402.CodeProtocol, "decode challenge", err)
	}
	return &challenge, nil
}
