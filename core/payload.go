package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Payload is the decoded, validated body of a request. The concrete type always matches the request kind.
type Payload interface {
	Kind() Kind
	validate() error
}

type CreateTokenPayload struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	Owner  string `json:"owner"`
}

type MintTokenPayload struct {
	TokenAddress     string `json:"tokenAddress"`
	RecipientAddress string `json:"recipientAddress"`
	Amount           string `json:"amount"`
}

type TransferTokenPayload struct {
	TokenAddress     string `json:"tokenAddress"`
	RecipientAddress string `json:"recipientAddress"`
	Amount           string `json:"amount"`
}

type BurnTokenPayload struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
}

func (CreateTokenPayload) Kind() Kind   { return KindCreateToken }
func (MintTokenPayload) Kind() Kind     { return KindMintToken }
func (TransferTokenPayload) Kind() Kind { return KindTransferToken }
func (BurnTokenPayload) Kind() Kind     { return KindBurnToken }

func (p CreateTokenPayload) validate() error {
	if err := requireFields(map[string]string{"name": p.Name, "symbol": p.Symbol, "amount": p.Amount, "owner": p.Owner}); err != nil {
		return err
	}
	return requireAddresses(map[string]string{"owner": p.Owner})
}

func (p MintTokenPayload) validate() error {
	return validateTransferLike(p.TokenAddress, p.RecipientAddress, p.Amount)
}

func (p TransferTokenPayload) validate() error {
	return validateTransferLike(p.TokenAddress, p.RecipientAddress, p.Amount)
}

func (p BurnTokenPayload) validate() error {
	if err := requireFields(map[string]string{"tokenAddress": p.TokenAddress, "amount": p.Amount}); err != nil {
		return err
	}
	return requireAddresses(map[string]string{"tokenAddress": p.TokenAddress})
}

func validateTransferLike(token, recipient, amount string) error {
	if err := requireFields(map[string]string{"tokenAddress": token, "recipientAddress": recipient, "amount": amount}); err != nil {
		return err
	}
	return requireAddresses(map[string]string{"tokenAddress": token, "recipientAddress": recipient})
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrMalformedPayload, strings.Join(missing, ", "))
	}
	return nil
}

func requireAddresses(fields map[string]string) error {
	var invalid []string
	for name, value := range fields {
		if !common.IsHexAddress(value) {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return fmt.Errorf("%w: invalid address in %s", ErrMalformedPayload, strings.Join(invalid, ", "))
	}
	return nil
}

// DecodePayload checks a raw request body against the shape required by its kind.
// Unknown kinds return ErrUnknownKind, shape mismatches return ErrMalformedPayload.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindCreateToken:
		p = &CreateTokenPayload{}
	case KindMintToken:
		p = &MintTokenPayload{}
	case KindTransferToken:
		p = &TransferTokenPayload{}
	case KindBurnToken:
		p = &BurnTokenPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %s payload must be a JSON object", ErrMalformedPayload, kind)
	}
	if err := json.Unmarshal(trimmed, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, kind, err)
	}

	// return values, not pointers, so handlers get an immutable copy
	var decoded Payload
	switch v := p.(type) {
	case *CreateTokenPayload:
		decoded = *v
	case *MintTokenPayload:
		decoded = *v
	case *TransferTokenPayload:
		decoded = *v
	case *BurnTokenPayload:
		decoded = *v
	}
	if err := decoded.validate(); err != nil {
		return nil, err
	}
	return decoded, nil
}
