package model

import "time"

// TokenInfo is a registry row, as listed for a user.
type TokenInfo struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Amount    string    `json:"amount"`
	Owner     string    `json:"owner"`
	Authority string    `json:"authority"`
	Username  string    `json:"username"`
	RequestID uint64    `json:"requestId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenDetails is read from the token contract. TotalSupply is formatted with the token's decimals.
// Registry is the registry row, when the token was created by this relay and the registry is reachable.
type TokenDetails struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	Decimals    uint8      `json:"decimals"`
	TotalSupply string     `json:"totalSupply"`
	TokenOwner  string     `json:"tokenOwner"`
	Registry    *TokenInfo `json:"registry,omitempty"`
}

type TokenBalance struct {
	Address string `json:"address"`
	Wallet  string `json:"wallet"`
	Balance string `json:"balance"`
}
