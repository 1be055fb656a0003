package models

import (
	"fmt"
	"strings"
)

// Network scopes identifiers and the global cryptographic context.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// ParseNetwork accepts the lowercase network names used in identifiers.
func ParseNetwork(s string) (Network, error) {
	switch n := Network(strings.ToLower(strings.TrimSpace(s))); n {
	case NetworkMainnet, NetworkTestnet:
		return n, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

func (n Network) String() string { return string(n) }

// ContractAddress identifies a smart contract instance on chain.
type ContractAddress struct {
	Index    uint64 `json:"index"`
	Subindex uint64 `json:"subindex"`
}

func (c ContractAddress) String() string {
	return fmt.Sprintf("<%d,%d>", c.Index, c.Subindex)
}
