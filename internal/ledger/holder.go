package ledger

import "fmt"

// HolderScope represents the top-level holder namespace
type HolderScope uint8

const (
	HolderScopeUser HolderScope = iota
	HolderScopeVault
	HolderScopeReserve
	HolderScopeQuarantine
)

// Holder identifies a balance-bearing party for one token.
// User holders are externally owned; vault, reserve, and quarantine
// holders are controlled by the protocol authority.
type Holder struct {
	Scope HolderScope
	Name  string
	Token string
}

// NewUserHolder keys a user's balance for a token.
func NewUserHolder(address, token string) Holder {
	return Holder{Scope: HolderScopeUser, Name: address, Token: token}
}

// NewVaultHolder keys a protocol vault for a token.
func NewVaultHolder(name, token string) Holder {
	return Holder{Scope: HolderScopeVault, Name: name, Token: token}
}

// NewReserveHolder keys a pre-funded reserve (e.g. the migration reserve).
func NewReserveHolder(name, token string) Holder {
	return Holder{Scope: HolderScopeReserve, Name: name, Token: token}
}

// NewQuarantineHolder keys the one-way quarantine for a token. Balances
// moved here are never transferred back out.
func NewQuarantineHolder(token string) Holder {
	return Holder{Scope: HolderScopeQuarantine, Name: "quarantine", Token: token}
}

// Path returns the string representation for storage/logging.
func (h Holder) Path() string {
	return fmt.Sprintf("%s:%s:%s", h.scopeName(), h.Name, h.Token)
}

func (h Holder) scopeName() string {
	switch h.Scope {
	case HolderScopeUser:
		return "user"
	case HolderScopeVault:
		return "vault"
	case HolderScopeReserve:
		return "reserve"
	case HolderScopeQuarantine:
		return "quarantine"
	default:
		return "unknown"
	}
}
