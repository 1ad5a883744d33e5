package model

import "time"

// Mode selects how much the proof protocol demands from a context.
type Mode string

const (
	// ModeMinimal binds a proof to the context and payload only.
	ModeMinimal Mode = "minimal"
	// ModeBalanced additionally enforces scope and chain consistency
	// whenever the caller supplies those fields.
	ModeBalanced Mode = "balanced"
	// ModeStrict requires a server-issued nonce (or its one-way
	// derivative) as proof key material.
	ModeStrict Mode = "strict"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeMinimal, ModeBalanced, ModeStrict:
		return true
	}
	return false
}

// RequiresNonce reports whether contexts in this mode carry a nonce.
// Non-strict modes must work without one.
func (m Mode) RequiresNonce() bool {
	return m == ModeStrict
}

// Context is a one-time verification token. The store owns it
// exclusively: ConsumedAt transitions from nil to one fixed value
// exactly once, through the store's atomic consume and nowhere else.
// Nonce never leaves the server side.
type Context struct {
	ID         string
	Binding    string
	Mode       Mode
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Nonce      string
	ConsumedAt *time.Time
	Metadata   map[string]string
}

func (c Context) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c Context) Consumed() bool {
	return c.ConsumedAt != nil
}

// Issued is the public projection handed back to the issuing caller.
// ClientSecret is set only for the derived-secret family; the raw
// nonce is never part of any projection.
type Issued struct {
	ID           string
	Binding      string
	Mode         Mode
	ExpiresAt    time.Time
	ClientSecret string
}
