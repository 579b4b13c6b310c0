package auth

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Role is what a token holder may do.
type Role string

const (
	// RoleOwner manages whitelists and router bindings.
	RoleOwner Role = "owner"
	// RoleAgent submits calls, orders and swaps.
	RoleAgent Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleOwner || r == RoleAgent }

// Principal is the authenticated caller. Address is the token subject and is
// what the guard sees as the sender or registry caller.
type Principal struct {
	Address common.Address
	Role    Role
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, errors.New("no principal in context")
	}
	return p, nil
}
