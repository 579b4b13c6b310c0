package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims the API expects. Subject is a hex address.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Validator verifies HS256 tokens signed with a shared secret.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator returns nil for an empty secret, which the middleware treats
// as "authentication not configured".
func NewValidator(secret []byte) *Validator {
	if len(secret) == 0 {
		return nil
	}
	return &Validator{secret: secret, issuer: "assetguard"}
}

// Issue signs a token for addr with role, valid for ttl.
func (v *Validator) Issue(addr common.Address, role Role, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.Hex(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Validate parses tokenStr and returns the principal it names.
func (v *Validator) Validate(tokenStr string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if !common.IsHexAddress(claims.Subject) {
		return Principal{}, fmt.Errorf("token subject %q is not an address", claims.Subject)
	}
	if !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("token role %q is not recognized", claims.Role)
	}
	return Principal{Address: common.HexToAddress(claims.Subject), Role: claims.Role}, nil
}
