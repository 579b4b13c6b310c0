// Package reason defines the machine-distinguishable denial taxonomy shared by
// every validator. A denial is always fatal to the enclosing call.
package reason

import (
	"errors"
	"fmt"
)

// Code identifies why a call was rejected.
type Code string

const (
	SenderNotWhitelisted   Code = "SENDER_NOT_WHITELISTED"
	AssetNotWhitelisted    Code = "ASSET_NOT_WHITELISTED"
	ReceiverNotWhitelisted Code = "RECEIVER_NOT_WHITELISTED"
	RouterNotConfigured    Code = "ROUTER_NOT_CONFIGURED"
	MarketNotWhitelisted   Code = "MARKET_NOT_WHITELISTED"
	VaultNotWhitelisted    Code = "VAULT_NOT_WHITELISTED"
	ApprovalNotWhitelisted Code = "APPROVAL_NOT_WHITELISTED"
	EscrowMismatch         Code = "ESCROW_MISMATCH"
	MalformedPayload       Code = "MALFORMED_PAYLOAD"
	UnsupportedVersion     Code = "UNSUPPORTED_VERSION"
	ActionNotWhitelisted   Code = "ACTION_NOT_WHITELISTED"
	UnknownSelector        Code = "UNKNOWN_SELECTOR"
	ConstraintViolated     Code = "CONSTRAINT_VIOLATED"
	SlippageExceeded       Code = "SLIPPAGE_EXCEEDED"
	ExecutionReverted      Code = "EXECUTION_REVERTED"
	Unauthorized           Code = "UNAUTHORIZED"
)

// Error is a denial carrying its Code and the offending value, if any.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is matches any *Error with the same Code, so callers can write
// errors.Is(err, reason.New(reason.UnknownSelector, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New builds a denial.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Newf builds a denial with a formatted detail.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the denial code from err. Errors that are not denials
// report ok=false.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Has reports whether err is a denial with the given code.
func Has(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
