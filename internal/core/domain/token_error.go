package domain

import "fmt"

// TokenErrorKind classifies why a token was rejected.
type TokenErrorKind int

const (
	TokenMalformed TokenErrorKind = iota + 1
	TokenInvalidSignature
	TokenExpired
	TokenMissingClaim
	TokenWrongPurpose
	TokenConsumed
)

func (k TokenErrorKind) String() string {
	switch k {
	case TokenMalformed:
		return "malformed"
	case TokenInvalidSignature:
		return "invalid_signature"
	case TokenExpired:
		return "expired"
	case TokenMissingClaim:
		return "missing_claim"
	case TokenWrongPurpose:
		return "wrong_purpose"
	case TokenConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// TokenError is returned for every rejected token. It matches other
// TokenErrors of the same kind and ErrUnauthenticated under errors.Is, so
// callers can either branch on the kind or collapse everything into a 401.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

var (
	ErrTokenMalformed        = &TokenError{Kind: TokenMalformed}
	ErrTokenInvalidSignature = &TokenError{Kind: TokenInvalidSignature}
	ErrTokenExpired          = &TokenError{Kind: TokenExpired}
	ErrTokenMissingClaim     = &TokenError{Kind: TokenMissingClaim}
	ErrTokenWrongPurpose     = &TokenError{Kind: TokenWrongPurpose}
	ErrTokenConsumed         = &TokenError{Kind: TokenConsumed}
)

func NewTokenError(kind TokenErrorKind, cause error) *TokenError {
	return &TokenError{Kind: kind, Err: cause}
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token " + e.Kind.String()
	}
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool {
	if target == ErrUnauthenticated {
		return true
	}
	t, ok := target.(*TokenError)
	return ok && t.Kind == e.Kind
}
