package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindAuthentication
	KindForbidden
	KindNotFound
	KindUpstream
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindAuthentication:
		return "AuthenticationFailure"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindUpstream:
		return "UpstreamUnavailable"
	case KindConflict:
		return "Conflict"
	default:
		return "Internal"
	}
}

// Error is a classified error with a stable code that is safe to return to
// HTTP callers. Sentinels are compared by identity, so wrap them with %w to
// attach detail.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string { return e.Code }

func New(kind Kind, code string) *Error { return &Error{Kind: kind, Code: code} }

var (
	ErrInvalidAmount          = New(KindInvalidInput, "InvalidAmount")
	ErrInvalidOrder           = New(KindInvalidInput, "InvalidOrder")
	ErrInvalidOrderStatus     = New(KindInvalidInput, "InvalidOrderStatus")
	ErrInvalidIdentifier      = New(KindInvalidInput, "InvalidIdentifier")
	ErrInvalidCallbackPayload = New(KindInvalidInput, "InvalidCallbackPayload")
	ErrInvalidDocument        = New(KindInternal, "InvalidDocument")

	ErrSignatureMismatch = New(KindAuthentication, "SignatureVerificationFailed")
	ErrUnauthenticated   = New(KindAuthentication, "Unauthenticated")
	ErrForbidden         = New(KindForbidden, "Forbidden")
	ErrShopInactive      = New(KindForbidden, "ShopInactive")

	ErrMappingMissing = New(KindNotFound, "OrderMappingMissing")
	ErrOrderNotFound  = New(KindNotFound, "OrderNotFound")
	ErrShopNotFound   = New(KindNotFound, "ShopNotFound")

	ErrGatewayUnavailable = New(KindUpstream, "GatewayUnavailable")

	ErrMappingExists           = New(KindConflict, "MappingExists")
	ErrShopExists              = New(KindConflict, "ShopExists")
	ErrOrderAlreadyTerminal    = New(KindConflict, "OrderAlreadyTerminal")
	ErrPaymentStatusRegression = New(KindConflict, "PaymentStatusRegression")
	ErrOrderAlreadyPaid        = New(KindConflict, "OrderAlreadyPaid")
)

// Wrap attaches a formatted message to a sentinel while keeping it matchable
// with errors.Is.
func Wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; unclassified errors are Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or fallback when err is unclassified.
func CodeOf(err error, fallback string) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return fallback
}
