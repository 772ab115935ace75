// Package xerr gives every component the same small set of error kinds
// so callers can branch with errors.As instead of string matching.
package xerr

import "fmt"

type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindDuplicateOrder  Kind = "duplicate_order"
	KindStaleState      Kind = "stale_state"
	KindTransientChain  Kind = "transient_chain_error"
	KindPermanentChain  Kind = "permanent_chain_error"
	KindWebhookDelivery Kind = "webhook_delivery_failure"
	KindStore           Kind = "store_error"
)

// Error carries a Kind so wrapping code can decide retry policy without
// inspecting message text, plus an optional wrapped cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

func Validation(msg string) error     { return New(KindValidation, msg) }
func DuplicateOrder(msg string) error { return New(KindDuplicateOrder, msg) }
func StaleState(msg string) error     { return New(KindStaleState, msg) }
func TransientChain(cause error) error {
	return Wrap(KindTransientChain, "chain rpc transient failure", cause)
}
func PermanentChain(cause error) error {
	return Wrap(KindPermanentChain, "chain rpc permanent failure", cause)
}
func WebhookDelivery(cause error) error {
	return Wrap(KindWebhookDelivery, "webhook delivery failed", cause)
}
func Store(msg string, cause error) error { return Wrap(KindStore, msg, cause) }
