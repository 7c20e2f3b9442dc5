// Package apperr defines the error taxonomy of spec.md §6/§7 and maps
// provider-specific failures (Anthropic/Bedrock, OpenAI) onto it.
package apperr

import "fmt"

// Kind is one of the typed error kinds of spec.md §7.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindCredentials      Kind = "CREDENTIALS_ERROR"
	KindOpenAIAuth       Kind = "OPENAI_AUTH_ERROR"
	KindNotFound         Kind = "NOT_FOUND"
	KindModelError       Kind = "MODEL_ERROR"
	KindModelProvider    Kind = "MODEL_PROVIDER_ERROR"
	KindOpenAIRateLimit  Kind = "OPENAI_RATE_LIMIT_ERROR"
	KindInternal         Kind = "INTERNAL_ERROR"
	KindCancelled        Kind = "CANCELLED"
	KindProviderAuth     Kind = "PROVIDER_AUTH_ERROR"
	KindProviderRate     Kind = "PROVIDER_RATE_ERROR"
	KindProviderTimeout  Kind = "PROVIDER_TIMEOUT_ERROR"
	KindProviderPolicy   Kind = "PROVIDER_POLICY_ERROR"
	KindProviderGeneric  Kind = "PROVIDER_GENERIC_ERROR"
)

// httpStatus is the wire mapping table from spec.md §6.
var httpStatus = map[Kind]int{
	KindValidation:      400,
	KindUnauthorized:    401,
	KindCredentials:     401,
	KindOpenAIAuth:      401,
	KindNotFound:        404,
	KindModelError:      422,
	KindModelProvider:   422,
	KindOpenAIRateLimit: 429,
	KindInternal:        500,
}

// Error is the typed, wire-mappable error carried through the workflow and
// surfaced at the API boundary.
type Error struct {
	Kind     Kind
	Message  string
	JobID    string
	Provider string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the wire status code for e.Kind, defaulting to 500 for
// the internal provider-facing kinds that have no direct 1:1 mapping in the
// spec's wire table (ProviderAuth/Rate/Timeout/Policy/Generic/Cancelled) —
// those are expected to be re-mapped to one of the wire kinds at the API
// boundary via Remap before being serialized.
func (e *Error) HTTPStatus() int {
	if code, ok := httpStatus[e.Kind]; ok {
		return code
	}
	return 500
}

// New constructs an *Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying cause as its unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithJobID returns a copy of e with JobID set.
func (e *Error) WithJobID(id string) *Error {
	c := *e
	c.JobID = id
	return &c
}

// WithProvider returns a copy of e with Provider set.
func (e *Error) WithProvider(provider string) *Error {
	c := *e
	c.Provider = provider
	return &c
}

// Cancelled is the single well-known cancellation sentinel checked at every
// suspension point (spec.md §5). It is intentionally a package-level value
// so stage nodes can compare with errors.Is instead of string matching.
var Cancelled = &Error{Kind: KindCancelled, Message: "job was cancelled"}

// IsCancelled reports whether err is (or wraps) the Cancelled sentinel.
func IsCancelled(err error) bool {
	var appErr *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			appErr = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return appErr != nil && appErr.Kind == KindCancelled
}
