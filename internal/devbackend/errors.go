package devbackend

import (
	"fmt"

	"github.com/layer-3/walletauth/adapters/graphql"
)

// Extension codes reported in GraphQL errors
const (
	CodeAuthentication   = graphql.CodeAuthenticationException
	CodeInvalidJWT       = graphql.CodeInvalidJWT
	CodeHeaderMissing    = graphql.CodeHTTPHeaderMissing
	CodeValidationFailed = "validation-failed"
	CodeUnexpected       = "unexpected"
)

// Error is a domain error carrying the extension code the transport reports
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func authError(msg string) *Error {
	return &Error{Code: CodeAuthentication, Message: msg}
}

func invalidJWT(msg string) *Error {
	return &Error{Code: CodeInvalidJWT, Message: msg}
}

func validationError(msg string) *Error {
	return &Error{Code: CodeValidationFailed, Message: msg}
}
