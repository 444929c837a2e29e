package ports

import (
	"context"

	"github.com/layer-3/walletauth/schema"
)

// Executor runs a named remote operation.
// Errors are returned already classified as *core.Error.
type Executor interface {
	// Execute sends variables for op, authorized by accessToken when it is not
	// empty, and decodes the response data into out
	Execute(ctx context.Context, op schema.Operation, variables any, accessToken string, out any) error
}
