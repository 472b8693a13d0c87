// Package custody consumes the external NFT registry: confirming that the
// engine may move a token on its owner's behalf, and moving it.
package custody

import "context"

type Registry interface {
	// ConfirmApproval reports whether the engine is approved to transfer the
	// token and the owner actually holds it.
	ConfirmApproval(ctx context.Context, tokenID uint64, owner string) (bool, error)

	// Transfer moves the token between addresses and returns a transfer
	// reference for the audit trail.
	Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error)
}
