// Package treasury is the outbound fund rail: withdrawal payouts and charity
// forwarding are sent from the engine's hot wallet.
package treasury

import (
	"context"

	"github.com/shopspring/decimal"
)

type Payer interface {
	// Send transfers the amount to the destination address with a text memo
	// and returns the transaction hash.
	Send(ctx context.Context, to string, amount decimal.Decimal, comment string) (string, error)
}
