package engine

import (
	"errors"

	"github.com/gurux2003/charityauction/internal/ledger"
)

// Validation errors: rejected before any state mutation, retry with
// corrected input.
var (
	ErrInvalidCharity      = errors.New("charity is not approved")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrInvalidPrice        = errors.New("price must not be negative")
	ErrTokenNotCustodied   = errors.New("token ownership or approval could not be confirmed")
	ErrNotWhitelisted      = errors.New("address is not whitelisted for bidding")
	ErrBidTooLow           = errors.New("bid is below the required minimum")
	ErrBuyNowDisabled      = errors.New("buy-now is not enabled for this auction")
	ErrWrongAmount         = errors.New("amount must equal the buy-now price and exceed the highest bid")
	ErrInsufficientDeposit = errors.New("deposit balance is insufficient")
)

// State errors: the caller acted on a stale view; re-read before retrying.
var (
	ErrAuctionNotActive      = errors.New("auction is not active")
	ErrAuctionExpired        = errors.New("auction has expired")
	ErrAuctionStillActive    = errors.New("auction has not reached its end time")
	ErrAlreadyFinalized      = errors.New("auction is already finalized")
	ErrNotEligibleForReclaim = errors.New("auction is not eligible for reclaim")
	ErrAlreadyReclaimed      = errors.New("token was already reclaimed")
)

// ErrTransferFailed tags failures of external fund or custody movement. The
// ledger is left consistent: either fully rolled back, or (for settlement)
// ended-but-unsettled so finalization can be retried.
var ErrTransferFailed = errors.New("external transfer failed")

var validationErrs = []error{
	ErrInvalidCharity, ErrInvalidDuration, ErrInvalidPrice, ErrTokenNotCustodied,
	ErrNotWhitelisted, ErrBidTooLow, ErrBuyNowDisabled, ErrWrongAmount,
	ErrInsufficientDeposit,
}

var stateErrs = []error{
	ErrAuctionNotActive, ErrAuctionExpired, ErrAuctionStillActive,
	ErrAlreadyFinalized, ErrNotEligibleForReclaim, ErrAlreadyReclaimed,
	ledger.ErrTokenInUse,
}

func IsValidation(err error) bool {
	for _, e := range validationErrs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func IsStateConflict(err error) bool {
	for _, e := range stateErrs {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func IsTransferFailure(err error) bool {
	return errors.Is(err, ErrTransferFailed)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound)
}
