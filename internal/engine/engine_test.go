package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/events"
	"github.com/gurux2003/charityauction/internal/ledger/memory"
	"github.com/gurux2003/charityauction/internal/models"
	"github.com/gurux2003/charityauction/internal/policy"
)

const (
	engineAddr  = "EQengine"
	sellerAddr  = "EQseller"
	aliceAddr   = "EQalice"
	bobAddr     = "EQbob"
	carolAddr   = "EQcarol"
	charityAddr = "EQcharity"
)

type transferRec struct {
	tokenID  uint64
	from, to string
}

type fakeCustody struct {
	mu           sync.Mutex
	approved     map[uint64]bool
	failTransfer bool
	transfers    []transferRec
	holder       map[uint64]string
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{
		approved: make(map[uint64]bool),
		holder:   make(map[uint64]string),
	}
}

func (f *fakeCustody) ConfirmApproval(ctx context.Context, tokenID uint64, owner string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approved[tokenID], nil
}

func (f *fakeCustody) Transfer(ctx context.Context, tokenID uint64, from, to string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		return "", errors.New("registry unavailable")
	}
	f.transfers = append(f.transfers, transferRec{tokenID: tokenID, from: from, to: to})
	f.holder[tokenID] = to
	return fmt.Sprintf("ref-%d", len(f.transfers)), nil
}

type sendRec struct {
	to      string
	amount  decimal.Decimal
	comment string
}

type fakePayer struct {
	mu    sync.Mutex
	fail  bool
	sends []sendRec
}

func (f *fakePayer) Send(ctx context.Context, to string, amount decimal.Decimal, comment string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("lite server timeout")
	}
	f.sends = append(f.sends, sendRec{to: to, amount: amount, comment: comment})
	return fmt.Sprintf("tx-%d", len(f.sends)), nil
}

func (f *fakePayer) sentTo(addr string) []sendRec {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sendRec
	for _, s := range f.sends {
		if s.to == addr {
			out = append(out, s)
		}
	}
	return out
}

type testEnv struct {
	store   *memory.Store
	custody *fakeCustody
	payer   *fakePayer
	eng     *Engine
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		HotWalletAddress:   engineAddr,
		MinBidIncrement:    decimal.NewFromInt(1),
		AntiSnipeThreshold: 2 * time.Minute,
		ExtensionWindow:    5 * time.Minute,
	}

	env := &testEnv{
		store:   memory.NewStore(),
		custody: newFakeCustody(),
		payer:   &fakePayer{},
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	whitelist := policy.NewStatic(aliceAddr, bobAddr, carolAddr)
	charities := policy.NewStatic(charityAddr)

	env.eng = New(env.store, env.custody, env.payer, whitelist, charities, events.Nop{}, cfg, zap.NewNop())
	env.eng.Now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) fund(t *testing.T, addr string, amount int64) {
	t.Helper()
	require.NoError(t, e.store.CreditDeposit(context.Background(), addr, decimal.NewFromInt(amount)))
}

func (e *testEnv) createAuction(t *testing.T, tokenID uint64, startPrice int64, duration time.Duration, buyNow int64) *models.Auction {
	t.Helper()
	e.custody.approved[tokenID] = true
	a, err := e.eng.CreateAuction(
		context.Background(), sellerAddr, tokenID,
		decimal.NewFromInt(startPrice), duration, charityAddr, decimal.NewFromInt(buyNow),
	)
	require.NoError(t, err)
	return a
}

func TestCompetitiveLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 7, 1, time.Hour, 0)
	assert.Equal(t, uint64(0), a.ID)
	assert.Equal(t, models.AuctionStatusActive, a.Status)
	assert.Equal(t, engineAddr, env.custody.holder[7], "token escrowed with the engine at create")

	env.fund(t, aliceAddr, 10)
	env.fund(t, bobAddr, 10)

	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))
	require.NoError(t, env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(2)))

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, bobAddr, got.HighestBidder)
	assert.True(t, got.HighestBid.Equal(decimal.NewFromInt(2)))
	assert.True(t, got.PendingReturn(aliceAddr).Equal(decimal.NewFromInt(1)), "outbid funds move to withdrawable escrow")

	// deposits were debited at bid time
	aliceDep, _ := env.eng.DepositBalance(ctx, aliceAddr)
	bobDep, _ := env.eng.DepositBalance(ctx, bobAddr)
	assert.True(t, aliceDep.Equal(decimal.NewFromInt(9)))
	assert.True(t, bobDep.Equal(decimal.NewFromInt(8)))

	env.advance(time.Hour + time.Second)
	require.NoError(t, env.eng.EndAuction(ctx, carolAddr, a.ID))

	got, err = env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusSettled, got.Status)
	assert.True(t, got.Settled)
	require.NotNil(t, got.CharityTxHash)
	require.NotNil(t, got.CustodyTxRef)

	charitySends := env.payer.sentTo(charityAddr)
	require.Len(t, charitySends, 1)
	assert.True(t, charitySends[0].amount.Equal(decimal.NewFromInt(2)), "charity receives exactly the winning amount")
	assert.Equal(t, bobAddr, env.custody.holder[7], "token handed to the winner")

	// loser withdraws, winner has nothing to withdraw
	amount, err := env.eng.WithdrawBid(ctx, aliceAddr, a.ID)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(1)))

	amount, err = env.eng.WithdrawBid(ctx, bobAddr, a.ID)
	require.NoError(t, err)
	assert.True(t, amount.IsZero(), "locked winning bid is never withdrawable")

	// repeat withdraw is a no-op
	amount, err = env.eng.WithdrawBid(ctx, aliceAddr, a.ID)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())

	// reputation
	for _, addr := range []string{aliceAddr, bobAddr} {
		n, err := env.eng.AuctionsParticipated(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, 1, n, addr)
	}
	won, err := env.eng.AuctionsWon(ctx, bobAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, won)
	won, err = env.eng.AuctionsWon(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, won)
}

func TestZeroBidReclaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 3, 5, time.Hour, 0)

	// not finalized yet
	err := env.eng.ReclaimNFT(ctx, sellerAddr, a.ID)
	assert.ErrorIs(t, err, ErrNotEligibleForReclaim)

	env.advance(2 * time.Hour)
	require.NoError(t, env.eng.EndAuction(ctx, sellerAddr, a.ID))

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
	assert.Empty(t, env.payer.sends, "no payout on a zero-bid settlement")
	assert.Equal(t, engineAddr, env.custody.holder[3], "engine keeps custody until reclaim")

	// only the seller may reclaim
	err = env.eng.ReclaimNFT(ctx, aliceAddr, a.ID)
	assert.ErrorIs(t, err, ErrNotEligibleForReclaim)

	require.NoError(t, env.eng.ReclaimNFT(ctx, sellerAddr, a.ID))
	assert.Equal(t, sellerAddr, env.custody.holder[3])

	got, err = env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusReclaimed, got.Status)

	err = env.eng.ReclaimNFT(ctx, sellerAddr, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyReclaimed)
}

func TestReclaimBlockedByBid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 4, 1, time.Hour, 0)
	env.fund(t, aliceAddr, 5)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))

	env.advance(2 * time.Hour)
	require.NoError(t, env.eng.EndAuction(ctx, sellerAddr, a.ID))

	err := env.eng.ReclaimNFT(ctx, sellerAddr, a.ID)
	assert.ErrorIs(t, err, ErrNotEligibleForReclaim, "a single bid forecloses reclaim forever")
}

func TestAntiSnipeExtension(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 9, 1, time.Hour, 0)
	originalEnd := a.EndTime
	env.fund(t, aliceAddr, 100)
	env.fund(t, bobAddr, 100)

	// early bid does not move the end time
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))
	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(originalEnd))

	// a bid inside the threshold pushes the end out by the window
	env.advance(59 * time.Minute) // 1 minute left, threshold is 2
	require.NoError(t, env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(2)))
	got, err = env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(originalEnd.Add(5*time.Minute)))

	// explicit extend outside the threshold is a no-op
	extended, err := env.eng.ExtendAuction(ctx, aliceAddr, a.ID)
	require.NoError(t, err)
	assert.False(t, extended)

	// explicit extend inside the new window fires again
	env.advance(5 * time.Minute) // 1 minute to the pushed end
	extended, err = env.eng.ExtendAuction(ctx, aliceAddr, a.ID)
	require.NoError(t, err)
	assert.True(t, extended)
	got, err = env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(originalEnd.Add(10*time.Minute)))
}

func TestSettlementRetriesAfterTransferFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 11, 1, time.Hour, 0)
	env.fund(t, aliceAddr, 10)
	env.fund(t, bobAddr, 10)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))
	require.NoError(t, env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(3)))

	env.advance(2 * time.Hour)

	env.payer.fail = true
	err := env.eng.EndAuction(ctx, carolAddr, a.ID)
	require.ErrorIs(t, err, ErrTransferFailed)

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusEnded, got.Status)
	assert.True(t, got.Ended)
	assert.False(t, got.Settled, "transfer failure leaves the auction ended but unsettled")
	assert.True(t, got.PendingReturn(aliceAddr).Equal(decimal.NewFromInt(1)), "escrow is untouched by the failed settlement")

	// retry pays exactly once
	env.payer.fail = false
	require.NoError(t, env.eng.EndAuction(ctx, carolAddr, a.ID))

	got, err = env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
	require.Len(t, env.payer.sentTo(charityAddr), 1)
	assert.Equal(t, bobAddr, env.custody.holder[11])

	// third call reports already finalized
	err = env.eng.EndAuction(ctx, carolAddr, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestSettlementDoesNotRepayCharityWhenCustodyFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 12, 1, time.Hour, 0)
	env.fund(t, aliceAddr, 10)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(2)))

	env.advance(2 * time.Hour)

	// charity payout succeeds, custody handoff fails
	env.custody.failTransfer = true
	err := env.eng.EndAuction(ctx, bobAddr, a.ID)
	require.ErrorIs(t, err, ErrTransferFailed)

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Settled)
	require.NotNil(t, got.CharityTxHash, "completed charity payout is recorded before the failure")

	env.custody.failTransfer = false
	require.NoError(t, env.eng.EndAuction(ctx, bobAddr, a.ID))

	require.Len(t, env.payer.sentTo(charityAddr), 1, "retry must not pay the charity twice")
	assert.Equal(t, aliceAddr, env.custody.holder[12])
}

func TestPlaceBidValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 20, 5, time.Hour, 0)
	env.fund(t, aliceAddr, 100)
	env.fund(t, bobAddr, 100)

	// not whitelisted
	err := env.eng.PlaceBid(ctx, "EQstranger", a.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrNotWhitelisted)

	// below start price
	err = env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(4))
	assert.ErrorIs(t, err, ErrBidTooLow)

	// first bid at exactly the start price is accepted
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(5)))

	// equal to highest is rejected, must clear highest + increment
	err = env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrBidTooLow)
	err = env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(5).Add(decimal.NewFromFloat(0.5)))
	assert.ErrorIs(t, err, ErrBidTooLow)
	require.NoError(t, env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(6)))

	// insufficient deposit
	err = env.eng.PlaceBid(ctx, carolAddr, a.ID, decimal.NewFromInt(7))
	assert.ErrorIs(t, err, ErrInsufficientDeposit)

	// after expiry
	env.advance(2 * time.Hour)
	err = env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(8))
	assert.ErrorIs(t, err, ErrAuctionExpired)

	// unknown auction
	err = env.eng.PlaceBid(ctx, aliceAddr, 999, decimal.NewFromInt(8))
	assert.True(t, IsNotFound(err))
}

func TestSelfOutbid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 21, 1, time.Hour, 0)
	env.fund(t, aliceAddr, 10)

	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(2)))

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.HighestBid.Equal(decimal.NewFromInt(2)))
	assert.True(t, got.PendingReturn(aliceAddr).Equal(decimal.NewFromInt(1)), "previous own bid becomes withdrawable")

	n, err := env.eng.AuctionsParticipated(ctx, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "participation counts an auction once")
}

func TestBuyNow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 30, 2, time.Hour, 10)
	env.fund(t, aliceAddr, 100)
	env.fund(t, bobAddr, 100)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(2)))

	// amount must equal the buy-now price exactly
	err := env.eng.BuyNow(ctx, bobAddr, a.ID, decimal.NewFromInt(9))
	assert.ErrorIs(t, err, ErrWrongAmount)
	err = env.eng.BuyNow(ctx, bobAddr, a.ID, decimal.NewFromInt(11))
	assert.ErrorIs(t, err, ErrWrongAmount)

	require.NoError(t, env.eng.BuyNow(ctx, bobAddr, a.ID, decimal.NewFromInt(10)))

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
	assert.Equal(t, bobAddr, got.HighestBidder)
	assert.True(t, got.PendingReturn(aliceAddr).Equal(decimal.NewFromInt(2)))

	sends := env.payer.sentTo(charityAddr)
	require.Len(t, sends, 1)
	assert.True(t, sends[0].amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, bobAddr, env.custody.holder[30])

	// auction is over
	err = env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(20))
	assert.ErrorIs(t, err, ErrAuctionNotActive)
}

func TestBuyNowDisabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 31, 2, time.Hour, 0)
	env.fund(t, bobAddr, 100)

	err := env.eng.BuyNow(ctx, bobAddr, a.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrBuyNowDisabled)
}

func TestEndAuctionGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 40, 1, time.Hour, 0)

	err := env.eng.EndAuction(ctx, sellerAddr, a.ID)
	assert.ErrorIs(t, err, ErrAuctionStillActive)

	env.advance(time.Hour)
	require.NoError(t, env.eng.EndAuction(ctx, sellerAddr, a.ID))

	err = env.eng.EndAuction(ctx, sellerAddr, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestWithdrawTransferFailureRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 50, 1, time.Hour, 0)
	env.fund(t, aliceAddr, 10)
	env.fund(t, bobAddr, 10)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))
	require.NoError(t, env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(2)))

	env.payer.fail = true
	_, err := env.eng.WithdrawBid(ctx, aliceAddr, a.ID)
	require.ErrorIs(t, err, ErrTransferFailed)

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.PendingReturn(aliceAddr).Equal(decimal.NewFromInt(1)), "failed payout restores the withdrawable balance")

	env.payer.fail = false
	amount, err := env.eng.WithdrawBid(ctx, aliceAddr, a.ID)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(1)))
}

func TestCreateAuctionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.custody.approved[60] = true

	_, err := env.eng.CreateAuction(ctx, sellerAddr, 60, decimal.NewFromInt(1), 0, charityAddr, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = env.eng.CreateAuction(ctx, sellerAddr, 60, decimal.NewFromInt(-1), time.Hour, charityAddr, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = env.eng.CreateAuction(ctx, sellerAddr, 60, decimal.NewFromInt(1), time.Hour, "EQrandom", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidCharity)

	// token without approval
	_, err = env.eng.CreateAuction(ctx, sellerAddr, 61, decimal.NewFromInt(1), time.Hour, charityAddr, decimal.Zero)
	assert.ErrorIs(t, err, ErrTokenNotCustodied)

	// duplicate open auction on the same token
	env.createAuction(t, 60, 1, time.Hour, 0)
	_, err = env.eng.CreateAuction(ctx, sellerAddr, 60, decimal.NewFromInt(1), time.Hour, charityAddr, decimal.Zero)
	assert.True(t, IsStateConflict(err))
}

func TestCreateAuctionEscrowFailureFreesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.custody.approved[70] = true
	env.custody.failTransfer = true

	_, err := env.eng.CreateAuction(ctx, sellerAddr, 70, decimal.NewFromInt(1), time.Hour, charityAddr, decimal.Zero)
	require.ErrorIs(t, err, ErrTransferFailed)

	// the voided record must not block a second attempt
	env.custody.failTransfer = false
	a, err := env.eng.CreateAuction(ctx, sellerAddr, 70, decimal.NewFromInt(1), time.Hour, charityAddr, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.ID, "ids keep counting past voided records")
}

func TestAuctionIDsAreSequential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := uint64(0); i < 3; i++ {
		a := env.createAuction(t, 100+i, 1, time.Hour, 0)
		assert.Equal(t, i, a.ID)
	}

	count, err := env.eng.AuctionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	ids, err := env.eng.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, ids)

	// expired auctions drop out of the active listing
	env.advance(2 * time.Hour)
	ids, err = env.eng.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFinalizeExpiredSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a0 := env.createAuction(t, 200, 1, time.Hour, 0)
	a1 := env.createAuction(t, 201, 1, 3*time.Hour, 0)

	env.advance(2 * time.Hour)
	n := env.eng.FinalizeExpired(ctx, 10)
	assert.Equal(t, 1, n)

	got, err := env.eng.GetAuction(ctx, a0.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)

	got, err = env.eng.GetAuction(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, got.Status)
}

func TestRetryUnsettledSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 210, 1, time.Hour, 0)
	env.fund(t, aliceAddr, 10)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(1)))

	env.advance(2 * time.Hour)
	env.payer.fail = true
	require.Error(t, env.eng.EndAuction(ctx, sellerAddr, a.ID))

	env.payer.fail = false
	n := env.eng.RetryUnsettled(ctx, 10)
	assert.Equal(t, 1, n)

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
}

func TestConcurrentBidsKeepLedgerConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 300, 1, time.Hour, 0)

	bidders := []string{aliceAddr, bobAddr, carolAddr}
	for _, b := range bidders {
		env.fund(t, b, 1000)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bidder := bidders[n%len(bidders)]
			_ = env.eng.PlaceBid(ctx, bidder, a.ID, decimal.NewFromInt(int64(n)))
		}(i)
	}
	wg.Wait()

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)

	// total debited deposits == locked highest bid + escrowed returns
	debited := decimal.Zero
	for _, b := range bidders {
		dep, err := env.eng.DepositBalance(ctx, b)
		require.NoError(t, err)
		debited = debited.Add(decimal.NewFromInt(1000).Sub(dep))
	}
	escrowed := got.HighestBid
	for _, v := range got.PendingReturns {
		escrowed = escrowed.Add(v)
	}
	assert.True(t, debited.Equal(escrowed), "debited %s, escrowed %s", debited, escrowed)
	assert.NotEmpty(t, got.HighestBidder)
}

func (e *testEnv) lockCount() int {
	e.eng.lockMu.Lock()
	defer e.eng.lockMu.Unlock()
	return len(e.eng.locks)
}

// Finalized auctions must not leave an entry behind in the lock map.
func TestTerminalAuctionsReleaseTheirLocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createAuction(t, 330, 10, time.Hour, 0)
	env.fund(t, aliceAddr, 10)
	env.fund(t, bobAddr, 11)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(10)))
	require.NoError(t, env.eng.PlaceBid(ctx, bobAddr, a.ID, decimal.NewFromInt(11)))
	env.advance(2 * time.Hour)
	require.NoError(t, env.eng.EndAuction(ctx, bobAddr, a.ID))
	assert.Zero(t, env.lockCount(), "settled auction kept its lock entry")

	// a late withdrawal recreates the entry and must release it again
	_, err := env.eng.WithdrawBid(ctx, aliceAddr, a.ID)
	require.NoError(t, err)
	assert.Zero(t, env.lockCount(), "withdrawal left a lock entry behind")

	b := env.createAuction(t, 331, 10, time.Hour, 0)
	env.advance(2 * time.Hour)
	require.NoError(t, env.eng.EndAuction(ctx, sellerAddr, b.ID))
	assert.Equal(t, 1, env.lockCount(), "zero-bid auction still awaits reclaim")
	require.NoError(t, env.eng.ReclaimNFT(ctx, sellerAddr, b.ID))
	assert.Zero(t, env.lockCount(), "reclaimed auction kept its lock entry")
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	return errors.New("broker down")
}

// A broken event broker must not fail the operation, but the dropped
// event has to show up in the logs.
func TestRecordLogsPublishFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	core, observed := observer.New(zap.WarnLevel)
	env.eng.log = zap.New(core)
	env.eng.publisher = failingPublisher{}

	a := env.createAuction(t, 320, 10, time.Hour, 0)
	env.fund(t, aliceAddr, 10)
	require.NoError(t, env.eng.PlaceBid(ctx, aliceAddr, a.ID, decimal.NewFromInt(10)))

	got, err := env.eng.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.HighestBid.Equal(decimal.NewFromInt(10)))

	assert.NotZero(t, observed.FilterMessage("event publish failed").Len(),
		"dropped event was not logged")
}

// A single deposit must not fund bids on two auctions at once: the second
// debit has to see the balance left by the first, whichever lands first.
func TestConcurrentBidsOnTwoAuctionsShareOneDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1 := env.createAuction(t, 310, 10, time.Hour, 0)
	a2 := env.createAuction(t, 311, 10, time.Hour, 0)
	env.fund(t, aliceAddr, 10)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []uint64{a1.ID, a2.ID} {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			<-start
			errs <- env.eng.PlaceBid(ctx, aliceAddr, id, decimal.NewFromInt(10))
		}(id)
	}
	close(start)
	wg.Wait()
	close(errs)

	placed := 0
	for err := range errs {
		if err == nil {
			placed++
		} else {
			assert.True(t, errors.Is(err, ErrInsufficientDeposit), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, placed, "a 10 deposit funded %d bids", placed)

	dep, err := env.eng.DepositBalance(ctx, aliceAddr)
	require.NoError(t, err)
	assert.True(t, dep.IsZero(), "deposit = %s, want 0", dep)
}
