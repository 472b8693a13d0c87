package treasury

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

// TONWallet sends TON from the hot wallet over a lite server connection.
type TONWallet struct {
	w   *wallet.Wallet
	log *zap.Logger
}

func NewTONWallet(api ton.APIClientWrapped, seed []string, log *zap.Logger) (*TONWallet, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("hot wallet seed is empty")
	}

	w, err := wallet.FromSeed(api, seed, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("init hot wallet: %w", err)
	}

	log.Info("hot wallet initialized", zap.String("address", w.WalletAddress().String()))
	return &TONWallet{w: w, log: log}, nil
}

func (t *TONWallet) Address() string {
	return t.w.WalletAddress().String()
}

func (t *TONWallet) Send(ctx context.Context, to string, amount decimal.Decimal, comment string) (string, error) {
	dst, err := address.ParseAddr(to)
	if err != nil {
		return "", fmt.Errorf("invalid destination address %q: %w", to, err)
	}

	coins, err := tlb.FromTON(amount.String())
	if err != nil {
		return "", fmt.Errorf("invalid amount %s: %w", amount, err)
	}

	// bounce=false: destination may be an uninitialized wallet
	msg, err := t.w.BuildTransfer(dst, coins, false, comment)
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}

	tx, _, err := t.w.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send %s TON to %s: %w", amount, to, err)
	}

	hash := hex.EncodeToString(tx.Hash)
	t.log.Info("payout sent",
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("comment", comment),
		zap.String("tx_hash", hash),
	)
	return hash, nil
}
