package ledger

import (
	"context"
	"fmt"
)

// PlatformWalletRouter maps a settlement pool to its platform wallet.
type PlatformWalletRouter struct {
	wallets *WalletStore
}

// PlatformWalletSummary reports both settlement wallets.
type PlatformWalletSummary struct {
	BoostWallet  Wallet
	TicketWallet Wallet
	TotalCents   AmountCents
}

// Resolve returns the platform wallet for pool, creating it on first use.
func (router *PlatformWalletRouter) Resolve(ctx context.Context, pool SettlementPool) (Wallet, error) {
	switch pool {
	case SettlementPoolBoost:
		return router.wallets.GetOrCreate(ctx, PlatformUserID(), WalletKindPlatformBoost)
	case SettlementPoolTicket:
		return router.wallets.GetOrCreate(ctx, PlatformUserID(), WalletKindPlatformTicket)
	default:
		return Wallet{}, validationError("unknown settlement pool %q", pool)
	}
}

// Summary returns both platform wallets and the sum of their balances.
func (router *PlatformWalletRouter) Summary(ctx context.Context) (PlatformWalletSummary, error) {
	boostWallet, err := router.Resolve(ctx, SettlementPoolBoost)
	if err != nil {
		return PlatformWalletSummary{}, err
	}
	ticketWallet, err := router.Resolve(ctx, SettlementPoolTicket)
	if err != nil {
		return PlatformWalletSummary{}, err
	}
	total, err := addAmounts(boostWallet.BalanceCents, ticketWallet.BalanceCents)
	if err != nil {
		return PlatformWalletSummary{}, fmt.Errorf("platform total: %w", err)
	}
	return PlatformWalletSummary{
		BoostWallet:  boostWallet,
		TicketWallet: ticketWallet,
		TotalCents:   total,
	}, nil
}
