package main

import (
	"fmt"

	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"go.uber.org/zap"
)

// seedExchange registers the seeded underwriters, custodians and markets on
// a fresh exchange, paying every registration fee in utility coins.
func seedExchange(e *market.Exchange, seeds *config.Seeds, logger *zap.Logger) error {
	params := e.IncentiveParams()
	fee := func(amount uint64) model.Coins {
		return model.Coins{Asset: params.UtilityCoinType, Amount: amount}
	}

	for i := 0; i < seeds.Underwriters; i++ {
		if _, err := e.RegisterUnderwriter(fee(params.UnderwriterRegistrationFee)); err != nil {
			return fmt.Errorf("seed underwriter %d: %w", i+1, err)
		}
	}
	for i := 0; i < seeds.Custodians; i++ {
		if _, err := e.RegisterCustodian(fee(params.CustodianRegistrationFee)); err != nil {
			return fmt.Errorf("seed custodian %d: %w", i+1, err)
		}
	}
	for i, m := range seeds.Markets {
		id, err := e.RegisterMarket(m.Info(), fee(params.MarketRegistrationFee))
		if err != nil {
			return fmt.Errorf("seed market %d (%s/%s): %w", i, m.Base, m.Quote, err)
		}
		logger.Debug("Seeded market", zap.Uint64("market_id", id))
	}
	logger.Info("Exchange seeded",
		zap.Int("underwriters", seeds.Underwriters),
		zap.Int("custodians", seeds.Custodians),
		zap.Int("markets", len(seeds.Markets)))
	return nil
}
