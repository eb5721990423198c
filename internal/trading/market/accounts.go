package market

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"go.uber.org/zap"
)

// RegisterMarket opens a market, paying the registration fee in utility
// coins. The new market id is returned.
func (e *Exchange) RegisterMarket(info Info, fee model.Coins) (uint64, error) {
	var id uint64
	err := e.run("register_market", func() error {
		if err := validateInfo(info); err != nil {
			return err
		}
		if info.IsGeneric() && !e.users.IsRegisteredUnderwriter(info.UnderwriterID) {
			return ErrInvalidUnderwriter
		}
		if err := e.incentives.DepositMarketRegistrationUtilityCoins(fee); err != nil {
			return err
		}
		b, err := e.registry.register(info)
		if err != nil {
			return err
		}
		e.incentives.RegisterEconiaFeeStoreEntry(b.MarketID, b.QuoteType)
		id = b.MarketID
		return nil
	})
	if err == nil {
		e.logger.Info("market registered",
			zap.Uint64("market_id", id),
			zap.String("base", string(info.BaseType)),
			zap.String("quote", string(info.QuoteType)),
			zap.Uint64("lot_size", info.LotSize),
			zap.Uint64("tick_size", info.TickSize),
			zap.Uint64("min_size", info.MinSize))
	}
	return id, err
}

// RegisterCustodian mints a custodian capability for the registration fee.
func (e *Exchange) RegisterCustodian(fee model.Coins) (user.CustodianCapability, error) {
	var c user.CustodianCapability
	err := e.run("register_custodian", func() error {
		if err := e.incentives.DepositCustodianRegistrationUtilityCoins(fee); err != nil {
			return err
		}
		c = e.users.RegisterCustodian()
		return nil
	})
	return c, err
}

// RegisterUnderwriter mints an underwriter capability for the registration fee.
func (e *Exchange) RegisterUnderwriter(fee model.Coins) (user.UnderwriterCapability, error) {
	var c user.UnderwriterCapability
	err := e.run("register_underwriter", func() error {
		if err := e.incentives.DepositUnderwriterRegistrationUtilityCoins(fee); err != nil {
			return err
		}
		c = e.users.RegisterUnderwriter()
		return nil
	})
	return c, err
}

// RegisterMarketAccount opens the signer's account on a market.
func (e *Exchange) RegisterMarketAccount(signer user.Signer, marketID uint64) error {
	return e.run("register_market_account", func() error {
		if signer.User() == "" || signer.User() == model.NoMarketAccount {
			return ErrInvalidUser
		}
		b, err := e.registry.book(marketID)
		if err != nil {
			return err
		}
		return e.users.RegisterMarketAccount(signer.User(), marketID, signer.CustodianID(), b.accountInfo())
	})
}

// DepositCoins credits coins to a user's market account. Anyone may deposit.
func (e *Exchange) DepositCoins(owner model.Address, marketID, custodianID uint64, coins model.Coins) error {
	return e.run("deposit_coins", func() error {
		if _, err := e.registry.book(marketID); err != nil {
			return err
		}
		return e.users.DepositCoins(owner, model.MarketAccountID{MarketID: marketID, CustodianID: custodianID}, coins)
	})
}

// DepositGenericAsset credits a generic base asset under the market's underwriter.
func (e *Exchange) DepositGenericAsset(owner model.Address, marketID, custodianID, amount uint64, underwriter user.UnderwriterCapability) error {
	return e.run("deposit_generic_asset", func() error {
		if _, err := e.registry.book(marketID); err != nil {
			return err
		}
		return e.users.DepositGenericAsset(owner, model.MarketAccountID{MarketID: marketID, CustodianID: custodianID}, amount, underwriter)
	})
}

// WithdrawCoins takes available coins out of the signer's market account.
func (e *Exchange) WithdrawCoins(signer user.Signer, marketID uint64, asset model.AssetType, amount uint64) (model.Coins, error) {
	var coins model.Coins
	err := e.run("withdraw_coins", func() error {
		if _, err := e.registry.book(marketID); err != nil {
			return err
		}
		var err error
		coins, err = e.users.WithdrawCoins(signer.User(), signer.AccountID(marketID), asset, amount)
		return err
	})
	return coins, err
}

// WithdrawGenericAsset debits a generic base asset from the signer's account.
func (e *Exchange) WithdrawGenericAsset(signer user.Signer, marketID, amount uint64, underwriter user.UnderwriterCapability) error {
	return e.run("withdraw_generic_asset", func() error {
		if _, err := e.registry.book(marketID); err != nil {
			return err
		}
		return e.users.WithdrawGenericAsset(signer.User(), signer.AccountID(marketID), amount, underwriter)
	})
}

// SetIncentiveParams replaces the incentive parameters. The tier count may
// not shrink.
func (e *Exchange) SetIncentiveParams(params incentives.Params) error {
	return e.run("set_incentive_parameters", func() error {
		return e.incentives.SetParams(params, true)
	})
}

// IncentiveParams returns the parameters in force.
func (e *Exchange) IncentiveParams() incentives.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incentives.Params()
}

// RegisterIntegratorFeeStore opens an integrator's fee store on a market.
func (e *Exchange) RegisterIntegratorFeeStore(integrator model.Address, marketID uint64, tier uint8, fee model.Coins) error {
	return e.run("register_integrator_fee_store", func() error {
		if _, err := e.registry.book(marketID); err != nil {
			return err
		}
		return e.incentives.RegisterIntegratorFeeStore(integrator, marketID, tier, fee)
	})
}

// UpgradeIntegratorFeeStore moves an integrator's store to a higher tier.
func (e *Exchange) UpgradeIntegratorFeeStore(integrator model.Address, marketID uint64, newTier uint8, fee model.Coins) error {
	return e.run("upgrade_integrator_fee_store", func() error {
		return e.incentives.UpgradeIntegratorFeeStore(integrator, marketID, newTier, fee)
	})
}

// WithdrawIntegratorFees pays the tier's withdrawal fee and returns the
// integrator's accrued fees.
func (e *Exchange) WithdrawIntegratorFees(integrator model.Address, marketID uint64, fee model.Coins) (model.Coins, error) {
	var coins model.Coins
	err := e.run("withdraw_integrator_fees", func() error {
		var err error
		coins, err = e.incentives.WithdrawIntegratorFees(integrator, marketID, fee)
		return err
	})
	return coins, err
}

// WithdrawEconiaFees takes protocol fees out of a market's fee store.
func (e *Exchange) WithdrawEconiaFees(marketID, amount uint64) (model.Coins, error) {
	var coins model.Coins
	err := e.run("withdraw_econia_fees", func() error {
		var err error
		coins, err = e.incentives.WithdrawEconiaFees(marketID, amount)
		return err
	})
	return coins, err
}

// WithdrawUtilityCoins takes collected registration fees out of the utility store.
func (e *Exchange) WithdrawUtilityCoins(amount uint64) (model.Coins, error) {
	var coins model.Coins
	err := e.run("withdraw_utility_coins", func() error {
		var err error
		coins, err = e.incentives.WithdrawUtilityCoins(amount)
		return err
	})
	return coins, err
}
