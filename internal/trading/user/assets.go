package user

import "github.com/Aidin1998/pincex_clob/internal/trading/model"

// DepositCoins credits coins to a market account and holds them as collateral.
func (l *Ledger) DepositCoins(user model.Address, id model.MarketAccountID, coins model.Coins) error {
	if coins.Asset == model.GenericAsset {
		return ErrCoinTypeIsGenericAsset
	}
	return l.depositAsset(user, id, coins.Asset, coins.Amount, &coins, model.NoUnderwriter)
}

// DepositGenericAsset credits a generic base asset on the underwriter's word.
func (l *Ledger) DepositGenericAsset(user model.Address, id model.MarketAccountID, amount uint64, underwriter UnderwriterCapability) error {
	return l.depositAsset(user, id, model.GenericAsset, amount, nil, underwriter.ID())
}

func (l *Ledger) depositAsset(user model.Address, id model.MarketAccountID, asset model.AssetType, amount uint64, coins *model.Coins, underwriterID uint64) error {
	acct, err := l.account(user, id)
	if err != nil {
		return err
	}
	total, available, ceiling, err := acct.counters(asset)
	if err != nil {
		return err
	}
	if amount > model.Hi64-*ceiling {
		return ErrDepositOverflowAssetCeiling
	}
	if asset == model.GenericAsset {
		if underwriterID != acct.UnderwriterID {
			return ErrInvalidUnderwriter
		}
	} else if coins == nil || coins.Amount != amount {
		return ErrCoinAmountMismatch
	}

	l.touch(acct)
	*total += amount
	*available += amount
	*ceiling += amount
	if asset != model.GenericAsset {
		l.addCollateral(collateralKey{user, asset, id}, amount, true)
	}
	return nil
}

// WithdrawCoins debits a market account and releases coins from collateral.
// Only available funds may leave: amounts reserved by open orders stay.
func (l *Ledger) WithdrawCoins(user model.Address, id model.MarketAccountID, asset model.AssetType, amount uint64) (model.Coins, error) {
	if asset == model.GenericAsset {
		return model.Coins{}, ErrCoinTypeIsGenericAsset
	}
	if err := l.withdrawAsset(user, id, asset, amount, model.NoUnderwriter); err != nil {
		return model.Coins{}, err
	}
	return model.Coins{Asset: asset, Amount: amount}, nil
}

// WithdrawGenericAsset debits a generic base asset under the market's underwriter.
func (l *Ledger) WithdrawGenericAsset(user model.Address, id model.MarketAccountID, amount uint64, underwriter UnderwriterCapability) error {
	return l.withdrawAsset(user, id, model.GenericAsset, amount, underwriter.ID())
}

func (l *Ledger) withdrawAsset(user model.Address, id model.MarketAccountID, asset model.AssetType, amount uint64, underwriterID uint64) error {
	acct, err := l.account(user, id)
	if err != nil {
		return err
	}
	total, available, ceiling, err := acct.counters(asset)
	if err != nil {
		return err
	}
	if amount > *available {
		return ErrWithdrawTooLittleAvailable
	}
	if asset == model.GenericAsset && underwriterID != acct.UnderwriterID {
		return ErrInvalidUnderwriter
	}

	l.touch(acct)
	*total -= amount
	*available -= amount
	*ceiling -= amount
	if asset != model.GenericAsset {
		l.addCollateral(collateralKey{user, asset, id}, amount, false)
	}
	return nil
}

func (a *MarketAccount) counters(asset model.AssetType) (total, available, ceiling *uint64, err error) {
	switch asset {
	case a.BaseType:
		return &a.BaseTotal, &a.BaseAvailable, &a.BaseCeiling, nil
	case a.QuoteType:
		return &a.QuoteTotal, &a.QuoteAvailable, &a.QuoteCeiling, nil
	}
	return nil, nil, nil, ErrAssetNotInPair
}

// WithdrawAssets takes a taker's trading budget out of a market account. The
// base amount of a generic asset comes back as notional coins of GenericAsset.
func (l *Ledger) WithdrawAssets(user model.Address, id model.MarketAccountID, baseAmount, quoteAmount uint64) (base, quote model.Coins, err error) {
	acct, err := l.account(user, id)
	if err != nil {
		return model.Coins{}, model.Coins{}, err
	}
	if err := l.withdrawAsset(user, id, acct.BaseType, baseAmount, acct.UnderwriterID); err != nil {
		return model.Coins{}, model.Coins{}, err
	}
	if err := l.withdrawAsset(user, id, acct.QuoteType, quoteAmount, acct.UnderwriterID); err != nil {
		return model.Coins{}, model.Coins{}, err
	}
	return model.Coins{Asset: acct.BaseType, Amount: baseAmount}, model.Coins{Asset: acct.QuoteType, Amount: quoteAmount}, nil
}

// DepositAssets returns a taker's coins to its market account after a match.
func (l *Ledger) DepositAssets(user model.Address, id model.MarketAccountID, base, quote model.Coins) error {
	acct, err := l.account(user, id)
	if err != nil {
		return err
	}
	if err := l.depositAsset(user, id, base.Asset, base.Amount, &base, acct.UnderwriterID); err != nil {
		return err
	}
	return l.depositAsset(user, id, quote.Asset, quote.Amount, &quote, acct.UnderwriterID)
}
