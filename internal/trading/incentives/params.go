// Package incentives keeps the exchange's fee schedule and the fee stores
// that taker fees and registration fees are paid into.
package incentives

import (
	"math/bits"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
)

const ModuleName = "incentives"

const (
	MinFee     uint64 = 1
	MinDivisor uint64 = 2
	// MaxTiers is the number of integrator fee store tiers a schedule may define.
	MaxTiers = 255
	// NTierFields is the width of a tier row in vector form.
	NTierFields = 3
)

var (
	ErrEmptyFeeStoreTiers                    = errors.NewAbort(ModuleName, 2, "E_EMPTY_FEE_STORE_TIERS", errors.ClassValidation)
	ErrFeeShareDivisorTooBig                 = errors.NewAbort(ModuleName, 3, "E_FEE_SHARE_DIVISOR_TOO_BIG", errors.ClassValidation)
	ErrFeeShareDivisorTooSmall               = errors.NewAbort(ModuleName, 4, "E_FEE_SHARE_DIVISOR_TOO_SMALL", errors.ClassValidation)
	ErrMarketRegistrationFeeLessThanMin      = errors.NewAbort(ModuleName, 5, "E_MARKET_REGISTRATION_FEE_LESS_THAN_MIN", errors.ClassValidation)
	ErrCustodianRegistrationFeeLessThanMin   = errors.NewAbort(ModuleName, 6, "E_CUSTODIAN_REGISTRATION_FEE_LESS_THAN_MIN", errors.ClassValidation)
	ErrTakerDivisorLessThanMin               = errors.NewAbort(ModuleName, 7, "E_TAKER_DIVISOR_LESS_THAN_MIN", errors.ClassValidation)
	ErrTierFieldsWrongLength                 = errors.NewAbort(ModuleName, 8, "E_TIER_FIELDS_WRONG_LENGTH", errors.ClassValidation)
	ErrActivationFeeTooSmall                 = errors.NewAbort(ModuleName, 9, "E_ACTIVATION_FEE_TOO_SMALL", errors.ClassValidation)
	ErrWithdrawalFeeTooBig                   = errors.NewAbort(ModuleName, 10, "E_WITHDRAWAL_FEE_TOO_BIG", errors.ClassValidation)
	ErrWithdrawalFeeTooSmall                 = errors.NewAbort(ModuleName, 11, "E_WITHDRAWAL_FEE_TOO_SMALL", errors.ClassValidation)
	ErrInvalidUtilityCoinType                = errors.NewAbort(ModuleName, 12, "E_INVALID_UTILITY_COIN_TYPE", errors.ClassValidation)
	ErrNotEnoughUtilityCoins                 = errors.NewAbort(ModuleName, 13, "E_NOT_ENOUGH_UTILITY_COINS", errors.ClassValidation)
	ErrTooManyTiers                          = errors.NewAbort(ModuleName, 14, "E_TOO_MANY_TIERS", errors.ClassValidation)
	ErrNotAnUpgrade                          = errors.NewAbort(ModuleName, 15, "E_NOT_AN_UPGRADE", errors.ClassValidation)
	ErrFewerTiers                            = errors.NewAbort(ModuleName, 16, "E_FEWER_TIERS", errors.ClassValidation)
	ErrFirstTierActivationFeeNonzero         = errors.NewAbort(ModuleName, 17, "E_FIRST_TIER_ACTIVATION_FEE_NONZERO", errors.ClassValidation)
	ErrUnderwriterRegistrationFeeLessThanMin = errors.NewAbort(ModuleName, 18, "E_UNDERWRITER_REGISTRATION_FEE_LESS_THAN_MIN", errors.ClassValidation)
	ErrIntegratorFeeStoreOverflow            = errors.NewAbort(ModuleName, 19, "E_INTEGRATOR_FEE_STORE_OVERFLOW", errors.ClassInvariant)
	ErrEconiaFeeStoreOverflow                = errors.NewAbort(ModuleName, 20, "E_ECONIA_FEE_STORE_OVERFLOW", errors.ClassInvariant)
	ErrUtilityCoinStoreOverflow              = errors.NewAbort(ModuleName, 21, "E_UTILITY_COIN_STORE_OVERFLOW", errors.ClassInvariant)
	ErrInvalidTier                           = errors.NewAbort(ModuleName, 22, "E_INVALID_TIER", errors.ClassValidation)
	ErrNoIntegratorFeeStore                  = errors.NewAbort(ModuleName, 23, "E_NO_INTEGRATOR_FEE_STORE", errors.ClassNotFound)
	ErrIntegratorFeeStoreExists              = errors.NewAbort(ModuleName, 24, "E_INTEGRATOR_FEE_STORE_EXISTS", errors.ClassValidation)
	ErrNoFeeStore                            = errors.NewAbort(ModuleName, 25, "E_NO_FEE_STORE", errors.ClassNotFound)
	ErrWithdrawExceedsBalance                = errors.NewAbort(ModuleName, 26, "E_WITHDRAW_EXCEEDS_BALANCE", errors.ClassValidation)
)

// Tier is one integrator fee store tier.
type Tier struct {
	FeeShareDivisor   uint64 `json:"fee_share_divisor" mapstructure:"fee_share_divisor" yaml:"fee_share_divisor"`
	TierActivationFee uint64 `json:"tier_activation_fee" mapstructure:"tier_activation_fee" yaml:"tier_activation_fee"`
	WithdrawalFee     uint64 `json:"withdrawal_fee" mapstructure:"withdrawal_fee" yaml:"withdrawal_fee"`
}

// Params is the full incentive schedule.
type Params struct {
	UtilityCoinType            model.AssetType `json:"utility_coin_type" mapstructure:"utility_coin_type" yaml:"utility_coin_type"`
	MarketRegistrationFee      uint64          `json:"market_registration_fee" mapstructure:"market_registration_fee" yaml:"market_registration_fee"`
	UnderwriterRegistrationFee uint64          `json:"underwriter_registration_fee" mapstructure:"underwriter_registration_fee" yaml:"underwriter_registration_fee"`
	CustodianRegistrationFee   uint64          `json:"custodian_registration_fee" mapstructure:"custodian_registration_fee" yaml:"custodian_registration_fee"`
	TakerFeeDivisor            uint64          `json:"taker_fee_divisor" mapstructure:"taker_fee_divisor" yaml:"taker_fee_divisor"`
	Tiers                      []Tier          `json:"tiers" mapstructure:"tiers" yaml:"tiers"`
}

// DefaultParams returns the genesis schedule.
func DefaultParams() Params {
	return Params{
		UtilityCoinType:            model.UtilityCoin,
		MarketRegistrationFee:      625000000,
		UnderwriterRegistrationFee: 250000,
		CustodianRegistrationFee:   250000,
		TakerFeeDivisor:            2000,
		Tiers: []Tier{
			{10000, 0, 5000000},
			{8333, 5000000, 4750000},
			{7692, 75000000, 4500000},
			{7143, 1000000000, 4250000},
			{6667, 12500000000, 4000000},
			{6250, 150000000000, 3750000},
			{5882, 1750000000000, 3500000},
		},
	}
}

// Clone returns a copy that shares no memory with p.
func (p Params) Clone() Params {
	p.Tiers = append([]Tier(nil), p.Tiers...)
	return p
}

// TiersFromVectors converts rows of [fee_share_divisor, tier_activation_fee,
// withdrawal_fee] into tiers.
func TiersFromVectors(rows [][]uint64) ([]Tier, error) {
	tiers := make([]Tier, 0, len(rows))
	for _, row := range rows {
		if len(row) != NTierFields {
			return nil, ErrTierFieldsWrongLength
		}
		tiers = append(tiers, Tier{FeeShareDivisor: row[0], TierActivationFee: row[1], WithdrawalFee: row[2]})
	}
	return tiers, nil
}

// Validate checks p on its own. nCurrentTiers is the tier count of the
// schedule being replaced, or 0 when there is none.
func (p Params) Validate(nCurrentTiers int) error {
	if p.UtilityCoinType == "" {
		return ErrInvalidUtilityCoinType
	}
	switch {
	case p.MarketRegistrationFee < MinFee:
		return ErrMarketRegistrationFeeLessThanMin
	case p.UnderwriterRegistrationFee < MinFee:
		return ErrUnderwriterRegistrationFeeLessThanMin
	case p.CustodianRegistrationFee < MinFee:
		return ErrCustodianRegistrationFeeLessThanMin
	case p.TakerFeeDivisor < MinDivisor:
		return ErrTakerDivisorLessThanMin
	}

	switch n := len(p.Tiers); {
	case n == 0:
		return ErrEmptyFeeStoreTiers
	case n > MaxTiers:
		return ErrTooManyTiers
	case n < nCurrentTiers:
		return ErrFewerTiers
	}

	lastDivisor, lastActivation, lastWithdrawal := model.Hi64, uint64(0), model.Hi64
	for i, t := range p.Tiers {
		if t.FeeShareDivisor >= lastDivisor {
			return ErrFeeShareDivisorTooBig
		}
		if t.FeeShareDivisor < p.TakerFeeDivisor {
			return ErrFeeShareDivisorTooSmall
		}
		if i == 0 {
			if t.TierActivationFee != 0 {
				return ErrFirstTierActivationFeeNonzero
			}
		} else if t.TierActivationFee <= lastActivation {
			return ErrActivationFeeTooSmall
		}
		if t.WithdrawalFee >= lastWithdrawal {
			return ErrWithdrawalFeeTooBig
		}
		if t.WithdrawalFee < MinFee {
			return ErrWithdrawalFeeTooSmall
		}
		lastDivisor, lastActivation, lastWithdrawal = t.FeeShareDivisor, t.TierActivationFee, t.WithdrawalFee
	}
	return nil
}

// CalculateMaxQuoteMatch returns how much quote may be matched so that the
// match plus its taker fee stays within maxQuoteDelta. Buyers pay the fee on
// top, sellers have it deducted.
func CalculateMaxQuoteMatch(direction model.Direction, takerFeeDivisor, maxQuoteDelta uint64) uint64 {
	denominator := takerFeeDivisor + 1
	if direction == model.Sell {
		denominator = takerFeeDivisor - 1
	}
	hi, lo := bits.Mul64(takerFeeDivisor, maxQuoteDelta)
	if hi >= denominator {
		return model.Hi64
	}
	q, _ := bits.Div64(hi, lo, denominator)
	return q
}
