package market

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/avlqueue"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
)

const ModuleName = "market"

var (
	ErrMaxBase0                  = errors.NewAbort(ModuleName, 0, "E_MAX_BASE_0", errors.ClassValidation)
	ErrMaxQuote0                 = errors.NewAbort(ModuleName, 1, "E_MAX_QUOTE_0", errors.ClassValidation)
	ErrMinBaseExceedsMax         = errors.NewAbort(ModuleName, 2, "E_MIN_BASE_EXCEEDS_MAX", errors.ClassValidation)
	ErrMinQuoteExceedsMax        = errors.NewAbort(ModuleName, 3, "E_MIN_QUOTE_EXCEEDS_MAX", errors.ClassValidation)
	ErrOverflowAssetIn           = errors.NewAbort(ModuleName, 4, "E_OVERFLOW_ASSET_IN", errors.ClassInvariant)
	ErrNotEnoughAssetOut         = errors.NewAbort(ModuleName, 5, "E_NOT_ENOUGH_ASSET_OUT", errors.ClassInvariant)
	ErrInvalidMarketID           = errors.NewAbort(ModuleName, 6, "E_INVALID_MARKET_ID", errors.ClassNotFound)
	ErrInvalidBase               = errors.NewAbort(ModuleName, 7, "E_INVALID_BASE", errors.ClassValidation)
	ErrInvalidQuote              = errors.NewAbort(ModuleName, 8, "E_INVALID_QUOTE", errors.ClassValidation)
	ErrMinBaseNotTraded          = errors.NewAbort(ModuleName, 9, "E_MIN_BASE_NOT_TRADED", errors.ClassValidation)
	ErrMinQuoteNotTraded         = errors.NewAbort(ModuleName, 10, "E_MIN_QUOTE_NOT_TRADED", errors.ClassValidation)
	ErrPrice0                    = errors.NewAbort(ModuleName, 11, "E_PRICE_0", errors.ClassValidation)
	ErrPriceTooHigh              = errors.NewAbort(ModuleName, 12, "E_PRICE_TOO_HIGH", errors.ClassValidation)
	ErrPostOrAbortCrossesSpread  = errors.NewAbort(ModuleName, 13, "E_POST_OR_ABORT_CROSSES_SPREAD", errors.ClassValidation)
	ErrSizeTooSmall              = errors.NewAbort(ModuleName, 14, "E_SIZE_TOO_SMALL", errors.ClassValidation)
	ErrSizeBaseOverflow          = errors.NewAbort(ModuleName, 15, "E_SIZE_BASE_OVERFLOW", errors.ClassValidation)
	ErrSizePriceTicksOverflow    = errors.NewAbort(ModuleName, 16, "E_SIZE_PRICE_TICKS_OVERFLOW", errors.ClassValidation)
	ErrSizePriceQuoteOverflow    = errors.NewAbort(ModuleName, 17, "E_SIZE_PRICE_QUOTE_OVERFLOW", errors.ClassValidation)
	ErrInvalidRestriction        = errors.NewAbort(ModuleName, 18, "E_INVALID_RESTRICTION", errors.ClassValidation)
	ErrSelfMatch                 = errors.NewAbort(ModuleName, 19, "E_SELF_MATCH", errors.ClassValidation)
	ErrPriceTimePriorityTooLow   = errors.NewAbort(ModuleName, 20, "E_PRICE_TIME_PRIORITY_TOO_LOW", errors.ClassCapacity)
	ErrInvalidUnderwriter        = errors.NewAbort(ModuleName, 21, "E_INVALID_UNDERWRITER", errors.ClassValidation)
	ErrInvalidMarketOrderID      = errors.NewAbort(ModuleName, 22, "E_INVALID_MARKET_ORDER_ID", errors.ClassNotFound)
	ErrInvalidCustodian          = errors.NewAbort(ModuleName, 23, "E_INVALID_CUSTODIAN", errors.ClassValidation)
	ErrInvalidUser               = errors.NewAbort(ModuleName, 24, "E_INVALID_USER", errors.ClassValidation)
	ErrFillOrAbortNotCrossSpread = errors.NewAbort(ModuleName, 25, "E_FILL_OR_ABORT_NOT_CROSS_SPREAD", errors.ClassValidation)
	ErrHeadKeyPriceMismatch      = errors.NewAbort(ModuleName, 26, "E_HEAD_KEY_PRICE_MISMATCH", errors.ClassInvariant)
	ErrInvalidSelfMatchBehavior  = errors.NewAbort(ModuleName, 28, "E_INVALID_SELF_MATCH_BEHAVIOR", errors.ClassValidation)
	ErrInvalidLotSize            = errors.NewAbort(ModuleName, 29, "E_INVALID_LOT_SIZE", errors.ClassValidation)
	ErrInvalidTickSize           = errors.NewAbort(ModuleName, 30, "E_INVALID_TICK_SIZE", errors.ClassValidation)
	ErrInvalidMinSize            = errors.NewAbort(ModuleName, 31, "E_INVALID_MIN_SIZE", errors.ClassValidation)
	ErrSameAssets                = errors.NewAbort(ModuleName, 32, "E_SAME_ASSETS", errors.ClassValidation)
	ErrMarketRegistered          = errors.NewAbort(ModuleName, 33, "E_MARKET_REGISTERED", errors.ClassValidation)
	ErrInvalidPercent            = errors.NewAbort(ModuleName, 34, "E_INVALID_PERCENT", errors.ClassValidation)
)

// orderNotFound folds stale or forged access keys into the market's own code.
func orderNotFound(err error) error {
	if errors.Is(err, avlqueue.ErrInvalidAccessKey) {
		return ErrInvalidMarketOrderID
	}
	return err
}
