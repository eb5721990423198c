package api

import (
	"github.com/Aidin1998/pincex_clob/api/responses"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// orMax treats an unset upper bound as "as much as possible".
func orMax(v uint64) uint64 {
	if v == 0 {
		return model.MaxPossible
	}
	return v
}

// assetOf resolves "base", "quote" or an explicit coin type on a market.
func assetOf(info market.Info, asset string) model.AssetType {
	switch asset {
	case "base":
		return info.BaseType
	case "quote":
		return info.QuoteType
	}
	return model.AssetType(asset)
}

func (s *Server) listAccounts(c *gin.Context) {
	responses.Success(c, s.exchange.MarketAccountIDs(caller(c)))
}

func (s *Server) registerAccount(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	if err := s.exchange.RegisterMarketAccount(user.Self(caller(c)), id); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "register_market_account", zap.Uint64("market_id", id))
	responses.Created(c, model.MarketAccountID{MarketID: id, CustodianID: model.NoCustodian})
}

type accountView struct {
	user.MarketAccount
	Counts user.AssetCounts `json:"counts"`
}

func (s *Server) getAccount(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	custodian, ok := uintQuery(c, "custodian_id", model.NoCustodian)
	if !ok {
		return
	}
	acct, err := s.exchange.MarketAccount(caller(c), id, custodian)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	responses.Success(c, accountView{MarketAccount: acct, Counts: acct.Counts()})
}

type depositRequest struct {
	Asset       string `json:"asset" binding:"required"`
	Amount      uint64 `json:"amount" binding:"required"`
	CustodianID uint64 `json:"custodian_id"`
}

func (s *Server) deposit(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	var req depositRequest
	if !bind(c, &req) {
		return
	}
	info, err := s.exchange.MarketInfo(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	coins := model.Coins{Asset: assetOf(info, req.Asset), Amount: req.Amount}
	if err := s.exchange.DepositCoins(caller(c), id, req.CustodianID, coins); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "deposit", zap.Uint64("market_id", id), zap.String("asset", string(coins.Asset)), zap.Uint64("amount", coins.Amount))
	responses.Success(c, coins, "Deposit credited")
}

type withdrawRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

func (s *Server) withdraw(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	var req withdrawRequest
	if !bind(c, &req) {
		return
	}
	info, err := s.exchange.MarketInfo(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	coins, err := s.exchange.WithdrawCoins(user.Self(caller(c)), id, assetOf(info, req.Asset), req.Amount)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "withdraw", zap.Uint64("market_id", id), zap.String("asset", string(coins.Asset)), zap.Uint64("amount", coins.Amount))
	responses.Success(c, coins, "Withdrawal debited")
}

func (s *Server) listOpenOrders(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	sides := []model.Side{model.Ask, model.Bid}
	if raw := c.Query("side"); raw != "" {
		side, err := model.ParseSide(raw)
		if err != nil {
			responses.BadRequest(c, err.Error())
			return
		}
		sides = []model.Side{side}
	}
	out := make(map[string][]user.OpenOrder, len(sides))
	for _, side := range sides {
		orders, err := s.exchange.OpenOrders(caller(c), id, model.NoCustodian, side)
		if err != nil {
			responses.FromError(c, err)
			return
		}
		out[side.String()] = orders
	}
	responses.Success(c, out)
}

type limitOrderRequest struct {
	Side        string `json:"side" binding:"required"`
	Size        uint64 `json:"size" binding:"required"`
	Price       uint64 `json:"price" binding:"required"`
	Restriction string `json:"restriction"`
	SelfMatch   string `json:"self_match_behavior"`
	Integrator  string `json:"integrator"`
}

func (s *Server) placeLimitOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req limitOrderRequest
	if !bind(c, &req) {
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	restriction, err := model.ParseRestriction(req.Restriction)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	smb, err := model.ParseSelfMatchBehavior(req.SelfMatch)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	integrator, ok := optionalAddress(c, req.Integrator)
	if !ok {
		return
	}
	res, err := s.exchange.PlaceLimitOrder(user.Self(caller(c)), market.LimitOrder{
		MarketID:    id,
		Integrator:  integrator,
		Side:        side,
		Size:        req.Size,
		Price:       req.Price,
		Restriction: restriction,
		SelfMatch:   smb,
	})
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "place_limit_order", zap.Uint64("market_id", id), zap.Stringer("market_order_id", res.MarketOrderID))
	if res.Resting() {
		responses.Created(c, res, "Order resting")
		return
	}
	responses.Success(c, res, "Order filled or cancelled")
}

type passiveAdvanceRequest struct {
	Side          string `json:"side" binding:"required"`
	Size          uint64 `json:"size" binding:"required"`
	AdvanceStyle  string `json:"advance_style" binding:"omitempty,oneof=ticks percent"`
	TargetAdvance uint64 `json:"target_advance_amount"`
	Integrator    string `json:"integrator"`
}

// placePassiveAdvanceOrder posts a maker-only order priced off the best order
// on its own side. A null market_order_id means nothing was placed.
func (s *Server) placePassiveAdvanceOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req passiveAdvanceRequest
	if !bind(c, &req) {
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	style := model.AdvanceTicks
	if req.AdvanceStyle != "" {
		if style, err = model.ParseAdvanceStyle(req.AdvanceStyle); err != nil {
			responses.BadRequest(c, err.Error())
			return
		}
	}
	integrator, ok := optionalAddress(c, req.Integrator)
	if !ok {
		return
	}
	orderID, err := s.exchange.PlaceLimitOrderPassiveAdvance(user.Self(caller(c)), market.PassiveAdvanceOrder{
		MarketID:   id,
		Integrator: integrator,
		Side:       side,
		Size:       req.Size,
		Style:      style,
		Advance:    req.TargetAdvance,
	})
	if err != nil {
		responses.FromError(c, err)
		return
	}
	if orderID.IsNil() {
		responses.Success(c, gin.H{"market_order_id": nil}, "No price to advance from")
		return
	}
	s.audit(c, "place_limit_order_passive_advance", zap.Uint64("market_id", id), zap.Stringer("market_order_id", orderID))
	responses.Created(c, gin.H{"market_order_id": orderID}, "Order resting")
}

type marketOrderRequest struct {
	Direction  string `json:"direction" binding:"required"`
	MinBase    uint64 `json:"min_base"`
	MaxBase    uint64 `json:"max_base"`
	MinQuote   uint64 `json:"min_quote"`
	MaxQuote   uint64 `json:"max_quote"`
	LimitPrice uint64 `json:"limit_price" binding:"required"`
	SelfMatch  string `json:"self_match_behavior"`
	Integrator string `json:"integrator"`
}

func (s *Server) placeMarketOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req marketOrderRequest
	if !bind(c, &req) {
		return
	}
	direction, err := model.ParseDirection(req.Direction)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	smb, err := model.ParseSelfMatchBehavior(req.SelfMatch)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	integrator, ok := optionalAddress(c, req.Integrator)
	if !ok {
		return
	}
	res, err := s.exchange.PlaceMarketOrder(user.Self(caller(c)), market.MarketOrder{
		MarketID:   id,
		Integrator: integrator,
		Direction:  direction,
		MinBase:    req.MinBase,
		MaxBase:    orMax(req.MaxBase),
		MinQuote:   req.MinQuote,
		MaxQuote:   orMax(req.MaxQuote),
		LimitPrice: req.LimitPrice,
		SelfMatch:  smb,
	})
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "place_market_order", zap.Uint64("market_id", id), zap.Uint64("base_traded", res.BaseTraded))
	responses.Success(c, res)
}

func sideParam(c *gin.Context) (model.Side, bool) {
	side, err := model.ParseSide(c.Param("side"))
	if err != nil {
		responses.BadRequest(c, err.Error())
		return side, false
	}
	return side, true
}

func orderIDParam(c *gin.Context) (model.MarketOrderID, bool) {
	id, err := model.ParseMarketOrderID(c.Param("order_id"))
	if err != nil {
		responses.BadRequest(c, err.Error())
		return id, false
	}
	return id, true
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	side, ok := sideParam(c)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	if err := s.exchange.CancelOrder(user.Self(caller(c)), id, side, orderID); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "cancel_order", zap.Uint64("market_id", id), zap.Stringer("market_order_id", orderID))
	responses.Success(c, gin.H{"market_order_id": orderID}, "Order cancelled")
}

func (s *Server) cancelAllOrders(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	side, ok := sideParam(c)
	if !ok {
		return
	}
	n, err := s.exchange.CancelAllOrders(user.Self(caller(c)), id, side)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "cancel_all_orders", zap.Uint64("market_id", id), zap.Int("cancelled", n))
	responses.Success(c, gin.H{"cancelled": n})
}

type changeSizeRequest struct {
	Size uint64 `json:"size" binding:"required"`
}

func (s *Server) changeOrderSize(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	side, ok := sideParam(c)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req changeSizeRequest
	if !bind(c, &req) {
		return
	}
	newID, err := s.exchange.ChangeOrderSize(user.Self(caller(c)), id, side, orderID, req.Size)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "change_order_size", zap.Uint64("market_id", id), zap.Stringer("market_order_id", newID))
	responses.Success(c, gin.H{"market_order_id": newID, "size": req.Size})
}

// --- integrator fee stores ---

func (s *Server) utilityFee(amount uint64) model.Coins {
	return model.Coins{Asset: s.exchange.IncentiveParams().UtilityCoinType, Amount: amount}
}

func (s *Server) getIntegratorFeeStore(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	store, found := s.exchange.IntegratorFeeStore(caller(c), id)
	if !found {
		responses.NotFound(c, "no integrator fee store on this market")
		return
	}
	responses.Success(c, store)
}

type feeStoreRequest struct {
	Tier uint8  `json:"tier"`
	Fee  uint64 `json:"fee"`
}

func (s *Server) registerIntegratorFeeStore(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	var req feeStoreRequest
	if !bind(c, &req) {
		return
	}
	if err := s.exchange.RegisterIntegratorFeeStore(caller(c), id, req.Tier, s.utilityFee(req.Fee)); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "register_integrator_fee_store", zap.Uint64("market_id", id), zap.Uint8("tier", req.Tier))
	responses.Created(c, gin.H{"market_id": id, "tier": req.Tier})
}

func (s *Server) upgradeIntegratorFeeStore(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	var req feeStoreRequest
	if !bind(c, &req) {
		return
	}
	if err := s.exchange.UpgradeIntegratorFeeStore(caller(c), id, req.Tier, s.utilityFee(req.Fee)); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "upgrade_integrator_fee_store", zap.Uint64("market_id", id), zap.Uint8("tier", req.Tier))
	responses.Success(c, gin.H{"market_id": id, "tier": req.Tier})
}

type feeRequest struct {
	Fee uint64 `json:"fee"`
}

func (s *Server) withdrawIntegratorFees(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	var req feeRequest
	if !bind(c, &req) {
		return
	}
	coins, err := s.exchange.WithdrawIntegratorFees(caller(c), id, s.utilityFee(req.Fee))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "withdraw_integrator_fees", zap.Uint64("market_id", id), zap.Uint64("amount", coins.Amount))
	responses.Success(c, coins)
}
