package api

import (
	"github.com/Aidin1998/pincex_clob/api/responses"
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerMarketRequest struct {
	Base            string `json:"base"`
	BaseNameGeneric string `json:"base_name_generic"`
	Quote           string `json:"quote" binding:"required"`
	LotSize         uint64 `json:"lot_size" binding:"required"`
	TickSize        uint64 `json:"tick_size" binding:"required"`
	MinSize         uint64 `json:"min_size" binding:"required"`
	UnderwriterID   uint64 `json:"underwriter_id"`
	Fee             uint64 `json:"fee"`
}

func (s *Server) registerMarket(c *gin.Context) {
	var req registerMarketRequest
	if !bind(c, &req) {
		return
	}
	info := market.Info{
		BaseType:        model.AssetType(req.Base),
		BaseNameGeneric: s.sanitize.Sanitize(req.BaseNameGeneric),
		QuoteType:       model.AssetType(req.Quote),
		LotSize:         req.LotSize,
		TickSize:        req.TickSize,
		MinSize:         req.MinSize,
		UnderwriterID:   req.UnderwriterID,
	}
	if info.BaseType == "" && info.BaseNameGeneric != "" {
		info.BaseType = model.GenericAsset
	}
	if req.Fee == 0 {
		req.Fee = s.exchange.IncentiveParams().MarketRegistrationFee
	}
	id, err := s.exchange.RegisterMarket(info, s.utilityFee(req.Fee))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	info, _ = s.exchange.MarketInfo(id)
	s.audit(c, "register_market", zap.Uint64("market_id", id), zap.String("base", string(info.BaseType)), zap.String("quote", string(info.QuoteType)))
	responses.Created(c, info)
}

func (s *Server) getIncentives(c *gin.Context) {
	responses.Success(c, s.exchange.IncentiveParams())
}

func (s *Server) setIncentives(c *gin.Context) {
	var params incentives.Params
	if !bind(c, &params) {
		return
	}
	if err := s.exchange.SetIncentiveParams(params); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "set_incentive_parameters", zap.Uint64("taker_fee_divisor", params.TakerFeeDivisor), zap.Int("tiers", len(params.Tiers)))
	responses.Success(c, s.exchange.IncentiveParams())
}

func (s *Server) registerCustodian(c *gin.Context) {
	var req feeRequest
	if !bind(c, &req) {
		return
	}
	if req.Fee == 0 {
		req.Fee = s.exchange.IncentiveParams().CustodianRegistrationFee
	}
	capability, err := s.exchange.RegisterCustodian(s.utilityFee(req.Fee))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.capMu.Lock()
	s.custodians[capability.ID()] = capability
	s.capMu.Unlock()
	s.audit(c, "register_custodian", zap.Uint64("custodian_id", capability.ID()))
	responses.Created(c, gin.H{"custodian_id": capability.ID()})
}

func (s *Server) registerUnderwriter(c *gin.Context) {
	var req feeRequest
	if !bind(c, &req) {
		return
	}
	if req.Fee == 0 {
		req.Fee = s.exchange.IncentiveParams().UnderwriterRegistrationFee
	}
	capability, err := s.exchange.RegisterUnderwriter(s.utilityFee(req.Fee))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.capMu.Lock()
	s.underwriters[capability.ID()] = capability
	s.capMu.Unlock()
	s.audit(c, "register_underwriter", zap.Uint64("underwriter_id", capability.ID()))
	responses.Created(c, gin.H{"underwriter_id": capability.ID()})
}

type genericAssetRequest struct {
	User        string `json:"user" binding:"required"`
	MarketID    uint64 `json:"market_id" binding:"required"`
	CustodianID uint64 `json:"custodian_id"`
	Amount      uint64 `json:"amount" binding:"required"`
}

// underwriterDeposit credits a generic base asset the underwriter vouches for.
func (s *Server) underwriterDeposit(c *gin.Context) {
	uid, ok := uintParam(c, "uid")
	if !ok {
		return
	}
	var req genericAssetRequest
	if !bind(c, &req) {
		return
	}
	owner, err := parseAddress(req.User)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	u, ok := s.underwriter(c, uid)
	if !ok {
		return
	}
	if err := s.exchange.DepositGenericAsset(owner, req.MarketID, req.CustodianID, req.Amount, u); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "deposit_generic_asset", zap.Uint64("underwriter_id", uid), zap.String("owner", string(owner)), zap.Uint64("amount", req.Amount))
	responses.Success(c, gin.H{"user": owner, "market_id": req.MarketID, "amount": req.Amount})
}

// underwriterWithdraw debits a generic base asset from a market account,
// acting through the custodian when one is named.
func (s *Server) underwriterWithdraw(c *gin.Context) {
	uid, ok := uintParam(c, "uid")
	if !ok {
		return
	}
	var req genericAssetRequest
	if !bind(c, &req) {
		return
	}
	owner, err := parseAddress(req.User)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	u, ok := s.underwriter(c, uid)
	if !ok {
		return
	}
	signer, ok := s.signerFor(c, owner, req.CustodianID)
	if !ok {
		return
	}
	if err := s.exchange.WithdrawGenericAsset(signer, req.MarketID, req.Amount, u); err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "withdraw_generic_asset", zap.Uint64("underwriter_id", uid), zap.String("owner", string(owner)), zap.Uint64("amount", req.Amount))
	responses.Success(c, gin.H{"user": owner, "market_id": req.MarketID, "amount": req.Amount})
}

type amountRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

func (s *Server) withdrawEconiaFees(c *gin.Context) {
	id, ok := uintParam(c, "market")
	if !ok {
		return
	}
	var req amountRequest
	if !bind(c, &req) {
		return
	}
	coins, err := s.exchange.WithdrawEconiaFees(id, req.Amount)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "withdraw_econia_fees", zap.Uint64("market_id", id), zap.Uint64("amount", coins.Amount))
	responses.Success(c, coins)
}

func (s *Server) withdrawUtilityCoins(c *gin.Context) {
	var req amountRequest
	if !bind(c, &req) {
		return
	}
	coins, err := s.exchange.WithdrawUtilityCoins(req.Amount)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	s.audit(c, "withdraw_utility_coins", zap.Uint64("amount", coins.Amount))
	responses.Success(c, coins)
}

func (s *Server) signerFor(c *gin.Context, owner model.Address, custodianID uint64) (user.Signer, bool) {
	if custodianID == model.NoCustodian {
		return user.Self(owner), true
	}
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	custodian, ok := s.custodians[custodianID]
	if !ok {
		responses.NotFound(c, "custodian is not held by this exchange")
		return user.Signer{}, false
	}
	return custodian.For(owner), true
}
