package api

import (
	"github.com/Aidin1998/pincex_clob/api/responses"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultDepthLevels = 20
	defaultEventLimit  = 100
	maxEventLimit      = 1000
)

func (s *Server) listMarkets(c *gin.Context) {
	infos := s.exchange.Markets()
	out := make([]marketView, 0, len(infos))
	for _, info := range infos {
		best, err := s.exchange.BestPrices(info.MarketID)
		if err != nil {
			responses.FromError(c, err)
			return
		}
		out = append(out, newMarketView(info, best))
	}
	responses.Success(c, out)
}

func (s *Server) getMarket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	info, err := s.exchange.MarketInfo(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	best, err := s.exchange.BestPrices(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	responses.Success(c, newMarketView(info, best))
}

func (s *Server) getBook(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	info, err := s.exchange.MarketInfo(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	snap, err := s.exchange.BookSnapshot(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	responses.Success(c, newBookView(info, snap))
}

func (s *Server) getDepth(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	levels, ok := uintQuery(c, "levels", defaultDepthLevels)
	if !ok {
		return
	}
	depth, err := s.exchange.Depth(id, int(levels))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	responses.Success(c, depth)
}

// listEvents serves recent events from memory and falls back to the event
// store once the cursor is older than the in-memory history.
func (s *Server) listEvents(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if _, err := s.exchange.MarketInfo(id); err != nil {
		responses.FromError(c, err)
		return
	}
	after, ok := uintQuery(c, "after", 0)
	if !ok {
		return
	}
	limit, ok := uintQuery(c, "limit", defaultEventLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	events := s.exchange.Events(id, after, int(limit))
	fromMemory := len(events) > 0 && events[0].Sequence == after+1
	if !fromMemory && s.events != nil {
		stored, err := s.events.ListEvents(c.Request.Context(), id, after, int(limit))
		if err != nil {
			s.logger.Warn("Event store query failed", zap.Uint64("market_id", id), zap.Error(err))
		} else if len(stored) > 0 {
			events = stored
		}
	}
	responses.Success(c, events)
}

type swapRequest struct {
	Direction     string `json:"direction" binding:"required,oneof=buy sell"`
	UnderwriterID uint64 `json:"underwriter_id"`
	Integrator    string `json:"integrator"`
	MinBase       uint64 `json:"min_base"`
	MaxBase       uint64 `json:"max_base"`
	MinQuote      uint64 `json:"min_quote"`
	MaxQuote      uint64 `json:"max_quote"`
	LimitPrice    uint64 `json:"limit_price" binding:"required"`
	BaseIn        uint64 `json:"base_in"`
	QuoteIn       uint64 `json:"quote_in"`
}

// swap trades coins presented with the request rather than held in a
// market account. Generic markets settle base through the named
// underwriter.
func (s *Server) swap(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req swapRequest
	if !bind(c, &req) {
		return
	}
	info, err := s.exchange.MarketInfo(id)
	if err != nil {
		responses.FromError(c, err)
		return
	}
	direction, err := model.ParseDirection(req.Direction)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return
	}
	integrator, ok := optionalAddress(c, req.Integrator)
	if !ok {
		return
	}
	if info.IsGeneric() {
		s.capMu.RLock()
		_, held := s.underwriters[req.UnderwriterID]
		s.capMu.RUnlock()
		if !held {
			responses.BadRequest(c, "generic markets need an underwriter held by this exchange")
			return
		}
	}
	res, err := s.exchange.Swap(market.SwapRequest{
		MarketID:      id,
		UnderwriterID: req.UnderwriterID,
		Integrator:    integrator,
		Direction:     direction,
		MinBase:       req.MinBase,
		MaxBase:       orMax(req.MaxBase),
		MinQuote:      req.MinQuote,
		MaxQuote:      orMax(req.MaxQuote),
		LimitPrice:    req.LimitPrice,
		Base:          model.Coins{Asset: info.BaseType, Amount: req.BaseIn},
		Quote:         model.Coins{Asset: info.QuoteType, Amount: req.QuoteIn},
	})
	if err != nil {
		responses.FromError(c, err)
		return
	}
	responses.Success(c, res)
}

func optionalAddress(c *gin.Context, raw string) (model.Address, bool) {
	if raw == "" {
		return "", true
	}
	addr, err := parseAddress(raw)
	if err != nil {
		responses.BadRequest(c, err.Error())
		return "", false
	}
	return addr, true
}

func (s *Server) underwriter(c *gin.Context, id uint64) (user.UnderwriterCapability, bool) {
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	u, ok := s.underwriters[id]
	if !ok {
		responses.NotFound(c, "underwriter is not held by this exchange")
	}
	return u, ok
}
