package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_clob/api/responses"
	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/Aidin1998/pincex_clob/internal/ws"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
	"github.com/agnivade/levenshtein"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Snapshotter writes a snapshot on demand and returns its event sequence.
type Snapshotter func(ctx context.Context) (uint64, error)

// Options wires the server to the exchange and its optional collaborators.
type Options struct {
	Exchange       *market.Exchange
	Events         model.EventRepository
	Hub            *ws.Hub
	Snapshot       Snapshotter
	Auth           config.AuthConfig
	AllowedOrigins []string
	ServiceName    string
}

// Server represents the API server
type Server struct {
	router   *gin.Engine
	logger   *zap.Logger
	exchange *market.Exchange
	events   model.EventRepository
	hub      *ws.Hub
	snapshot Snapshotter
	tokens   *validator.Validator
	sanitize *bluemonday.Policy
	routes   []string

	// capabilities held by the operator, by id
	capMu        sync.RWMutex
	custodians   map[uint64]user.CustodianCapability
	underwriters map[uint64]user.UnderwriterCapability
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, opts Options) (*Server, error) {
	if opts.Exchange == nil {
		return nil, fmt.Errorf("api server needs an exchange")
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "clobd"
	}
	server := &Server{
		logger:       logger.Named("api"),
		exchange:     opts.Exchange,
		events:       opts.Events,
		hub:          opts.Hub,
		snapshot:     opts.Snapshot,
		sanitize:     bluemonday.StrictPolicy(),
		custodians:   make(map[uint64]user.CustodianCapability),
		underwriters: make(map[uint64]user.UnderwriterCapability),
	}
	if opts.Auth.Enabled {
		v, err := newTokenValidator(opts.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to set up token validator: %w", err)
		}
		server.tokens = v
	}
	custodians, underwriters := opts.Exchange.Capabilities()
	for _, c := range custodians {
		server.custodians[c.ID()] = c
	}
	for _, u := range underwriters {
		server.underwriters[u.ID()] = u
	}

	useJSONFieldNames()
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(opts.ServiceName))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", headerUser, headerRole},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	for _, r := range router.Routes() {
		server.routes = append(server.routes, r.Path)
	}
	sort.Strings(server.routes)
	router.NoRoute(server.noRoute)
	return server, nil
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler, for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)

		markets := public.Group("/markets")
		{
			markets.GET("", s.listMarkets)
			markets.GET("/:id", s.getMarket)
			markets.GET("/:id/book", s.getBook)
			markets.GET("/:id/depth", s.getDepth)
			markets.GET("/:id/events", s.listEvents)
			markets.POST("/:id/swap", s.swap)
		}
		public.GET("/ws/events", s.serveEvents)
	}

	protected := s.router.Group("/api/v1")
	protected.Use(s.authMiddleware())
	{
		accounts := protected.Group("/accounts")
		{
			accounts.GET("", s.listAccounts)
			accounts.POST("/:market", s.registerAccount)
			accounts.GET("/:market", s.getAccount)
			accounts.POST("/:market/deposit", s.deposit)
			accounts.POST("/:market/withdraw", s.withdraw)
		}

		orders := protected.Group("/markets/:id/orders")
		{
			orders.GET("", s.listOpenOrders)
			orders.POST("/limit", s.placeLimitOrder)
			orders.POST("/market", s.placeMarketOrder)
			orders.POST("/passive", s.placePassiveAdvanceOrder)
			orders.DELETE("/:side", s.cancelAllOrders)
			orders.DELETE("/:side/:order_id", s.cancelOrder)
			orders.PATCH("/:side/:order_id", s.changeOrderSize)
		}

		integrators := protected.Group("/integrators/:market")
		{
			integrators.GET("", s.getIntegratorFeeStore)
			integrators.POST("", s.registerIntegratorFeeStore)
			integrators.PUT("", s.upgradeIntegratorFeeStore)
			integrators.POST("/withdraw", s.withdrawIntegratorFees)
		}
	}

	admin := s.router.Group("/api/v1/admin")
	admin.Use(s.authMiddleware(), requireRole(RoleAdmin))
	{
		admin.POST("/markets", s.registerMarket)
		admin.GET("/incentives", s.getIncentives)
		admin.PUT("/incentives", s.setIncentives)
		admin.POST("/custodians", s.registerCustodian)
		admin.POST("/underwriters", s.registerUnderwriter)
		admin.POST("/underwriters/:uid/deposit", s.underwriterDeposit)
		admin.POST("/underwriters/:uid/withdraw", s.underwriterWithdraw)
		admin.POST("/fees/:market/withdraw", s.withdrawEconiaFees)
		admin.POST("/utility/withdraw", s.withdrawUtilityCoins)
		admin.POST("/snapshots", s.takeSnapshot)
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"time":     time.Now(),
		"sequence": s.exchange.Sequence(),
		"markets":  len(s.exchange.Markets()),
	})
}

// noRoute answers unknown paths with the closest registered route.
func (s *Server) noRoute(c *gin.Context) {
	p := errors.NewNotFoundError("no route for "+c.Request.URL.Path, c.Request.URL.Path)
	best, bestDist := "", -1
	for _, r := range s.routes {
		d := levenshtein.ComputeDistance(c.Request.URL.Path, r)
		if bestDist < 0 || d < bestDist {
			best, bestDist = r, d
		}
	}
	if best != "" && bestDist <= len(best)/3 {
		p.WithExtra("did_you_mean", best)
	}
	responses.Error(c, p)
}

func (s *Server) serveEvents(c *gin.Context) {
	if s.hub == nil {
		responses.ServiceUnavailable(c, "event stream is not enabled")
		return
	}
	s.hub.ServeWS(c.Writer, c.Request, c.ClientIP()+"/"+c.Request.RemoteAddr)
}

func (s *Server) takeSnapshot(c *gin.Context) {
	if s.snapshot == nil {
		responses.ServiceUnavailable(c, "snapshots are not enabled")
		return
	}
	seq, err := s.snapshot(c.Request.Context())
	if err != nil {
		s.logger.Error("On-demand snapshot failed", zap.Error(err))
		responses.Error(c, errors.NewInternalError("snapshot failed", c.Request.URL.Path))
		return
	}
	responses.Created(c, gin.H{"sequence": seq}, "Snapshot written")
}

// --- request helpers ---

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		responses.BadRequest(c, fmt.Sprintf("path parameter %s must be an unsigned integer", name))
		return 0, false
	}
	return v, true
}

func uintQuery(c *gin.Context, name string, def uint64) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		responses.BadRequest(c, fmt.Sprintf("query parameter %s must be an unsigned integer", name))
		return 0, false
	}
	return v, true
}

// audit records state-changing requests.
func (s *Server) audit(c *gin.Context, event string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("event", event),
		zap.String("user", string(caller(c))),
		zap.String("ip", c.ClientIP()))
	s.logger.Info("AUDIT", fields...)
}
