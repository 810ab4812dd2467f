package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/internal/trading/orderbook"
	"github.com/Aidin1998/tickbook/pkg/errors"
	"github.com/Aidin1998/tickbook/pkg/logger"
)

// BookViewer gives serialized read access to a book.
type BookViewer interface {
	View(fn func(*orderbook.OrderBook))
}

// BookHandler serves the diagnostic view of one order book.
type BookHandler struct {
	book   BookViewer
	logger *zap.Logger
}

// NewBookHandler creates a new book handler
func NewBookHandler(book BookViewer, log *zap.Logger) *BookHandler {
	return &BookHandler{book: book, logger: logger.OrNop(log).Named("http")}
}

// AmountResponse is a price or quantity with its display form.
type AmountResponse struct {
	Mantissa int64  `json:"mantissa"`
	Tag      string `json:"tag"`
	Display  string `json:"display"`
}

func priceResponse(p model.Price) AmountResponse {
	return AmountResponse{Mantissa: p.Mantissa(), Tag: p.Tag(), Display: p.String()}
}

func quantityResponse(q model.Quantity) AmountResponse {
	return AmountResponse{Mantissa: q.Mantissa(), Tag: q.Tag(), Display: q.String()}
}

func deltaResponse(d model.Delta) AmountResponse {
	return AmountResponse{Mantissa: d.Mantissa, Tag: d.Tag, Display: d.String()}
}

// DepthLevel is one row of a depth profile
type DepthLevel struct {
	Price AmountResponse `json:"price"`
	Depth AmountResponse `json:"depth"`
}

// DepthResponse lists the depth profile of both sides, ascending by price.
type DepthResponse struct {
	Market string       `json:"market"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// SpreadResponse reports the best prices and their spread.
type SpreadResponse struct {
	Bid    AmountResponse `json:"bid"`
	Ask    AmountResponse `json:"ask"`
	Spread AmountResponse `json:"spread"`
	Mid    AmountResponse `json:"mid"`
}

// TickResponse describes a resting tick
type TickResponse struct {
	OrderID   string          `json:"order_id"`
	MessageID string          `json:"message_id"`
	Direction string          `json:"direction"`
	Price     AmountResponse  `json:"price"`
	Remaining AmountResponse  `json:"remaining"`
	Original  AmountResponse  `json:"original"`
	Timeout   model.Timeout   `json:"timeout"`
	Timestamp model.Timestamp `json:"timestamp"`
}

// TradeResponse is one recent trade
type TradeResponse struct {
	Buyer     string          `json:"buyer"`
	Seller    string          `json:"seller"`
	Price     AmountResponse  `json:"price"`
	Quantity  AmountResponse  `json:"quantity"`
	Timestamp model.Timestamp `json:"timestamp"`
}

func depthLevels(rows []orderbook.DepthEntry) []DepthLevel {
	out := make([]DepthLevel, len(rows))
	for i, r := range rows {
		out[i] = DepthLevel{Price: priceResponse(r.Price), Depth: quantityResponse(r.Depth)}
	}
	return out
}

func (h *BookHandler) problem(c *gin.Context, err error) {
	p := errors.ToProblem(err, c.Request.URL.Path)
	if p.Status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(p.Status, p)
}

// GetBook renders the book as text.
func (h *BookHandler) GetBook(c *gin.Context) {
	var text string
	h.book.View(func(ob *orderbook.OrderBook) { text = ob.String() })
	c.String(http.StatusOK, text)
}

// GetDepth returns the depth profile of both sides.
// @Router /api/v1/book/depth [get]
func (h *BookHandler) GetDepth(c *gin.Context) {
	var resp DepthResponse
	h.book.View(func(ob *orderbook.OrderBook) {
		resp = DepthResponse{
			Market: ob.Market().String(),
			Bids:   depthLevels(ob.BidSideDepthProfile()),
			Asks:   depthLevels(ob.AskSideDepthProfile()),
		}
	})
	c.JSON(http.StatusOK, resp)
}

// GetSpread returns best bid, best ask, spread and mid price. Both sides
// must be non-empty.
// @Router /api/v1/book/spread [get]
func (h *BookHandler) GetSpread(c *gin.Context) {
	var (
		resp SpreadResponse
		err  error
	)
	h.book.View(func(ob *orderbook.OrderBook) {
		var bid, ask, mid model.Price
		var spread model.Delta
		if bid, err = ob.BidPrice(); err != nil {
			return
		}
		if ask, err = ob.AskPrice(); err != nil {
			return
		}
		if spread, err = ob.BidAskSpread(); err != nil {
			return
		}
		if mid, err = ob.MidPrice(); err != nil {
			return
		}
		resp = SpreadResponse{
			Bid:    priceResponse(bid),
			Ask:    priceResponse(ask),
			Spread: deltaResponse(spread),
			Mid:    priceResponse(mid),
		}
	})
	if err != nil {
		h.problem(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTick looks up a resting tick by order id.
// @Router /api/v1/book/ticks/{trader}/{order} [get]
func (h *BookHandler) GetTick(c *gin.Context) {
	id := model.NewOrderID(model.TraderID(c.Param("trader")), model.OrderNumber(c.Param("order")))

	var (
		resp TickResponse
		err  error
	)
	h.book.View(func(ob *orderbook.OrderBook) {
		var entry *orderbook.TickEntry
		if entry, err = ob.GetTick(id); err != nil {
			return
		}
		tick := entry.Tick()
		resp = TickResponse{
			OrderID:   tick.OrderID().String(),
			MessageID: tick.MessageID().String(),
			Direction: tick.Direction().String(),
			Price:     priceResponse(tick.Price()),
			Remaining: quantityResponse(entry.Quantity()),
			Original:  quantityResponse(tick.Quantity()),
			Timeout:   tick.Timeout(),
			Timestamp: tick.Timestamp(),
		}
	})
	if err != nil {
		h.problem(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetTrades returns recent trades, newest first.
// @Param limit query int false "Maximum trades returned"
// @Router /api/v1/trades [get]
func (h *BookHandler) GetTrades(c *gin.Context) {
	limit := -1
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.problem(c, errors.ErrInvalidArgument.Explain("limit must be a non-negative integer, got %q", raw))
			return
		}
		limit = n
	}

	var trades []model.Trade
	h.book.View(func(ob *orderbook.OrderBook) { trades = ob.Trades() })
	if limit >= 0 && limit < len(trades) {
		trades = trades[:limit]
	}

	resp := make([]TradeResponse, len(trades))
	for i, t := range trades {
		resp[i] = TradeResponse{
			Buyer:     t.Buyer.String(),
			Seller:    t.Seller.String(),
			Price:     priceResponse(t.Price),
			Quantity:  quantityResponse(t.Quantity),
			Timestamp: t.Timestamp,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Health reports the book sizes.
func (h *BookHandler) Health(c *gin.Context) {
	var bids, asks int
	var last model.Timestamp
	h.book.View(func(ob *orderbook.OrderBook) {
		bids, asks, last = ob.Bids().Len(), ob.Asks().Len(), ob.LastTimestamp()
	})
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"bids":           bids,
		"asks":           asks,
		"last_timestamp": last,
	})
}

// RegisterRoutes mounts the book endpoints on r.
func (h *BookHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/book", h.GetBook)
		v1.GET("/book/depth", h.GetDepth)
		v1.GET("/book/spread", h.GetSpread)
		v1.GET("/book/ticks/:trader/:order", h.GetTick)
		v1.GET("/trades", h.GetTrades)
	}
}

// NewRouter builds the gin engine with zap request logging, panic recovery,
// CORS for allowOrigins and, when gatherer is set, a /metrics endpoint.
func NewRouter(h *BookHandler, gatherer prometheus.Gatherer, log *zap.Logger, allowOrigins ...string) *gin.Engine {
	log = logger.OrNop(log)
	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))
	if len(allowOrigins) > 0 {
		r.Use(cors.New(corsConfig(allowOrigins)))
	}
	h.RegisterRoutes(r)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
