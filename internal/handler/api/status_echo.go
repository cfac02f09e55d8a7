package api

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"SpectreGate/internal/domain/models"
	"SpectreGate/internal/domain/repository"
	"SpectreGate/internal/engine"
	"SpectreGate/internal/service/cache"
	"SpectreGate/internal/service/ratelimit"
	xhttp "SpectreGate/pkg/http"
	xlogger "SpectreGate/pkg/logger"
)

// decisionsCacheTTL shields the journal from polling dashboards.
const decisionsCacheTTL = 5 * time.Second

// StatusEchoHandler exposes the engine's observable state over HTTP.
type StatusEchoHandler struct {
	logger  *xlogger.Logger
	eng     *engine.Engine
	journal repository.Journal
	rl      *ratelimit.Limiter
	cache   *cache.TTLCache
	symbol  string
}

func NewStatusEchoHandler(logger *xlogger.Logger, eng *engine.Engine, journal repository.Journal, symbol string) *StatusEchoHandler {
	return &StatusEchoHandler{
		logger:  logger,
		eng:     eng,
		journal: journal,
		rl:      ratelimit.New(),
		cache:   cache.NewTTLCache(),
		symbol:  symbol,
	}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/decisions", h.Decisions)
	e.GET("/health", h.Health)
}

// Status returns the current regime, risk counters and connection health.
func (h *StatusEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.eng.Status())
}

// Decisions returns recent journal entries, newest first.
func (h *StatusEchoHandler) Decisions(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":decisions", 5, 2) {
		return xhttp.DataResponse(c, 429, "rate limited")
	}

	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol == "" {
		req.Symbol = h.symbol
	}

	if h.journal == nil {
		return xhttp.SuccessResponse(c, []*models.DecisionEvent{})
	}

	key := fmt.Sprintf("decisions:%s:%d", req.Symbol, req.Limit)
	if v, ok := h.cache.Get(key); ok {
		return xhttp.SuccessResponse(c, v)
	}

	events, err := h.journal.Recent(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("decision query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if events == nil {
		events = []*models.DecisionEvent{}
	}
	h.cache.Set(key, events, decisionsCacheTTL)
	return xhttp.SuccessResponse(c, events)
}

// Health reports component liveness. The process is healthy as long as it
// can answer; degraded collaborators are listed per component.
func (h *StatusEchoHandler) Health(c echo.Context) error {
	st := h.eng.Status()
	components := map[string]string{
		"inference_link": upDown(st.LinkConnected),
		"bar_feed":       upDown(st.FeedConnected),
	}
	if h.journal != nil {
		if err := h.journal.Health(c.Request().Context()); err != nil {
			components["journal"] = "down"
		} else {
			components["journal"] = "up"
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":     "ok",
		"components": components,
	})
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}
