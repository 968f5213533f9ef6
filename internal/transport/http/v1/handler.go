// Package v1 provides the HTTP handlers of the payguard API.
package v1

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Intent lifecycle
	e.POST("/v1/intents", h.CreateIntent)
	e.GET("/v1/intents", h.ListIntents)
	e.GET("/v1/intents/:intent_id", h.GetIntent)
	e.GET("/v1/intents/:intent_id/events", h.GetIntentEvents)
	e.POST("/v1/intents/:intent_id/simulate", h.SimulateIntent)
	e.POST("/v1/intents/:intent_id/approve", h.ApproveIntent)
	e.POST("/v1/intents/:intent_id/reject", h.RejectIntent)
	e.POST("/v1/intents/:intent_id/execute", h.ExecuteIntent)
	e.GET("/v1/intents/:intent_id/replay", h.ReplayIntent)

	// Guard registry
	e.GET("/v1/guards", h.ListGuards)
	e.POST("/v1/guards", h.CreateGuard)
	e.POST("/v1/guards/evaluate", h.EvaluateCandidate)
	e.GET("/v1/guards/blast-radius", h.BlastRadius)
	e.POST("/v1/guards/blast-radius", h.BlastRadius)
	e.GET("/v1/guards/:guard_id", h.GetGuard)
	e.PUT("/v1/guards/:guard_id", h.UpdateGuard)
	e.DELETE("/v1/guards/:guard_id", h.DeleteGuard)

	// Agents
	e.POST("/v1/agents", h.RegisterAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)

	// Ledger
	e.GET("/v1/transactions", h.ListTransactions)
	e.GET("/v1/wallets/:wallet_id/spend", h.WalletSpend)
}

// presentError writes err with the status code its sentinel maps to.
func (h *Handler) presentError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBadParameter), errors.Is(err, domain.ErrInvalidGuardConfig):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	default:
		h.logger.ErrorContext(c.Request().Context(), "unexpected error",
			"method", c.Request().Method, "path", c.Path(), "error", err.Error())
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// bind decodes a JSON body keeping numbers exact, so amounts and guard
// limits are not rounded through float64.
func bind(c echo.Context, v interface{}) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(domain.ErrBadParameter, "invalid request body: %s", err.Error())
	}
	return nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(domain.ErrBadParameter, "%s must be a non-negative integer", name)
	}
	return n, nil
}
