package v1

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/repository"
)

// ListTransactions lists ledger records, newest first.
// GET /v1/transactions?wallet_id=&intent_id=&since=&limit=
func (h *Handler) ListTransactions(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return h.presentError(c, err)
	}
	filter := repository.TransactionFilter{
		WalletID: c.QueryParam("wallet_id"),
		IntentID: c.QueryParam("intent_id"),
		Limit:    limit,
	}
	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return h.presentError(c, errors.Wrap(domain.ErrBadParameter, "since must be an RFC 3339 timestamp"))
		}
		filter.Since = since
	}

	txs, err := h.service.ListTransactions(c.Request().Context(), filter)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"transactions": txs})
}

// WalletSpend reports period-to-date spend for a wallet.
// GET /v1/wallets/:wallet_id/spend?period=day
func (h *Handler) WalletSpend(c echo.Context) error {
	res, err := h.service.WalletSpend(c.Request().Context(), c.Param("wallet_id"), domain.Period(c.QueryParam("period")))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
