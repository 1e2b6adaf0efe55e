package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reconciler/internal/ledger"
)

// JobDispatcher queues background jobs.  *jobs.Dispatcher implements it.
type JobDispatcher interface {
	EnqueueBulkRefund(ctx context.Context, seatSaleID uint64) (string, error)
	EnqueueReconcile(ctx context.Context) (string, error)
}

// AdminHandler exposes operator endpoints.  Long-running work (bulk
// refunds, reconciliation) is queued and answered with 202 Accepted.
type AdminHandler struct {
	Jobs   JobDispatcher
	Ledger *ledger.Ledger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(jobs JobDispatcher, l *ledger.Ledger) *AdminHandler {
	return &AdminHandler{Jobs: jobs, Ledger: l}
}

// BulkRefund handles POST /v1/admin/seat-sales/:id/refund.
func (h *AdminHandler) BulkRefund(c echo.Context) error {
	saleID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat sale id"})
	}
	taskID, err := h.Jobs.EnqueueBulkRefund(c.Request().Context(), saleID)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "bulk refund already queued"})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"task_id": taskID, "seat_sale_id": saleID})
}

// Reconcile handles POST /v1/admin/reconcile.  It queues a run ahead of
// the schedule.
func (h *AdminHandler) Reconcile(c echo.Context) error {
	taskID, err := h.Jobs.EnqueueReconcile(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"task_id": taskID})
}

// Withdraw handles POST /v1/admin/tickets/:id/withdraw.
func (h *AdminHandler) Withdraw(c echo.Context) error {
	ticketID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	if err := h.Ledger.Withdraw(c.Request().Context(), ticketID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reserves handles GET /v1/admin/tickets/:id/reserves and returns the
// ticket's reserve chain from purchase to current owner.
func (h *AdminHandler) Reserves(c echo.Context) error {
	ticketID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	chain, err := h.Ledger.History(c.Request().Context(), ticketID)
	if err != nil {
		return respondError(c, err)
	}
	items := make([]echo.Map, 0, len(chain))
	for _, r := range chain {
		items = append(items, echo.Map{
			"id":                    r.ID,
			"order_id":              r.OrderID,
			"previous_reserve_id":   r.PreviousReserveID,
			"next_reserve_id":       r.NextReserveID,
			"transfer_from_user_id": r.TransferFromUserID,
			"transfer_to_user_id":   r.TransferToUserID,
			"transfer_at":           r.TransferAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket_id": ticketID, "items": items})
}
