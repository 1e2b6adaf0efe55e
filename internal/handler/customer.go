package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reconciler/internal/ledger"
	"github.com/iliyamo/ticket-reconciler/internal/model"
)

// CustomerHandler serves ticket holds and transfers for authenticated
// customers.
type CustomerHandler struct {
	Ledger *ledger.Ledger
}

// NewCustomerHandler constructs a CustomerHandler.
func NewCustomerHandler(l *ledger.Ledger) *CustomerHandler {
	return &CustomerHandler{Ledger: l}
}

// holderFor names the hold owner for a user.
func holderFor(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10)
}

// Hold handles POST /v1/tickets/:id/hold.  A successful hold returns 201
// with its expiry; a ticket that is not available yields 409.
func (h *CustomerHandler) Hold(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	hold, err := h.Ledger.Reserve(c.Request().Context(), ticketID, holderFor(userID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ticket_id":  ticketID,
		"expires_at": hold.ExpiresAt.Format(time.RFC3339),
	})
}

// ReleaseHold handles DELETE /v1/tickets/:id/hold.
func (h *CustomerHandler) ReleaseHold(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	if err := h.Ledger.ReleaseHold(c.Request().Context(), ticketID, holderFor(userID)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// OfferTransfer handles POST /v1/tickets/:id/transfer and returns the
// token the receiver redeems.
func (h *CustomerHandler) OfferTransfer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	token, err := h.Ledger.OfferTransfer(c.Request().Context(), ticketID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ticket_id": ticketID, "transfer_token": token})
}

// CancelTransfer handles DELETE /v1/tickets/:id/transfer.
func (h *CustomerHandler) CancelTransfer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	if err := h.Ledger.CancelTransfer(c.Request().Context(), ticketID, userID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AcceptTransfer handles POST /v1/transfers/:token/accept.  The caller
// becomes the ticket's owner.
func (h *CustomerHandler) AcceptTransfer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing transfer token"})
	}
	reserve, err := h.Ledger.Transfer(c.Request().Context(), token, userID, model.OrderTransfer)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ticket_id":  reserve.TicketID,
		"reserve_id": reserve.ID,
		"order_id":   reserve.OrderID,
	})
}
