package handler // handler defines http handlers

import (
	"errors"   // errors.Is / errors.As for error mapping
	"net/http" // HTTP status codes
	"strconv"  // parsing path parameters

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reconciler/internal/admission"
	"github.com/iliyamo/ticket-reconciler/internal/hold"
	"github.com/iliyamo/ticket-reconciler/internal/ledger"
	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/middleware"
	"github.com/iliyamo/ticket-reconciler/internal/refund"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// getUserID extracts the authenticated user's ID stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// respondError maps domain errors to HTTP responses.  Unexpected errors
// are logged with their cause and reported as a generic 500 so gateway and
// database details never reach the client.
func respondError(c echo.Context, err error) error {
	var verr *admission.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Code, "field": verr.Field})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, admission.ErrFaceRecordNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "face record not found"})
	case errors.Is(err, ledger.ErrNotOwner), errors.Is(err, hold.ErrNotHolder):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, ledger.ErrAlreadyHeld),
		errors.Is(err, ledger.ErrAlreadySold),
		errors.Is(err, ledger.ErrPaymentPending),
		errors.Is(err, ledger.ErrNotSold),
		errors.Is(err, ledger.ErrTransferPending),
		errors.Is(err, ledger.ErrNoTransfer),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, admission.ErrNothingToClean),
		errors.Is(err, refund.ErrSaleNotDiscontinued),
		errors.Is(err, store.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	logging.FromContext(c.Request().Context()).WithError(err).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong"})
}
