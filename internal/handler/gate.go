package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reconciler/internal/admission"
	"github.com/iliyamo/ticket-reconciler/internal/middleware"
	"github.com/iliyamo/ticket-reconciler/internal/model"
)

// GateHandler serves the gate devices.  Routes are protected by JWTAuth
// and the gate role; the token's subject is the scanning user and its
// device_id claim names the device.
type GateHandler struct {
	Admission *admission.Service
}

// NewGateHandler constructs a GateHandler.
func NewGateHandler(svc *admission.Service) *GateHandler {
	if svc == nil {
		panic("nil admission service passed to NewGateHandler")
	}
	return &GateHandler{Admission: svc}
}

// verifyStatus maps verification outcomes to HTTP status codes.  Business
// outcomes other than not-found and timeout are 200 responses carrying
// the code, so the gate can still show the ticket snapshot.
var verifyStatus = map[admission.Code]int{
	admission.TicketNotFound: http.StatusNotFound,
	admission.Timeout:        http.StatusGatewayTimeout,
}

// Verify handles GET /v1/gate/tickets/:qr.
func (h *GateHandler) Verify(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Admission.Verify(c.Request().Context(), c.Param("qr"), userID)
	if err != nil {
		return respondError(c, err)
	}
	status, ok := verifyStatus[res.Code]
	if !ok {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// UpdateLog handles POST /v1/gate/tickets/:qr/log.  The body carries
// "status" and "result"; the device comes from the token unless the body
// names one.
func (h *GateHandler) UpdateLog(c echo.Context) error {
	var req admission.LogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.DeviceID == nil {
		req.DeviceID = middleware.DeviceID(c)
	}
	entry, err := h.Admission.UpdateLog(c.Request().Context(), c.Param("qr"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, logJSON(*entry))
}

// UpdateCleanLog handles POST /v1/gate/tickets/:qr/clean.
func (h *GateHandler) UpdateCleanLog(c echo.Context) error {
	entry, err := h.Admission.UpdateCleanLog(c.Request().Context(), c.Param("qr"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, logJSON(*entry))
}

// Logs handles GET /v1/gate/tickets/:qr/logs.
func (h *GateHandler) Logs(c echo.Context) error {
	tr, err := h.Admission.Logs(c.Request().Context(), c.Param("qr"))
	if err != nil {
		return respondError(c, err)
	}
	logs := make([]echo.Map, 0, len(tr.Logs))
	for _, l := range tr.Logs {
		logs = append(logs, logJSON(l))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ticket_id":  tr.TicketID,
		"status":     tr.Status,
		"consistent": tr.Consistent,
		"logs":       logs,
	})
}

func logJSON(l model.TicketLog) echo.Map {
	return echo.Map{
		"id":             l.ID,
		"ticket_id":      l.TicketID,
		"log_type":       l.LogType,
		"request_status": l.RequestStatus,
		"status":         l.Status,
		"result":         l.Result,
		"result_status":  l.ResultStatus,
		"device_id":      l.DeviceID,
		"created_at":     l.CreatedAt.Format(time.RFC3339),
	}
}
