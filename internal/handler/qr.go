// Package handler exposes the guest charging workflow over HTTP. The
// layer is thin: it binds and validates input, delegates to the
// service, and maps the error taxonomy onto status codes. Every
// response carries {status, data, message}; business-rule rejections
// surface their status string in message, infrastructure failures
// collapse to a generic message.
package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/evgrid/qr-charging/internal/apperr"
	"github.com/evgrid/qr-charging/internal/service"
)

// QRHandler wires the orchestration service to the guest endpoints.
type QRHandler struct {
	svc *service.QRService
}

// NewQRHandler constructs a QRHandler. The service must be non-nil.
func NewQRHandler(svc *service.QRService) *QRHandler {
	if svc == nil {
		panic("nil service passed to NewQRHandler")
	}
	return &QRHandler{svc: svc}
}

// respond writes the uniform success envelope.
func respond(c echo.Context, code int, data any) error {
	return c.JSON(code, echo.Map{"status": code, "data": data, "message": "Success"})
}

// respondError maps the error taxonomy to the response envelope.
// Business errors keep their machine-readable status string; upstream
// and storage failures are logged and collapsed.
func respondError(c echo.Context, err error) error {
	if e := apperr.As(err); e != nil {
		switch e.Kind {
		case apperr.KindUpstream, apperr.KindStorage:
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"status": http.StatusInternalServerError, "data": nil, "message": "Internal Server Error",
			})
		default:
			code := e.HTTPStatus()
			return c.JSON(code, echo.Map{"status": code, "data": nil, "message": e.Status})
		}
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"status": http.StatusInternalServerError, "data": nil, "message": "Internal Server Error",
	})
}

// Rates handles GET /qr/api/v1/rates/:evse_uid.
func (h *QRHandler) Rates(c echo.Context) error {
	rates, err := h.svc.QRRates(c.Request().Context(), c.Param("evse_uid"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, rates)
}

// CheckEVSE handles GET /qr/api/v1/evse/:qr_code/:evse_uid.
func (h *QRHandler) CheckEVSE(c echo.Context) error {
	details, err := h.svc.CheckEVSE(c.Request().Context(), c.Param("qr_code"), c.Param("evse_uid"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, details)
}

// Reserve handles POST /qr/api/v1/reserve (free path).
func (h *QRHandler) Reserve(c echo.Context) error {
	var in service.ReserveInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "INVALID_REQUEST_BODY",
		})
	}
	if in.MobileNumber == "" || in.EVSEUID == "" || in.ConnectorID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "MISSING_REQUIRED_FIELDS",
		})
	}
	out, err := h.svc.Reserve(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, out)
}

// ReserveWithPayment handles POST /qr/api/v1/reserve/pay (paid path).
func (h *QRHandler) ReserveWithPayment(c echo.Context) error {
	var in service.PaidReserveInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "INVALID_REQUEST_BODY",
		})
	}
	if in.MobileNumber == "" || in.EVSEUID == "" || in.ConnectorID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "MISSING_REQUIRED_FIELDS",
		})
	}
	out, err := h.svc.ReserveWithPayment(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, out)
}

// GCashPayment handles GET /qr/api/v1/payments/gcash/:token/:payment_id.
// The EVSE and connector to reconcile ride along as query parameters
// set when the checkout source was created.
func (h *QRHandler) GCashPayment(c echo.Context) error {
	paymentID, err := strconv.ParseUint(c.Param("payment_id"), 10, 64)
	if err != nil || paymentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "INVALID_PAYMENT_ID",
		})
	}
	out, err := h.svc.GCashPayment(c.Request().Context(), service.GCashCallback{
		Token:       c.Param("token"),
		PaymentID:   paymentID,
		EVSEUID:     c.QueryParam("evse_uid"),
		ConnectorID: c.QueryParam("connector_id"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, out)
}

// MayaPayment handles GET /qr/api/v1/payments/maya/:token/:transaction_id.
func (h *QRHandler) MayaPayment(c echo.Context) error {
	out, err := h.svc.MayaPayment(c.Request().Context(), service.MayaCallback{
		TransactionID: c.Param("transaction_id"),
		EVSEUID:       c.QueryParam("evse_uid"),
		ConnectorID:   c.QueryParam("connector_id"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, out)
}

// VerifyOTP handles POST /qr/api/v1/otp/verify.
func (h *QRHandler) VerifyOTP(c echo.Context) error {
	var in service.OTPInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "INVALID_REQUEST_BODY",
		})
	}
	status, err := h.svc.VerifyOTP(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, echo.Map{"status": status})
}

// ResendOTP handles POST /qr/api/v1/otp/resend.
func (h *QRHandler) ResendOTP(c echo.Context) error {
	var in service.OTPInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"status": http.StatusBadRequest, "data": nil, "message": "INVALID_REQUEST_BODY",
		})
	}
	status, err := h.svc.ResendOTP(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, echo.Map{"status": status})
}

// VerifyPayment handles GET /qr/api/v1/payments/verify/:transaction_id.
func (h *QRHandler) VerifyPayment(c echo.Context) error {
	v, err := h.svc.VerifyPayment(c.Request().Context(), c.Param("transaction_id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, v)
}

// MobileNumberStatus handles GET /qr/api/v1/mobile/:mobile_number/status.
func (h *QRHandler) MobileNumberStatus(c echo.Context) error {
	status, err := h.svc.CheckMobileNumberStatus(c.Request().Context(), c.Param("mobile_number"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, echo.Map{"charging_status": status})
}
