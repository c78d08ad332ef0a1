package booking

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/metrics"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/server"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

// HTTPServer 预约服务的 HTTP 接入层，只做参数解析和错误映射。
type HTTPServer struct {
	svc *Service
	log logger.Logger
	mtr *metrics.Metrics
}

type HTTPOption func(*HTTPServer)

// WithHTTPMetrics 注入指标集合，内部错误计入 errors_total。
func WithHTTPMetrics(m *metrics.Metrics) HTTPOption {
	return func(h *HTTPServer) { h.mtr = m }
}

func NewHTTPServer(svc *Service, log logger.Logger, opts ...HTTPOption) *HTTPServer {
	h := &HTTPServer{svc: svc, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *HTTPServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/availability", h.handleAvailability)
	mux.HandleFunc("POST /v1/quotes", h.handleQuote)
	mux.HandleFunc("POST /v1/reservations", h.handleConfirm)
	mux.HandleFunc("POST /v1/holds", h.handleCreateHold)
	mux.HandleFunc("POST /v1/holds/{id}/confirm", h.handleConfirmHold)
	mux.HandleFunc("POST /v1/reservations/{id}/cancel", h.handleCancel)
	mux.HandleFunc("GET /v1/vehicles/{id}/reservations", h.handleListReservations)
}

func (h *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	iv, err := parseInterval(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid_interval", err.Error())
		return
	}
	vehicles, err := h.svc.QueryAvailability(r.Context(), iv)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"start":    iv.Start.Format(time.RFC3339),
		"end":      iv.End.Format(time.RFC3339),
		"vehicles": vehicles,
	})
}

type quoteRequest struct {
	VehicleID  string `json:"vehicle_id"`
	Start      string `json:"start"`
	End        string `json:"end"`
	DeliveryKm int64  `json:"delivery_km"`
}

func (h *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	iv, err := parseInterval(req.Start, req.End)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid_interval", err.Error())
		return
	}
	q, err := h.svc.QuoteFor(r.Context(), req.VehicleID, iv, req.DeliveryKm)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, q)
}

type confirmRequest struct {
	VehicleID   string `json:"vehicle_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
	CustomerRef string `json:"customer_ref"`
	PaymentRef  string `json:"payment_ref"`
	DeliveryKm  int64  `json:"delivery_km"`
}

func (h *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	start, end, err := parseTimes(req.Start, req.End)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid_interval", err.Error())
		return
	}
	res, err := h.svc.ConfirmReservation(r.Context(), ConfirmInput{
		VehicleID:   req.VehicleID,
		Start:       start,
		End:         end,
		CustomerRef: req.CustomerRef,
		PaymentRef:  req.PaymentRef,
		DeliveryKm:  req.DeliveryKm,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusCreated, res)
}

type holdRequest struct {
	VehicleID   string `json:"vehicle_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
	CustomerRef string `json:"customer_ref"`
	DeliveryKm  int64  `json:"delivery_km"`
}

func (h *HTTPServer) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	start, end, err := parseTimes(req.Start, req.End)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid_interval", err.Error())
		return
	}
	res, err := h.svc.CreateHold(r.Context(), HoldInput{
		VehicleID:   req.VehicleID,
		Start:       start,
		End:         end,
		CustomerRef: req.CustomerRef,
		DeliveryKm:  req.DeliveryKm,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusCreated, res)
}

func (h *HTTPServer) handleConfirmHold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	res, err := h.svc.ConfirmHold(r.Context(), r.PathValue("id"), req.PaymentRef)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

func (h *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CancelReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, res)
}

func (h *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rs, total, err := h.svc.ListReservations(r.Context(), r.PathValue("id"), offset, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":        total,
		"reservations": rs,
	})
}

// writeErr 域错误到 HTTP 状态码的统一映射。
func (h *HTTPServer) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interval.ErrInvalidInterval):
		server.WriteError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, ErrConflict):
		server.WriteError(w, http.StatusConflict, "conflict", "this vehicle was just booked, please choose another")
	case errors.Is(err, ErrExpiredHold):
		server.WriteError(w, http.StatusGone, "hold_expired", "hold expired before payment was confirmed")
	case errors.Is(err, ErrNotFound), errors.Is(err, vehicle.ErrNotFound):
		server.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrIdentityNotVerified):
		server.WriteError(w, http.StatusPreconditionFailed, "identity_not_verified", err.Error())
	case errors.Is(err, ErrPaymentNotConfirmed):
		server.WriteError(w, http.StatusPreconditionFailed, "payment_not_confirmed", err.Error())
	default:
		if h.mtr != nil {
			h.mtr.ErrorsCount.WithLabelValues("booking").Inc()
		}
		if h.log != nil {
			h.log.Errorf("booking request failed: %v", err)
		}
		server.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func parseTimes(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %v", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %v", err)
	}
	return s, e, nil
}

func parseInterval(start, end string) (interval.Interval, error) {
	s, e, err := parseTimes(start, end)
	if err != nil {
		return interval.Interval{}, err
	}
	return interval.New(s, e)
}
