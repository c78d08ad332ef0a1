package vehicle

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/metrics"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/server"
)

// ReturnHook 还车回到业务侧的回调（预约完结等）。失败只记日志，不阻塞还车。
type ReturnHook func(ctx context.Context, vehicleID string) error

// HTTPServer 车辆服务的 HTTP 接入层，只做参数解析和错误映射。
type HTTPServer struct {
	svc      *Service
	log      logger.Logger
	mtr      *metrics.Metrics
	onReturn ReturnHook
}

type HTTPOption func(*HTTPServer)

// WithReturnHook 注册还车回调。
func WithReturnHook(hook ReturnHook) HTTPOption {
	return func(h *HTTPServer) { h.onReturn = hook }
}

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
	mux.HandleFunc("POST /v1/models", h.handleRegisterModel)
	mux.HandleFunc("POST /v1/vehicles", h.handleRegisterVehicle)
	mux.HandleFunc("GET /v1/vehicles", h.handleListVehicles)
	mux.HandleFunc("GET /v1/vehicles/{id}", h.handleGetVehicle)
	mux.HandleFunc("POST /v1/vehicles/{id}/lifecycle", h.handleLifecycleEvent)
	mux.HandleFunc("POST /v1/vehicles/{id}/service", h.handleRecordService)
	mux.HandleFunc("POST /v1/vehicles/{id}/mileage", h.handleRecordMileage)
	mux.HandleFunc("GET /v1/vehicles/{id}/health", h.handleHealth)
	mux.HandleFunc("GET /v1/fleet/health", h.handleFleetHealth)
}

type registerModelRequest struct {
	ID             string `json:"id"`
	Make           string `json:"make"`
	Name           string `json:"name"`
	Year           int    `json:"year"`
	Seats          int    `json:"seats"`
	DailyRateCents int64  `json:"daily_rate_cents"`
}

func (h *HTTPServer) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	var req registerModelRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	m, err := h.svc.RegisterModel(r.Context(), RegisterModelInput{
		ID:             req.ID,
		Make:           req.Make,
		Name:           req.Name,
		Year:           req.Year,
		Seats:          req.Seats,
		DailyRateCents: req.DailyRateCents,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusCreated, m)
}

type registerVehicleRequest struct {
	ID          string `json:"id"`
	PlateNumber string `json:"plate_number"`
	DisplayID   string `json:"display_id"`
	ModelID     string `json:"model_id"`
	HubLocation string `json:"hub_location"`
	MileageKm   int64  `json:"mileage_km"`
}

func (h *HTTPServer) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var req registerVehicleRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	v, err := h.svc.RegisterVehicle(r.Context(), RegisterVehicleInput{
		ID:          req.ID,
		PlateNumber: req.PlateNumber,
		DisplayID:   req.DisplayID,
		ModelID:     req.ModelID,
		HubLocation: req.HubLocation,
		MileageKm:   req.MileageKm,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusCreated, v)
}

func (h *HTTPServer) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	vs, total, err := h.svc.ListVehicles(r.Context(), ListVehiclesFilter{
		Hub:    r.URL.Query().Get("hub"),
		State:  State(r.URL.Query().Get("state")),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"vehicles": vs,
	})
}

func (h *HTTPServer) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVehicle(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, v)
}

type lifecycleRequest struct {
	Event        string `json:"event"`
	FuelPercent  int    `json:"fuel_percent"`
	Notes        string `json:"notes"`
	IsClean      bool   `json:"is_clean"`
	HasNewDamage bool   `json:"has_new_damage"`
}

func (h *HTTPServer) handleLifecycleEvent(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	vehicleID := r.PathValue("id")
	ev := Event{
		Kind:         EventKind(req.Event),
		FuelPercent:  req.FuelPercent,
		Notes:        req.Notes,
		IsClean:      req.IsClean,
		HasNewDamage: req.HasNewDamage,
	}
	v, err := h.svc.RecordLifecycleEvent(r.Context(), vehicleID, ev)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	// 还车成功后完结已开始的预约
	if ev.Kind == EventReturn && h.onReturn != nil {
		if err := h.onReturn(r.Context(), vehicleID); err != nil && h.log != nil {
			h.log.Warnf("return hook failed vehicle=%s: %v", vehicleID, err)
		}
	}

	server.WriteJSON(w, http.StatusOK, v)
}

type recordServiceRequest struct {
	ServiceDate      string `json:"service_date"`
	MileageAtService int64  `json:"mileage_at_service"`
	NextIntervalKm   int64  `json:"next_interval_km"`
	NextServiceDate  string `json:"next_service_date"`
}

func (h *HTTPServer) handleRecordService(w http.ResponseWriter, r *http.Request) {
	var req recordServiceRequest
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	serviceDate, err := time.Parse(time.RFC3339, req.ServiceDate)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", "invalid service_date")
		return
	}
	nextDate, err := time.Parse(time.RFC3339, req.NextServiceDate)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", "invalid next_service_date")
		return
	}
	v, err := h.svc.RecordService(r.Context(), r.PathValue("id"), RecordServiceInput{
		ServiceDate:      serviceDate,
		MileageAtService: req.MileageAtService,
		NextIntervalKm:   req.NextIntervalKm,
		NextServiceDate:  nextDate,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, v)
}

func (h *HTTPServer) handleRecordMileage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MileageKm int64 `json:"mileage_km"`
	}
	if err := server.ReadJSON(r, &req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	v, err := h.svc.RecordMileage(r.Context(), r.PathValue("id"), req.MileageKm)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, v)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	v, report, err := h.svc.Health(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle_id": v.ID,
		"state":      v.State,
		"health":     report,
	})
}

func (h *HTTPServer) handleFleetHealth(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.FleetHealth(r.Context())
	if err != nil {
		h.writeErr(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vehicles": entries,
	})
}

func (h *HTTPServer) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		server.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrInvalidArgument):
		server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		server.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		if h.mtr != nil {
			h.mtr.ErrorsCount.WithLabelValues("vehicle").Inc()
		}
		if h.log != nil {
			h.log.Errorf("vehicle request failed: %v", err)
		}
		server.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
