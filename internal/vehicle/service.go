package vehicle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/clock"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
)

// Service 封装车辆登记 + 生命周期 + 保养健康的核心用例（不依赖传输层）。
type Service struct {
	repo *Repo
	clk  clock.Clock
	log  logger.Logger
}

func NewService(repo *Repo, clk clock.Clock, log logger.Logger) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{repo: repo, clk: clk, log: log}
}

// RegisterVehicleInput 登记/更新车辆的入参。
type RegisterVehicleInput struct {
	ID          string
	PlateNumber string
	DisplayID   string
	ModelID     string
	HubLocation string
	MileageKm   int64
}

func (s *Service) RegisterVehicle(ctx context.Context, in RegisterVehicleInput) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	plate := strings.TrimSpace(in.PlateNumber)
	if plate == "" {
		return nil, fmt.Errorf("%w: plate_number required", ErrInvalidArgument)
	}
	hub := strings.TrimSpace(in.HubLocation)
	if hub == "" {
		return nil, fmt.Errorf("%w: hub_location required", ErrInvalidArgument)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	v := &Vehicle{
		ID:               id,
		PlateNumber:      plate,
		DisplayID:        strings.TrimSpace(in.DisplayID),
		ModelID:          strings.TrimSpace(in.ModelID),
		HubLocation:      hub,
		State:            StateAvailable, // 新车进场即可出租
		CurrentMileageKm: in.MileageKm,
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// RegisterModelInput 车型登记入参。
type RegisterModelInput struct {
	ID             string
	Make           string
	Name           string
	Year           int
	Seats          int
	DailyRateCents int64
}

func (s *Service) RegisterModel(ctx context.Context, in RegisterModelInput) (*VehicleModel, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	make_ := strings.TrimSpace(in.Make)
	name := strings.TrimSpace(in.Name)
	if make_ == "" || name == "" {
		return nil, fmt.Errorf("%w: make and name required", ErrInvalidArgument)
	}
	if in.DailyRateCents <= 0 {
		return nil, fmt.Errorf("%w: daily_rate_cents must be > 0", ErrInvalidArgument)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	m := &VehicleModel{
		ID:             id,
		Make:           make_,
		Name:           name,
		Year:           in.Year,
		Seats:          in.Seats,
		DailyRateCents: in.DailyRateCents,
	}
	if err := s.repo.UpsertModel(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidArgument)
	}
	return s.repo.FindByID(ctx, id)
}

// ListVehiclesFilter 查询条件。
type ListVehiclesFilter struct {
	Hub    string
	State  State
	Offset int
	Limit  int
}

func (s *Service) ListVehicles(ctx context.Context, f ListVehiclesFilter) ([]Vehicle, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	return s.repo.List(ctx, strings.TrimSpace(f.Hub), f.State, f.Offset, f.Limit)
}

// RecordLifecycleEvent 对车辆应用生命周期事件（行级锁内串行化）。
// 错误状态下的事件返回 ErrInvalidTransition。
func (s *Service) RecordLifecycleEvent(ctx context.Context, vehicleID string, ev Event) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle_id required", ErrInvalidArgument)
	}

	now := s.clk.Now()
	v, err := s.repo.UpdateLocked(ctx, vehicleID, func(v *Vehicle) error {
		return ApplyEvent(v, ev, now)
	})
	if err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"vehicle_id": v.ID,
			"event":      string(ev.Kind),
			"state":      string(v.State),
		}).Info("lifecycle event applied")
	}
	return v, nil
}

// RecordServiceInput 保养记录入参（外部保养登记动作）。
type RecordServiceInput struct {
	ServiceDate      time.Time
	MileageAtService int64
	NextIntervalKm   int64
	NextServiceDate  time.Time
}

// RecordService 重置保养标记。只改标记，不碰生命周期状态：
// 维修完成回到 available 走 RecordLifecycleEvent(EventCompleteMaintenance)。
func (s *Service) RecordService(ctx context.Context, vehicleID string, in RecordServiceInput) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle_id required", ErrInvalidArgument)
	}
	if in.MileageAtService < 0 {
		return nil, fmt.Errorf("%w: mileage_at_service must be >= 0", ErrInvalidArgument)
	}
	if in.NextIntervalKm <= 0 {
		return nil, fmt.Errorf("%w: next_interval_km must be > 0", ErrInvalidArgument)
	}

	return s.repo.UpdateLocked(ctx, vehicleID, func(v *Vehicle) error {
		if in.MileageAtService > v.CurrentMileageKm {
			// 保养时读到的表显里程更新车辆当前里程
			v.CurrentMileageKm = in.MileageAtService
		}
		v.LastServiceMileageKm = in.MileageAtService
		v.LastServiceDate = in.ServiceDate
		v.ServiceIntervalKm = in.NextIntervalKm
		v.NextServiceDate = in.NextServiceDate
		return nil
	})
}

// RecordMileage 行驶里程更新（还车或车机上报）。里程只增不减。
func (s *Service) RecordMileage(ctx context.Context, vehicleID string, mileageKm int64) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.UpdateLocked(ctx, strings.TrimSpace(vehicleID), func(v *Vehicle) error {
		if mileageKm < v.CurrentMileageKm {
			return fmt.Errorf("%w: mileage must not decrease: current=%d got=%d", ErrInvalidArgument, v.CurrentMileageKm, mileageKm)
		}
		v.CurrentMileageKm = mileageKm
		return nil
	})
}

// FleetHealth 整个车队的健康报告（运维看板用）。
type FleetHealthEntry struct {
	VehicleID   string       `json:"vehicle_id"`
	DisplayID   string       `json:"display_id"`
	PlateNumber string       `json:"plate_number"`
	State       State        `json:"state"`
	Health      HealthReport `json:"health"`
}

func (s *Service) FleetHealth(ctx context.Context) ([]FleetHealthEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	fleet, err := s.repo.ListFleet(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	out := make([]FleetHealthEntry, 0, len(fleet))
	for i := range fleet {
		v := &fleet[i]
		out = append(out, FleetHealthEntry{
			VehicleID:   v.ID,
			DisplayID:   v.DisplayID,
			PlateNumber: v.PlateNumber,
			State:       v.State,
			Health:      ComputeHealth(v, now),
		})
	}
	return out, nil
}

// Health 读取车辆并计算保养健康报告（只读，不落库）。
func (s *Service) Health(ctx context.Context, vehicleID string) (*Vehicle, HealthReport, error) {
	v, err := s.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, HealthReport{}, err
	}
	return v, ComputeHealth(v, s.clk.Now()), nil
}
