package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/clock"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/metrics"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

const defaultHoldTTL = 15 * time.Minute

// VehicleSource 可用性计算需要的车辆只读视图（由车辆仓储实现）。
// 账本从不写车辆字段，生命周期状态归 vehicle 包的状态机管。
type VehicleSource interface {
	ListFleet(ctx context.Context) ([]vehicle.Vehicle, error)
	FindByID(ctx context.Context, id string) (*vehicle.Vehicle, error)
}

// Service 封装可用性查询、报价、hold/确认/取消等预约用例。
type Service struct {
	ledger   LedgerRepository
	vehicles VehicleSource
	verifier IdentityVerifier
	payments PaymentProvider
	clk      clock.Clock
	log      logger.Logger
	mtr      *metrics.Metrics
	holdTTL  time.Duration
}

type Option func(*Service)

func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithHoldTTL 覆盖 pending hold 的默认锁定窗口。
func WithHoldTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.mtr = m }
}

func WithIdentityVerifier(v IdentityVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

func WithPaymentProvider(p PaymentProvider) Option {
	return func(s *Service) { s.payments = p }
}

func NewService(ledger LedgerRepository, vehicles VehicleSource, opts ...Option) *Service {
	s := &Service{
		ledger:   ledger,
		vehicles: vehicles,
		clk:      clock.NewSystem(),
		holdTTL:  defaultHoldTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// VehicleSummary 可用性查询返回的车辆摘要，健康报告只作参考信息。
type VehicleSummary struct {
	VehicleID      string               `json:"vehicle_id"`
	DisplayID      string               `json:"display_id"`
	PlateNumber    string               `json:"plate_number"`
	HubLocation    string               `json:"hub_location"`
	Make           string               `json:"make"`
	Model          string               `json:"model"`
	Seats          int                  `json:"seats"`
	DailyRateCents int64                `json:"daily_rate_cents"`
	Health         vehicle.HealthReport `json:"health"`
}

// QueryAvailability 查询请求区间内的空闲车辆。
// 账本快照读，不加锁；和并发确认之间的竞态由 ConfirmReservation 的原子提交兜底。
func (s *Service) QueryAvailability(ctx context.Context, iv interval.Interval) ([]VehicleSummary, error) {
	if s == nil || s.ledger == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if s.mtr != nil {
		defer func(start time.Time) {
			s.mtr.AvailabilityLatency.Observe(time.Since(start).Seconds())
		}(time.Now())
	}

	fleet, err := s.vehicles.ListFleet(ctx)
	if err != nil {
		return nil, err
	}
	blocking, err := s.ledger.ListBlockingInRange(ctx, iv, now)
	if err != nil {
		return nil, err
	}

	free, err := FindAvailable(fleet, iv, blocking, now)
	if err != nil {
		return nil, err
	}
	freeSet := make(map[string]struct{}, len(free))
	for _, id := range free {
		freeSet[id] = struct{}{}
	}

	out := make([]VehicleSummary, 0, len(free))
	for i := range fleet {
		v := &fleet[i]
		if _, ok := freeSet[v.ID]; !ok {
			continue
		}
		sum := VehicleSummary{
			VehicleID:      v.ID,
			DisplayID:      v.DisplayID,
			PlateNumber:    v.PlateNumber,
			HubLocation:    v.HubLocation,
			DailyRateCents: v.DailyRateCents(),
			Health:         vehicle.ComputeHealth(v, now),
		}
		if v.Spec != nil {
			sum.Make = v.Spec.Make
			sum.Model = v.Spec.Name
			sum.Seats = v.Spec.Seats
		}
		out = append(out, sum)
	}
	return out, nil
}

// QuoteFor 对指定车辆 + 区间出报价（纯计算，读车型日租价）。
func (s *Service) QuoteFor(ctx context.Context, vehicleID string, iv interval.Interval, deliveryKm int64) (Quote, error) {
	if s == nil || s.vehicles == nil {
		return Quote{}, fmt.Errorf("service not initialized")
	}
	v, err := s.vehicles.FindByID(ctx, strings.TrimSpace(vehicleID))
	if err != nil {
		return Quote{}, err
	}
	return Price(iv, v.DailyRateCents(), deliveryKm)
}

// ConfirmInput 确认预约入参。
type ConfirmInput struct {
	VehicleID   string
	Start       time.Time
	End         time.Time
	CustomerRef string
	PaymentRef  string
	DeliveryKm  int64
}

// ConfirmReservation 原子确认：车辆行锁内重查重叠再插入，
// 同车重叠区间的并发确认恰好一个成功，其余拿到 ErrConflict 后重查可用性。
// 实名 / 支付确认是前置条件，外部服务只回布尔，核心不解析。
func (s *Service) ConfirmReservation(ctx context.Context, in ConfirmInput) (*Reservation, error) {
	if s == nil || s.ledger == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	iv, err := interval.New(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	customerRef := strings.TrimSpace(in.CustomerRef)
	if customerRef == "" {
		return nil, fmt.Errorf("%w: customer_ref required", ErrInvalidArgument)
	}

	if err := s.checkIdentity(ctx, customerRef); err != nil {
		return nil, err
	}
	if err := s.checkPayment(ctx, strings.TrimSpace(in.PaymentRef)); err != nil {
		return nil, err
	}

	q, err := s.QuoteFor(ctx, in.VehicleID, iv, in.DeliveryKm)
	if err != nil {
		return nil, err
	}

	r, err := s.commit(ctx, in.VehicleID, iv, func(now time.Time) *Reservation {
		return &Reservation{
			ID:          uuid.NewString(),
			VehicleID:   strings.TrimSpace(in.VehicleID),
			StartsAt:    iv.Start,
			EndsAt:      iv.End,
			Status:      StatusConfirmed,
			CustomerRef: customerRef,
			PaymentRef:  strings.TrimSpace(in.PaymentRef),
			PriceCents:  q.TotalCents,
			Currency:    q.Currency,
		}
	})
	if err != nil {
		return nil, err
	}
	if s.mtr != nil {
		s.mtr.ReservationsConfirmed.Inc()
	}
	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"reservation_id": r.ID,
			"vehicle_id":     r.VehicleID,
			"total_cents":    r.PriceCents,
		}).Info("reservation confirmed")
	}
	return r, nil
}

// HoldInput 创建 pending hold 的入参（客户去支付前先锁区间）。
type HoldInput struct {
	VehicleID   string
	Start       time.Time
	End         time.Time
	CustomerRef string
	DeliveryKm  int64
}

// CreateHold 乐观锁定区间：插入带到期时间的 pending 预约。
// 支付在窗口内未确认则由清扫器置为 cancelled，区间自动释放。
func (s *Service) CreateHold(ctx context.Context, in HoldInput) (*Reservation, error) {
	if s == nil || s.ledger == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	iv, err := interval.New(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	customerRef := strings.TrimSpace(in.CustomerRef)
	if customerRef == "" {
		return nil, fmt.Errorf("%w: customer_ref required", ErrInvalidArgument)
	}
	if err := s.checkIdentity(ctx, customerRef); err != nil {
		return nil, err
	}

	q, err := s.QuoteFor(ctx, in.VehicleID, iv, in.DeliveryKm)
	if err != nil {
		return nil, err
	}

	r, err := s.commit(ctx, in.VehicleID, iv, func(now time.Time) *Reservation {
		expires := now.Add(s.holdTTL)
		return &Reservation{
			ID:          uuid.NewString(),
			VehicleID:   strings.TrimSpace(in.VehicleID),
			StartsAt:    iv.Start,
			EndsAt:      iv.End,
			Status:      StatusPending,
			CustomerRef: customerRef,
			PriceCents:  q.TotalCents,
			Currency:    q.Currency,
			ExpiresAt:   &expires,
		}
	})
	if err != nil {
		return nil, err
	}
	if s.mtr != nil {
		s.mtr.HoldsCreated.Inc()
	}
	return r, nil
}

// commit 行锁事务内的检查插入，可串行化确认的唯一入口。
func (s *Service) commit(ctx context.Context, vehicleID string, iv interval.Interval, build func(now time.Time) *Reservation) (*Reservation, error) {
	now := s.clk.Now()
	var out *Reservation
	err := s.ledger.WithVehicleLock(ctx, strings.TrimSpace(vehicleID), func(txCtx context.Context, v *vehicle.Vehicle) error {
		// maintenance / cleaning 不接任何新单，和可用性策略保持一致
		if !v.Offerable() {
			return ErrConflict
		}
		blocking, err := s.ledger.ListBlocking(txCtx, v.ID, now)
		if err != nil {
			return err
		}
		for _, r := range blocking {
			if interval.Overlaps(iv, r.Interval()) {
				return ErrConflict
			}
		}
		r := build(now)
		if err := s.ledger.Create(txCtx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) && s.mtr != nil {
			s.mtr.BookingConflicts.Inc()
		}
		return nil, err
	}
	return out, nil
}

// ConfirmHold 支付确认后把 pending hold 提为 confirmed。
// 过期的 hold 返回 ErrExpiredHold 并立即置为 cancelled，
// 客户已主动取消的 hold 返回 ErrConflict；
// 同一支付引用的重复确认幂等返回已确认的预约。
func (s *Service) ConfirmHold(ctx context.Context, holdID, paymentRef string) (*Reservation, error) {
	if s == nil || s.ledger == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	holdID = strings.TrimSpace(holdID)
	if holdID == "" {
		return nil, fmt.Errorf("%w: hold_id required", ErrInvalidArgument)
	}
	paymentRef = strings.TrimSpace(paymentRef)

	// 外部调用放在事务外，避免网络等待拖长行锁
	if err := s.checkPayment(ctx, paymentRef); err != nil {
		return nil, err
	}

	r, err := s.ledger.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	var out *Reservation
	err = s.ledger.WithVehicleLock(ctx, r.VehicleID, func(txCtx context.Context, _ *vehicle.Vehicle) error {
		cur, err := s.ledger.GetByIDForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case StatusConfirmed:
			if cur.PaymentRef == paymentRef {
				out = cur // 重复确认幂等
				return nil
			}
			return ErrConflict
		case StatusCancelled:
			// 到期被清扫的 hold 报过期，客户主动取消的报冲突
			if cur.ExpiresAt != nil && !cur.ExpiresAt.After(now) {
				return ErrExpiredHold
			}
			return ErrConflict
		case StatusCompleted:
			return ErrConflict
		}
		if cur.ExpiresAt != nil && !cur.ExpiresAt.After(now) {
			_ = s.ledger.UpdateStatus(txCtx, cur.ID, StatusCancelled, "")
			return ErrExpiredHold
		}
		if err := s.ledger.UpdateStatus(txCtx, cur.ID, StatusConfirmed, paymentRef); err != nil {
			return err
		}
		cur.Status = StatusConfirmed
		cur.PaymentRef = paymentRef
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.mtr != nil {
		s.mtr.ReservationsConfirmed.Inc()
	}
	return out, nil
}

// CancelReservation 显式取消 pending / confirmed 预约，释放区间。
func (s *Service) CancelReservation(ctx context.Context, id string) (*Reservation, error) {
	if s == nil || s.ledger == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	r, err := s.ledger.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	var out *Reservation
	err = s.ledger.WithVehicleLock(ctx, r.VehicleID, func(txCtx context.Context, _ *vehicle.Vehicle) error {
		cur, err := s.ledger.GetByIDForUpdate(txCtx, r.ID)
		if err != nil {
			return err
		}
		if cur.Status != StatusPending && cur.Status != StatusConfirmed {
			return ErrConflict
		}
		if err := s.ledger.UpdateStatus(txCtx, cur.ID, StatusCancelled, ""); err != nil {
			return err
		}
		cur.Status = StatusCancelled
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteForVehicle 还车时把该车已开始的 confirmed 预约完结。
func (s *Service) CompleteForVehicle(ctx context.Context, vehicleID string) error {
	if s == nil || s.ledger == nil {
		return fmt.Errorf("service not initialized")
	}
	n, err := s.ledger.CompleteActive(ctx, strings.TrimSpace(vehicleID), s.clk.Now())
	if err != nil {
		return err
	}
	if n > 0 && s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"vehicle_id": vehicleID,
			"completed":  n,
		}).Info("reservations completed on return")
	}
	return nil
}

// ListReservations 车辆维度的预约历史（审计读）。
func (s *Service) ListReservations(ctx context.Context, vehicleID string, offset, limit int) ([]Reservation, int64, error) {
	if s == nil || s.ledger == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	return s.ledger.ListByVehicle(ctx, strings.TrimSpace(vehicleID), offset, limit)
}

func (s *Service) checkIdentity(ctx context.Context, customerRef string) error {
	if s.verifier == nil {
		return nil
	}
	ok, err := s.verifier.Verified(ctx, customerRef)
	if err != nil {
		return fmt.Errorf("verify identity: %w", err)
	}
	if !ok {
		return ErrIdentityNotVerified
	}
	return nil
}

func (s *Service) checkPayment(ctx context.Context, paymentRef string) error {
	if s.payments == nil {
		return nil
	}
	if paymentRef == "" {
		return ErrPaymentNotConfirmed
	}
	ok, err := s.payments.Confirmed(ctx, paymentRef)
	if err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	if !ok {
		return ErrPaymentNotConfirmed
	}
	return nil
}
