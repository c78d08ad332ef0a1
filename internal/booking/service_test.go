package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/clock"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

// fakeLedger 内存账本。WithVehicleLock 用互斥锁模拟数据库行锁，
// 使锁内的检查插入和真实实现一样串行。
type fakeLedger struct {
	mu           sync.Mutex
	vehicles     map[string]*vehicle.Vehicle
	reservations map[string]*Reservation
}

func newFakeLedger(vehicles ...*vehicle.Vehicle) *fakeLedger {
	l := &fakeLedger{
		vehicles:     make(map[string]*vehicle.Vehicle),
		reservations: make(map[string]*Reservation),
	}
	for _, v := range vehicles {
		l.vehicles[v.ID] = v
	}
	return l
}

func (l *fakeLedger) WithVehicleLock(ctx context.Context, vehicleID string, fn func(ctx context.Context, v *vehicle.Vehicle) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vehicles[vehicleID]
	if !ok {
		return vehicle.ErrNotFound
	}
	return fn(ctx, v)
}

func (l *fakeLedger) ListBlocking(_ context.Context, vehicleID string, now time.Time) ([]Reservation, error) {
	var rs []Reservation
	for _, r := range l.reservations {
		if r.VehicleID == vehicleID && r.Blocks(now) {
			rs = append(rs, *r)
		}
	}
	return rs, nil
}

func (l *fakeLedger) ListBlockingInRange(_ context.Context, iv interval.Interval, now time.Time) ([]Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var rs []Reservation
	for _, r := range l.reservations {
		if r.Blocks(now) && interval.Overlaps(iv, r.Interval()) {
			rs = append(rs, *r)
		}
	}
	return rs, nil
}

func (l *fakeLedger) Create(_ context.Context, r *Reservation) error {
	cp := *r
	l.reservations[r.ID] = &cp
	return nil
}

func (l *fakeLedger) GetByID(_ context.Context, id string) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *fakeLedger) GetByIDForUpdate(_ context.Context, id string) (*Reservation, error) {
	r, ok := l.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *fakeLedger) UpdateStatus(_ context.Context, id string, status Status, paymentRef string) error {
	r, ok := l.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	if paymentRef != "" {
		r.PaymentRef = paymentRef
	}
	return nil
}

func (l *fakeLedger) ListByVehicle(_ context.Context, vehicleID string, _, _ int) ([]Reservation, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var rs []Reservation
	for _, r := range l.reservations {
		if r.VehicleID == vehicleID {
			rs = append(rs, *r)
		}
	}
	return rs, int64(len(rs)), nil
}

func (l *fakeLedger) CompleteActive(_ context.Context, vehicleID string, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, r := range l.reservations {
		if r.VehicleID == vehicleID && r.Status == StatusConfirmed && !r.StartsAt.After(now) {
			r.Status = StatusCompleted
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, r := range l.reservations {
		if r.Status == StatusPending && r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			r.Status = StatusCancelled
			n++
		}
	}
	return n, nil
}

type fakeVehicleSource struct {
	vehicles map[string]*vehicle.Vehicle
}

func (s *fakeVehicleSource) ListFleet(_ context.Context) ([]vehicle.Vehicle, error) {
	var out []vehicle.Vehicle
	for _, v := range s.vehicles {
		out = append(out, *v)
	}
	return out, nil
}

func (s *fakeVehicleSource) FindByID(_ context.Context, id string) (*vehicle.Vehicle, error) {
	v, ok := s.vehicles[id]
	if !ok {
		return nil, vehicle.ErrNotFound
	}
	return v, nil
}

func testVehicle(id string) *vehicle.Vehicle {
	return &vehicle.Vehicle{
		ID:          id,
		PlateNumber: "KDA 123" + id,
		State:       vehicle.StateAvailable,
		Spec:        &vehicle.VehicleModel{ID: "m-1", Make: "Toyota", Name: "Axio", Seats: 5, DailyRateCents: 500000},
	}
}

func newTestService(t *testing.T, now time.Time, vehicles ...*vehicle.Vehicle) (*Service, *fakeLedger) {
	t.Helper()
	ledger := newFakeLedger(vehicles...)
	src := &fakeVehicleSource{vehicles: make(map[string]*vehicle.Vehicle)}
	for _, v := range vehicles {
		src.vehicles[v.ID] = v
	}
	svc := NewService(ledger, src, WithClock(clock.NewFixed(now)))
	return svc, ledger
}

func TestConfirmReservationConcurrentOneWins(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now, testVehicle("v-1"))

	in := ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(72 * time.Hour),
		CustomerRef: "cust-1",
		PaymentRef:  "mpesa-1",
	}

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ConfirmReservation(context.Background(), in)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != attempts-1 {
		t.Fatalf("got %d successes and %d conflicts, want exactly 1 success", ok, conflicts)
	}
}

func TestConfirmReservationRejectsOverlap(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now, testVehicle("v-1"))

	first := ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(72 * time.Hour),
		CustomerRef: "cust-1",
	}
	if _, err := svc.ConfirmReservation(context.Background(), first); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	overlapping := first
	overlapping.Start = now.Add(48 * time.Hour)
	overlapping.End = now.Add(96 * time.Hour)
	overlapping.CustomerRef = "cust-2"
	if _, err := svc.ConfirmReservation(context.Background(), overlapping); !errors.Is(err, ErrConflict) {
		t.Fatalf("overlapping confirm: got %v, want ErrConflict", err)
	}

	// 紧邻区间不冲突（半开区间）
	adjacent := first
	adjacent.Start = now.Add(72 * time.Hour)
	adjacent.End = now.Add(96 * time.Hour)
	adjacent.CustomerRef = "cust-3"
	if _, err := svc.ConfirmReservation(context.Background(), adjacent); err != nil {
		t.Fatalf("adjacent confirm should succeed: %v", err)
	}
}

func TestConfirmReservationRejectsNonOfferableVehicle(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	v := testVehicle("v-1")
	v.State = vehicle.StateMaintenance
	svc, _ := newTestService(t, now, v)

	_, err := svc.ConfirmReservation(context.Background(), ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict for vehicle in maintenance", err)
	}
}

func TestHoldLifecycle(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now, testVehicle("v-1"))

	hold, err := svc.CreateHold(context.Background(), HoldInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-1",
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if hold.Status != StatusPending {
		t.Fatalf("hold status: got %s, want pending", hold.Status)
	}
	if hold.ExpiresAt == nil || !hold.ExpiresAt.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("hold expiry: got %v, want now+15m", hold.ExpiresAt)
	}

	// hold 存在期间同区间不可再订
	_, err = svc.ConfirmReservation(context.Background(), ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(30 * time.Hour),
		End:         now.Add(40 * time.Hour),
		CustomerRef: "cust-2",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("confirm during live hold: got %v, want ErrConflict", err)
	}

	confirmed, err := svc.ConfirmHold(context.Background(), hold.ID, "mpesa-9")
	if err != nil {
		t.Fatalf("confirm hold: %v", err)
	}
	if confirmed.Status != StatusConfirmed || confirmed.PaymentRef != "mpesa-9" {
		t.Fatalf("confirmed hold: got status=%s ref=%s", confirmed.Status, confirmed.PaymentRef)
	}

	// 同一支付引用重复确认幂等
	again, err := svc.ConfirmHold(context.Background(), hold.ID, "mpesa-9")
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if again.ID != confirmed.ID || again.Status != StatusConfirmed {
		t.Fatalf("repeat confirm should be idempotent, got %+v", again)
	}
}

func TestConfirmHoldExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	fixed := clock.NewFixed(now)
	ledger := newFakeLedger(testVehicle("v-1"))
	src := &fakeVehicleSource{vehicles: map[string]*vehicle.Vehicle{"v-1": testVehicle("v-1")}}
	svc := NewService(ledger, src, WithClock(fixed), WithHoldTTL(10*time.Minute))

	hold, err := svc.CreateHold(context.Background(), HoldInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-1",
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}

	fixed.Advance(11 * time.Minute)

	if _, err := svc.ConfirmHold(context.Background(), hold.ID, "mpesa-1"); !errors.Is(err, ErrExpiredHold) {
		t.Fatalf("confirm after expiry: got %v, want ErrExpiredHold", err)
	}

	// 被清扫置为 cancelled 之后重试仍然报过期
	if _, err := svc.ConfirmHold(context.Background(), hold.ID, "mpesa-1"); !errors.Is(err, ErrExpiredHold) {
		t.Fatalf("retry after expiry: got %v, want ErrExpiredHold", err)
	}

	// 过期 hold 释放区间，其他客户可直接确认
	if _, err := svc.ConfirmReservation(context.Background(), ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-2",
	}); err != nil {
		t.Fatalf("confirm after hold expired: %v", err)
	}
}

func TestConfirmHoldAfterCustomerCancelConflicts(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now, testVehicle("v-1"))

	hold, err := svc.CreateHold(context.Background(), HoldInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-1",
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if _, err := svc.CancelReservation(context.Background(), hold.ID); err != nil {
		t.Fatalf("cancel hold: %v", err)
	}

	// 窗口没到期就取消的 hold，确认时报冲突而不是过期
	_, err = svc.ConfirmHold(context.Background(), hold.ID, "mpesa-1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("confirm cancelled hold: got %v, want ErrConflict", err)
	}
}

func TestCancelReservationFreesInterval(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now, testVehicle("v-1"))

	in := ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-1",
	}
	r, err := svc.ConfirmReservation(context.Background(), in)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	cancelled, err := svc.CancelReservation(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("cancel status: got %s", cancelled.Status)
	}

	// 取消后再取消报冲突
	if _, err := svc.CancelReservation(context.Background(), r.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("double cancel: got %v, want ErrConflict", err)
	}

	in.CustomerRef = "cust-2"
	if _, err := svc.ConfirmReservation(context.Background(), in); err != nil {
		t.Fatalf("confirm after cancel: %v", err)
	}
}

func TestCompleteForVehicle(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, ledger := newTestService(t, now, testVehicle("v-1"))

	// 已开始的预约
	started := &Reservation{
		ID:        "r-started",
		VehicleID: "v-1",
		StartsAt:  now.Add(-24 * time.Hour),
		EndsAt:    now.Add(24 * time.Hour),
		Status:    StatusConfirmed,
	}
	// 未来的预约不受还车影响
	future := &Reservation{
		ID:        "r-future",
		VehicleID: "v-1",
		StartsAt:  now.Add(72 * time.Hour),
		EndsAt:    now.Add(96 * time.Hour),
		Status:    StatusConfirmed,
	}
	ledger.reservations[started.ID] = started
	ledger.reservations[future.ID] = future

	if err := svc.CompleteForVehicle(context.Background(), "v-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if started.Status != StatusCompleted {
		t.Fatalf("started reservation: got %s, want completed", started.Status)
	}
	if future.Status != StatusConfirmed {
		t.Fatalf("future reservation should stay confirmed, got %s", future.Status)
	}
}

type stubVerifier struct{ ok bool }

func (s stubVerifier) Verified(context.Context, string) (bool, error) { return s.ok, nil }

type stubPayments struct{ ok bool }

func (s stubPayments) Confirmed(context.Context, string) (bool, error) { return s.ok, nil }

func TestConfirmReservationPreconditions(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ledger := newFakeLedger(testVehicle("v-1"))
	src := &fakeVehicleSource{vehicles: map[string]*vehicle.Vehicle{"v-1": testVehicle("v-1")}}

	in := ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(48 * time.Hour),
		CustomerRef: "cust-1",
		PaymentRef:  "mpesa-1",
	}

	t.Run("identity rejected", func(t *testing.T) {
		svc := NewService(ledger, src, WithClock(clock.NewFixed(now)),
			WithIdentityVerifier(stubVerifier{ok: false}), WithPaymentProvider(stubPayments{ok: true}))
		if _, err := svc.ConfirmReservation(context.Background(), in); !errors.Is(err, ErrIdentityNotVerified) {
			t.Fatalf("got %v, want ErrIdentityNotVerified", err)
		}
	})

	t.Run("payment rejected", func(t *testing.T) {
		svc := NewService(ledger, src, WithClock(clock.NewFixed(now)),
			WithIdentityVerifier(stubVerifier{ok: true}), WithPaymentProvider(stubPayments{ok: false}))
		if _, err := svc.ConfirmReservation(context.Background(), in); !errors.Is(err, ErrPaymentNotConfirmed) {
			t.Fatalf("got %v, want ErrPaymentNotConfirmed", err)
		}
	})
}

func TestQueryAvailabilityExcludesBookedVehicle(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now, testVehicle("v-1"), testVehicle("v-2"))

	if _, err := svc.ConfirmReservation(context.Background(), ConfirmInput{
		VehicleID:   "v-1",
		Start:       now.Add(24 * time.Hour),
		End:         now.Add(72 * time.Hour),
		CustomerRef: "cust-1",
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	iv, err := interval.New(now.Add(30*time.Hour), now.Add(40*time.Hour))
	if err != nil {
		t.Fatalf("build interval: %v", err)
	}
	out, err := svc.QueryAvailability(context.Background(), iv)
	if err != nil {
		t.Fatalf("query availability: %v", err)
	}
	if len(out) != 1 || out[0].VehicleID != "v-2" {
		t.Fatalf("got %+v, want only v-2", out)
	}
	if out[0].DailyRateCents != 500000 {
		t.Fatalf("daily rate: got %d, want 500000", out[0].DailyRateCents)
	}
}

func TestSweeperExpiresDueHolds(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ledger := newFakeLedger(testVehicle("v-1"))
	expired := now.Add(-time.Minute)
	ledger.reservations["h-1"] = &Reservation{
		ID: "h-1", VehicleID: "v-1", Status: StatusPending,
		StartsAt: now.Add(24 * time.Hour), EndsAt: now.Add(48 * time.Hour),
		ExpiresAt: &expired,
	}

	sw := NewSweeper(ledger, clock.NewFixed(now), time.Second, nil, nil)
	sw.sweep(context.Background())

	if got := ledger.reservations["h-1"].Status; got != StatusCancelled {
		t.Fatalf("expired hold status: got %s, want cancelled", got)
	}
}
