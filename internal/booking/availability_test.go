package booking

import (
	"testing"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

func testFleet() []vehicle.Vehicle {
	return []vehicle.Vehicle{
		{ID: "v-1", State: vehicle.StateAvailable},
		{ID: "v-2", State: vehicle.StateRented},
		{ID: "v-3", State: vehicle.StateMaintenance},
		{ID: "v-4", State: vehicle.StateCleaning},
	}
}

func confirmedReservation(vehicleID string, start time.Time, d time.Duration) Reservation {
	return Reservation{
		ID:        "r-" + vehicleID,
		VehicleID: vehicleID,
		StartsAt:  start,
		EndsAt:    start.Add(d),
		Status:    StatusConfirmed,
	}
}

func TestFindAvailableExcludesByStateAndOverlap(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	reqStart := now.Add(24 * time.Hour)
	iv, err := interval.New(reqStart, reqStart.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("build interval: %v", err)
	}

	// v-1 有重叠预约，v-2 的预约在请求区间之前结束
	reservations := []Reservation{
		confirmedReservation("v-1", reqStart.Add(12*time.Hour), 24*time.Hour),
		confirmedReservation("v-2", now.Add(-48*time.Hour), 60*time.Hour),
	}

	ids, err := FindAvailable(testFleet(), iv, reservations, now)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(ids) != 1 || ids[0] != "v-2" {
		t.Fatalf("got %v, want only v-2 (rented now but free in requested window)", ids)
	}
}

func TestFindAvailableNoReservations(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	iv, err := interval.New(now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("build interval: %v", err)
	}

	ids, err := FindAvailable(testFleet(), iv, nil, now)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	// maintenance / cleaning 永远排除
	if len(ids) != 2 || ids[0] != "v-1" || ids[1] != "v-2" {
		t.Fatalf("got %v, want [v-1 v-2]", ids)
	}
}

func TestFindAvailableBetweenAdjacentReservations(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	gapStart := now.Add(48 * time.Hour)
	iv, err := interval.New(gapStart, gapStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("build interval: %v", err)
	}

	// 半开区间：前单在 gapStart 结束，后单在 gapStart+24h 开始，正好不冲突
	reservations := []Reservation{
		confirmedReservation("v-1", now, 48*time.Hour),
		confirmedReservation("v-1", gapStart.Add(24*time.Hour), 24*time.Hour),
	}

	ids, err := FindAvailable([]vehicle.Vehicle{{ID: "v-1", State: vehicle.StateAvailable}}, iv, reservations, now)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("vehicle should be free between back-to-back reservations, got %v", ids)
	}
}

func TestFindAvailableIgnoresExpiredPendingHold(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	iv, err := interval.New(now.Add(time.Hour), now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("build interval: %v", err)
	}

	expired := now.Add(-time.Minute)
	live := now.Add(10 * time.Minute)
	reservations := []Reservation{
		{ID: "h-1", VehicleID: "v-1", StartsAt: now, EndsAt: now.Add(48 * time.Hour), Status: StatusPending, ExpiresAt: &expired},
		{ID: "h-2", VehicleID: "v-2", StartsAt: now, EndsAt: now.Add(48 * time.Hour), Status: StatusPending, ExpiresAt: &live},
	}
	fleet := []vehicle.Vehicle{
		{ID: "v-1", State: vehicle.StateAvailable},
		{ID: "v-2", State: vehicle.StateAvailable},
	}

	ids, err := FindAvailable(fleet, iv, reservations, now)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(ids) != 1 || ids[0] != "v-1" {
		t.Fatalf("expired hold should not block, live hold should, got %v", ids)
	}
}

func TestFindAvailableIgnoresCancelledAndCompleted(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	iv, err := interval.New(now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("build interval: %v", err)
	}

	reservations := []Reservation{
		{ID: "r-1", VehicleID: "v-1", StartsAt: now, EndsAt: now.Add(48 * time.Hour), Status: StatusCancelled},
		{ID: "r-2", VehicleID: "v-1", StartsAt: now, EndsAt: now.Add(48 * time.Hour), Status: StatusCompleted},
	}

	ids, err := FindAvailable([]vehicle.Vehicle{{ID: "v-1", State: vehicle.StateAvailable}}, iv, reservations, now)
	if err != nil {
		t.Fatalf("find available: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("cancelled/completed reservations should not block, got %v", ids)
	}
}

func TestFindAvailableRejectsInvalidInterval(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	if _, err := FindAvailable(testFleet(), interval.Interval{Start: now, End: now.Add(-time.Hour)}, nil, now); err == nil {
		t.Fatal("expected error for reversed interval")
	}
}
