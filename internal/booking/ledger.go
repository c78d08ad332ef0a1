package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

// LedgerRepository 预约账本的持久化接口。
// 确认必须是“锁内检查 + 插入”一个事务完成，不允许先查可用性再单独插入。
type LedgerRepository interface {
	// WithVehicleLock 开启事务并对车辆行加锁（SELECT ... FOR UPDATE），
	// 同一车辆的并发确认在这里串行化。fn 内的仓储调用走同一事务。
	WithVehicleLock(ctx context.Context, vehicleID string, fn func(ctx context.Context, v *vehicle.Vehicle) error) error

	ListBlocking(ctx context.Context, vehicleID string, now time.Time) ([]Reservation, error)
	ListBlockingInRange(ctx context.Context, iv interval.Interval, now time.Time) ([]Reservation, error)
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id string) (*Reservation, error)
	GetByIDForUpdate(ctx context.Context, id string) (*Reservation, error)
	UpdateStatus(ctx context.Context, id string, status Status, paymentRef string) error
	ListByVehicle(ctx context.Context, vehicleID string, offset, limit int) ([]Reservation, int64, error)
	CompleteActive(ctx context.Context, vehicleID string, now time.Time) (int64, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// Ledger 基于 MySQL 的账本实现。
// MySQL 没有区间排他约束，存储层兜底靠 WithVehicleLock 的行锁事务。
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

type txKey struct{}

func (l *Ledger) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.WithContext(ctx)
}

func (l *Ledger) WithVehicleLock(ctx context.Context, vehicleID string, fn func(ctx context.Context, v *vehicle.Vehicle) error) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger db is nil")
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v vehicle.Vehicle
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", vehicleID).First(&v).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return vehicle.ErrNotFound
			}
			return err
		}
		return fn(context.WithValue(ctx, txKey{}, tx), &v)
	})
}

// blockingScope 占用区间的预约：confirmed，或未过期的 pending。
func blockingScope(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where(
		"(status = ? OR (status = ? AND (expires_at IS NULL OR expires_at > ?)))",
		StatusConfirmed, StatusPending, now,
	)
}

func (l *Ledger) ListBlocking(ctx context.Context, vehicleID string, now time.Time) ([]Reservation, error) {
	db := l.conn(ctx)
	if db == nil {
		return nil, fmt.Errorf("ledger db is nil")
	}
	var rs []Reservation
	q := blockingScope(db.Model(&Reservation{}), now).Where("vehicle_id = ?", vehicleID)
	if err := q.Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (l *Ledger) ListBlockingInRange(ctx context.Context, iv interval.Interval, now time.Time) ([]Reservation, error) {
	db := l.conn(ctx)
	if db == nil {
		return nil, fmt.Errorf("ledger db is nil")
	}
	var rs []Reservation
	// 半开区间重叠条件直接下推到 SQL
	q := blockingScope(db.Model(&Reservation{}), now).
		Where("starts_at < ? AND ends_at > ?", iv.End, iv.Start)
	if err := q.Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (l *Ledger) Create(ctx context.Context, r *Reservation) error {
	db := l.conn(ctx)
	if db == nil {
		return fmt.Errorf("ledger db is nil")
	}
	return db.Create(r).Error
}

func (l *Ledger) GetByID(ctx context.Context, id string) (*Reservation, error) {
	return l.getByID(ctx, id, false)
}

func (l *Ledger) GetByIDForUpdate(ctx context.Context, id string) (*Reservation, error) {
	return l.getByID(ctx, id, true)
}

func (l *Ledger) getByID(ctx context.Context, id string, forUpdate bool) (*Reservation, error) {
	db := l.conn(ctx)
	if db == nil {
		return nil, fmt.Errorf("ledger db is nil")
	}
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var r Reservation
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (l *Ledger) UpdateStatus(ctx context.Context, id string, status Status, paymentRef string) error {
	db := l.conn(ctx)
	if db == nil {
		return fmt.Errorf("ledger db is nil")
	}
	updates := map[string]interface{}{"status": status}
	if paymentRef != "" {
		updates["payment_ref"] = paymentRef
	}
	res := db.Model(&Reservation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByVehicle 按车辆查预约历史（审计读），新预约在前。
func (l *Ledger) ListByVehicle(ctx context.Context, vehicleID string, offset, limit int) ([]Reservation, int64, error) {
	db := l.conn(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("ledger db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Reservation{}).Where("vehicle_id = ?", vehicleID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rs []Reservation
	if err := q.Order("starts_at DESC").Offset(offset).Limit(limit).Find(&rs).Error; err != nil {
		return nil, 0, err
	}
	return rs, total, nil
}

// CompleteActive 还车时把该车已开始的 confirmed 预约置为 completed。
func (l *Ledger) CompleteActive(ctx context.Context, vehicleID string, now time.Time) (int64, error) {
	db := l.conn(ctx)
	if db == nil {
		return 0, fmt.Errorf("ledger db is nil")
	}
	res := db.Model(&Reservation{}).
		Where("vehicle_id = ? AND status = ? AND starts_at <= ?", vehicleID, StatusConfirmed, now).
		Update("status", StatusCompleted)
	return res.RowsAffected, res.Error
}

// ExpireDue 把超过锁定窗口的 pending 预约置为 cancelled，释放区间。
func (l *Ledger) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	db := l.conn(ctx)
	if db == nil {
		return 0, fmt.Errorf("ledger db is nil")
	}
	res := db.Model(&Reservation{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", StatusPending, now).
		Update("status", StatusCancelled)
	return res.RowsAffected, res.Error
}
