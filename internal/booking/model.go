package booking

import (
	"errors"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
)

var (
	// ErrConflict 区间冲突：并发确认输了，或车辆已不可订。
	ErrConflict = errors.New("reservation conflict")
	// ErrExpiredHold pending 预约超过锁定窗口。
	ErrExpiredHold = errors.New("hold expired")
	// ErrNotFound 预约不存在。
	ErrNotFound = errors.New("reservation not found")
	// ErrIdentityNotVerified 客户实名校验未通过（外部服务返回 false）。
	ErrIdentityNotVerified = errors.New("identity not verified")
	// ErrPaymentNotConfirmed 支付未确认（外部服务返回 false）。
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	// ErrInvalidArgument 入参不合法（缺字段 / 非法取值）。
	ErrInvalidArgument = errors.New("invalid argument")
)

// Status 预约状态（持久化为字符串）。
type Status string

const (
	StatusPending   Status = "pending"   // 已锁定区间，等待支付确认
	StatusConfirmed Status = "confirmed" // 已确认
	StatusCancelled Status = "cancelled" // 已取消 / hold 过期
	StatusCompleted Status = "completed" // 已还车完结
)

// Reservation 预约表 GORM 模型。行不做物理删除，取消/完结只改状态（审计要求）。
// 状态只允许 Ledger 写入。
type Reservation struct {
	ID        string    `gorm:"primaryKey;size:36"`
	VehicleID string    `gorm:"index;size:36;not null"`
	StartsAt  time.Time `gorm:"index;not null"`
	EndsAt    time.Time `gorm:"not null"`
	Status    Status    `gorm:"type:varchar(16);index;not null"`

	CustomerRef string `gorm:"size:64;not null"` // 客户引用，核心不解析
	PaymentRef  string `gorm:"size:64"`          // 支付引用（M-Pesa 码等），核心不解析

	// 金额信息（单位：分）
	PriceCents int64  `gorm:"not null;default:0"`
	Currency   string `gorm:"size:8;not null;default:'KES'"`

	// pending hold 的到期时间；confirmed 后不再有意义
	ExpiresAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (r Reservation) Interval() interval.Interval {
	return interval.Interval{Start: r.StartsAt, End: r.EndsAt}
}

// Blocks 判断该预约在 now 时刻是否仍占用其区间。
// confirmed 一直占用；pending 只在未过期时占用；cancelled / completed 不占用。
func (r Reservation) Blocks(now time.Time) bool {
	switch r.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return r.ExpiresAt == nil || r.ExpiresAt.After(now)
	default:
		return false
	}
}
