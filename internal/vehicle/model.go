package vehicle

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("vehicle not found")
	// ErrInvalidArgument 入参不合法（缺字段 / 非法取值）。
	ErrInvalidArgument = errors.New("invalid argument")
)

// State 车辆生命周期状态（持久化为字符串）。
type State string

const (
	StateAvailable   State = "available"   // 可出租
	StateRented      State = "rented"      // 出租中
	StateMaintenance State = "maintenance" // 维修中（不对外报价）
	StateCleaning    State = "cleaning"    // 清洁中（不对外报价）
)

// VehicleModel 车型表：品牌/型号/座位/日租价由多台车共享引用。
type VehicleModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Make           string    `gorm:"size:64;not null"`
	Name           string    `gorm:"size:64;not null"`
	Year           int       `gorm:"not null;default:0"`
	Seats          int       `gorm:"not null;default:0"`
	DailyRateCents int64     `gorm:"not null;default:0"` // 日租价（单位：分）
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Vehicle 车辆表 GORM 模型。
// 生命周期状态只允许 state_machine.go 写入；保养标记只由 RecordService 重置。
type Vehicle struct {
	ID          string `gorm:"primaryKey;size:36"`
	PlateNumber string `gorm:"uniqueIndex;size:32;not null"`
	DisplayID   string `gorm:"uniqueIndex;size:32"` // 对外展示编号，如 SFR-012
	ModelID     string `gorm:"index;size:36;not null"`
	HubLocation string `gorm:"size:64;not null"` // 当前所属取车点（同一时刻只有一个）
	State       State  `gorm:"type:varchar(16);index;not null"`

	// 里程 / 保养标记（单位：公里）
	CurrentMileageKm     int64     `gorm:"not null;default:0"`
	LastServiceMileageKm int64     `gorm:"not null;default:0"`
	ServiceIntervalKm    int64     `gorm:"not null;default:0"`
	LastServiceDate      time.Time // 最近一次保养日期
	NextServiceDate      time.Time // 下次保养日期

	// 交接车副作用字段
	FuelPercent   int    `gorm:"not null;default:0"` // 最近一次交接车时的油量百分比
	CheckoutNotes string `gorm:"size:512"`           // 取车备注，还车回到 available 后清空

	CheckedOutAt *time.Time // 最近一次取车时间
	ReturnedAt   *time.Time // 最近一次还车时间

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Spec *VehicleModel `gorm:"foreignKey:ModelID"`
}

// DailyRateCents 车辆日租价；未预加载车型时返回 0。
func (v *Vehicle) DailyRateCents() int64 {
	if v == nil || v.Spec == nil {
		return 0
	}
	return v.Spec.DailyRateCents
}

// Offerable 车辆当前是否可以进入报价池。
// rented 不在此排除：只要区间无冲突，未来时段仍可预订；
// maintenance / cleaning 一律不报价，不预测何时恢复。
func (v *Vehicle) Offerable() bool {
	return v.State != StateMaintenance && v.State != StateCleaning
}
