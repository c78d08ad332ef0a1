package vehicle

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition 当前状态不允许该生命周期事件。
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// EventKind 生命周期事件类型。
type EventKind string

const (
	EventCheckout            EventKind = "checkout"             // available -> rented
	EventReturn              EventKind = "return"               // rented -> available / cleaning / maintenance
	EventCompleteMaintenance EventKind = "complete_maintenance" // maintenance -> available
	EventCompleteCleaning    EventKind = "complete_cleaning"    // cleaning -> available
)

// Event 生命周期事件及其副作用入参。
type Event struct {
	Kind EventKind

	// Checkout / Return 共用
	FuelPercent int

	// Checkout
	Notes string

	// Return
	IsClean      bool
	HasNewDamage bool
}

// AllowTransition 车辆状态机允许的流转关系（有向图配置）。
// 没有终态：退役在本系统范围之外，生命周期是循环的。
var AllowTransition = map[State][]State{
	StateAvailable:   {StateRented},
	StateRented:      {StateAvailable, StateCleaning, StateMaintenance},
	StateCleaning:    {StateAvailable},
	StateMaintenance: {StateAvailable},
}

// CanTransition 判断 from -> to 是否是允许的状态流转。
func CanTransition(from, to State) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyEvent 对车辆应用生命周期事件，落副作用字段并维护时间。
// 事件在错误状态下到达时返回 ErrInvalidTransition，不静默覆盖。
func ApplyEvent(v *Vehicle, ev Event, now time.Time) error {
	if v == nil {
		return fmt.Errorf("vehicle is nil")
	}

	switch ev.Kind {
	case EventCheckout:
		if v.State != StateAvailable {
			return fmt.Errorf("%w: checkout from %s", ErrInvalidTransition, v.State)
		}
		v.State = StateRented
		v.FuelPercent = ev.FuelPercent
		v.CheckoutNotes = ev.Notes
		t := now
		v.CheckedOutAt = &t

	case EventReturn:
		if v.State != StateRented {
			return fmt.Errorf("%w: return from %s", ErrInvalidTransition, v.State)
		}
		v.FuelPercent = ev.FuelPercent
		t := now
		v.ReturnedAt = &t
		// 损伤优先于清洁度
		switch {
		case ev.HasNewDamage:
			v.State = StateMaintenance
		case !ev.IsClean:
			v.State = StateCleaning
		default:
			v.State = StateAvailable
			v.CheckoutNotes = ""
		}

	case EventCompleteMaintenance:
		if v.State != StateMaintenance {
			return fmt.Errorf("%w: complete_maintenance from %s", ErrInvalidTransition, v.State)
		}
		// 保养费用/里程记录是独立动作（RecordService），这里只流转状态
		v.State = StateAvailable
		v.CheckoutNotes = ""

	case EventCompleteCleaning:
		if v.State != StateCleaning {
			return fmt.Errorf("%w: complete_cleaning from %s", ErrInvalidTransition, v.State)
		}
		v.State = StateAvailable
		v.CheckoutNotes = ""

	default:
		return fmt.Errorf("unknown lifecycle event: %s", ev.Kind)
	}

	return nil
}
