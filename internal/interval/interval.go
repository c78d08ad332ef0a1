package interval

import (
	"errors"
	"time"
)

// ErrInvalidInterval 非法区间（start >= end）。
var ErrInvalidInterval = errors.New("invalid interval: start must be before end")

// Interval 半开时间区间 [Start, End)，租期与可用性查询统一使用该类型。
type Interval struct {
	Start time.Time
	End   time.Time
}

// New 构造并校验区间；start >= end 时返回 ErrInvalidInterval。
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

func (iv Interval) Validate() error {
	if !iv.Start.Before(iv.End) {
		return ErrInvalidInterval
	}
	return nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps 半开区间重叠判定：A.start < B.end && B.start < A.end。
// 相邻区间（A.end == B.start）不算重叠，同一时刻可以还车 + 取车。
// 全仓库只允许用这一个判定，避免可用性查询和防双订各写一套。
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// RentalDays 计费天数：ceil(时长/24h)，不足 24 小时按 1 天计。
func RentalDays(iv Interval) int64 {
	const day = 24 * time.Hour
	d := iv.Duration()
	days := int64(d / day)
	if d%day > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}
