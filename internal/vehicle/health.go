package vehicle

import "time"

// HealthStatus 保养紧迫度分级。
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthServiceSoon HealthStatus = "service_soon"
	HealthOverdue     HealthStatus = "overdue"
)

const (
	// calendarWindowDays 日历预算归一化窗口（约半年），仅用于和里程预算比较。
	calendarWindowDays = 182
	// serviceSoonPercent 综合剩余比例阈值，低于该值标记为 service_soon。
	serviceSoonPercent = 25
)

// HealthReport 保养健康报告。仅作为参考信号，不直接影响可用性：
// 是否停租由运营显式把车辆置为 maintenance 状态来决定。
type HealthReport struct {
	Status        HealthStatus `json:"status"`
	KmRemaining   int64        `json:"km_remaining"`
	DaysRemaining int64        `json:"days_remaining"`
	Percent       int64        `json:"percent"` // 两个预算归一化后的较小值，0-100
}

// ComputeHealth 由里程和日历两个独立预算计算保养紧迫度。
// 纯函数，无副作用，任何读路径都可以直接调用。
//
// 合并规则：整体剩余比例取两者归一化后的最小值，哪个预算更紧张就由哪个决定分级。
// 任一原始预算 <= 0 直接判 overdue。
func ComputeHealth(v *Vehicle, now time.Time) HealthReport {
	kmRemaining := v.ServiceIntervalKm - (v.CurrentMileageKm - v.LastServiceMileageKm)
	daysRemaining := int64(v.NextServiceDate.Sub(now).Hours() / 24)

	pct := minInt64(
		budgetPercent(kmRemaining, v.ServiceIntervalKm),
		budgetPercent(daysRemaining, calendarWindowDays),
	)

	status := HealthHealthy
	switch {
	case kmRemaining <= 0 || daysRemaining <= 0:
		status = HealthOverdue
	case pct <= serviceSoonPercent:
		status = HealthServiceSoon
	}

	return HealthReport{
		Status:        status,
		KmRemaining:   kmRemaining,
		DaysRemaining: daysRemaining,
		Percent:       pct,
	}
}

// budgetPercent 把剩余预算归一化成 0-100 的百分比。
func budgetPercent(remaining, total int64) int64 {
	if total <= 0 || remaining <= 0 {
		return 0
	}
	pct := remaining * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
