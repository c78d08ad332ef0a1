package booking

import (
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

// FindAvailable 在一份账本快照上计算请求区间内的空闲车辆 id 集合。
// 纯函数：同一快照 + 同一区间两次调用结果一致。
//
// 排除规则：
//   - 存在重叠的 confirmed / 未过期 pending 预约的车辆；
//   - maintenance / cleaning 状态的车辆一律不报价（不预测恢复时间）；
//   - rented 状态本身不排除：未来无冲突区间仍可预订，只有区间重叠才挡。
//
// 候选为空返回空集，不是错误。快照读和确认写之间的竞态由 Ledger 的
// 原子检查插入兜底（见 ledger.go）。
func FindAvailable(candidates []vehicle.Vehicle, requested interval.Interval, reservations []Reservation, now time.Time) ([]string, error) {
	if err := requested.Validate(); err != nil {
		return nil, err
	}

	byVehicle := make(map[string][]Reservation, len(candidates))
	for _, r := range reservations {
		byVehicle[r.VehicleID] = append(byVehicle[r.VehicleID], r)
	}

	out := make([]string, 0, len(candidates))
	for i := range candidates {
		v := &candidates[i]
		if !v.Offerable() {
			continue
		}
		blocked := false
		for _, r := range byVehicle[v.ID] {
			if r.Blocks(now) && interval.Overlaps(requested, r.Interval()) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, v.ID)
		}
	}
	return out, nil
}
