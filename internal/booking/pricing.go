package booking

import (
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/interval"
)

const (
	// PerKmDeliveryFeeCents 送车上门每公里费用（单位：分），全站固定。
	PerKmDeliveryFeeCents int64 = 5000

	defaultCurrency = "KES"
)

// Quote 报价明细。给客户展示的金额与最终扣款必须一致，
// 因此这里只做纯计算，不依赖任何可变状态。
type Quote struct {
	Days             int64  `json:"days"`
	SubtotalCents    int64  `json:"subtotal_cents"`
	DeliveryFeeCents int64  `json:"delivery_fee_cents"`
	TotalCents       int64  `json:"total_cents"`
	Currency         string `json:"currency"`
}

// Price 由租期 + 日租价 + 送车距离计算总价。
// 计费天数向上取整，任何正时长至少按 1 天计；deliveryKm <= 0 视为不送车。
func Price(iv interval.Interval, dailyRateCents int64, deliveryKm int64) (Quote, error) {
	if err := iv.Validate(); err != nil {
		return Quote{}, err
	}

	days := interval.RentalDays(iv)
	subtotal := days * dailyRateCents

	var deliveryFee int64
	if deliveryKm > 0 {
		deliveryFee = deliveryKm * PerKmDeliveryFeeCents
	}

	return Quote{
		Days:             days,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: deliveryFee,
		TotalCents:       subtotal + deliveryFee,
		Currency:         defaultCurrency,
	}, nil
}
