package appointments

// ComputePayment derives the price breakdown. The discount is clamped to
// [0, base+add-ons] so the total never goes negative.
func ComputePayment(basePrice int64, addOns []AddOn, discount int64) PaymentInfo {
	var addOnsTotal int64
	for _, a := range addOns {
		addOnsTotal += a.Price
	}
	original := basePrice + addOnsTotal
	if discount < 0 {
		discount = 0
	}
	if discount > original {
		discount = original
	}
	return PaymentInfo{
		BasePrice:     basePrice,
		AddOnsTotal:   addOnsTotal,
		OriginalPrice: original,
		Discount:      discount,
		TotalPrice:    original - discount,
		PaymentStatus: PaymentUnpaid,
	}
}

// TotalDuration is the service duration plus every add-on.
func TotalDuration(serviceMinutes int, addOns []AddOn) int {
	total := serviceMinutes
	for _, a := range addOns {
		total += a.Duration
	}
	return total
}
