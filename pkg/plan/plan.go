package plan

type Type string

const (
	Free Type = "free"
	Paid Type = "paid"
)

// PaidPriceUSD is the monthly price of the unlimited plan, surfaced to the
// merchant when the free-tier order limit is hit.
const PaidPriceUSD = 9.99

const PaidBillingCycle = "EVERY_30_DAYS"

type Limits struct {
	OrderLimit  int
	IsUnlimited bool
}

var planLimits = map[Type]Limits{
	Free: {
		OrderLimit:  50,
		IsUnlimited: false,
	},
	Paid: {
		OrderLimit:  0,
		IsUnlimited: true,
	},
}

func GetLimits(p Type) Limits {
	limits, exists := planLimits[p]
	if !exists {
		return planLimits[Free]
	}
	return limits
}
