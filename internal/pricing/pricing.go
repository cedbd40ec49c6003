// Package pricing computes what a plan costs per billing cycle.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/dukerupert/subtrack/internal/model"
)

type Cycle string

const (
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// yearlyFactor is the share of twelve monthly payments charged for a year.
const yearlyFactor = 0.83

// FeaturedPlan is highlighted in plan listings.
const FeaturedPlan = "PREMIUM"

func ParseCycle(s string) (Cycle, error) {
	switch c := Cycle(strings.ToLower(strings.TrimSpace(s))); c {
	case Monthly, Yearly:
		return c, nil
	case "":
		return Monthly, nil
	default:
		return "", fmt.Errorf("unknown billing cycle %q", s)
	}
}

// Quote is the price of a plan on one billing cycle.
type Quote struct {
	Cycle Cycle
	// PerMonth is the effective monthly price.
	PerMonth float64
	// Billed is charged once per cycle.
	Billed float64
}

func (q Quote) Free() bool {
	return q.Billed == 0
}

// PriceFor quotes plan on cycle. Yearly prices are rounded to whole units.
func PriceFor(plan model.Plan, cycle Cycle) Quote {
	if cycle != Yearly {
		return Quote{Cycle: Monthly, PerMonth: plan.Price, Billed: plan.Price}
	}
	total := YearlyPrice(plan.Price)
	return Quote{Cycle: Yearly, PerMonth: math.Round(total / 12), Billed: total}
}

// YearlyPrice is twelve months at the yearly discount, rounded.
func YearlyPrice(monthly float64) float64 {
	return math.Round(monthly * 12 * yearlyFactor)
}

// Savings is what paying yearly saves over twelve monthly payments.
func Savings(plan model.Plan) float64 {
	return plan.Price*12 - YearlyPrice(plan.Price)
}

// DiscountPercent is the yearly discount as a whole percentage.
func DiscountPercent() int {
	return int(math.Round((1 - yearlyFactor) * 100))
}
