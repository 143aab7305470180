// Package classify implements the two deal-type detectors applied to every
// validated listing: an owner-finance keyword detector and a cash-deal
// discount/condition detector. Both are pure functions over the listing
// description and pricing; invalid input yields a no-match result, never an
// error.
package classify

import (
	"fmt"
	"math"
	"strings"

	"github.com/ownerfi/dealflow/internal/model"
)

// discountThreshold qualifies a listing as a cash deal when its asking price
// is below this fraction of the value estimate.
const discountThreshold = 0.8

// Classify runs both detectors over a listing. The detectors are independent
// and not mutually exclusive; a listing matching neither is discarded by the
// pipeline.
func Classify(description string, price, estimate float64) model.Classification {
	c := model.Classification{}

	of := DetectOwnerFinance(description)
	if of.Qualifies {
		c.IsOwnerFinance = true
		c.OwnerFinanceKeywords = of.Matched
		c.PrimaryKeyword = of.Primary
		c.DealTypes = append(c.DealTypes, model.DealTypeOwnerFinance)
	}

	cd := detectCashDeal(description, price, estimate)
	if cd.qualifies {
		c.IsCashDeal = true
		c.CashDealReason = cd.reason
		c.DiscountPercent = cd.discountPercent
		c.EightyPctEstimate = cd.eightyPctEstimate
		c.NeedsWork = cd.needsWork
		c.NeedsWorkKeywords = cd.needsWorkKeywords
		c.DealTypes = append(c.DealTypes, model.DealTypeCashDeal)
	}

	c.Reason = buildReason(c)
	return c
}

type cashDealResult struct {
	qualifies         bool
	reason            string
	discountPercent   float64
	eightyPctEstimate float64
	needsWork         bool
	needsWorkKeywords []string
}

// needsWorkKeywords is the condition-based qualifier set. Matched as plain
// substrings of the lowercased description.
var needsWorkKeywords = []string{
	"fixer upper",
	"fixer-upper",
	"fixer",
	"handyman special",
	"needs work",
	"needs tlc",
	"needs some tlc",
	"needs repairs",
	"needs updating",
	"needs renovation",
	"as-is",
	"as is where is",
	"sold as is",
	"sold as-is",
	"investor special",
	"investment special",
	"gut rehab",
	"full rehab",
	"bring your toolbox",
	"tear down",
	"teardown",
}

// detectCashDeal qualifies a listing either by price discount against the
// value estimate or by needs-work condition keywords. A zero or missing
// estimate disables the discount path entirely rather than reading as a
// 100% discount.
func detectCashDeal(description string, price, estimate float64) cashDealResult {
	var r cashDealResult

	if estimate > 0 && price > 0 {
		r.eightyPctEstimate = math.Round(estimate * discountThreshold)
		if price < estimate*discountThreshold {
			r.qualifies = true
			r.reason = model.CashReasonDiscount
			r.discountPercent = math.Round((1-price/estimate)*1000) / 10
		}
	}

	lower := strings.ToLower(description)
	for _, kw := range needsWorkKeywords {
		if strings.Contains(lower, kw) {
			r.needsWork = true
			r.needsWorkKeywords = append(r.needsWorkKeywords, kw)
		}
	}
	if r.needsWork {
		r.qualifies = true
		if r.reason == "" {
			r.reason = model.CashReasonNeedsWork
		}
	}

	return r
}

func buildReason(c model.Classification) string {
	var parts []string
	if c.IsOwnerFinance {
		parts = append(parts, fmt.Sprintf("owner finance (%s)", c.PrimaryKeyword))
	}
	if c.IsCashDeal {
		switch c.CashDealReason {
		case model.CashReasonDiscount:
			parts = append(parts, fmt.Sprintf("cash deal (%.1f%% below estimate)", c.DiscountPercent))
		default:
			parts = append(parts, fmt.Sprintf("cash deal (needs work: %s)", strings.Join(c.NeedsWorkKeywords, ", ")))
		}
	}
	if len(parts) == 0 {
		return "no deal type matched"
	}
	return strings.Join(parts, "; ")
}
