package model

// Deal type tags stored on a persisted property. A property carries one or
// both, never neither: unclassified listings are discarded before persistence.
const (
	DealTypeOwnerFinance = "owner_finance"
	DealTypeCashDeal     = "cash_deal"
)

// Cash-deal qualification reasons. Discount and condition reasons are kept
// distinct so alerting can explain why a listing qualified.
const (
	CashReasonDiscount  = "discount"
	CashReasonNeedsWork = "needs_work"
)

// Classification is the outcome of running both deal-type detectors over a
// canonical listing. The detectors are independent: a listing may match one,
// both, or neither.
type Classification struct {
	IsOwnerFinance bool     `json:"is_owner_finance"`
	IsCashDeal     bool     `json:"is_cash_deal"`
	DealTypes      []string `json:"deal_types"`

	// Owner-finance detail.
	OwnerFinanceKeywords []string `json:"owner_finance_keywords,omitempty"`
	PrimaryKeyword       string   `json:"primary_keyword,omitempty"`

	// Cash-deal detail.
	CashDealReason    string   `json:"cash_deal_reason,omitempty"`
	DiscountPercent   float64  `json:"discount_percent,omitempty"`
	EightyPctEstimate float64  `json:"eighty_pct_estimate,omitempty"`
	NeedsWork         bool     `json:"needs_work"`
	NeedsWorkKeywords []string `json:"needs_work_keywords,omitempty"`

	Reason string `json:"reason"`
}

// Matched reports whether at least one detector fired.
func (c Classification) Matched() bool {
	return c.IsOwnerFinance || c.IsCashDeal
}
