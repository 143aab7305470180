package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownerfi/dealflow/internal/model"
)

func TestDetectOwnerFinance(t *testing.T) {
	cases := []struct {
		name      string
		desc      string
		qualifies bool
		primary   string
	}{
		{"plain phrase", "Beautiful home, owner financing available to qualified buyers.", true, "owner financing"},
		{"hyphenated", "Seller-financing considered with 20% down.", true, "seller financing"},
		{"will carry", "Motivated seller! Owner will carry with good terms.", true, "owner will carry"},
		{"rent to own", "Rent to own possible for the right tenant.", true, "rent to own"},
		{"contract for deed", "Available on a contract for deed basis.", true, "contract for deed"},
		{"negated no", "Nice house. No owner financing.", false, ""},
		{"negated not offering", "Seller is not offering owner financing at this time.", false, ""},
		{"negated not interested in", "Seller is not interested in owner financing.", false, ""},
		{"negated not considering", "Owner is not considering seller financing offers.", false, ""},
		{"rejection after", "Owner financing is not available on this property.", false, ""},
		{"rejection will not", "Seller financing will not be considered.", false, ""},
		{"cash only context", "Fixer with potential, owner financing mentioned before but CASH ONLY now.", false, ""},
		{"cash buyers only", "Great bones. Cash buyers only. Seller financing was floated once.", false, ""},
		{"negation in prior sentence does not carry", "Financing has not been easy. Owner financing available here.", true, "owner financing"},
		{"empty description", "", false, ""},
		{"unrelated text", "Charming bungalow near downtown with updated kitchen.", false, ""},
		{"case insensitive", "OWNER FINANCING AVAILABLE", true, "owner financing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectOwnerFinance(tc.desc)
			assert.Equal(t, tc.qualifies, got.Qualifies)
			if tc.qualifies {
				assert.Equal(t, tc.primary, got.Primary)
				assert.NotEmpty(t, got.Matched)
			}
		})
	}
}

func TestDetectOwnerFinanceMultipleKeywords(t *testing.T) {
	got := DetectOwnerFinance("Owner financing or rent to own, seller will carry.")
	require.True(t, got.Qualifies)
	assert.Equal(t, "owner financing", got.Primary)
	assert.Contains(t, got.Matched, "rent to own")
	assert.Contains(t, got.Matched, "seller will carry")
}

func TestClassifyCashDealDiscount(t *testing.T) {
	// 150k against a 200k estimate is a 25% discount.
	c := Classify("Standard three bed two bath.", 150000, 200000)
	require.True(t, c.IsCashDeal)
	assert.Equal(t, model.CashReasonDiscount, c.CashDealReason)
	assert.InDelta(t, 25.0, c.DiscountPercent, 0.01)
	assert.Equal(t, 160000.0, c.EightyPctEstimate)
	assert.False(t, c.IsOwnerFinance)
	assert.Equal(t, []string{model.DealTypeCashDeal}, c.DealTypes)
}

func TestClassifyCashDealBoundary(t *testing.T) {
	// Exactly 80% of the estimate does not qualify; must be strictly below.
	c := Classify("", 160000, 200000)
	assert.False(t, c.IsCashDeal)

	c = Classify("", 159999, 200000)
	assert.True(t, c.IsCashDeal)
}

func TestClassifyCashDealZeroEstimate(t *testing.T) {
	// A missing estimate never reads as a 100% discount.
	c := Classify("Clean and move-in ready.", 150000, 0)
	assert.False(t, c.IsCashDeal)
}

func TestClassifyCashDealNeedsWork(t *testing.T) {
	c := Classify("Handyman special, sold as-is. Bring your toolbox!", 300000, 310000)
	require.True(t, c.IsCashDeal)
	assert.Equal(t, model.CashReasonNeedsWork, c.CashDealReason)
	assert.True(t, c.NeedsWork)
	assert.Contains(t, c.NeedsWorkKeywords, "handyman special")
	assert.Contains(t, c.NeedsWorkKeywords, "sold as-is")
}

func TestClassifyDiscountTakesPrecedenceAsReason(t *testing.T) {
	c := Classify("Fixer upper priced to move.", 100000, 200000)
	require.True(t, c.IsCashDeal)
	assert.Equal(t, model.CashReasonDiscount, c.CashDealReason)
	assert.True(t, c.NeedsWork)
}

func TestClassifyBothDealTypes(t *testing.T) {
	c := Classify("Owner financing available. Needs work but solid.", 100000, 200000)
	assert.True(t, c.IsOwnerFinance)
	assert.True(t, c.IsCashDeal)
	assert.ElementsMatch(t, []string{model.DealTypeOwnerFinance, model.DealTypeCashDeal}, c.DealTypes)
	assert.True(t, c.Matched())
}

func TestClassifyNoMatch(t *testing.T) {
	c := Classify("Lovely home in a quiet neighborhood.", 250000, 250000)
	assert.False(t, c.Matched())
	assert.Empty(t, c.DealTypes)
	assert.Equal(t, "no deal type matched", c.Reason)
}
