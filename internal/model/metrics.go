package model

// Metrics holds the derived investment numbers for a listing with a known
// rent estimate. All dollar figures are whole currency units; the
// cash-on-cash return is a percentage with one decimal.
type Metrics struct {
	DownPayment     float64 `json:"down_payment"`
	ClosingCosts    float64 `json:"closing_costs"`
	TotalInvestment float64 `json:"total_investment"`

	LoanAmount      float64 `json:"loan_amount"`
	MonthlyMortgage float64 `json:"monthly_mortgage"`

	MonthlyInsurance   float64 `json:"monthly_insurance"`
	MonthlyTax         float64 `json:"monthly_tax"`
	MonthlyHOA         float64 `json:"monthly_hoa"`
	MonthlyManagement  float64 `json:"monthly_management"`
	MonthlyVacancy     float64 `json:"monthly_vacancy"`
	MonthlyMaintenance float64 `json:"monthly_maintenance"`
	MonthlyCapEx       float64 `json:"monthly_capex"`
	MonthlyExpenses    float64 `json:"monthly_expenses"`

	MonthlyCashFlow float64 `json:"monthly_cash_flow"`
	AnnualCashFlow  float64 `json:"annual_cash_flow"`
	CashOnCashPct   float64 `json:"cash_on_cash_pct"`

	// TaxEstimated is set when no tax figure was available and the monthly
	// tax was estimated from the purchase price instead.
	TaxEstimated bool `json:"tax_estimated"`
}
