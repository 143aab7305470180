// Package finance computes investment metrics for a listing: loan sizing,
// amortized payment, operating expenses and cash-on-cash return. All
// assumptions are fixed underwriting constants; the only external inputs are
// price, rent, taxes and HOA.
package finance

import (
	"math"

	"github.com/ownerfi/dealflow/internal/model"
)

// Underwriting assumptions applied to every listing.
const (
	downPaymentPct  = 0.10
	closingCostPct  = 0.03
	annualRate      = 0.06
	loanTermYears   = 20
	insurancePctYr  = 0.01  // of purchase price, annually
	estimatedTaxPct = 0.012 // of purchase price, annually, when no tax record exists
	managementPct   = 0.10  // of monthly rent
	vacancyPct      = 0.08
	maintenancePct  = 0.05
	capExPct        = 0.05
)

// Compute returns the full metrics set for a listing, or nil when no rent
// figure is available (metrics without income are meaningless downstream).
// When annualTax is zero and useEstimatedTax is set, taxes are estimated from
// the purchase price and the result is flagged.
func Compute(price, monthlyRent, annualTax, monthlyHOA float64, useEstimatedTax bool) *model.Metrics {
	if monthlyRent <= 0 || price <= 0 {
		return nil
	}

	m := &model.Metrics{
		DownPayment:  math.Round(price * downPaymentPct),
		ClosingCosts: math.Round(price * closingCostPct),
	}
	m.TotalInvestment = m.DownPayment + m.ClosingCosts
	m.LoanAmount = price - m.DownPayment
	m.MonthlyMortgage = math.Round(monthlyPayment(m.LoanAmount, annualRate, loanTermYears))

	monthlyTax := annualTax / 12
	if annualTax <= 0 && useEstimatedTax {
		monthlyTax = price * estimatedTaxPct / 12
		m.TaxEstimated = true
	}

	m.MonthlyInsurance = math.Round(price * insurancePctYr / 12)
	m.MonthlyTax = math.Round(monthlyTax)
	m.MonthlyHOA = math.Round(monthlyHOA)
	m.MonthlyManagement = math.Round(monthlyRent * managementPct)
	m.MonthlyVacancy = math.Round(monthlyRent * vacancyPct)
	m.MonthlyMaintenance = math.Round(monthlyRent * maintenancePct)
	m.MonthlyCapEx = math.Round(monthlyRent * capExPct)
	m.MonthlyExpenses = m.MonthlyInsurance + m.MonthlyTax + m.MonthlyHOA +
		m.MonthlyManagement + m.MonthlyVacancy + m.MonthlyMaintenance + m.MonthlyCapEx

	m.MonthlyCashFlow = math.Round(monthlyRent - m.MonthlyMortgage - m.MonthlyExpenses)
	m.AnnualCashFlow = m.MonthlyCashFlow * 12

	if m.TotalInvestment > 0 {
		m.CashOnCashPct = math.Round(m.AnnualCashFlow/m.TotalInvestment*1000) / 10
	}

	return m
}

// monthlyPayment is the standard amortization formula. A zero rate degrades
// to straight principal division.
func monthlyPayment(principal, yearlyRate float64, years int) float64 {
	n := float64(years * 12)
	if yearlyRate == 0 {
		return principal / n
	}
	r := yearlyRate / 12
	f := math.Pow(1+r, n)
	return principal * r * f / (f - 1)
}
