package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// PAY COMPUTER - units + method + rate -> payable base
// =============================================================================

// ComputeBase returns the unrounded payable base.
//
//	fixed:    rate
//	prorated: rate * (worked + paid leave) / periodUnits, 0 if periodUnits <= 0
//	daily:    rate * (worked + paid leave)
//
// Rounding is left to GrossPay.
func ComputeBase(method PayMethod, rate decimal.Decimal, u Units, periodUnits int) decimal.Decimal {
	credited := u.Worked.Add(u.PaidLeave)

	switch method {
	case PayFixed:
		return rate
	case PayProrated:
		if periodUnits <= 0 {
			return decimal.Zero
		}
		return rate.Mul(credited).Div(decimal.NewFromInt(int64(periodUnits)))
	case PayDaily:
		return rate.Mul(credited)
	default:
		return decimal.Zero
	}
}

// LocumUnits strips leave credit; locums are paid for worked days only.
func LocumUnits(u Units) Units {
	u.PaidLeave = decimal.Zero
	u.UnpaidLeave = decimal.Zero
	return u
}

func rateOrZero(rate *decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return decimal.Zero
	}
	return *rate
}
