package billing

import "github.com/shopspring/decimal"

const amountPlaces = 2

// SplitAmount divides total evenly across n charges at cent precision.
// The last share absorbs the rounding remainder so the shares always sum to total.
func SplitAmount(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, ErrNoCharges
	}
	if !total.IsPositive() {
		return nil, ErrInvalidAmount
	}
	share := total.DivRound(decimal.NewFromInt(int64(n)), amountPlaces)
	if !share.IsPositive() {
		return nil, ErrInvalidAmount
	}
	shares := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = share
		allocated = allocated.Add(share)
	}
	last := total.Sub(allocated)
	if !last.IsPositive() {
		return nil, ErrInvalidAmount
	}
	shares[n-1] = last
	return shares, nil
}
