package domain

import "github.com/shopspring/decimal"

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}
