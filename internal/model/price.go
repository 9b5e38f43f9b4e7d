package model

import "github.com/shopspring/decimal"

// PriceTask is a deferred pricing request for one token on one day.
// The date uses the provider's dd-mm-yyyy day granularity.
type PriceTask struct {
	TokenContract string `csv:"tokenContract"`
	Date          string `csv:"date"`
}

// PriceRecord is the persisted result of a resolved price task. USD is
// nil when the provider had no price for that day.
type PriceRecord struct {
	TokenContract string
	Date          string
	USD           *decimal.Decimal
}
