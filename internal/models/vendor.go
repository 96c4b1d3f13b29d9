package models

import "time"

// VendorQuote is the lenient-decoded live quote for one symbol, already
// normalized from the vendor's chart schema. Zero fields mean the
// vendor omitted them; callers apply the documented precedence order.
type VendorQuote struct {
	Symbol          string      `json:"symbol"`
	RegularPrice    float64     `json:"regular_price"`
	PostMarketPrice float64     `json:"post_market_price"`
	PreMarketPrice  float64     `json:"pre_market_price"`
	SessionOpen     float64     `json:"session_open"`
	PreviousClose   float64     `json:"previous_close"`
	State           MarketState `json:"state"`
}

// VendorBar is one daily bar from the vendor's history response.
type VendorBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
}
