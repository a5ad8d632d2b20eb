package domain

import "time"

// PriceSample is one sampled price of the held asset.
type PriceSample struct {
	Timestamp time.Time
	Price     float64 // funding units per whole token
}
