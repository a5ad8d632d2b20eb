package lookup

import (
	"errors"
	"time"

	"solana-signal-trader/internal/domain"
)

// ErrNoPriceData is returned when the history holds no samples.
var ErrNoPriceData = errors.New("no price data available")

// Nearest returns the price of the sample closest to target.
// Closeness is the absolute time difference, searched across the whole history;
// on a tie the earlier sample wins.
// Returns ErrNoPriceData if samples is empty.
func Nearest(target time.Time, samples []domain.PriceSample) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoPriceData
	}

	best := 0
	bestDiff := absDuration(samples[0].Timestamp.Sub(target))
	for i := 1; i < len(samples); i++ {
		d := absDuration(samples[i].Timestamp.Sub(target))
		if d < bestDiff {
			best = i
			bestDiff = d
		}
	}

	return samples[best].Price, nil
}

// Latest returns the most recent sample.
// Samples are expected in chronological order.
func Latest(samples []domain.PriceSample) (domain.PriceSample, error) {
	if len(samples) == 0 {
		return domain.PriceSample{}, ErrNoPriceData
	}
	return samples[len(samples)-1], nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
