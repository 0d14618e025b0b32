package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample a single observation of a symbol's price.
type PriceSample struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// IsZero reports whether the sample was never set.
func (s PriceSample) IsZero() bool {
	return s.Time.IsZero() && s.Price.IsZero()
}

// PriceHistory finite, time-ordered, append-only sequence of samples.
// A positive capacity bounds the history by evicting the oldest samples;
// past samples are never reordered or changed. Not safe for concurrent use.
type PriceHistory struct {
	samples  []PriceSample
	capacity int
}

// NewPriceHistory creates an empty history; capacity <= 0 means unbounded.
func NewPriceHistory(capacity int) *PriceHistory {
	return &PriceHistory{capacity: capacity}
}

// Append adds a sample at the tail.
func (h *PriceHistory) Append(s PriceSample) error {
	if !s.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, s.Price.String())
	}
	if n := len(h.samples); n > 0 && s.Time.Before(h.samples[n-1].Time) {
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			s.Time.Format(time.RFC3339Nano), h.samples[n-1].Time.Format(time.RFC3339Nano))
	}
	h.samples = append(h.samples, s)
	if h.capacity > 0 && len(h.samples) > h.capacity {
		// copy so the backing array does not grow forever
		trimmed := make([]PriceSample, h.capacity)
		copy(trimmed, h.samples[len(h.samples)-h.capacity:])
		h.samples = trimmed
	}
	return nil
}

// AppendNewer appends only the samples strictly newer than the tail and
// returns how many were added. Invalid samples are skipped.
func (h *PriceHistory) AppendNewer(samples []PriceSample) int {
	added := 0
	for _, s := range samples {
		if last, ok := h.Latest(); ok && !s.Time.After(last.Time) {
			continue
		}
		if err := h.Append(s); err != nil {
			continue
		}
		added++
	}
	return added
}

// Latest returns the most recent sample.
func (h *PriceHistory) Latest() (PriceSample, bool) {
	if len(h.samples) == 0 {
		return PriceSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Last returns a copy of the newest n samples in time order; n <= 0 returns all.
func (h *PriceHistory) Last(n int) []PriceSample {
	if n <= 0 || n > len(h.samples) {
		n = len(h.samples)
	}
	out := make([]PriceSample, n)
	copy(out, h.samples[len(h.samples)-n:])
	return out
}

// Len number of samples held.
func (h *PriceHistory) Len() int {
	return len(h.samples)
}

// Closes returns the prices of the newest n samples.
func (h *PriceHistory) Closes(n int) []decimal.Decimal {
	samples := h.Last(n)
	out := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}
