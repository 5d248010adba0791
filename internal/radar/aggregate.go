package radar

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary condenses a point series into a few numbers.
type Summary struct {
	Count   int      `json:"count" msgpack:"count"`
	Present int      `json:"present" msgpack:"present"`
	Min     *float64 `json:"min" msgpack:"min"`
	Max     *float64 `json:"max" msgpack:"max"`
	Mean    *float64 `json:"mean" msgpack:"mean"`
	MaxAt   string   `json:"maxAt,omitempty" msgpack:"maxAt,omitempty"`
	Latest  *float64 `json:"latest" msgpack:"latest"`
	From    string   `json:"from,omitempty" msgpack:"from,omitempty"`
	To      string   `json:"to,omitempty" msgpack:"to,omitempty"`
}

// Summarize aggregates samples, which are expected in ascending timestamp
// order. Absent samples count toward Count but not toward the statistics.
func Summarize(samples []PointSample) Summary {
	sum := Summary{Count: len(samples)}
	if len(samples) == 0 {
		return sum
	}
	sum.From = samples[0].Date
	sum.To = samples[len(samples)-1].Date

	values := make([]float64, 0, len(samples))
	dates := make([]string, 0, len(samples))
	for _, s := range samples {
		if s.Value == nil {
			continue
		}
		values = append(values, *s.Value)
		dates = append(dates, s.Date)
	}
	sum.Present = len(values)
	if len(values) == 0 {
		return sum
	}

	lo := floats.Min(values)
	hi := floats.Max(values)
	mean := stat.Mean(values, nil)
	latest := values[len(values)-1]

	sum.Min = &lo
	sum.Max = &hi
	sum.Mean = &mean
	sum.MaxAt = dates[floats.MaxIdx(values)]
	sum.Latest = &latest
	return sum
}
