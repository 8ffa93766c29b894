package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/solariscontrol/solaris/pkg/log"
	"github.com/solariscontrol/solaris/pkg/types"
)

const (
	ModelProviderName = "model"

	// readings above this multiple of every other reading in the same hour
	// are ignored
	defaultOutlierMultiple = 3.0
	// power readings at or below this are sensor noise
	noiseWatts = 1.0
	// z value for a 95% interval
	confidenceZ = 1.96
)

type daypart struct {
	name       string
	start, end int
}

// dayparts cover every hour of the day.
var dayparts = []daypart{
	{"overnight", 0, 5},
	{"mornings", 6, 11},
	{"midday", 12, 16},
	{"evenings", 17, 23},
}

// hourProfile is the average load for one hour of the day.
type hourProfile struct {
	hour     int
	avgWatts float64
	variance float64
	samples  int
}

// Model predicts the next day's usage by averaging the power readings seen
// in each hour of the day.
type Model struct {
	// OutlierMultiple drops a single reading that is larger than every other
	// reading of the same hour by this factor. 0 disables it.
	OutlierMultiple float64
	// Location is used to bucket readings into hours of the day.
	Location *time.Location
	now      func() time.Time
}

// NewModel returns a Model using local time.
func NewModel() *Model {
	return &Model{
		OutlierMultiple: defaultOutlierMultiple,
		Location:        time.Local,
		now:             time.Now,
	}
}

// buildHourlyModel averages the power by hour of day.
func (m *Model) buildHourlyModel(ctx context.Context, history []types.Telemetry) map[int]hourProfile {
	hourly := make(map[int][]float64)
	for _, h := range history {
		if h.Timestamp.IsZero() {
			continue
		}
		hour := h.Timestamp.In(m.Location).Hour()
		hourly[hour] = append(hourly[hour], h.PowerConsumption)
	}

	result := make(map[int]hourProfile)
	for h, points := range hourly {
		valid := points
		if len(points) >= 3 && m.OutlierMultiple > 1 {
			var outlierIdx []int
			for i, p := range points {
				isOutlier := true
				for j, other := range points {
					if i == j {
						continue
					}
					if p <= other*m.OutlierMultiple {
						isOutlier = false
						break
					}
				}
				if isOutlier {
					outlierIdx = append(outlierIdx, i)
				}
			}
			if len(outlierIdx) == 1 {
				log.Ctx(ctx).DebugContext(
					ctx,
					"ignoring outlier reading",
					slog.Int("hour", h),
					slog.Float64("watts", points[outlierIdx[0]]),
				)
				valid = make([]float64, 0, len(points)-1)
				for i, p := range points {
					if i != outlierIdx[0] {
						valid = append(valid, p)
					}
				}
			}
		}

		var total float64
		var count int
		for _, p := range valid {
			if p > noiseWatts {
				total += p
				count++
			}
		}
		profile := hourProfile{hour: h, samples: count}
		if count > 0 {
			profile.avgWatts = total / float64(count)
			var sq float64
			for _, p := range valid {
				if p > noiseWatts {
					sq += (p - profile.avgWatts) * (p - profile.avgWatts)
				}
			}
			profile.variance = sq / float64(count)
		}
		result[h] = profile
	}
	return result
}

// Forecast predicts the energy (kWh) used over the next 24 hours.
func (m *Model) Forecast(ctx context.Context, history []types.Telemetry) (types.Forecast, error) {
	model := m.buildHourlyModel(ctx, history)
	if len(model) == 0 {
		return types.Forecast{}, ErrNoHistory
	}

	// hours with no readings use the average of the hours we have
	var overall float64
	for _, p := range model {
		overall += p.avgWatts
	}
	overall /= float64(len(model))

	var predictedWh, variance float64
	for h := 0; h < 24; h++ {
		p, ok := model[h]
		if !ok {
			predictedWh += overall
			continue
		}
		predictedWh += p.avgWatts
		if p.samples > 0 {
			// variance of the hour's mean
			variance += p.variance / float64(p.samples)
		}
	}

	f := types.Forecast{
		PredictedUsage:      round(predictedWh/1000, 3),
		ConfidenceInterval:  round(confidenceZ*math.Sqrt(variance)/1000, 3),
		UsagePatternSummary: summarize(model),
		Analysis: fmt.Sprintf(
			"Based on %d readings covering %d of 24 hours of the day; average load %.0f W.",
			len(history), len(model), overall,
		),
		Provider:    ModelProviderName,
		GeneratedAt: m.now().UTC(),
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"forecast from hourly model",
		slog.Float64("predictedKWh", f.PredictedUsage),
		slog.Int("hours", len(model)),
	)
	return f, nil
}

// summarize names the dayparts with the highest and lowest average load,
// e.g. "High usage in evenings, low during midday."
func summarize(model map[int]hourProfile) string {
	type part struct {
		name string
		avg  float64
	}
	var parts []part
	for _, d := range dayparts {
		var total float64
		var n int
		for h := d.start; h <= d.end; h++ {
			if p, ok := model[h]; ok && p.samples > 0 {
				total += p.avgWatts
				n++
			}
		}
		if n > 0 {
			parts = append(parts, part{d.name, total / float64(n)})
		}
	}
	if len(parts) < 2 {
		return ""
	}

	high, low := parts[0], parts[0]
	for _, p := range parts[1:] {
		if p.avg > high.avg {
			high = p
		}
		if p.avg < low.avg {
			low = p
		}
	}
	if high.avg == low.avg {
		return "Usage is steady throughout the day."
	}

	return fmt.Sprintf("High usage %s, low %s.", during(high.name), during(low.name))
}

func during(name string) string {
	switch name {
	case "overnight":
		return name
	case "midday":
		return "during midday"
	default:
		return "in " + name
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
