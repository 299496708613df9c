package simulation

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// trendPeriod is the length, in ticks, of the slow drift applied to sensors
// without a dedicated pattern.
const trendPeriod = 180

// sensorRNG returns the generator for one sensor at one tick.
func sensorRNG(seed, tick uint64, sensorID string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sensorID))
	return rand.New(rand.NewPCG(seed^h.Sum64(), tick))
}

// phase returns a stable per-sensor phase in [0, 2π).
func phase(seed uint64, sensorID string) float64 {
	return sensorRNG(seed, math.MaxUint64, sensorID).Float64() * 2 * math.Pi
}

// Generate computes the value of spec at a tick. It is a pure function of
// its arguments.
func Generate(seed, tick uint64, spec SensorSpec, env Environment) float64 {
	rng := sensorRNG(seed, tick, spec.ID)
	noise := (rng.Float64() - 0.5) * spec.Variance

	var v float64
	switch spec.Type {
	case TypeTemperature:
		v = spec.Base + 3*env.Diurnal + noise
	case TypeHumidity:
		v = clamp(spec.Base-2*env.Diurnal+noise, 0, 100)
	case TypeLight:
		v = math.Max(0, spec.Base+300*env.Sun+noise)
	case TypeMotion:
		base := 1.0
		if env.Active {
			base = 4
		}
		spike := 0.0
		if rng.Float64() < 0.1 {
			spike = 5
		}
		v = math.Max(0, base+spike+noise)
	case TypeAirQuality:
		traffic := 0.0
		if env.RushHour {
			traffic = 30
		}
		v = math.Max(0, spec.Base+traffic+noise)
	default:
		trend := math.Sin(2*math.Pi*float64(tick%trendPeriod)/trendPeriod + phase(seed, spec.ID))
		v = spec.Base + trend*spec.Variance + noise
	}
	return round2(v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
