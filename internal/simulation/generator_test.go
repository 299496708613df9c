package simulation

import (
	"math"
	"testing"
	"time"
)

func TestGenerate_Deterministic(t *testing.T) {
	spec := SensorSpec{ID: "temp_001", Type: TypeTemperature, Base: 24, Variance: 2}
	env := NewEnvironment(time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC))

	a := Generate(42, 1000, spec, env)
	b := Generate(42, 1000, spec, env)
	if a != b {
		t.Errorf("Generate() not deterministic: %v != %v", a, b)
	}

	differs := false
	for tick := uint64(0); tick < 20; tick++ {
		if Generate(42, tick, spec, env) != Generate(43, tick, spec, env) {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("different seeds produced identical sequences")
	}
}

func TestGenerate_Bounds(t *testing.T) {
	tests := []struct {
		name string
		spec SensorSpec
		at   time.Time
		min  float64
		max  float64
	}{
		{
			name: "temperature at noon peaks",
			spec: SensorSpec{ID: "t", Type: TypeTemperature, Base: 24, Variance: 2},
			at:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
			min:  26, max: 28,
		},
		{
			name: "temperature at midnight dips",
			spec: SensorSpec{ID: "t", Type: TypeTemperature, Base: 24, Variance: 2},
			at:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			min:  20, max: 22,
		},
		{
			name: "light at night has no sun",
			spec: SensorSpec{ID: "l", Type: TypeLight, Base: 10, Variance: 50},
			at:   time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC),
			min:  0, max: 35,
		},
		{
			name: "air quality in rush hour",
			spec: SensorSpec{ID: "a", Type: TypeAirQuality, Base: 95, Variance: 15},
			at:   time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC),
			min:  117.5, max: 132.5,
		},
		{
			name: "motion at night is low",
			spec: SensorSpec{ID: "m", Type: TypeMotion, Base: 2, Variance: 1},
			at:   time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC),
			min:  0.5, max: 6.5,
		},
		{
			name: "humidity stays a percentage",
			spec: SensorSpec{ID: "h", Type: TypeHumidity, Base: 99, Variance: 10},
			at:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			min:  0, max: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvironment(tt.at)
			for tick := uint64(0); tick < 200; tick++ {
				v := Generate(7, tick, tt.spec, env)
				if v < tt.min || v > tt.max {
					t.Fatalf("tick %d: value %v outside [%v, %v]", tick, v, tt.min, tt.max)
				}
				if math.Round(v*100)/100 != v {
					t.Fatalf("tick %d: value %v not rounded to 2 decimals", tick, v)
				}
			}
		})
	}
}

func TestNewEnvironment(t *testing.T) {
	tests := []struct {
		hour     int
		active   bool
		rushHour bool
		sunUp    bool
	}{
		{3, false, false, false},
		{8, true, true, true},
		{12, true, false, true},
		{18, true, true, false},
		{23, false, false, false},
	}
	for _, tt := range tests {
		env := NewEnvironment(time.Date(2026, 6, 1, tt.hour, 0, 0, 0, time.UTC))
		if env.Active != tt.active {
			t.Errorf("hour %d: Active = %v, want %v", tt.hour, env.Active, tt.active)
		}
		if env.RushHour != tt.rushHour {
			t.Errorf("hour %d: RushHour = %v, want %v", tt.hour, env.RushHour, tt.rushHour)
		}
		if (env.Sun > 1e-9) != tt.sunUp {
			t.Errorf("hour %d: Sun = %v, want up=%v", tt.hour, env.Sun, tt.sunUp)
		}
	}
}
