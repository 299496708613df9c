package alert

import (
	"fmt"
	"strconv"
)

// Message renders the human-readable text for an alert.
func Message(sensorType string, value float64, unit, location string) string {
	v := strconv.FormatFloat(value, 'f', -1, 64)
	loc := location

	switch sensorType {
	case "temperature":
		return fmt.Sprintf("Temperature %s%s in %s", v, unit, loc)
	case "humidity":
		return fmt.Sprintf("Humidity %s%s in %s", v, unit, loc)
	case "air_quality":
		return fmt.Sprintf("Poor air quality (AQI: %s) in %s", v, loc)
	case "noise_level":
		return fmt.Sprintf("High noise level %s%s in %s", v, unit, loc)
	case "light_level":
		return fmt.Sprintf("Unusual light level %s%s in %s", v, unit, loc)
	case "motion_intensity":
		return fmt.Sprintf("High motion detected in %s", loc)
	case "gas_level":
		return fmt.Sprintf("Elevated gas level %s%s in %s", v, unit, loc)
	case "pressure":
		return fmt.Sprintf("Pressure reading %s%s", v, unit)
	default:
		return fmt.Sprintf("%s: %s%s", sensorType, v, unit)
	}
}
