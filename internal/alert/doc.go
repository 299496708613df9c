// Package alert turns the sensor reading stream into edge-triggered alerts.
//
// Each sensor carries a severity state (normal, warning, critical). A
// reading is critical when it falls inside the critical range of its sensor
// type, otherwise warning when inside the warning range, otherwise normal.
// Ranges are inclusive. Moving up a level raises one alert; staying at a
// level raises nothing; moving down records a recovery. Readings from
// simulated and external sensors are treated alike.
package alert
