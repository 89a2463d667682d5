package models

// TimestampLayout is the display format carried on the wire: weekday,
// day/month, wall clock with seconds zeroed by the sampler.
const TimestampLayout = "Monday 02/01 - 15:04:05"

// Reading is one timestamped temperature sample. Immutable once created;
// owned by the store from creation until a delivery pass drains it.
type Reading struct {
	Timestamp   string
	Temperature float64 // degrees Celsius
}
