package domain

import "updown-monitor/internal/event"

// VolumeIncrement is an aggregate volume delta forwarded fire-and-forget
// to the volume sink. Corresponds to the volume_increments table.
type VolumeIncrement struct {
	Side      event.Side
	Amount    int64 // currency minor units
	Shares    int64 // share minor units
	Timestamp int64 // Unix timestamp in milliseconds
}
