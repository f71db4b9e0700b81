package model

import "time"

// Side labels written to the sink.
const (
	SideBid     = "bid"
	SideAsk     = "ask"
	SideUnknown = "unknown"
)

// Raw book entry type codes reported by the terminal.
const (
	TypeBid int32 = 1
	TypeAsk int32 = 2
)

// BookLevel is one price level of the order book as read from the terminal.
type BookLevel struct {
	Type      int32   // Raw book entry type code
	Price     float64 // Level price
	Volume    int64   // Volume in integer units
	VolumeDbl float64 // Volume with extended precision
}

// Side returns the side label derived from the level's type code.
func (l BookLevel) Side() string {
	return SideLabel(l.Type)
}

// SideLabel maps a raw type code to its side label.
func SideLabel(typ int32) string {
	switch typ {
	case TypeBid:
		return SideBid
	case TypeAsk:
		return SideAsk
	default:
		return SideUnknown
	}
}

// Snapshot is the ordered set of book levels for one symbol at one instant.
// An empty Snapshot is a legal poll result meaning no levels are available.
type Snapshot struct {
	Symbol string
	Levels []BookLevel
}

// Empty reports whether the snapshot carries no levels.
func (s Snapshot) Empty() bool {
	return len(s.Levels) == 0
}

// Record is the sink-facing projection of one BookLevel.
type Record struct {
	Symbol    string
	Side      string    // "bid", "ask" or "unknown"
	Level     int       // 0-based rank inside the snapshot
	Type      int32     // Raw type code
	Price     float64
	Volume    int64
	VolumeDbl float64
	Timestamp time.Time // Capture instant shared by the whole snapshot
	Timezone  string    // Configured timezone label, verbatim
}
