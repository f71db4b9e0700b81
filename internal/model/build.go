package model

import "time"

// BuildRecords projects a snapshot into one Record per level, preserving
// level order. All records share ts.
func BuildRecords(symbol, timezone string, snap Snapshot, ts time.Time) []Record {
	if len(snap.Levels) == 0 {
		return nil
	}

	records := make([]Record, len(snap.Levels))
	for i, level := range snap.Levels {
		records[i] = Record{
			Symbol:    symbol,
			Side:      level.Side(),
			Level:     i,
			Type:      level.Type,
			Price:     level.Price,
			Volume:    level.Volume,
			VolumeDbl: level.VolumeDbl,
			Timestamp: ts,
			Timezone:  timezone,
		}
	}
	return records
}
