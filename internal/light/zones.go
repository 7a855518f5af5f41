package light

import (
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// mergeZonesLocked folds a device report of block starting at index into
// the cached zones of a strip with count zones.
//
// The cache is rebuilt only when the count changes or the reported range
// differs from what is cached. A report touching any zone that was painted
// by this client within ClientChangeTimeout is dropped whole.
func (l *Light) mergeZonesLocked(count, index int, block []protocol.HSBK, now time.Time, changes []Change) []Change {
	n := 0
	if index < count {
		n = min(len(block), count-index)
	}
	firstAfter := index + n

	for i := index; i < firstAfter; i++ {
		if stamp, ok := l.zoneStamps[i]; ok && now.Sub(stamp) <= ClientChangeTimeout {
			return changes
		}
	}

	cur := l.state.Zones
	if cur.Count == count && firstAfter <= len(cur.Colors) && colorsEqual(cur.Colors[index:firstAfter], block[:n]) {
		return changes
	}

	colors := make([]protocol.HSBK, count)
	for i := range colors {
		switch {
		case i >= index && i < firstAfter:
			colors[i] = block[i-index]
		case i < len(cur.Colors):
			colors[i] = cur.Colors[i]
		default:
			colors[i] = DefaultColor
		}
	}

	return l.forceLocked(PropertyZones, Zones{Count: count, Colors: colors}, changes)
}

// paintZones optimistically sets zones start..end (inclusive) to color.
// Painting from zone 0 also sets the light's main colour.
func (l *Light) paintZones(start, end int, color protocol.HSBK) {
	now := l.now()

	l.mu.Lock()
	cur := l.state.Zones
	start = max(0, start)
	after := min(cur.Count, end+1)

	var changes []Change
	if start < after {
		zones := cur.clone()
		for i := start; i < after; i++ {
			zones.Colors[i] = color
			l.zoneStamps[i] = now
		}
		l.stamps[PropertyZones] = now
		changes = l.forceLocked(PropertyZones, zones, changes)
	}
	if start == 0 {
		changes = l.updateLocked(SourceClient, PropertyColor, color, now, changes)
	}
	l.mu.Unlock()

	l.notify(changes)
}
