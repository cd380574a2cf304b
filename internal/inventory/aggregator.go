// Package inventory aggregates raw tag sightings into per-EPC statistics
// for the current inventory run. Nothing here is persisted; Clear or a new
// run wipes the table.
package inventory

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sighting is one raw decoded tag read.
type Sighting struct {
	EPC     string
	Antenna int
	RSSI    int
	Seen    time.Time
}

// Tag is the running aggregate for one EPC.
type Tag struct {
	EPC       string    `json:"epc"`
	Count     int       `json:"count"`
	RSSI      int       `json:"rssi"`
	Antennas  []int     `json:"antennas"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Aggregator folds sightings into per-EPC aggregates and fans each raw
// sighting out through an optional callback. Snapshot order is the
// insertion order of first sightings.
type Aggregator struct {
	log *logrus.Entry

	mu    sync.Mutex
	tags  map[string]*Tag
	order []string

	onSighting func(Sighting)
}

// New returns an empty aggregator. onSighting, when non-nil, is invoked
// once per ingested sighting, after the aggregate has been updated.
func New(log *logrus.Entry, onSighting func(Sighting)) *Aggregator {
	return &Aggregator{
		log:        log,
		tags:       make(map[string]*Tag),
		onSighting: onSighting,
	}
}

// Ingest merges one sighting: count increments, RSSI keeps the maximum,
// the antenna set grows by union, last-seen advances.
func (a *Aggregator) Ingest(s Sighting) {
	if s.EPC == "" {
		return
	}

	a.mu.Lock()
	tag, ok := a.tags[s.EPC]
	if !ok {
		tag = &Tag{
			EPC:       s.EPC,
			RSSI:      s.RSSI,
			FirstSeen: s.Seen,
		}
		a.tags[s.EPC] = tag
		a.order = append(a.order, s.EPC)
	}
	tag.Count++
	tag.LastSeen = s.Seen
	if s.RSSI > tag.RSSI {
		tag.RSSI = s.RSSI
	}
	if !containsInt(tag.Antennas, s.Antenna) {
		tag.Antennas = append(tag.Antennas, s.Antenna)
	}
	a.mu.Unlock()

	if a.onSighting != nil {
		a.onSighting(s)
	}
}

// Snapshot returns the aggregates in first-sighting order. The returned
// slice is a copy; later ingests do not mutate it.
func (a *Aggregator) Snapshot() []Tag {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Tag, 0, len(a.order))
	for _, epc := range a.order {
		tag := a.tags[epc]
		cp := *tag
		cp.Antennas = append([]int(nil), tag.Antennas...)
		out = append(out, cp)
	}
	return out
}

// Unique returns the number of distinct EPCs seen this run.
func (a *Aggregator) Unique() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Total returns the total sighting count across all EPCs.
func (a *Aggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, tag := range a.tags {
		total += tag.Count
	}
	return total
}

// Clear drops all aggregates.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.tags = make(map[string]*Tag)
	a.order = nil
	a.mu.Unlock()

	if a.log != nil {
		a.log.Debug("tag aggregates cleared")
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
