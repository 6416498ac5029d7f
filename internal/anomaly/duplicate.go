package anomaly

import (
	"math"
	"sync"

	"ledgerlens/internal/config"
	"ledgerlens/internal/normalize"
)

// DuplicateIndex keeps a bounded FIFO of recently analyzed profiles and
// matches new profiles against them under the multi-criteria fuzzy rule.
// Eviction is strict insertion order, independent of content.
type DuplicateIndex struct {
	scorer           normalize.Scorer
	vendorSimilarity int
	amountTolerance  float64
	taxTolerance     float64
	dateToleranceDay int

	mu       sync.Mutex
	ring     []Profile
	head     int
	size     int
	capacity int
}

// NewDuplicateIndex creates an index with the configured tolerances. A nil
// scorer selects normalize.TokenSetScorer.
func NewDuplicateIndex(cfg config.AnomalyConfig, scorer normalize.Scorer) *DuplicateIndex {
	if scorer == nil {
		scorer = normalize.TokenSetScorer
	}
	capacity := cfg.DuplicateBufferSize
	if capacity < 1 {
		capacity = 1
	}
	return &DuplicateIndex{
		scorer:           scorer,
		vendorSimilarity: cfg.DuplicateVendorSimilarity,
		amountTolerance:  cfg.DuplicateAmountTolerance,
		taxTolerance:     cfg.DuplicateTaxTolerance,
		dateToleranceDay: cfg.DuplicateDateToleranceDays,
		ring:             make([]Profile, capacity),
		capacity:         capacity,
	}
}

// QueryAndRecord matches p against the buffered profiles and then records it,
// both under one lock acquisition. Two concurrent calls with near-identical
// profiles therefore always flag each other: whichever serializes second sees
// the first already recorded.
func (d *DuplicateIndex) QueryAndRecord(p Profile) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := d.queryLocked(&p)
	d.recordLocked(p)
	return matches
}

// Query returns the document ids of buffered profiles that match p. Only
// profiles recorded before this call are considered, so a profile can never
// match itself. Profiles without an amount match nothing.
func (d *DuplicateIndex) Query(p *Profile) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queryLocked(p)
}

// Record appends p to the buffer, evicting the oldest profile when full.
func (d *DuplicateIndex) Record(p Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(p)
}

func (d *DuplicateIndex) queryLocked(p *Profile) []string {
	matches := []string{}
	if p.Amount == nil {
		return matches
	}
	for i := 0; i < d.size; i++ {
		candidate := &d.ring[(d.head+i)%d.capacity]
		if candidate.DocumentID == p.DocumentID {
			continue
		}
		if d.isDuplicate(p, candidate) {
			matches = append(matches, candidate.DocumentID)
		}
	}
	return matches
}

func (d *DuplicateIndex) recordLocked(p Profile) {
	if d.size == d.capacity {
		d.ring[d.head] = p
		d.head = (d.head + 1) % d.capacity
		return
	}
	d.ring[(d.head+d.size)%d.capacity] = p
	d.size++
}

// Len returns the number of buffered profiles.
func (d *DuplicateIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// isDuplicate applies the match rule: vendor similarity over threshold, both
// amounts within tolerance, dates within tolerance when both are present, and
// tax amounts within tolerance when both are present. A missing date on
// either side does not block the match.
func (d *DuplicateIndex) isDuplicate(current, candidate *Profile) bool {
	if d.scorer(current.VendorCanonical, candidate.VendorCanonical) < d.vendorSimilarity {
		return false
	}
	if !valueClose(current.Amount, candidate.Amount, d.amountTolerance) {
		return false
	}
	if !d.dateWithin(current, candidate) {
		return false
	}
	if current.TaxAmount != nil && candidate.TaxAmount != nil {
		if !valueClose(current.TaxAmount, candidate.TaxAmount, d.taxTolerance) {
			return false
		}
	}
	return true
}

func (d *DuplicateIndex) dateWithin(current, candidate *Profile) bool {
	if current.IssueDate == nil || candidate.IssueDate == nil {
		return true
	}
	days := math.Abs(current.IssueDate.Sub(*candidate.IssueDate).Hours()) / 24
	return days <= float64(d.dateToleranceDay)
}

func valueClose(a, b *float64, tolerance float64) bool {
	if a == nil || b == nil {
		return false
	}
	return math.Abs(*a-*b) <= tolerance
}
