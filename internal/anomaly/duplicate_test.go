package anomaly_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/anomaly"
	"ledgerlens/internal/config"
)

func newIndex(t *testing.T, mutate func(*config.AnomalyConfig)) *anomaly.DuplicateIndex {
	t.Helper()
	cfg := config.Default().Anomaly
	if mutate != nil {
		mutate(&cfg)
	}
	return anomaly.NewDuplicateIndex(cfg, nil)
}

func profile(id, vendor string, amount float64, day int) anomaly.Profile {
	date := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
	return anomaly.Profile{
		DocumentID:      id,
		VendorRaw:       vendor,
		VendorCanonical: vendor,
		IssueDate:       &date,
		Amount:          &amount,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestDuplicateIndex_Match(t *testing.T) {
	idx := newIndex(t, nil)

	a := profile("D1", "ACME Corp", 100.00, 1)
	idx.Record(a)

	t.Run("within_all_tolerances", func(t *testing.T) {
		b := profile("D2", "Acme  Corp.", 100.30, 2)
		assert.Equal(t, []string{"D1"}, idx.Query(&b))
	})

	t.Run("amount_outside_tolerance", func(t *testing.T) {
		b := profile("D3", "ACME Corp", 101.00, 2)
		assert.Empty(t, idx.Query(&b))
	})

	t.Run("date_outside_tolerance", func(t *testing.T) {
		b := profile("D4", "ACME Corp", 100.00, 10)
		assert.Empty(t, idx.Query(&b))
	})

	t.Run("dissimilar_vendor", func(t *testing.T) {
		b := profile("D5", "Initech Solutions", 100.00, 1)
		assert.Empty(t, idx.Query(&b))
	})

	t.Run("missing_amount_matches_nothing", func(t *testing.T) {
		b := profile("D6", "ACME Corp", 100.00, 1)
		b.Amount = nil
		assert.Empty(t, idx.Query(&b))
	})

	t.Run("missing_date_does_not_block", func(t *testing.T) {
		b := profile("D7", "ACME Corp", 100.00, 1)
		b.IssueDate = nil
		assert.Equal(t, []string{"D1"}, idx.Query(&b))
	})
}

func TestDuplicateIndex_TaxCriterion(t *testing.T) {
	idx := newIndex(t, nil)

	a := profile("D1", "ACME Corp", 100.00, 1)
	tax := 13.0
	a.TaxAmount = &tax
	idx.Record(a)

	t.Run("both_present_within_tolerance", func(t *testing.T) {
		b := profile("D2", "ACME Corp", 100.00, 1)
		closeTax := 13.4
		b.TaxAmount = &closeTax
		assert.Equal(t, []string{"D1"}, idx.Query(&b))
	})

	t.Run("both_present_outside_tolerance", func(t *testing.T) {
		b := profile("D3", "ACME Corp", 100.00, 1)
		farTax := 20.0
		b.TaxAmount = &farTax
		assert.Empty(t, idx.Query(&b))
	})

	t.Run("one_missing_skips_criterion", func(t *testing.T) {
		b := profile("D4", "ACME Corp", 100.00, 1)
		assert.Equal(t, []string{"D1"}, idx.Query(&b))
	})
}

func TestDuplicateIndex_Symmetry(t *testing.T) {
	a := profile("A", "ACME Corp", 100.00, 1)
	b := profile("B", "Acme  Corp.", 100.30, 2)

	first := newIndex(t, nil)
	first.Record(a)
	assert.Equal(t, []string{"A"}, first.Query(&b))

	second := newIndex(t, nil)
	second.Record(b)
	assert.Equal(t, []string{"B"}, second.Query(&a))
}

func TestDuplicateIndex_NoSelfMatch(t *testing.T) {
	idx := newIndex(t, nil)
	a := profile("D1", "ACME Corp", 100.00, 1)
	idx.Record(a)
	assert.Empty(t, idx.Query(&a))
}

func TestDuplicateIndex_QueryAndRecord(t *testing.T) {
	t.Run("second_call_sees_the_first", func(t *testing.T) {
		idx := newIndex(t, nil)
		first := idx.QueryAndRecord(profile("D1", "ACME Corp", 100.00, 1))
		assert.Empty(t, first)

		second := idx.QueryAndRecord(profile("D2", "Acme  Corp.", 100.30, 2))
		assert.Equal(t, []string{"D1"}, second)
		assert.Equal(t, 2, idx.Len())
	})

	// Identical profiles submitted concurrently must pair up: query and
	// record happen under one lock, so every call after the first serialized
	// one sees at least one match.
	t.Run("concurrent_identical_submissions_pair_up", func(t *testing.T) {
		idx := newIndex(t, nil)

		const workers = 8
		results := make([][]string, workers)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				results[w] = idx.QueryAndRecord(profile(fmt.Sprintf("D%d", w), "ACME Corp", 100.00, 1))
			}(w)
		}
		wg.Wait()

		total := 0
		empty := 0
		for _, matches := range results {
			total += len(matches)
			if len(matches) == 0 {
				empty++
			}
		}
		assert.Equal(t, workers*(workers-1)/2, total)
		assert.Equal(t, 1, empty, "only the first serialized call may come back empty")
	})
}

func TestNewDuplicateIndex_GuardsCapacity(t *testing.T) {
	idx := newIndex(t, func(cfg *config.AnomalyConfig) {
		cfg.DuplicateBufferSize = 0
	})

	assert.NotPanics(t, func() {
		idx.Record(profile("D1", "ACME Corp", 100.00, 1))
		idx.Record(profile("D2", "ACME Corp", 100.00, 1))
	})
	assert.Equal(t, 1, idx.Len())
}

func TestDuplicateIndex_FIFOEviction(t *testing.T) {
	idx := newIndex(t, func(cfg *config.AnomalyConfig) {
		cfg.DuplicateBufferSize = 2
	})

	idx.Record(profile("D1", "ACME Corp", 100.00, 1))
	idx.Record(profile("D2", "ACME Corp", 100.00, 1))
	idx.Record(profile("D3", "ACME Corp", 100.00, 1))
	require.Equal(t, 2, idx.Len())

	// D1 is the oldest and was evicted regardless of matching.
	q := profile("Q", "ACME Corp", 100.00, 1)
	assert.ElementsMatch(t, []string{"D2", "D3"}, idx.Query(&q))
}
