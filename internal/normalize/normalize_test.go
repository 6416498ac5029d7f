package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/config"
	"ledgerlens/internal/normalize"
)

func newNormalizer(t *testing.T, cacheSize int) *normalize.Normalizer {
	t.Helper()
	n, err := normalize.New(config.NormalizeConfig{
		DefaultCurrency:  "CNY",
		VendorCacheSize:  cacheSize,
		VendorSimilarity: 90,
	}, nil)
	require.NoError(t, err)
	return n
}

func TestAmount(t *testing.T) {
	n := newNormalizer(t, 10)

	tests := []struct {
		name  string
		input any
		want  *float64
	}{
		{"thousands_separator", "1,234.56", ptr(1234.56)},
		{"currency_symbol", "¥1234.56", ptr(1234.56)},
		{"fullwidth_symbol", "￥500", ptr(500.0)},
		{"unit_suffix", "200元", ptr(200.0)},
		{"parenthesized_negative", "(1234.56)", ptr(-1234.56)},
		{"fullwidth_parens", "（88.5）", ptr(-88.5)},
		{"plain_float", 99.9, ptr(99.9)},
		{"plain_int", 42, ptr(42.0)},
		{"garbage", "abc", nil},
		{"empty", "", nil},
		{"nil", nil, nil},
		{"dollar_sign", "$10.00", ptr(10.0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Amount(tc.input)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tc.want, *got, 1e-9)
		})
	}
}

func TestDate(t *testing.T) {
	n := newNormalizer(t, 10)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"iso", "2024-01-15", "2024-01-15"},
		{"slashes", "2024/01/15", "2024-01-15"},
		{"compact", "20240115", "2024-01-15"},
		{"datetime", "2024-01-15 08:30:00", "2024-01-15"},
		{"cjk_markers", "2024年1月15日", "2024-01-15"},
		{"dots", "2024.01.15", "2024-01-15"},
		{"unparseable_verbatim", "sometime last week", "sometime last week"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Date(tc.input))
		})
	}
}

func TestCurrency(t *testing.T) {
	n := newNormalizer(t, 10)

	assert.Equal(t, "CNY", n.Currency("¥"))
	assert.Equal(t, "CNY", n.Currency("rmb"))
	assert.Equal(t, "CNY", n.Currency("元"))
	assert.Equal(t, "USD", n.Currency("$"))
	assert.Equal(t, "USD", n.Currency(" usd "))
	assert.Equal(t, "EUR", n.Currency("EUR"))
	assert.Equal(t, "CNY", n.Currency(""), "empty falls back to default")
	assert.Equal(t, "CNY", n.Currency("123"), "no letters falls back to default")
}

func TestVendor_Canonicalization(t *testing.T) {
	n := newNormalizer(t, 10)

	canonical := n.Vendor("ACME Corp")
	assert.Equal(t, "ACME Corp", canonical)

	t.Run("fuzzy_variants_resolve_to_first_seen", func(t *testing.T) {
		assert.Equal(t, "ACME Corp", n.Vendor("Acme  Corp."))
		assert.Equal(t, "ACME Corp", n.Vendor("acme corp"))
	})

	t.Run("dissimilar_registers_new_canonical", func(t *testing.T) {
		assert.Equal(t, "Initech Solutions", n.Vendor("Initech Solutions"))
	})

	t.Run("whitespace_collapsed", func(t *testing.T) {
		assert.Equal(t, "Stark Industries", n.Vendor("  Stark \t Industries  "))
	})

	t.Run("empty_unchanged", func(t *testing.T) {
		assert.Equal(t, "", n.Vendor(""))
		assert.Equal(t, "", n.Vendor("   "))
	})
}

func TestVendor_CacheEviction(t *testing.T) {
	n := newNormalizer(t, 2)

	require.Equal(t, "Globex Corporation", n.Vendor("Globex Corporation"))
	require.Equal(t, "Initech Solutions", n.Vendor("Initech Solutions"))

	// A hit moves Globex to most-recently-used, so the next insert evicts
	// Initech instead.
	require.Equal(t, "Globex Corporation", n.Vendor("GLOBEX corporation!!"))
	require.Equal(t, "Stark Industries", n.Vendor("Stark Industries"))

	// The touched entry survived eviction.
	assert.Equal(t, "Globex Corporation", n.Vendor("globex CORPORATION"))

	// The evicted alias is gone: its variant registers a brand-new canonical
	// entry instead of resolving to the old one.
	assert.Equal(t, "INITECH SOLUTIONS.", n.Vendor("INITECH SOLUTIONS."))
}

func ptr(v float64) *float64 { return &v }
