package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"ledgerlens/internal/config"
)

var whitespace = regexp.MustCompile(`\s+`)

// nonLetters matches everything that cannot be part of a currency code.
var nonLetters = regexp.MustCompile(`[^A-Za-z]`)

// currencyAliases maps common symbols and alias spellings to ISO 4217 codes.
var currencyAliases = map[string]string{
	"¥":    "CNY",
	"￥":    "CNY",
	"元":    "CNY",
	"RMB":  "CNY",
	"YUAN": "CNY",
	"$":    "USD",
	"US$":  "USD",
	"€":    "EUR",
	"£":    "GBP",
}

// amountNoise lists substrings stripped from amount strings before parsing:
// thousands separators, currency markers, and unit suffixes.
var amountNoise = []string{",", "，", "¥", "￥", "$", "€", "£", "元"}

// dateFormats are probed in order before falling back to a generic ISO
// parse. The lenient month/day forms accept both padded and unpadded digits.
var dateFormats = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"20060102",
}

// Normalizer turns raw extracted field values into stable canonical forms.
// The only mutable state is the bounded vendor alias cache; all methods are
// safe for concurrent use.
type Normalizer struct {
	cfg config.NormalizeConfig

	scorer Scorer

	mu      sync.Mutex
	aliases *lru.Cache[string, string]
}

// New creates a Normalizer. A nil scorer selects TokenSetScorer.
func New(cfg config.NormalizeConfig, scorer Scorer) (*Normalizer, error) {
	if scorer == nil {
		scorer = TokenSetScorer
	}
	aliases, err := lru.New[string, string](cfg.VendorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating vendor alias cache: %w", err)
	}
	return &Normalizer{cfg: cfg, scorer: scorer, aliases: aliases}, nil
}

// Vendor collapses whitespace in raw and resolves it against the alias cache:
// the canonical form of the most similar known alias wins when its score
// exceeds the configured threshold, otherwise raw is registered as a new
// canonical entry. Empty input is returned unchanged.
func (n *Normalizer) Vendor(raw string) string {
	vendor := strings.TrimSpace(whitespace.ReplaceAllString(raw, " "))
	if vendor == "" {
		return ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	bestScore := -1
	bestAlias := ""
	for _, alias := range n.aliases.Keys() {
		if score := n.scorer(vendor, alias); score > bestScore {
			bestScore = score
			bestAlias = alias
		}
	}
	if bestScore > n.cfg.VendorSimilarity {
		// Get moves the winning alias to most-recently-used.
		if canonical, ok := n.aliases.Get(bestAlias); ok {
			return canonical
		}
	}

	n.aliases.Add(vendor, vendor)
	return vendor
}

// Amount parses a numeric or string value into a finite amount. Parenthesized
// values, ASCII or fullwidth, are negated. Unparseable input yields nil.
func (n *Normalizer) Amount(value any) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return finite(float64(v))
	case int64:
		return finite(float64(v))
	case string:
		return parseAmount(v)
	default:
		return parseAmount(fmt.Sprint(v))
	}
}

func parseAmount(raw string) *float64 {
	s := raw
	for _, noise := range amountNoise {
		s = strings.ReplaceAll(s, noise, "")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	} else if strings.HasPrefix(s, "（") && strings.HasSuffix(s, "）") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "（"), "）")
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	if negative {
		amount = -amount
	}
	return finite(amount)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Date normalizes a date string to ISO form (YYYY-MM-DD). CJK date markers and
// dot/slash separators are rewritten before the known formats are probed. On
// failure the original string is returned verbatim; no locale guessing.
func (n *Normalizer) Date(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}

	s := strings.NewReplacer("年", "-", "月", "-", "日", "", ".", "-", "/", "-").Replace(strings.TrimSpace(raw))
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format("2006-01-02")
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.Format("2006-01-02")
	}
	return raw
}

// Currency maps a raw currency marker to a 3-letter code, falling back to the
// configured default when the input is empty or carries no letters.
func (n *Normalizer) Currency(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return n.cfg.DefaultCurrency
	}
	if code, ok := currencyAliases[trimmed]; ok {
		return code
	}
	letters := strings.ToUpper(nonLetters.ReplaceAllString(trimmed, ""))
	if letters == "" {
		return n.cfg.DefaultCurrency
	}
	if code, ok := currencyAliases[letters]; ok {
		return code
	}
	return letters
}
