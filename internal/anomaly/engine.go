package anomaly

import (
	"fmt"
	"log"
	"strings"
	"time"

	"ledgerlens/internal/config"
	"ledgerlens/internal/normalize"
)

const (
	// mlContamination is the fixed contamination rate of the ML detector.
	mlContamination = 0.03
	// mlDecisionThreshold: decision scores below this flag a finding.
	mlDecisionThreshold = -0.1
)

// Result is the outcome of analyzing one document. Both slices are always
// non-nil; downstream consumers treat their contents as opaque strings. The
// normalized profile rides along so report writers reuse the engine's
// canonicalization instead of redoing it; it stays off the wire.
type Result struct {
	Anomalies  []string `json:"anomalies"`
	Duplicates []string `json:"duplicates"`
	Profile    Profile  `json:"-"`
}

// Engine is the facade over field normalization, fuzzy duplicate detection,
// statistical outlier detection, and the rule set. One instance owns all
// bounded state for the process lifetime and is safe for concurrent use.
type Engine struct {
	cfg        config.AnomalyConfig
	normalizer *normalize.Normalizer
	duplicates *DuplicateIndex
	history    *historyStore
	model      OutlierModel
	rules      []Rule
}

// NewEngine builds an engine from validated configuration. A nil scorer
// selects normalize.TokenSetScorer; a nil model selects an IsolationForest
// when the ML detector is enabled and the no-op model otherwise.
func NewEngine(cfg *config.Config, scorer normalize.Scorer, model OutlierModel) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalizer, err := normalize.New(cfg.Normalize, scorer)
	if err != nil {
		return nil, fmt.Errorf("creating normalizer: %w", err)
	}
	if model == nil {
		if cfg.Anomaly.EnableML {
			model = NewIsolationForest(mlContamination)
		} else {
			model = NoopOutlierModel{}
		}
	}

	e := &Engine{
		cfg:        cfg.Anomaly,
		normalizer: normalizer,
		duplicates: NewDuplicateIndex(cfg.Anomaly, scorer),
		history:    newHistoryStore(cfg.Anomaly.VendorHistorySize, cfg.Anomaly.GlobalHistorySize),
		model:      model,
		rules:      builtinRules(cfg.Anomaly),
	}
	log.Printf("anomaly.Engine: initialized (buffer=%d, vendorHistory=%d, globalHistory=%d, ml=%v)",
		cfg.Anomaly.DuplicateBufferSize, cfg.Anomaly.VendorHistorySize, cfg.Anomaly.GlobalHistorySize, cfg.Anomaly.EnableML)
	return e, nil
}

// Analyze builds a profile from the document's normalized fields, matches it
// against recent submissions, runs the outlier detectors over the amount, and
// evaluates the rule set. Malformed field content is a normal case and never
// produces an error or panic; missing fields just reduce detection power.
//
// Callers must not invoke Analyze twice for the same document id: the second
// call double-counts the document in every bounded buffer.
func (e *Engine) Analyze(documentID string, fields map[string]any) (result Result) {
	result = Result{Anomalies: []string{}, Duplicates: []string{}}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("anomaly.Engine: recovered while analyzing document %s: %v", documentID, r)
		}
	}()

	profile := e.buildProfile(documentID, fields)
	result.Profile = profile

	result.Duplicates = e.duplicates.QueryAndRecord(profile)

	result.Anomalies = append(result.Anomalies, e.amountFindings(&profile)...)
	result.Anomalies = append(result.Anomalies, evaluateRules(e.rules, &profile, fields)...)
	return result
}

func (e *Engine) buildProfile(documentID string, fields map[string]any) Profile {
	vendor := strings.TrimSpace(stringField(fields, "vendor_name"))
	if vendor == "" {
		vendor = UnknownVendor
	}
	category := stringField(fields, "category")
	if category == "" {
		category = stringField(fields, "expense_category")
	}
	issueDate := e.normalizer.Date(stringField(fields, "issue_date"))
	return Profile{
		DocumentID:      documentID,
		VendorRaw:       vendor,
		VendorCanonical: e.normalizer.Vendor(vendor),
		IssueDate:       parseISODate(issueDate),
		IssueDateText:   issueDate,
		Amount:          e.normalizer.Amount(fields["total_amount"]),
		TaxAmount:       e.normalizer.Amount(fields["tax_amount"]),
		Currency:        e.normalizer.Currency(stringField(fields, "currency")),
		Category:        category,
		CreatedAt:       time.Now().UTC(),
	}
}

// amountFindings runs all detectors against the prior history, then the new
// amount is absorbed into the vendor-scoped and global windows.
func (e *Engine) amountFindings(p *Profile) []string {
	if p.Amount == nil {
		return nil
	}
	amount := *p.Amount
	key := p.VendorCanonical
	if key == "" {
		key = "unknown"
	}
	vendorPrior, globalPrior := e.history.observe(key, amount)

	var findings []string
	findings = append(findings, zScoreFinding(vendorPrior, amount, fmt.Sprintf("vendor %q", p.VendorRaw), e.cfg.AmountSigma)...)
	findings = append(findings, zScoreFinding(globalPrior, amount, "global", e.cfg.AmountSigma)...)
	findings = append(findings, madFinding(vendorPrior, amount, p.VendorRaw)...)
	if finding := e.modelFinding(vendorPrior, amount, p.VendorRaw); finding != "" {
		findings = append(findings, finding)
	}
	return findings
}

// modelFinding gates the ML detector on the enable flag and the minimum
// sample count. A model failure of any kind degrades to no finding.
func (e *Engine) modelFinding(prior []float64, amount float64, vendor string) (finding string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("anomaly.Engine: outlier model panicked, skipping: %v", r)
			finding = ""
		}
	}()
	if !e.cfg.EnableML || len(prior) < e.cfg.MLMinSamples {
		return ""
	}
	score, ok := e.model.Score(prior, amount)
	if !ok || score >= mlDecisionThreshold {
		return ""
	}
	return fmt.Sprintf("isolation forest scored vendor %q amount as anomalous (score %.2f)", vendor, score)
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func parseISODate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
