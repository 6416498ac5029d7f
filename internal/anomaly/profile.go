package anomaly

import "time"

// UnknownVendor labels receipts whose vendor field is missing or blank.
const UnknownVendor = "unknown vendor"

// Profile is the normalized view of one analyzed receipt. It is built fresh
// on every Analyze call and never mutated afterwards; the bounded buffers
// absorb copies, individual profiles are not retained.
type Profile struct {
	DocumentID      string
	VendorRaw       string
	VendorCanonical string
	IssueDate       *time.Time
	// IssueDateText is the normalized date string; unparseable input is
	// carried through verbatim so reports never lose the raw value.
	IssueDateText string
	Amount        *float64
	TaxAmount     *float64
	Currency      string
	Category      string
	CreatedAt     time.Time
}

func (p *Profile) taxRatio() (float64, bool) {
	if p.Amount == nil || *p.Amount == 0 || p.TaxAmount == nil {
		return 0, false
	}
	return *p.TaxAmount / *p.Amount, true
}
