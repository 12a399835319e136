package models

// Fragment is one extracted piece of a question with the extractor's
// confidence in it, in [0,1].
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Set reports whether the fragment captured anything.
func (f Fragment) Set() bool { return f.Text != "" }

// ExtractedEntities is the lexical extractor's view of a question: candidate
// fragments plus indicator flags the downstream resolvers branch on. Low
// confidence never fails extraction; callers decide whether to proceed.
type ExtractedEntities struct {
	Company       Fragment `json:"company"`
	Metric        Fragment `json:"metric"`
	Period        Fragment `json:"period"`
	Consolidation Fragment `json:"consolidation"`

	HasRelativePeriod      bool   `json:"has_relative_period"`
	HasDissectionIndicator bool   `json:"has_dissection_indicator"`
	DissectionGroupLabel   string `json:"dissection_group_label,omitempty"`
}

// ResolvedQuerySpec is the validated identifier triple plus its context, the
// contract handed to the query builder. Every field has been verified
// against the metadata snapshot, and the head against live data.
type ResolvedQuerySpec struct {
	Company         CompanyContext `json:"company"`
	Head            MetricHead     `json:"head"`
	Period          ResolvedPeriod `json:"period"`
	ConsolidationID int            `json:"consolidation_id"`
}

// Validate checks the cross-field invariants the builder relies on.
func (s ResolvedQuerySpec) Validate() error {
	if err := s.Head.Validate(); err != nil {
		return err
	}
	return s.Period.Validate()
}
