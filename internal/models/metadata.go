package models

// ResultMetadata is the closed set of structured payloads an agent can attach
// to its result. The unexported marker keeps the union closed to this package;
// consumers type-switch on the concrete variant.
type ResultMetadata interface {
	resultMetadata()
}

// RecordDirective asks the reconciler to record a single project item.
type RecordDirective struct {
	ShouldRecord bool      `json:"should_record"`
	Item         string    `json:"item"`
	State        ItemState `json:"state"`
	Confidence   int       `json:"confidence"`
}

// BatchRecordDirective asks the reconciler to record several items at once.
type BatchRecordDirective struct {
	Items []RecordDirective `json:"items_to_record"`
}

// QualityFinding is a quality or consistency audit of the current state.
type QualityFinding struct {
	Issues []string `json:"issues"`
	Score  int      `json:"score"` // 0-100
}

// GapReport lists undecided areas the conversation has not covered.
type GapReport struct {
	Gaps []string `json:"gaps"`
}

// ResearchSummary carries the sources behind a research reply.
type ResearchSummary struct {
	Sources []string `json:"sources"`
}

// VerificationOutcome reports whether an utterance is a firm decision worth
// recording. The recorder step depends on a successful verification.
type VerificationOutcome struct {
	IsDecision bool   `json:"is_decision"`
	Restated   string `json:"restated"`
	Confidence int    `json:"confidence"`
}

func (RecordDirective) resultMetadata()      {}
func (BatchRecordDirective) resultMetadata() {}
func (QualityFinding) resultMetadata()       {}
func (GapReport) resultMetadata()            {}
func (ResearchSummary) resultMetadata()      {}
func (VerificationOutcome) resultMetadata()  {}
