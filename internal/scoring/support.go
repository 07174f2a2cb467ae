package scoring

// SupportScorer reports the support component of the health score.
//
// There is no ticketing integration yet, so every account reports the same
// fixed score. This is a known simplification: the interface is kept so the
// health engine doesn't change when a real signal lands.
type SupportScorer struct{}

// NewSupportScorer creates the placeholder support scorer.
func NewSupportScorer() *SupportScorer {
	return &SupportScorer{}
}

// placeholderSupportScore is the fixed support score reported for every
// account until a ticketing integration exists.
const placeholderSupportScore = 75

// Score returns the account's 0-100 support score.
func (s *SupportScorer) Score(accountID string) int {
	return placeholderSupportScore
}
