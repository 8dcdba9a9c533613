package domain

// ClaimResult is the outcome of one TryClaim attempt.
//
// Cached means the work was already finished and Result holds its output;
// no claim was taken. Claimed means the caller now owns the key until it
// calls Complete or Release, or the claim TTL lapses. Neither set means
// another worker currently owns the key.
type ClaimResult struct {
	Claimed bool
	Cached  bool
	Result  string
}
