package ctf

import "fmt"

// NotFoundError reports that no challenge with the given ID exists on the
// platform.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("challenge %q not found", e.ID)
}

// FetchError wraps a transport or parse failure during challenge or
// scoreboard retrieval. Resource names what was being fetched
// ("challenges", "challenge 42", "scoreboard").
type FetchError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.Resource, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError wraps a transport or parse failure during flag submission.
// It always carries the challenge ID and the flag so callers can construct
// an actionable message without inspecting internal state.
type SubmissionError struct {
	ChallengeID string
	Flag        string
	Reason      string
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit flag to challenge %q: %s", e.ChallengeID, e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// UnknownPlatformError reports that detection could not match any registered
// platform, or that a platform name is not registered.
type UnknownPlatformError struct {
	URL  string // attempted URL, when detection failed
	Name string // requested name, when a registry lookup failed
}

func (e *UnknownPlatformError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown platform %q", e.Name)
	}
	return fmt.Sprintf("no known platform detected at %s", e.URL)
}
