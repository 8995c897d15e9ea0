package intent

// None is the command reported when no candidate clears the threshold.
const None = "none"

// DefaultThreshold is the similarity a candidate must strictly exceed to be accepted.
const DefaultThreshold = 0.55

// Candidate is one command the utterance can resolve to.
type Candidate struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Text is the string embedded for the candidate. Separators are kept even
// when a field is empty.
func (c Candidate) Text() string {
	return c.ID + " " + c.Title + " " + c.Description
}

// Payload is the request read from stdin or an HTTP body.
type Payload struct {
	Transcript string      `json:"transcript,omitempty"`
	Commands   []Candidate `json:"commands,omitempty"`
}

// Decision is the single result line written back to the caller.
type Decision struct {
	Command string  `json:"command"`
	Score   float64 `json:"score"`
	Error   string  `json:"error,omitempty"`
}

// NoMatch is the decision for an empty catalog or input.
func NoMatch() Decision {
	return Decision{Command: None, Score: 0}
}

// Failed is the decision reported for any error.
func Failed(err error) Decision {
	return Decision{Command: None, Score: 0, Error: err.Error()}
}

// Accepted reports whether the decision selected a command.
func (d Decision) Accepted() bool {
	return d.Command != None && d.Error == ""
}
