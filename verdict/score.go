// Package verdict turns free-text model output into an authenticity score and
// a verification status. It is pure so prompt changes never touch callers.
package verdict

import (
	"regexp"
	"strconv"
)

// Status is the classification derived from an authenticity score.
type Status string

// Status values stored on reports and broadcast to subscribers.
const (
	StatusVerified  Status = "verified"
	StatusFake      Status = "fake"
	StatusUncertain Status = "uncertain"
)

// DefaultScore is the neutral midpoint used when no numeric score can be
// parsed out of the model's answer.
const DefaultScore = 50

// scorePattern matches the ways models tend to phrase a 0-100 score:
// "85/100", "score: 42" (case-insensitive, optional colon), or "63%".
var scorePattern = regexp.MustCompile(`(?i)(\d{1,3})/100|score:?\s*(\d{1,3})|(\d{1,3})%`)

// ParseScore extracts the first score mentioned in text. The second return is
// false when no pattern matched and the DefaultScore was used.
func ParseScore(text string) (int, bool) {
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return DefaultScore, false
	}
	for _, group := range m[1:] {
		if group == "" {
			continue
		}
		n, err := strconv.Atoi(group)
		if err != nil {
			continue
		}
		return n, true
	}
	return DefaultScore, false
}

// Classify maps a score to a Status: >=70 verified, <=30 fake, else uncertain.
func Classify(score int) Status {
	switch {
	case score >= 70:
		return StatusVerified
	case score <= 30:
		return StatusFake
	default:
		return StatusUncertain
	}
}
