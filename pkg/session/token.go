package session

import (
	"strconv"
	"strings"
	"time"
)

// Delimiter separates the survey ID from the timestamp in a token. It must
// never appear inside a survey ID.
const Delimiter = "|"

// NewToken builds surveyID|<unix nanos>. Tokens carry no signature and are
// guessable by anyone who knows the survey ID and roughly when the session
// started.
func NewToken(surveyID string, t time.Time) string {
	return surveyID + Delimiter + strconv.FormatInt(t.UnixNano(), 10)
}

// ParseSurveyID returns the part of token before the first delimiter, or ""
// for an empty token.
func ParseSurveyID(token string) string {
	id, _, _ := strings.Cut(token, Delimiter)
	return id
}
