package reminder

import (
	"strings"

	"golang.org/x/text/cases"
)

// ReplyClass is the interpretation of a confirmation reply.
type ReplyClass int

const (
	ReplyUnrecognized ReplyClass = iota
	ReplyAffirmative
	ReplyNegative
)

func (c ReplyClass) String() string {
	switch c {
	case ReplyAffirmative:
		return "affirmative"
	case ReplyNegative:
		return "negative"
	default:
		return "unrecognized"
	}
}

var (
	affirmativeTokens = []string{"yes", "نعم"}
	negativeTokens    = []string{"no", "لا"}
)

// ClassifyReply matches text case-insensitively against the fixed bilingual
// token sets. Only an exact token (after trimming) counts.
func ClassifyReply(text string) ReplyClass {
	folded := cases.Fold().String(strings.TrimSpace(text))
	for _, token := range affirmativeTokens {
		if folded == token {
			return ReplyAffirmative
		}
	}
	for _, token := range negativeTokens {
		if folded == token {
			return ReplyNegative
		}
	}
	return ReplyUnrecognized
}
