package classify

import (
	"regexp"
	"strings"
)

// OwnerFinanceResult reports the strict detector's outcome. Matched holds the
// normalized form of every qualifying phrase found; Primary is the first.
type OwnerFinanceResult struct {
	Qualifies bool
	Matched   []string
	Primary   string
}

// qualifying phrases, written with flexible separators so "owner-financing",
// "owner  financing" and "owner_financing" all hit. Each pattern carries the
// normalized keyword reported on a match.
var ownerFinancePatterns = []struct {
	re      *regexp.Regexp
	keyword string
}{
	{regexp.MustCompile(`(?i)\bowner[\s\-_/]*financ(?:e|ed|ing)\b`), "owner financing"},
	{regexp.MustCompile(`(?i)\bseller[\s\-_/]*financ(?:e|ed|ing)\b`), "seller financing"},
	{regexp.MustCompile(`(?i)\bcreative[\s\-_/]*financing\b`), "creative financing"},
	{regexp.MustCompile(`(?i)\bowner[\s\-_/]*(?:will|may|can)[\s\-_/]*carry\b`), "owner will carry"},
	{regexp.MustCompile(`(?i)\bseller[\s\-_/]*(?:will|may|can)[\s\-_/]*carry\b`), "seller will carry"},
	{regexp.MustCompile(`(?i)\bowner[\s\-_/]*carry\b`), "owner carry"},
	{regexp.MustCompile(`(?i)\bseller[\s\-_/]*carry\b`), "seller carry"},
	{regexp.MustCompile(`(?i)\bowner[\s\-_/]*terms\b`), "owner terms"},
	{regexp.MustCompile(`(?i)\bseller[\s\-_/]*terms\b`), "seller terms"},
	{regexp.MustCompile(`(?i)\bfinancing[\s\-_/]*available[\s\-_/]*(?:from|by|through)[\s\-_/]*(?:the[\s\-_/]*)?(?:owner|seller)\b`), "financing available from owner"},
	{regexp.MustCompile(`(?i)\brent[\s\-_/]*to[\s\-_/]*own\b`), "rent to own"},
	{regexp.MustCompile(`(?i)\blease[\s\-_/]*(?:to[\s\-_/]*own|option|purchase)\b`), "lease option"},
	{regexp.MustCompile(`(?i)\bcontract[\s\-_/]*for[\s\-_/]*deed\b`), "contract for deed"},
	{regexp.MustCompile(`(?i)\bland[\s\-_/]*contract\b`), "land contract"},
	{regexp.MustCompile(`(?i)\bwrap[\s\-_/]*around[\s\-_/]*mortgage\b`), "wraparound mortgage"},
	{regexp.MustCompile(`(?i)\bsubject[\s\-_/]*to[\s\-_/]*(?:existing[\s\-_/]*)?(?:mortgage|financing|loan)\b`), "subject to financing"},
}

// negations immediately preceding a match disqualify it: "no owner financing",
// "owner financing is not available" style phrasing. Checked within a short
// window before the match that does not cross a sentence boundary.
var negationTerms = []string{
	"no",
	"not",
	"without",
	"cannot",
	"can't",
	"won't",
	"isn't",
	"never",
	"unable to",
	"does not",
	"doesn't",
	"will not",
	"not offering",
	"not open to",
	"not considering",
	"not available",
	"not an option",
	"not interested in",
}

// rejection phrases following a match within its sentence, e.g.
// "owner financing is not available" or "seller financing will not be considered".
var rejectionAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(?:is|are|was|were)?\s*not\b`),
	regexp.MustCompile(`(?i)^\s*(?:is|are)?\s*(?:un)?available\s*:?\s*no\b`),
	regexp.MustCompile(`(?i)^\s*(?:will|would)\s*not\b`),
	regexp.MustCompile(`(?i)^\s*(?:won't|isn't|aren't)\b`),
	regexp.MustCompile(`(?i)^\s*(?:has|have)\s*not\b`),
	regexp.MustCompile(`(?i)^\s*(?:declined|refused|unavailable)\b`),
}

// cashOnlyPatterns disqualify the whole description. A seller demanding cash
// rules out carry terms regardless of what else the remarks say.
var cashOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcash\s*(?:offers?\s*)?only\b`),
	regexp.MustCompile(`(?i)\bcash\s*buyers?\s*only\b`),
	regexp.MustCompile(`(?i)\bmust\s*(?:be\s*|pay\s*)?(?:all\s*)?cash\b`),
	regexp.MustCompile(`(?i)\ball[\s\-]*cash\s*(?:offers?|sale|deal|purchase)\b`),
	regexp.MustCompile(`(?i)\bno\s*(?:owner|seller|creative)[\s\-_/]*financ\w*\b`),
	regexp.MustCompile(`(?i)\bno\s*financing\s*(?:of\s*any\s*kind|offered|available)\b`),
	regexp.MustCompile(`(?i)\bwill\s*not\s*(?:carry|finance|hold\s*(?:a\s*)?(?:note|paper))\b`),
	regexp.MustCompile(`(?i)\bconventional\s*(?:financing|loans?)\s*only\b`),
}

// negationWindow is how far back (in bytes) a negation may sit before a match
// and still disqualify it, sized to the longest negation term plus separator
// room. Sentence boundaries inside the window cut it off.
var negationWindow = func() int {
	n := 0
	for _, t := range negationTerms {
		if len(t) > n {
			n = len(t)
		}
	}
	return n + 4
}()

var sentenceBoundary = regexp.MustCompile(`[.!?;\n]`)

// DetectOwnerFinance applies the strict keyword detector to a free-text
// description. A qualifying phrase survives only if it is not negated in the
// preceding window, not rejected in the remainder of its sentence, and the
// description carries no cash-only demand.
func DetectOwnerFinance(description string) OwnerFinanceResult {
	var res OwnerFinanceResult
	if strings.TrimSpace(description) == "" {
		return res
	}

	for _, p := range cashOnlyPatterns {
		if p.MatchString(description) {
			return res
		}
	}

	seen := map[string]bool{}
	for _, p := range ownerFinancePatterns {
		for _, loc := range p.re.FindAllStringIndex(description, -1) {
			if negatedBefore(description, loc[0]) {
				continue
			}
			if rejectedAfter(description, loc[1]) {
				continue
			}
			if !seen[p.keyword] {
				seen[p.keyword] = true
				res.Matched = append(res.Matched, p.keyword)
			}
		}
	}

	if len(res.Matched) > 0 {
		res.Qualifies = true
		res.Primary = res.Matched[0]
	}
	return res
}

// negatedBefore reports whether a negation term ends just before position
// start, within the window and the same sentence.
func negatedBefore(s string, start int) bool {
	lo := start - negationWindow
	if lo < 0 {
		lo = 0
	}
	window := s[lo:start]
	if idx := sentenceBoundary.FindAllStringIndex(window, -1); len(idx) > 0 {
		window = window[idx[len(idx)-1][1]:]
	}
	window = strings.ToLower(window)
	for _, term := range negationTerms {
		if strings.HasSuffix(strings.TrimRight(window, " \t-:,"), term) {
			return true
		}
	}
	return false
}

// rejectedAfter reports whether the text from end to the close of the current
// sentence rejects the phrase just matched.
func rejectedAfter(s string, end int) bool {
	rest := s[end:]
	if loc := sentenceBoundary.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	for _, p := range rejectionAfterPatterns {
		if p.MatchString(rest) {
			return true
		}
	}
	return false
}
