package policy

import "regexp"

// SafeRedirectReply is returned instead of calling the provider when the
// user's input trips the inbound filter.
const SafeRedirectReply = "I appreciate you reaching out. I'm here to support your growth and well-being. Let's focus on something constructive."

// SupportReply replaces a whole reply that mentions harm. Phrase substitution
// is not used there because it can invert the meaning of a negated sentence.
const SupportReply = "It sounds like things might be really hard right now. You deserve support, so please reach out to someone you trust or a local crisis line."

// Matching is plain case-insensitive substring matching: "skill" trips "kill".
var (
	inboundPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)suicid`),
		regexp.MustCompile(`(?i)self[- ]harm`),
		regexp.MustCompile(`(?i)kill`),
		regexp.MustCompile(`(?i)romanc`),
		regexp.MustCompile(`(?i)exclusive relationship`),
		regexp.MustCompile(`(?i)sex`),
	}
	outboundHarmPattern = regexp.MustCompile(`(?i)harm yourself|take your life|end yourself|suicide|self-harm`)
	outboundPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)i love you|i'm in love|romantic|dating you|exclusive relationship|sexually|intimate`),
		outboundHarmPattern,
	}
)

type substitution struct {
	pattern *regexp.Regexp
	with    string
}

// Longer phrases come first so a shorter match cannot split them.
var replySubstitutions = []substitution{
	{regexp.MustCompile(`(?i)i'm in love with you|i love you`), "I care about you"},
	{regexp.MustCompile(`(?i)i'm in love`), "I care"},
	{regexp.MustCompile(`(?i)exclusive relationship|dating you|romantic partner`), "friend and companion"},
	{regexp.MustCompile(`(?i)sexually|intimate|romantic feelings|romantic`), "supportive"},
}

// SafetyFilter holds the inbound and outbound content checks.
// It is stateless and safe for concurrent use.
type SafetyFilter struct {
	inbound       []*regexp.Regexp
	outbound      []*regexp.Regexp
	harm          *regexp.Regexp
	substitutions []substitution
}

func NewSafetyFilter() *SafetyFilter {
	return &SafetyFilter{
		inbound:       inboundPatterns,
		outbound:      outboundPatterns,
		harm:          outboundHarmPattern,
		substitutions: replySubstitutions,
	}
}

// PreCheck reports whether user input must not reach the provider.
func (f *SafetyFilter) PreCheck(text string) bool {
	return matchesAny(f.inbound, text)
}

// PostCheck reports whether a candidate reply needs sanitizing.
func (f *SafetyFilter) PostCheck(text string) bool {
	return matchesAny(f.outbound, text)
}

// Sanitize rewrites flagged phrasing into safe equivalents. The result never
// trips PostCheck.
func (f *SafetyFilter) Sanitize(text string) string {
	if f.harm.MatchString(text) {
		return SupportReply
	}
	out := text
	for _, s := range f.substitutions {
		out = s.pattern.ReplaceAllString(out, s.with)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
