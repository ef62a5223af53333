// Package dismissal decides whether a transcript is a goodbye. The LLM still
// answers the farewell naturally; this only flags that the conversation should
// drop to light sleep once the spoken response finishes.
package dismissal

import "regexp"

var portuguesePatterns = []string{
	`\btchau\b`,
	`\bat[eé]\s+logo\b`,
	`\bat[eé]\s+mais\b`,
	`\badeus\b`,
	`\bpode\s+ir\b`,
	`\bpode\s+desligar\b`,
	`\bvaleu\b`,
	`\bfalou\b`,
	`\bat[eé]\s+depois\b`,
	`\bat[eé]\s+breve\b`,
	`\bat[eé]\s+(a\s+)?pr[oó]xima\b`,
	`\bvai\s+embora\b`,
	`\bpode\s+parar\b`,
	`\bpode\s+dormir\b`,
	`\bvai\s+dormir\b`,
	`\bvou\s+desligar\b`,
	`\best[aá]\s+bom\b`,
	// \b does not treat accented letters as word characters, so anchor on
	// start-of-string or whitespace instead.
	`(?:^|\s)[eé]\s+isso(\s+a[ií])?$`,
}

var englishPatterns = []string{
	`\bgoodbye\b`,
	`\bbye\b`,
	`\bsee\s+you\b`,
	`\bthat'?s\s+all\b`,
	`\bthanks?\s+bye\b`,
	`\bfarewell\b`,
	`\blater\b`,
	`\bcatch\s+you\s+later\b`,
	`\bgotta\s+go\b`,
	`\bhave\s+to\s+go\b`,
	`\btake\s+care\b`,
	`\bgood\s+night\b`,
	`\bsleep\s+now\b`,
	`\bshut\s+down\b`,
	`\bturn\s+off\b`,
	`\bstop\s+listening\b`,
}

var compiled = compile()

func compile() []*regexp.Regexp {
	all := append(append([]string{}, portuguesePatterns...), englishPatterns...)
	out := make([]*regexp.Regexp, len(all))
	for i, p := range all {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// IsDismissal reports whether text contains a farewell phrase. Stateless and
// safe for concurrent use.
func IsDismissal(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Matched returns the patterns that hit, for debug logging.
func Matched(text string) []string {
	if text == "" {
		return nil
	}
	all := append(append([]string{}, portuguesePatterns...), englishPatterns...)
	var hits []string
	for i, re := range compiled {
		if re.MatchString(text) {
			hits = append(hits, all[i])
		}
	}
	return hits
}
