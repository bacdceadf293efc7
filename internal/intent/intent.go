// Package intent implements built-in transcript matching that can consume
// a dialog turn without ever reaching the language model (spec.md section
// 4.6: "it performs intent matching first; if the intent handler consumes
// the turn, no further action is taken"). Grounded on original_source's
// handle_user_intent call contract in receiveAudioHandle.py's startToChat:
// a boolean "handled" short-circuits the LLM/chat path.
package intent

import (
	"context"
	"strings"
)

// Rule matches a transcript by keyword and produces a fixed response.
type Rule struct {
	Keywords []string
	Response string
}

// Matcher is a small ordered rule table. It does not call any provider and
// never fails; Match only returns an error if ctx is already cancelled.
type Matcher struct {
	rules []Rule
}

// New builds a Matcher from an ordered rule set. The first matching rule
// wins.
func New(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Default returns the built-in rule set: stop-listening and reset-history
// commands a device can always reach without round-tripping to the LLM.
func Default() *Matcher {
	return New([]Rule{
		{Keywords: []string{"stop listening", "go to sleep", "不要再听了"}, Response: ""},
		{Keywords: []string{"forget everything", "clear history", "忘记之前的对话"}, Response: "好的，已清空对话记录。"},
	})
}

// Match checks transcript against every rule in order.
func (m *Matcher) Match(ctx context.Context, transcript string) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	lower := strings.ToLower(strings.TrimSpace(transcript))
	if lower == "" {
		return false, "", nil
	}
	for _, rule := range m.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true, rule.Response, nil
			}
		}
	}
	return false, "", nil
}
