// Package reconcile holds the validation-and-remediation core: the
// canonical key derivation used to join deal and quote records, the
// cross-reference index, the issue taxonomy, and the fix session state
// machine. Everything in this package is pure domain logic with no I/O.
package reconcile

import (
	"regexp"
	"strings"
)

var (
	// trailingCounterRe strips a trailing parenthetical counter such as
	// " (2)" that users append when re-issuing a quote.
	trailingCounterRe = regexp.MustCompile(`\s*\(\d+\)\s*$`)

	// codeLabelRe matches a leading alphanumeric document code followed
	// by a separator and a free-text label, e.g.
	// "NY25202 - LST 207 RSS ENDURANCE".
	codeLabelRe = regexp.MustCompile(`^([A-Za-z0-9]+)\s*[-–:]\s*(.+)$`)

	nonAlphanumRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// CanonicalKey reduces a human-entered deal or quote title to the key
// used to join records across platforms. The derivation is deterministic
// and idempotent: applying it to an already-derived key returns the key
// unchanged.
//
// Titles shaped as "<code> - <label>" become "<code>-<label>" with both
// parts lowercased and the label stripped of non-alphanumerics. Titles
// that do not match the pattern fall back to whole-string normalization.
func CanonicalKey(title string) string {
	s := trailingCounterRe.ReplaceAllString(strings.TrimSpace(title), "")

	if m := codeLabelRe.FindStringSubmatch(s); m != nil {
		code := strings.ToLower(m[1])
		label := nonAlphanumRe.ReplaceAllString(strings.ToLower(m[2]), "")
		if label != "" {
			return code + "-" + label
		}
		return code
	}

	return nonAlphanumRe.ReplaceAllString(strings.ToLower(s), "")
}
