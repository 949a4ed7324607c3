// Package repair rewrites single equations to work around LaTeX constructs the
// compiler rejects.
package repair

import (
	"strings"

	"arxiv2mathml/internal/preamble"
)

const (
	alignedBegin = `\begin{aligned}`
	alignedEnd   = `\end{aligned}`

	// alignWindow is how many characters at each end are searched for an existing
	// align-family environment
	alignWindow = 20
)

// envRules strip environments the compiler does not accept outside an align block
var envRules = []preamble.Rule{
	{Match: `\begin{split}`, Replace: ""},
	{Match: `\end{split}`, Replace: ""},
}

// Repairer applies the equation rewrites
type Repairer struct{}

// NewRepairer creates a Repairer
func NewRepairer() *Repairer {
	return &Repairer{}
}

// Repair strips unsupported environments and wraps multi-row content in an
// aligned environment. Repair(Repair(x)) == Repair(x).
func (r *Repairer) Repair(latex string) string {
	latex = preamble.ApplyRules(latex, envRules)
	if NeedsAlignment(latex) {
		return alignedBegin + latex + alignedEnd
	}
	return latex
}

// NeedsAlignment reports whether latex has row or column separators and is not
// already enclosed in an align-family environment. The enclosure test only looks
// at the first and last 20 characters; \left, \tag or dots around the environment
// are tolerated as long as they fit in that window.
func NeedsAlignment(latex string) bool {
	stripped := strings.Trim(latex, " ")
	return hasLineBreak(stripped) && !isAligned(stripped)
}

// hasLineBreak treats any `&` as a column separator unless the text contains an
// escaped angle bracket anywhere.
func hasLineBreak(s string) bool {
	column := strings.Contains(s, "&") && !strings.Contains(s, "&gt") && !strings.Contains(s, "&lt")
	return column || strings.Contains(s, `\\`)
}

func isAligned(s string) bool {
	runes := []rune(s)
	head := runes
	if len(head) > alignWindow {
		head = head[:alignWindow]
	}
	tail := runes
	if len(tail) > alignWindow {
		tail = tail[len(tail)-alignWindow:]
	}
	return strings.Contains(string(head), `\begin{align`) && strings.Contains(string(tail), `\end{align`)
}
