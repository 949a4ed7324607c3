// Package preamble rewrites a paper's macro preamble into a form the KaTeX-based
// compiler accepts.
package preamble

import (
	"regexp"
	"strings"

	"arxiv2mathml/internal/types"
)

// Rule is a literal substring substitution
type Rule struct {
	Match   string
	Replace string
}

// Apply replaces every occurrence of r.Match in s
func (r Rule) Apply(s string) string {
	return strings.ReplaceAll(s, r.Match, r.Replace)
}

// ApplyRules applies rules in order. A rule sees the output of the rules before it.
func ApplyRules(s string, rules []Rule) string {
	for _, r := range rules {
		s = r.Apply(s)
	}
	return s
}

// hotfix redefines macros that carry no meaning for a formula but break the compiler.
// It precedes the paper's own lines so that the paper's definitions win.
var hotfix = []string{
	`\newcommand{\label}[1]{}`,
	`\def \let {\def}`,
	`\newcommand{\mbox}[1]{\text{#1}}`,
	`\newcommand{\sbox}[1]{\text{#1}}`,
	`\newcommand{\hbox}[1]{\text{#1}}`,
	`\newcommand{\nonumber}{}`,
	`\newcommand{\notag}{}`,
	`\newcommand{\value}[1]{#1}`,
	`\newcommand{\todo}{}`,
	`\def{\cal}{\mathcal}`,
	`\def{\mathds}{\mathbb}`,
	`\def{\mathbbm}{\mathbb}`,
	`\newcommand{\scalebox}[1]{#1}`,
	`\newcommand{\vspace}[1]{}`,
	`\newcommand{\ensuremath}{}`,
	`\newcommand{\hfill}{}`,
	`\newcommand{\footnote}[1]{}`,
	`\newcommand{\footnotemark}[1]{}`,
	`\newcommand{\marginpar}[1]{}`,
	`\newcommand{\xspace}{}`,
	`\newcommand{\norm}[1]{\lVert #1 \rVert}`,
	`\newcommand{\lefteqn}[1]{#1}`,
	`\newcommand{\textsc}[1]{\text{#1}}`,
	`\newcommand{\newtheorem}[2]{}`,
	`\newcommand{\par}{ \\ }`,
	`\newcommand{\vskip}{}`,
	`\newcommand{\baselineskip}{}`,
	`\newcommand{\textsuperscript}[1]{^{#1}}`,
	`\newcommand{\title}[1]{}`,
	`\newcommand{\author}[1]{}`,
	`\newcommand{\makeatother}{}`,
	`\newcommand{\E}{\mathbb{E}}`,
}

// lineRules run on every paper line before the hotfix block is prepended
var lineRules = []Rule{
	{Match: `\boldmath`, Replace: `\bf`},
	{Match: `\DeclareMathOperator`, Replace: `\newcommand`},
}

// blockRules run once on the joined preamble
var blockRules = []Rule{
	{Match: `\newcommand*`, Replace: `\newcommand`},
}

// defBracket matches `\def\foo[#1]`. KaTeX cannot parse the bracketed parameter.
var defBracket = regexp.MustCompile(`(\\def\s?\\(?:\w|\s)*)(\[#1\])`)

// Hotfix returns a copy of the hotfix block
func Hotfix() []string {
	out := make([]string, len(hotfix))
	copy(out, hotfix)
	return out
}

// Normalizer turns preamble lines into the single macro block sent to the compiler
type Normalizer struct {
	experimental bool
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithExperimental enables the \def bracket-argument rewrite
func WithExperimental(enabled bool) Option {
	return func(n *Normalizer) {
		n.experimental = enabled
	}
}

// NewNormalizer creates a Normalizer
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Experimental reports whether the \def rewrite is enabled
func (n *Normalizer) Experimental() bool {
	return n.experimental
}

// Normalize rewrites each line, prepends the hotfix block and joins everything into
// one newline-separated block. It never fails.
func (n *Normalizer) Normalize(lines []string) string {
	full := make([]string, 0, len(hotfix)+len(lines))
	full = append(full, hotfix...)
	for _, line := range lines {
		full = append(full, n.NormalizeLine(line))
	}
	return ApplyRules(types.JoinPreamble(full), blockRules)
}

// NormalizeLine applies the per-line rules to a single paper line
func (n *Normalizer) NormalizeLine(line string) string {
	line = ApplyRules(line, lineRules)
	if n.experimental {
		line = FormatDef(line)
	}
	return line
}

// FormatDef rewrites `\def\foo[#1]{body}` into `\def\foo#1{body}`. Lines that do not
// start with such a definition are returned unchanged.
func FormatDef(line string) string {
	m := defBracket.FindStringSubmatchIndex(line)
	if m == nil || m[0] != 0 {
		return line
	}
	head := line[m[2]:m[3]]
	residual := defBracket.ReplaceAllLiteralString(line, "")
	return head + "#1" + residual
}
