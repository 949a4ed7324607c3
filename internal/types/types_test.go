package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreambleRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"empty", []string{}},
		{"single", []string{`\newcommand{\R}{\mathbb{R}}`}},
		{"several", []string{`\def\a{a}`, `\def\b{b}`, `\newcommand{\c}[1]{#1}`}},
		{"whitespace only lines", []string{" ", "\t", `\def\x{x}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.lines, SplitPreamble(JoinPreamble(tt.lines)))
		})
	}
}

func TestLinesUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Lines
		wantErr bool
	}{
		{"array", `["\\def\\a{a}", "\\def\\b{b}"]`, Lines{`\def\a{a}`, `\def\b{b}`}, false},
		{"empty array", `[]`, Lines{}, false},
		{"string", `"\\def\\a{a}\n\n\\def\\b{b}"`, Lines{`\def\a{a}`, `\def\b{b}`}, false},
		{"empty string", `""`, Lines{}, false},
		{"number", `42`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Lines
			err := json.Unmarshal([]byte(tt.input), &l)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, l)
		})
	}
}

func TestPaperUnmarshalWithoutArxivID(t *testing.T) {
	var p Paper
	err := json.Unmarshal([]byte(`{"preamble": [], "sections":[{"equations":[{"latex":"f(x) = x^2","no":0}]}]}`), &p)
	require.NoError(t, err)

	assert.Empty(t, p.ArxivID)
	require.Len(t, p.Sections, 1)
	assert.Equal(t, []Equation{{Latex: "f(x) = x^2", No: 0}}, p.Sections[0].Equations)
}

func TestCompilationRequestOmitsEmptyArxivID(t *testing.T) {
	data, err := json.Marshal(&CompilationRequest{Preamble: "", Sections: []Section{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"preamble":"","sections":[]}`, string(data))
}

func TestCompiledPaperCounts(t *testing.T) {
	mml := "<math/>"
	p := &CompiledPaper{Sections: []CompiledSection{
		{Equations: []CompiledEquation{{Latex: "a", MathML: &mml}, {Latex: "b"}}},
		{Equations: []CompiledEquation{{Latex: "c", MathML: &mml}}},
	}}

	total, compiled := p.Counts()
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, compiled)
}

func TestAppError(t *testing.T) {
	cause := errors.New("signal: killed")
	err := NewAppErrorWithDetails(ErrTimeout, "compiler timed out", "after 120s", cause)

	assert.Equal(t, "compiler timed out: after 120s: signal: killed", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("paper 1105.2282: %w", err)
	assert.True(t, IsCode(wrapped, ErrTimeout))
	assert.False(t, IsCode(wrapped, ErrProcess))
	assert.False(t, IsCode(errors.New("plain"), ErrTimeout))
}
