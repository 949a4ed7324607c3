package response

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   DiagnosticKind
	}{
		{"empty", "", DiagnosticNone},
		{"katex parse error", "Error in LaTeX:KaTeX parse error: Undefined control sequence: \\foo", DiagnosticCompilation},
		{"marker amid other lines", "warning: x\nError in LaTeX:KaTeX parse error: Expected '}'\n", DiagnosticCompilation},
		{"node crash", "TypeError: Cannot read properties of undefined", DiagnosticUnexpected},
		{"partial marker", "KaTeX parse error", DiagnosticUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify([]byte(tt.stderr))
			assert.Equal(t, tt.want, d.Kind)
			assert.Equal(t, tt.stderr, d.Message)
		})
	}
}

func TestInterpretSuccess(t *testing.T) {
	stdout := `{"arxiv_id":"1105.2282","preamble":"\\def\\a{a}\n\\def\\b{b}","sections":[
		{"equations":[{"latex":"x","no":3,"mathml":"<math><mi>x</mi></math>"},{"latex":"\\bad{","no":3}]},
		{"equations":[{"latex":"y","no":1,"mathml":null}]}
	]}`

	in, err := NewInterpreter().Interpret("1105.2282", []byte(stdout), nil)
	require.NoError(t, err)
	require.NotNil(t, in.Document)
	assert.False(t, in.NoOutput)
	assert.Equal(t, DiagnosticNone, in.Diagnostic.Kind)

	doc := in.Document
	assert.Equal(t, "1105.2282", doc.ArxivID)
	assert.Equal(t, []string{`\def\a{a}`, `\def\b{b}`}, doc.Preamble)
	require.Len(t, doc.Sections, 2)
	require.Len(t, doc.Sections[0].Equations, 2)

	first := doc.Sections[0].Equations[0]
	require.NotNil(t, first.MathML)
	assert.Equal(t, "<math><mi>x</mi></math>", *first.MathML)
	assert.Nil(t, doc.Sections[0].Equations[1].MathML)
	assert.Nil(t, doc.Sections[1].Equations[0].MathML)

	total, compiled := doc.Counts()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, compiled)
}

func TestInterpretStderrDoesNotSuppressStdout(t *testing.T) {
	stdout := `{"preamble":"","sections":[{"equations":[{"latex":"x","no":0,"mathml":"<math/>"}]}]}`

	for _, stderr := range []string{ParseErrorMarker + ": Expected 'EOF'", "ReferenceError: katex is not defined"} {
		in, err := NewInterpreter().Interpret("p", []byte(stdout), []byte(stderr))
		require.NoError(t, err)
		require.NotNil(t, in.Document)
		assert.NotEqual(t, DiagnosticNone, in.Diagnostic.Kind)
		assert.True(t, in.Document.Sections[0].Equations[0].Compiled())
		assert.Equal(t, []string{}, in.Document.Preamble)
	}
}

func TestInterpretNoOutput(t *testing.T) {
	for _, stdout := range []string{"", "   \n\t "} {
		in, err := NewInterpreter().Interpret("p", []byte(stdout), []byte(ParseErrorMarker))
		require.NoError(t, err)
		assert.True(t, in.NoOutput)
		assert.Nil(t, in.Document)
		assert.Equal(t, DiagnosticCompilation, in.Diagnostic.Kind)
	}
}

func TestInterpretMalformedJSON(t *testing.T) {
	raw := `{"preamble": "x", "sections": [`

	in, err := NewInterpreter().Interpret("p", []byte("  "+raw+"\n"), nil)
	assert.Nil(t, in)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, raw, perr.Raw)
	assert.GreaterOrEqual(t, perr.Offset, int64(0))
	assert.Contains(t, perr.Error(), "invalid compiler output")

	appErr := perr.AsAppError()
	assert.True(t, types.IsCode(appErr, types.ErrParse))
	assert.True(t, errors.As(appErr, &perr))
}

func TestInterpretWrongShape(t *testing.T) {
	_, err := NewInterpreter().Interpret("p", []byte(`{"preamble": ["not", "a", "string"]}`), nil)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Greater(t, perr.Offset, int64(0))
}

func TestInterpretLogsBySeverity(t *testing.T) {
	var buf bytes.Buffer
	logger.SetGlobalLogger(logger.NewWriterLogger(&buf, logger.LevelDebug))
	defer logger.SetGlobalLogger(nil)

	NewInterpreter().Interpret("1105.2282", nil, []byte(ParseErrorMarker+": x"))
	NewInterpreter().Interpret("1105.2282", nil, []byte("segfault"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[DEBUG]")
	assert.Contains(t, lines[1], "[WARN]")
	assert.Contains(t, lines[1], "arxivID=1105.2282")
}

func TestExtractPlain(t *testing.T) {
	tests := []struct {
		name   string
		mathml string
		want   string
	}{
		{
			name:   "single annotation",
			mathml: `<math><semantics><mi>x</mi><annotation encoding="application/x-tex">x</annotation></semantics></math>`,
			want:   `<math><semantics><mi>x</mi></semantics></math>`,
		},
		{
			name:   "multi-line annotation",
			mathml: "<math><mi>x</mi><annotation encoding=\"application/x-tex\">a \\\\\n b</annotation></math>",
			want:   "<math><mi>x</mi></math>",
		},
		{
			name:   "spans first open to last close",
			mathml: `<math><annotation>a</annotation><mi>y</mi><annotation>b</annotation></math>`,
			want:   `<math></math>`,
		},
		{
			name:   "no annotation",
			mathml: `<math><mi>x</mi></math>`,
			want:   `<math><mi>x</mi></math>`,
		},
		{
			name:   "empty",
			mathml: ``,
			want:   ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPlain(tt.mathml)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ExtractPlain(got))
			assert.NotContains(t, got, "<annotation")
		})
	}
}
