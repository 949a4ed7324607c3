package arxiv2mathml

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv2mathml/internal/compiler"
	"arxiv2mathml/internal/types"
)

func TestNewDefaults(t *testing.T) {
	c := New(nil)
	require.NotNil(t, c.Config())
	assert.Equal(t, compiler.DefaultScriptPath, c.Config().ScriptPath)
	assert.Equal(t, 120, c.Config().TimeoutSeconds)
}

func TestOpenMissingConfigFile(t *testing.T) {
	t.Setenv("ARXIV2MATHML_TIMEOUT", "7")

	c, err := Open(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 7, c.Config().TimeoutSeconds)
}

func TestOpenInvalidEnvironment(t *testing.T) {
	t.Setenv("ARXIV2MATHML_EXPERIMENTAL", "sometimes")

	_, err := Open(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, types.IsCode(err, types.ErrConfig))
}

func TestCompileMissingScript(t *testing.T) {
	c := New(&Config{ScriptPath: filepath.Join(t.TempDir(), "missing.js"), TimeoutSeconds: 1})

	result := c.CompilePaper(context.Background(), &Paper{
		Sections: []Section{{Equations: []Equation{{Latex: "x"}}}},
	})
	assert.Equal(t, StatusProcessFailure, result.Status)
	assert.Nil(t, result.Document)

	_, ok := c.CompileString(context.Background(), "x")
	assert.False(t, ok)
}

func TestCompileDirMissingInput(t *testing.T) {
	c := New(nil)
	_, err := c.CompileDir(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), t.TempDir())
	assert.True(t, types.IsCode(err, types.ErrFileNotFound))
}

func TestExtractPlain(t *testing.T) {
	in := `<math><semantics><mi>x</mi><annotation encoding="application/x-tex">x</annotation></semantics></math>`
	assert.Equal(t, "<math><semantics><mi>x</mi></semantics></math>", ExtractPlain(in))
}
