package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv2mathml/internal/types"
)

func TestNewProcessCompiler(t *testing.T) {
	tests := []struct {
		name            string
		cfg             *types.Config
		expectedScript  string
		expectedTimeout time.Duration
	}{
		{
			name:            "nil config",
			cfg:             nil,
			expectedScript:  DefaultScriptPath,
			expectedTimeout: DefaultTimeout,
		},
		{
			name:            "zero values fall back to defaults",
			cfg:             &types.Config{},
			expectedScript:  DefaultScriptPath,
			expectedTimeout: DefaultTimeout,
		},
		{
			name:            "custom script and timeout",
			cfg:             &types.Config{ScriptPath: "/opt/katex/tex2mathml.js", TimeoutSeconds: 30},
			expectedScript:  "/opt/katex/tex2mathml.js",
			expectedTimeout: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewProcessCompiler(tt.cfg)
			if c.ScriptPath() != tt.expectedScript {
				t.Errorf("expected script %s, got %s", tt.expectedScript, c.ScriptPath())
			}
			if c.Timeout() != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, c.Timeout())
			}
		})
	}

	assert.Equal(t, 120*time.Second, DefaultTimeout)
}

func TestBuildEnv(t *testing.T) {
	sep := string(os.PathListSeparator)
	base := []string{"HOME=/home/u", "PATH=/usr/bin" + sep + "/bin", "TMPDIR=/var/tmp", "LANG=C"}
	baseCopy := append([]string(nil), base...)

	env := buildEnv(base, "/opt/node/bin", "/tmp/call-1")

	assert.Equal(t, baseCopy, base, "base environment must not be modified")
	assert.Equal(t, "/opt/node/bin"+sep+"/usr/bin"+sep+"/bin", getenv(env, "PATH"))
	assert.Equal(t, "/home/u", getenv(env, "HOME"))
	assert.Equal(t, "C", getenv(env, "LANG"))
	assert.Equal(t, "/tmp/call-1", getenv(env, "TMPDIR"))
	assert.Equal(t, "/tmp/call-1", getenv(env, "TEMP"))
	assert.Equal(t, "/tmp/call-1", getenv(env, "TMP"))
	assert.NotContains(t, env, "TMPDIR=/var/tmp")
}

func TestBuildEnvWithoutBinDir(t *testing.T) {
	env := buildEnv([]string{"PATH=/usr/bin"}, "", "")
	assert.Equal(t, []string{"PATH=/usr/bin"}, env)
}

func TestBuildEnvMissingPath(t *testing.T) {
	env := buildEnv([]string{"HOME=/home/u"}, "/opt/node/bin", "")
	assert.Equal(t, "/opt/node/bin", getenv(env, "PATH"))
}

func TestGetenvLastWins(t *testing.T) {
	assert.Equal(t, "2", getenv([]string{"A=1", "B=x", "A=2"}, "A"))
	assert.Equal(t, "", getenv([]string{"A=1"}, "C"))
}

func TestLookPathNotFound(t *testing.T) {
	_, err := lookPath("definitely-not-a-real-interpreter", t.TempDir())
	assert.Error(t, err)
}

func TestInvokeMissingScript(t *testing.T) {
	c := NewProcessCompiler(&types.Config{ScriptPath: filepath.Join(t.TempDir(), "missing.js")})

	resp, err := c.Invoke(context.Background(), &types.CompilationRequest{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProcess))
	assert.False(t, types.IsCode(err, types.ErrTimeout))
	assert.Equal(t, StateIdle, resp.State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "spawned", StateSpawned.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "unknown", State(42).String())
}
