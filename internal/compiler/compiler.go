// Package compiler drives the external TeX-to-MathML compiler (tex2mathml.js).
// Each invocation spawns one process, writes one JSON request to its stdin and
// collects its stdout and stderr once it exits or the timeout fires.
package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/types"
)

const (
	// DefaultTimeout is the wall-clock budget for one invocation
	DefaultTimeout = 120 * time.Second
	// DefaultScriptPath is used when no script is configured
	DefaultScriptPath = "node/tex2mathml.js"

	// waitDelay bounds how long Wait drains pipes after the process is gone
	waitDelay = 2 * time.Second
)

// State is the lifecycle position of an invocation
type State int

const (
	StateIdle State = iota
	StateSpawned
	StateCompleted
	StateTimedOut
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawned:
		return "spawned"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Response is the raw result of a completed invocation
type Response struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	State    State
}

// Compiler turns a compilation request into the compiler's raw output.
//
// Invoke returns an AppError with code types.ErrTimeout when the compiler ran out
// of time and types.ErrProcess when it could not be run. Invalid LaTeX is never an
// error here; it shows up in the response's stderr.
type Compiler interface {
	Invoke(ctx context.Context, req *types.CompilationRequest) (*Response, error)
}

// ProcessCompiler runs the compiler script as a child process
type ProcessCompiler struct {
	scriptPath  string
	interpreter string
	binDir      string
	timeout     time.Duration
}

// NewProcessCompiler creates a ProcessCompiler from cfg. A nil cfg uses the defaults.
func NewProcessCompiler(cfg *types.Config) *ProcessCompiler {
	c := &ProcessCompiler{
		scriptPath: DefaultScriptPath,
		timeout:    DefaultTimeout,
	}
	if cfg == nil {
		return c
	}
	if cfg.ScriptPath != "" {
		c.scriptPath = cfg.ScriptPath
	}
	if cfg.TimeoutSeconds > 0 {
		c.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c.interpreter = cfg.Interpreter
	c.binDir = cfg.NodeBinDir
	return c
}

// ScriptPath returns the compiler entry script
func (c *ProcessCompiler) ScriptPath() string {
	return c.scriptPath
}

// Timeout returns the per-invocation timeout
func (c *ProcessCompiler) Timeout() time.Duration {
	return c.timeout
}

// SetTimeout sets the per-invocation timeout
func (c *ProcessCompiler) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Invoke implements Compiler
func (c *ProcessCompiler) Invoke(ctx context.Context, req *types.CompilationRequest) (*Response, error) {
	resp := &Response{State: StateIdle}

	payload, err := json.Marshal(req)
	if err != nil {
		return resp, types.NewAppError(types.ErrProcess, "failed to encode compilation request", err)
	}

	script, err := filepath.Abs(c.scriptPath)
	if err != nil {
		return resp, types.NewAppError(types.ErrProcess, "failed to resolve compiler script", err)
	}
	if _, err := os.Stat(script); err != nil {
		return resp, types.NewAppErrorWithDetails(types.ErrProcess, "compiler script not accessible", script, err)
	}

	// Scratch space for the compiler runtime, gone when this call returns.
	tmpDir, err := os.MkdirTemp("", "tex2mathml-")
	if err != nil {
		return resp, types.NewAppError(types.ErrProcess, "failed to create temp directory", err)
	}
	defer os.RemoveAll(tmpDir)

	env := buildEnv(os.Environ(), c.binDir, tmpDir)
	name, args, err := c.command(script, env)
	if err != nil {
		return resp, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = filepath.Dir(script)
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return resp, types.NewAppError(types.ErrProcess, "failed to start compiler", err)
	}
	resp.State = StateSpawned
	logger.Debug("compiler spawned",
		logger.String("arxivID", req.ArxivID),
		logger.Int("pid", cmd.Process.Pid),
		logger.Int("requestBytes", len(payload)))

	err = cmd.Wait()
	resp.Stdout = stdout.Bytes()
	resp.Stderr = stderr.Bytes()
	resp.Duration = time.Since(start)
	if cmd.ProcessState != nil {
		resp.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		resp.State = StateTimedOut
		return resp, types.NewAppErrorWithDetails(types.ErrTimeout, "compiler timed out", c.timeout.String(), ctx.Err())
	}
	if ctx.Err() != nil {
		return resp, types.NewAppError(types.ErrProcess, "compiler cancelled", ctx.Err())
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return resp, types.NewAppError(types.ErrProcess, "compiler I/O failed", err)
	}

	resp.State = StateCompleted
	logger.Debug("compiler completed",
		logger.String("arxivID", req.ArxivID),
		logger.Int("exitCode", resp.ExitCode),
		logger.Duration("duration", resp.Duration),
		logger.Int("stdoutBytes", len(resp.Stdout)),
		logger.Int("stderrBytes", len(resp.Stderr)))
	return resp, nil
}

// command returns the executable and arguments for running script
func (c *ProcessCompiler) command(script string, env []string) (string, []string, error) {
	if c.interpreter == "" {
		return script, nil, nil
	}
	path, err := lookPath(c.interpreter, getenv(env, "PATH"))
	if err != nil {
		return "", nil, types.NewAppErrorWithDetails(types.ErrProcess, "compiler interpreter not found", c.interpreter, err)
	}
	return path, []string{script}, nil
}

// buildEnv copies base, prefixes PATH with binDir and points the temp variables at
// tmpDir. base is not modified.
func buildEnv(base []string, binDir, tmpDir string) []string {
	env := make([]string, 0, len(base)+4)
	sawPath := false
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case envKeyEqual(key, "PATH"):
			sawPath = true
			if binDir != "" {
				kv = key + "=" + binDir + string(os.PathListSeparator) + value
			}
		case envKeyEqual(key, "TMPDIR"), envKeyEqual(key, "TEMP"), envKeyEqual(key, "TMP"):
			if tmpDir != "" {
				continue
			}
		}
		env = append(env, kv)
	}
	if !sawPath && binDir != "" {
		env = append(env, "PATH="+binDir)
	}
	if tmpDir != "" {
		env = append(env, "TMPDIR="+tmpDir, "TEMP="+tmpDir, "TMP="+tmpDir)
	}
	return env
}

// getenv looks key up in an environment list
func getenv(env []string, key string) string {
	value := ""
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && envKeyEqual(k, key) {
			value = v
		}
	}
	return value
}

func envKeyEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// lookPath resolves file against pathList rather than the parent's PATH, which
// exec.LookPath would consult.
func lookPath(file, pathList string) (string, error) {
	if strings.ContainsRune(file, os.PathSeparator) || strings.Contains(file, "/") {
		if err := findExecutable(file); err != nil {
			return "", err
		}
		return file, nil
	}
	candidates := []string{file}
	if runtime.GOOS == "windows" && filepath.Ext(file) == "" {
		candidates = append(candidates, file+".exe", file+".cmd", file+".bat")
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			dir = "."
		}
		for _, name := range candidates {
			path := filepath.Join(dir, name)
			if err := findExecutable(path); err == nil {
				return path, nil
			}
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.ErrPermission
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return os.ErrPermission
	}
	return nil
}
