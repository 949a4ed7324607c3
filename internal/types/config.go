package types

// Config holds the settings for driving the external compiler
type Config struct {
	// ScriptPath is the compiler entry script (tex2mathml.js). The child process runs
	// in the directory containing it.
	ScriptPath string `json:"script_path"`
	// Interpreter runs the script, for example "node". Empty executes the script directly.
	Interpreter string `json:"interpreter"`
	// NodeBinDir is prepended to the child's PATH so the JavaScript runtime is found
	// without relying on the ambient environment.
	NodeBinDir     string `json:"node_bin_dir"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// Experimental enables the \def bracket-argument rewrite in the preamble.
	Experimental bool `json:"experimental"`
	// Retries is how many times a timed-out paper is resubmitted.
	Retries  int    `json:"retries"`
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}
