// Package config loads the compiler settings from a JSON file and the environment.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"arxiv2mathml/internal/compiler"
	"arxiv2mathml/internal/logger"
	"arxiv2mathml/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "arxiv2mathml-config.json"
	// EnvScriptPath overrides script_path
	EnvScriptPath = "ARXIV2MATHML_SCRIPT"
	// EnvNodeBinDir overrides node_bin_dir
	EnvNodeBinDir = "ARXIV2MATHML_NODE_BIN"
	// EnvTimeout overrides timeout_seconds
	EnvTimeout = "ARXIV2MATHML_TIMEOUT"
	// EnvExperimental overrides experimental ("1", "true", ...)
	EnvExperimental = "ARXIV2MATHML_EXPERIMENTAL"
	// DefaultLogLevel is the default minimum log level
	DefaultLogLevel = "info"
)

// ConfigManager manages the pipeline configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
	lookupEnv  func(string) (string, bool)
}

// NewConfigManager creates a ConfigManager for configPath.
// If configPath is empty, it uses the default path in the user's config directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "arxiv2mathml", DefaultConfigFileName)
	}

	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
		lookupEnv:  os.LookupEnv,
	}, nil
}

// Default returns the configuration used when no file or environment override is present
func Default() *types.Config {
	return defaultConfig()
}

func defaultConfig() *types.Config {
	return &types.Config{
		ScriptPath:     compiler.DefaultScriptPath,
		TimeoutSeconds: int(compiler.DefaultTimeout.Seconds()),
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads the config file, applies defaults for empty fields and then the
// environment overrides. A missing file is not an error.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	switch {
	case os.IsNotExist(err):
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = defaultConfig()
	case err != nil:
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	default:
		cfg := &types.Config{}
		if err := json.Unmarshal(data, cfg); err != nil {
			logger.Error("invalid config file format", err, logger.String("path", m.configPath))
			return types.NewAppErrorWithDetails(types.ErrConfig, "invalid config file", m.configPath, err)
		}
		m.config = cfg
	}

	m.applyDefaults()
	if err := m.applyEnv(); err != nil {
		return err
	}

	logger.Info("configuration loaded",
		logger.String("scriptPath", m.config.ScriptPath),
		logger.String("nodeBinDir", m.config.NodeBinDir),
		logger.Int("timeoutSeconds", m.config.TimeoutSeconds),
		logger.Bool("experimental", m.config.Experimental))
	return nil
}

func (m *ConfigManager) applyDefaults() {
	if m.config.ScriptPath == "" {
		m.config.ScriptPath = compiler.DefaultScriptPath
	}
	if m.config.TimeoutSeconds <= 0 {
		m.config.TimeoutSeconds = int(compiler.DefaultTimeout.Seconds())
	}
	if m.config.Retries < 0 {
		m.config.Retries = 0
	}
	if m.config.LogLevel == "" {
		m.config.LogLevel = DefaultLogLevel
	}
}

func (m *ConfigManager) applyEnv() error {
	if v, ok := m.lookupEnv(EnvScriptPath); ok && v != "" {
		m.config.ScriptPath = v
	}
	if v, ok := m.lookupEnv(EnvNodeBinDir); ok && v != "" {
		m.config.NodeBinDir = v
	}
	if v, ok := m.lookupEnv(EnvTimeout); ok && v != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || seconds <= 0 {
			return types.NewAppErrorWithDetails(types.ErrConfig, "invalid "+EnvTimeout, v, err)
		}
		m.config.TimeoutSeconds = seconds
	}
	if v, ok := m.lookupEnv(EnvExperimental); ok && v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return types.NewAppErrorWithDetails(types.ErrConfig, "invalid "+EnvExperimental, v, err)
		}
		m.config.Experimental = enabled
	}
	return nil
}

// Save writes the current configuration to the config file
func (m *ConfigManager) Save() error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig replaces the configuration
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// LoggerConfig derives the logger configuration from the loaded settings
func (m *ConfigManager) LoggerConfig() *logger.Config {
	cfg := m.GetConfig()
	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		logger.Warn("unknown log level, using info", logger.String("level", cfg.LogLevel))
	}
	return &logger.Config{
		LogFilePath:   cfg.LogFile,
		Level:         level,
		EnableConsole: cfg.LogFile == "",
	}
}
