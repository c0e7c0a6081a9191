package canvasserver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the top-level structure of canvas.yaml.
type fileConfig struct {
	// Model is a string ("ollama:llama3.1") or a map with
	// provider/model/api_key/base_url keys.
	Model any `yaml:"model"`

	// SystemPrompt replaces the built-in instruction set. SystemPromptFile
	// loads it from a file relative to the config directory.
	SystemPrompt     string `yaml:"system_prompt"`
	SystemPromptFile string `yaml:"system_prompt_file"`

	Records struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"records"`

	Sessions struct {
		TTLMinutes int `yaml:"ttl_minutes"`
	} `yaml:"sessions"`
}

// applyConfigFile reads canvas.yaml and fills in any server settings not
// already set by options or flags.
func (s *Server) applyConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	configDir, _ := filepath.Abs(filepath.Dir(path))

	if cfg.Model != nil && !s.modelSet {
		s.modelSpec = cfg.Model
	}

	if cfg.SystemPrompt != "" {
		s.systemPrompt = cfg.SystemPrompt
	} else if cfg.SystemPromptFile != "" {
		promptPath := cfg.SystemPromptFile
		if !filepath.IsAbs(promptPath) {
			promptPath = filepath.Join(configDir, promptPath)
		}
		raw, err := os.ReadFile(promptPath)
		if err != nil {
			return fmt.Errorf("failed to read system prompt file: %w", err)
		}
		s.systemPrompt = string(raw)
	}

	if s.recordsURL == "" && cfg.Records.BaseURL != "" {
		s.recordsURL = cfg.Records.BaseURL
	}

	if s.sessionTTL == 0 && cfg.Sessions.TTLMinutes > 0 {
		s.sessionTTL = time.Duration(cfg.Sessions.TTLMinutes) * time.Minute
	}

	return nil
}
