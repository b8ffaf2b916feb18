package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models devteam.yml.
type Config struct {
	Team struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"team"`
	Pipeline struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
		MaxRevisions   int `yaml:"max_revisions"`
	} `yaml:"pipeline"`
	Thresholds Thresholds      `yaml:"thresholds"`
	Approval   Approval        `yaml:"approval"`
	Server     ServerConfig    `yaml:"server"`
	Webhooks   []WebhookConfig `yaml:"webhooks"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// Thresholds are the fixed quality bars the scoring tools compare against.
type Thresholds struct {
	DNADesign       float64            `yaml:"dna_design"`
	DNAArchitecture float64            `yaml:"dna_architecture"`
	CoveragePercent float64            `yaml:"coverage_percent"`
	APIResponseMs   float64            `yaml:"api_response_ms"`
	QualityOverall  float64            `yaml:"quality_overall"`
	Stage           map[string]float64 `yaml:"stage"`
}

// Approval configures the final weighted decision.
type Approval struct {
	Weights   ApprovalWeights `yaml:"weights"`
	Threshold float64         `yaml:"threshold"`
}

// ApprovalWeights must sum to 1.
type ApprovalWeights struct {
	Quality   float64 `yaml:"quality"`
	Readiness float64 `yaml:"readiness"`
	Issues    float64 `yaml:"issues"`
	DNA       float64 `yaml:"dna"`
}

type ServerConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	AllowActorHeader bool   `yaml:"allow_actor_header"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with devteam config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "devteam.yml")
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Team.ID == "" {
		return fmt.Errorf("config.team.id is required")
	}
	if c.Pipeline.TimeoutSeconds < 0 {
		return fmt.Errorf("config.pipeline.timeout_seconds must not be negative")
	}
	if c.Pipeline.MaxRevisions < 0 {
		return fmt.Errorf("config.pipeline.max_revisions must not be negative")
	}
	inRange := func(name string, v float64) error {
		if v < 0 || v > 100 {
			return fmt.Errorf("config.thresholds.%s must be within [0,100]", name)
		}
		return nil
	}
	if err := inRange("dna_design", c.Thresholds.DNADesign); err != nil {
		return err
	}
	if err := inRange("dna_architecture", c.Thresholds.DNAArchitecture); err != nil {
		return err
	}
	if err := inRange("coverage_percent", c.Thresholds.CoveragePercent); err != nil {
		return err
	}
	if err := inRange("quality_overall", c.Thresholds.QualityOverall); err != nil {
		return err
	}
	for stage, v := range c.Thresholds.Stage {
		if err := inRange("stage."+stage, v); err != nil {
			return err
		}
	}
	w := c.Approval.Weights
	sum := w.Quality + w.Readiness + w.Issues + w.DNA
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("config.approval.weights must sum to 1, got %.3f", sum)
	}
	if c.Approval.Threshold < 0 || c.Approval.Threshold > 100 {
		return fmt.Errorf("config.approval.threshold must be within [0,100]")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Default returns the default Config struct for a team.
func Default(teamID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(teamID)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(teamID string) string {
	return fmt.Sprintf(defaultTemplate, teamID)
}

const defaultTemplate = `team:
  id: %s
  name: AI software team

pipeline:
  timeout_seconds: 300
  max_revisions: 2

thresholds:
  dna_design: 60
  dna_architecture: 70
  coverage_percent: 90
  api_response_ms: 200
  quality_overall: 75
  stage:
    project_manager: 70
    game_designer: 70
    developer: 70
    test_engineer: 90
    qa_tester: 75
    quality_reviewer: 80

approval:
  weights:
    quality: 0.4
    readiness: 0.3
    issues: 0.2
    dna: 0.1
  threshold: 80

server:
  jwt_secret: ""
  allow_actor_header: true

logging:
  level: info
  format: console
`
