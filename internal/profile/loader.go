// Package profile loads processing profiles from YAML configuration into
// immutable validated structs.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"transcript-pipeline/internal/prompt"
	"transcript-pipeline/internal/types"
)

// Stage defaults, matching the profile schema's documented defaults.
const (
	defaultModel       = "deepseek-chat"
	defaultTemperature = 0.3
	defaultMaxTokens   = 4096
	defaultTimeoutSec  = 120
)

// stageDoc is the YAML shape of one stage definition.
type stageDoc struct {
	Name              string   `yaml:"name"`
	PromptFile        string   `yaml:"prompt_file"`
	SystemMessage     string   `yaml:"system_message"`
	Model             string   `yaml:"model"`
	Provider          string   `yaml:"provider"`
	Temperature       *float64 `yaml:"temperature"`
	MaxTokens         *int     `yaml:"max_tokens"`
	TimeoutSec        *int     `yaml:"timeout"`
	InputFromPrevious bool     `yaml:"input_from_previous"`
	SaveIntermediate  *bool    `yaml:"save_intermediate"`
	FilenameSuffix    string   `yaml:"filename_suffix"`
}

// profileDoc is the YAML shape of one profile file.
type profileDoc struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Priority    *int       `yaml:"priority"`
	Stages      []stageDoc `yaml:"stages"`
}

// knownPlaceholders are the values the stage runner can substitute into a
// prompt template. Templates referencing anything else are rejected at load.
var knownPlaceholders = map[string]bool{
	"transcript": true,
}

// LoadFile parses and validates one profile YAML file, resolving each
// stage's prompt template from promptsDir. Unknown YAML fields are rejected.
func LoadFile(path, promptsDir string) (*types.ProcessingProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var doc profileDoc
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", filepath.Base(path), err)
	}

	return buildProfile(&doc, promptsDir)
}

func buildProfile(doc *profileDoc, promptsDir string) (*types.ProcessingProfile, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("profile missing required field: name")
	}
	if len(doc.Stages) == 0 {
		return nil, fmt.Errorf("profile %q has no stages", doc.Name)
	}

	priority := types.DefaultPriority
	if doc.Priority != nil {
		priority = *doc.Priority
		if priority < 1 || priority > 10 {
			return nil, fmt.Errorf("profile %q: priority %d out of range 1-10", doc.Name, priority)
		}
	}

	p := &types.ProcessingProfile{
		Name:        doc.Name,
		Description: doc.Description,
		Priority:    priority,
		Stages:      make([]types.ProcessingStage, 0, len(doc.Stages)),
	}

	seen := make(map[string]bool, len(doc.Stages))
	for i, sd := range doc.Stages {
		stage, err := buildStage(&sd, promptsDir)
		if err != nil {
			return nil, fmt.Errorf("profile %q stage %d: %w", doc.Name, i, err)
		}
		if seen[stage.Name] {
			return nil, fmt.Errorf("profile %q: duplicate stage name %q", doc.Name, stage.Name)
		}
		seen[stage.Name] = true
		p.Stages = append(p.Stages, *stage)
	}

	// A chained first stage has no predecessor to chain from.
	if p.Stages[0].InputFromPrevious {
		return nil, fmt.Errorf("profile %q: first stage %q cannot set input_from_previous", doc.Name, p.Stages[0].Name)
	}

	return p, nil
}

func buildStage(sd *stageDoc, promptsDir string) (*types.ProcessingStage, error) {
	if sd.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if sd.PromptFile == "" {
		return nil, fmt.Errorf("stage %q missing required field: prompt_file", sd.Name)
	}

	template, err := os.ReadFile(filepath.Join(promptsDir, sd.PromptFile))
	if err != nil {
		return nil, fmt.Errorf("stage %q prompt file: %w", sd.Name, err)
	}

	placeholders, err := prompt.Placeholders(string(template))
	if err != nil {
		return nil, fmt.Errorf("stage %q prompt template: %w", sd.Name, err)
	}
	for _, name := range placeholders {
		if !knownPlaceholders[name] {
			return nil, fmt.Errorf("stage %q prompt references unknown placeholder {%s}", sd.Name, name)
		}
	}

	stage := &types.ProcessingStage{
		Name:              sd.Name,
		PromptFile:        sd.PromptFile,
		PromptTemplate:    string(template),
		SystemMessage:     sd.SystemMessage,
		Model:             sd.Model,
		Provider:          sd.Provider,
		Temperature:       defaultTemperature,
		MaxTokens:         defaultMaxTokens,
		Timeout:           defaultTimeoutSec * time.Second,
		InputFromPrevious: sd.InputFromPrevious,
		SaveIntermediate:  true,
		FilenameSuffix:    sd.FilenameSuffix,
	}
	if stage.Model == "" {
		stage.Model = defaultModel
	}
	if sd.Temperature != nil {
		if *sd.Temperature < 0 || *sd.Temperature > 2 {
			return nil, fmt.Errorf("stage %q: temperature %v out of range", sd.Name, *sd.Temperature)
		}
		stage.Temperature = *sd.Temperature
	}
	if sd.MaxTokens != nil {
		if *sd.MaxTokens <= 0 {
			return nil, fmt.Errorf("stage %q: max_tokens must be positive", sd.Name)
		}
		stage.MaxTokens = *sd.MaxTokens
	}
	if sd.TimeoutSec != nil {
		if *sd.TimeoutSec <= 0 {
			return nil, fmt.Errorf("stage %q: timeout must be positive", sd.Name)
		}
		stage.Timeout = time.Duration(*sd.TimeoutSec) * time.Second
	}
	if sd.SaveIntermediate != nil {
		stage.SaveIntermediate = *sd.SaveIntermediate
	}
	return stage, nil
}

// LoadDir loads every *.yaml profile under profilesDir. Prompt templates
// resolve against promptsDir.
func LoadDir(profilesDir, promptsDir string) (map[string]*types.ProcessingProfile, error) {
	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	profiles := make(map[string]*types.ProcessingProfile)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		p, err := LoadFile(filepath.Join(profilesDir, entry.Name()), promptsDir)
		if err != nil {
			return nil, err
		}
		if _, dup := profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile name %q", p.Name)
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}
