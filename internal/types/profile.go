package types

import "time"

// ProcessingStage is one configured language-model transformation step.
// Loaded from profile YAML and immutable afterward.
type ProcessingStage struct {
	Name              string
	PromptFile        string
	PromptTemplate    string
	SystemMessage     string
	Model             string
	Provider          string // empty means auto-detect
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	InputFromPrevious bool
	SaveIntermediate  bool
	FilenameSuffix    string
}

// ProcessingProfile is a named, ordered stage sequence for one use case.
type ProcessingProfile struct {
	Name        string
	Description string
	Stages      []ProcessingStage
	Priority    int
}

// Stage returns the stage with the given name, or nil.
func (p *ProcessingProfile) Stage(name string) *ProcessingStage {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}
