package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, profileYAML string, prompts map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	profilesDir := filepath.Join(dir, "profiles")
	promptsDir := filepath.Join(dir, "prompts")
	for _, d := range []string{profilesDir, promptsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(profilesDir, "test.yaml"), []byte(profileYAML), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	for name, content := range prompts {
		if err := os.WriteFile(filepath.Join(promptsDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write prompt: %v", err)
		}
	}
	return profilesDir, promptsDir
}

const validProfile = `name: lecture_notes
description: lecture study notes
priority: 3
stages:
  - name: clean
    prompt_file: clean.md
    system_message: You clean transcripts.
    model: deepseek-chat
    temperature: 0.2
    timeout: 60
  - name: summarise
    prompt_file: summarise.md
    system_message: You summarise.
    model: gpt-4o-mini
    input_from_previous: true
    filename_suffix: _summary
`

var validPrompts = map[string]string{
	"clean.md":     "Clean this transcript:\n{transcript}",
	"summarise.md": "Summarise:\n{transcript}",
}

// TestLoadFileParsesProfile checks field mapping and defaults.
func TestLoadFileParsesProfile(t *testing.T) {
	profilesDir, promptsDir := writeConfig(t, validProfile, validPrompts)

	p, err := LoadFile(filepath.Join(profilesDir, "test.yaml"), promptsDir)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if p.Name != "lecture_notes" || p.Priority != 3 {
		t.Fatalf("profile = %+v", p)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(p.Stages))
	}

	clean := p.Stages[0]
	if clean.Timeout != 60*time.Second || clean.Temperature != 0.2 {
		t.Fatalf("clean stage = %+v", clean)
	}
	if clean.MaxTokens != defaultMaxTokens || !clean.SaveIntermediate {
		t.Fatalf("clean stage defaults = %+v", clean)
	}
	if !strings.Contains(clean.PromptTemplate, "{transcript}") {
		t.Fatalf("prompt template not loaded: %q", clean.PromptTemplate)
	}

	summarise := p.Stages[1]
	if !summarise.InputFromPrevious || summarise.Model != "gpt-4o-mini" {
		t.Fatalf("summarise stage = %+v", summarise)
	}
}

// TestLoadFileRejectsUnknownFields checks the closed-schema rule.
func TestLoadFileRejectsUnknownFields(t *testing.T) {
	bad := validProfile + "mystery_knob: true\n"
	profilesDir, promptsDir := writeConfig(t, bad, validPrompts)

	if _, err := LoadFile(filepath.Join(profilesDir, "test.yaml"), promptsDir); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

// TestLoadFileRejectsMissingRequired checks required-field validation.
func TestLoadFileRejectsMissingRequired(t *testing.T) {
	cases := []string{
		"description: no name\nstages:\n  - name: s\n    prompt_file: clean.md\n",
		"name: empty\nstages: []\n",
		"name: nofile\nstages:\n  - name: s\n",
	}
	for _, doc := range cases {
		profilesDir, promptsDir := writeConfig(t, doc, validPrompts)
		if _, err := LoadFile(filepath.Join(profilesDir, "test.yaml"), promptsDir); err == nil {
			t.Fatalf("expected error for doc:\n%s", doc)
		}
	}
}

// TestLoadFileRejectsUnknownPlaceholder checks that prompt templates only
// reference values the runner can supply.
func TestLoadFileRejectsUnknownPlaceholder(t *testing.T) {
	prompts := map[string]string{
		"clean.md":     "Use {mystery_value} here",
		"summarise.md": "Summarise {transcript}",
	}
	profilesDir, promptsDir := writeConfig(t, validProfile, prompts)

	_, err := LoadFile(filepath.Join(profilesDir, "test.yaml"), promptsDir)
	if err == nil || !strings.Contains(err.Error(), "mystery_value") {
		t.Fatalf("error = %v, want unknown placeholder error", err)
	}
}

// TestLoadFileRejectsChainedFirstStage checks that the first stage cannot
// chain from a nonexistent predecessor.
func TestLoadFileRejectsChainedFirstStage(t *testing.T) {
	doc := `name: bad_chain
stages:
  - name: first
    prompt_file: clean.md
    input_from_previous: true
`
	profilesDir, promptsDir := writeConfig(t, doc, validPrompts)

	if _, err := LoadFile(filepath.Join(profilesDir, "test.yaml"), promptsDir); err == nil {
		t.Fatal("expected chained-first-stage error")
	}
}

// TestStoreReloadSwapsSnapshot checks atomic snapshot replacement.
func TestStoreReloadSwapsSnapshot(t *testing.T) {
	profilesDir, promptsDir := writeConfig(t, validProfile, validPrompts)

	store, err := NewStore(profilesDir, promptsDir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Get("lecture_notes") == nil {
		t.Fatal("profile missing from initial snapshot")
	}

	renamed := strings.Replace(validProfile, "lecture_notes", "renamed_profile", 1)
	if err := os.WriteFile(filepath.Join(profilesDir, "test.yaml"), []byte(renamed), 0o644); err != nil {
		t.Fatalf("rewrite profile: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if store.Get("lecture_notes") != nil {
		t.Fatal("stale profile still visible after reload")
	}
	if store.Get("renamed_profile") == nil {
		t.Fatal("new profile missing after reload")
	}
}

// TestStoreReloadKeepsOldSnapshotOnError checks that a broken config never
// replaces a good snapshot.
func TestStoreReloadKeepsOldSnapshotOnError(t *testing.T) {
	profilesDir, promptsDir := writeConfig(t, validProfile, validPrompts)

	store, err := NewStore(profilesDir, promptsDir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(profilesDir, "test.yaml"), []byte("name: [broken"), 0o644); err != nil {
		t.Fatalf("rewrite profile: %v", err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if store.Get("lecture_notes") == nil {
		t.Fatal("previous snapshot lost after failed reload")
	}
}
