package pipeline

import (
	"testing"

	"transcript-pipeline/internal/types"
)

// TestRenderSpeakerTranscript checks turns are labelled once per speaker
// change with the turn's texts joined on one line.
func TestRenderSpeakerTranscript(t *testing.T) {
	segments := []types.AlignedSegment{
		{Start: 0, End: 2, Text: "hello", Speaker: "SPEAKER_00"},
		{Start: 2, End: 4, Text: "everyone", Speaker: "SPEAKER_00"},
		{Start: 4, End: 6, Text: "  hi there  ", Speaker: "SPEAKER_01"},
		{Start: 6, End: 8, Text: "", Speaker: "SPEAKER_01"},
	}

	got := RenderSpeakerTranscript(segments)
	want := "**SPEAKER_00:**\nhello everyone\n\n**SPEAKER_01:**\nhi there"
	if got != want {
		t.Errorf("rendered transcript = %q, want %q", got, want)
	}
}

// TestRenderSpeakerTranscriptEmpty checks no segments render to an empty
// string, not a stray header.
func TestRenderSpeakerTranscriptEmpty(t *testing.T) {
	if got := RenderSpeakerTranscript(nil); got != "" {
		t.Errorf("rendered transcript = %q, want empty", got)
	}
}

// TestRenderRawTranscript checks the timestamped fallback format.
func TestRenderRawTranscript(t *testing.T) {
	segments := []types.TranscriptSegment{
		{Start: 0, End: 4, Text: "good morning"},
		{Start: 3725, End: 3730, Text: "wrapping up"},
		{Start: 3731, End: 3732, Text: "   "},
	}

	got := RenderRawTranscript(segments)
	want := "[00:00:00] good morning\n[01:02:05] wrapping up"
	if got != want {
		t.Errorf("rendered transcript = %q, want %q", got, want)
	}
}
