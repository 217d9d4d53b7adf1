package align

import (
	"errors"
	"testing"

	"transcript-pipeline/internal/types"
)

// TestMergeAssignsDominantSpeaker checks the basic overlap-majority vote.
func TestMergeAssignsDominantSpeaker(t *testing.T) {
	transcript := []types.TranscriptSegment{
		{Start: 0, End: 5, Text: "hello everyone"},
		{Start: 6, End: 10, Text: "nice to meet you"},
	}
	speakers := []types.SpeakerSegment{
		{Start: 0, End: 5.5, Speaker: "SPEAKER_00"},
		{Start: 6, End: 12, Speaker: "SPEAKER_01"},
	}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2", len(got))
	}
	if got[0].Speaker != "SPEAKER_00" || got[1].Speaker != "SPEAKER_01" {
		t.Fatalf("speakers = %q, %q", got[0].Speaker, got[1].Speaker)
	}
}

// TestMergeHalfOverlapInclusive checks that exactly 50% overlap still
// qualifies for assignment.
func TestMergeHalfOverlapInclusive(t *testing.T) {
	transcript := []types.TranscriptSegment{{Start: 0, End: 4, Text: "boundary"}}
	speakers := []types.SpeakerSegment{{Start: 2, End: 10, Speaker: "SPEAKER_00"}}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got[0].Speaker != "SPEAKER_00" {
		t.Fatalf("speaker = %q, want SPEAKER_00 at exact 50%% overlap", got[0].Speaker)
	}
}

// TestMergeLowOverlapIsUnknown checks that sub-threshold overlap falls back
// to the unknown label instead of guessing.
func TestMergeLowOverlapIsUnknown(t *testing.T) {
	transcript := []types.TranscriptSegment{{Start: 0, End: 10, Text: "mumble"}}
	speakers := []types.SpeakerSegment{{Start: 8, End: 12, Speaker: "SPEAKER_00"}}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got[0].Speaker != types.SpeakerUnknown {
		t.Fatalf("speaker = %q, want %q", got[0].Speaker, types.SpeakerUnknown)
	}
}

// TestMergeEmptySpeakersAllUnknown checks the empty-diarization edge case.
func TestMergeEmptySpeakersAllUnknown(t *testing.T) {
	transcript := []types.TranscriptSegment{
		{Start: 0, End: 3, Text: "one"},
		{Start: 3, End: 6, Text: "two"},
	}

	got, err := Merge(transcript, nil)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	// Both unknown, so they coalesce into a single segment.
	if len(got) != 1 {
		t.Fatalf("got %d segments, want 1", len(got))
	}
	if got[0].Speaker != types.SpeakerUnknown {
		t.Fatalf("speaker = %q, want %q", got[0].Speaker, types.SpeakerUnknown)
	}
	if got[0].Text != "one two" {
		t.Fatalf("text = %q, want %q", got[0].Text, "one two")
	}
}

// TestMergeTieBreaksOnEarlierStart checks deterministic tie-breaking when two
// speakers overlap a segment equally.
func TestMergeTieBreaksOnEarlierStart(t *testing.T) {
	transcript := []types.TranscriptSegment{{Start: 2, End: 6, Text: "contested"}}
	speakers := []types.SpeakerSegment{
		{Start: 0, End: 4, Speaker: "SPEAKER_00"}, // overlap 2..4 = 2s
		{Start: 4, End: 8, Speaker: "SPEAKER_01"}, // overlap 4..6 = 2s
	}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got[0].Speaker != "SPEAKER_00" {
		t.Fatalf("speaker = %q, want earlier-starting SPEAKER_00", got[0].Speaker)
	}
}

// TestMergeZeroDurationUsesContainment checks the nearest-containment rule
// for zero-length transcript segments.
func TestMergeZeroDurationUsesContainment(t *testing.T) {
	transcript := []types.TranscriptSegment{
		{Start: 5, End: 5, Text: "blip"},
		{Start: 20, End: 20, Text: "blop"},
	}
	speakers := []types.SpeakerSegment{
		{Start: 0, End: 10, Speaker: "SPEAKER_00"},
		{Start: 12, End: 15, Speaker: "SPEAKER_01"},
	}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got[0].Speaker != "SPEAKER_00" {
		t.Fatalf("contained point speaker = %q, want SPEAKER_00", got[0].Speaker)
	}
	if got[1].Speaker != "SPEAKER_01" {
		t.Fatalf("nearest point speaker = %q, want SPEAKER_01", got[1].Speaker)
	}
}

// TestMergeCoalescesAdjacentSameSpeaker checks range and text merging.
func TestMergeCoalescesAdjacentSameSpeaker(t *testing.T) {
	transcript := []types.TranscriptSegment{
		{Start: 0, End: 2, Text: "good"},
		{Start: 2, End: 4, Text: "morning"},
		{Start: 4, End: 6, Text: "hi"},
	}
	speakers := []types.SpeakerSegment{
		{Start: 0, End: 4, Speaker: "SPEAKER_00"},
		{Start: 4, End: 6, Speaker: "SPEAKER_01"},
	}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2", len(got))
	}
	if got[0].Text != "good morning" || got[0].Start != 0 || got[0].End != 4 {
		t.Fatalf("coalesced segment = %+v", got[0])
	}
}

// TestMergeOutputCoversTranscriptRange checks the no-gaps, no-duplication
// property over a multi-speaker input.
func TestMergeOutputCoversTranscriptRange(t *testing.T) {
	transcript := []types.TranscriptSegment{
		{Start: 0, End: 1.5, Text: "a"},
		{Start: 1.5, End: 4, Text: "b"},
		{Start: 4.2, End: 9, Text: "c"},
	}
	speakers := []types.SpeakerSegment{
		{Start: 0, End: 2, Speaker: "SPEAKER_00"},
		{Start: 2, End: 9, Speaker: "SPEAKER_01"},
	}

	got, err := Merge(transcript, speakers)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got[0].Start != transcript[0].Start {
		t.Fatalf("output starts at %v, want %v", got[0].Start, transcript[0].Start)
	}
	if got[len(got)-1].End != transcript[len(transcript)-1].End {
		t.Fatalf("output ends at %v, want %v", got[len(got)-1].End, transcript[len(transcript)-1].End)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start < got[i-1].End {
			t.Fatalf("segment %d overlaps previous", i)
		}
	}
}

// TestMergeRejectsOverlappingInput checks that malformed input surfaces a
// ValidationError instead of a poisoned transcript.
func TestMergeRejectsOverlappingInput(t *testing.T) {
	transcript := []types.TranscriptSegment{
		{Start: 0, End: 5, Text: "a"},
		{Start: 3, End: 8, Text: "b"},
	}

	_, err := Merge(transcript, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Kind != "transcript" || verr.Index != 1 {
		t.Fatalf("validation error = %+v", verr)
	}

	speakers := []types.SpeakerSegment{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 4, End: 6, Speaker: "SPEAKER_01"},
	}
	_, err = Merge([]types.TranscriptSegment{{Start: 0, End: 1, Text: "x"}}, speakers)
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Kind != "speaker" {
		t.Fatalf("validation error kind = %q, want speaker", verr.Kind)
	}
}
