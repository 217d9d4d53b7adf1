// Package align fuses word-timed transcript segments with speaker-timed
// diarization segments into speaker-attributed transcript segments. It is
// deterministic and makes no external calls, so re-running it is free.
package align

import (
	"fmt"
	"math"
	"strings"

	"transcript-pipeline/internal/types"
)

// MinOverlapRatio is the fraction of a transcript segment's duration a
// speaker segment must cover to claim it. The boundary is inclusive.
const MinOverlapRatio = 0.5

// ValidationError reports malformed alignment input. A corrupt transcript
// poisons every downstream stage, so callers fail the whole job on it.
type ValidationError struct {
	Kind   string // "transcript" or "speaker"
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s segment %d: %s", e.Kind, e.Index, e.Reason)
}

// Merge assigns each transcript segment the speaker whose diarization segment
// overlaps it most, provided the overlap covers at least MinOverlapRatio of
// the segment's duration, then coalesces adjacent segments that share a
// speaker. Both inputs must be ordered by start time and non-overlapping.
func Merge(transcript []types.TranscriptSegment, speakers []types.SpeakerSegment) ([]types.AlignedSegment, error) {
	if err := validateTranscript(transcript); err != nil {
		return nil, err
	}
	if err := validateSpeakers(speakers); err != nil {
		return nil, err
	}

	if len(transcript) == 0 {
		return nil, nil
	}

	aligned := make([]types.AlignedSegment, 0, len(transcript))
	for _, seg := range transcript {
		aligned = append(aligned, types.AlignedSegment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    seg.Text,
			Speaker: assignSpeaker(seg, speakers),
		})
	}

	return coalesce(aligned), nil
}

// assignSpeaker picks the speaker segment with the largest overlap, breaking
// ties by earliest start. Zero-duration segments cannot have an overlap
// ratio, so they fall back to containment and then nearest distance.
func assignSpeaker(seg types.TranscriptSegment, speakers []types.SpeakerSegment) string {
	if len(speakers) == 0 {
		return types.SpeakerUnknown
	}

	duration := seg.End - seg.Start
	if duration <= 0 {
		return nearestSpeaker(seg.Start, speakers)
	}

	best := -1
	bestOverlap := 0.0
	for i, sp := range speakers {
		overlap := overlapDuration(seg.Start, seg.End, sp.Start, sp.End)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = i
		}
		// Equal overlaps keep the earlier-starting segment: speakers is
		// sorted by start, so the first seen wins.
	}

	if best < 0 || bestOverlap < MinOverlapRatio*duration {
		return types.SpeakerUnknown
	}
	return speakers[best].Speaker
}

// overlapDuration returns the length of the intersection of [s1,e1) and
// [s2,e2), or 0 when they are disjoint.
func overlapDuration(s1, e1, s2, e2 float64) float64 {
	return math.Max(0, math.Min(e1, e2)-math.Max(s1, s2))
}

// nearestSpeaker resolves a point in time to the speaker segment containing
// it, or failing that the closest one.
func nearestSpeaker(t float64, speakers []types.SpeakerSegment) string {
	best := 0
	bestDist := math.Inf(1)
	for i, sp := range speakers {
		if t >= sp.Start && t <= sp.End {
			return sp.Speaker
		}
		dist := math.Min(math.Abs(t-sp.Start), math.Abs(t-sp.End))
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return speakers[best].Speaker
}

// coalesce merges runs of adjacent segments with the same speaker into one
// segment spanning their combined range, joining texts with a single space.
func coalesce(segments []types.AlignedSegment) []types.AlignedSegment {
	if len(segments) == 0 {
		return segments
	}

	out := segments[:1:1]
	for _, seg := range segments[1:] {
		last := &out[len(out)-1]
		if seg.Speaker == last.Speaker {
			last.End = seg.End
			last.Text = joinText(last.Text, seg.Text)
			continue
		}
		out = append(out, seg)
	}
	return out
}

func joinText(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func validateTranscript(segments []types.TranscriptSegment) error {
	prevEnd := math.Inf(-1)
	for i, seg := range segments {
		if seg.End < seg.Start {
			return &ValidationError{Kind: "transcript", Index: i, Reason: "end before start"}
		}
		if seg.Start < prevEnd {
			return &ValidationError{Kind: "transcript", Index: i, Reason: "overlaps previous segment"}
		}
		prevEnd = seg.End
	}
	return nil
}

func validateSpeakers(segments []types.SpeakerSegment) error {
	prevEnd := math.Inf(-1)
	for i, seg := range segments {
		if seg.End < seg.Start {
			return &ValidationError{Kind: "speaker", Index: i, Reason: "end before start"}
		}
		if seg.Start < prevEnd {
			return &ValidationError{Kind: "speaker", Index: i, Reason: "overlaps previous segment"}
		}
		prevEnd = seg.End
	}
	return nil
}
