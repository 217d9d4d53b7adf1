package pipeline

import (
	"fmt"
	"strings"

	"transcript-pipeline/internal/types"
)

// RenderSpeakerTranscript formats aligned segments as speaker-labelled
// blocks, the canonical text input for non-chained stages.
func RenderSpeakerTranscript(segments []types.AlignedSegment) string {
	var lines []string
	var turn []string
	currentSpeaker := ""

	flush := func() {
		if len(turn) > 0 {
			lines = append(lines, strings.Join(turn, " "), "")
			turn = turn[:0]
		}
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.Speaker != currentSpeaker {
			flush()
			lines = append(lines, fmt.Sprintf("**%s:**", seg.Speaker))
			currentSpeaker = seg.Speaker
		}
		turn = append(turn, text)
	}
	if len(turn) > 0 {
		lines = append(lines, strings.Join(turn, " "))
	}

	return strings.Join(lines, "\n")
}

// RenderRawTranscript formats transcript segments with wall-clock offsets,
// used when no speaker information is wanted.
func RenderRawTranscript(segments []types.TranscriptSegment) string {
	var lines []string
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", formatTimestamp(seg.Start), text))
	}
	return strings.Join(lines, "\n")
}

func formatTimestamp(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
