// Package transcription provides the transcribe and diarize capabilities:
// audio in, timed segments out.
package transcription

import (
	"context"

	"transcript-pipeline/internal/types"
)

// Transcriber converts recorded audio into timed transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error)
}

// Diarizer segments recorded audio by speaker. An empty result is valid and
// means the caller should apply its single-speaker fallback.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]types.SpeakerSegment, error)
}

// NoopDiarizer returns no speaker segments, for deployments without a
// diarization service.
type NoopDiarizer struct{}

func (NoopDiarizer) Diarize(ctx context.Context, audioPath string) ([]types.SpeakerSegment, error) {
	return nil, nil
}
