package types

// SpeakerUnknown labels transcript segments that no speaker segment overlaps
// strongly enough to claim.
const SpeakerUnknown = "UNKNOWN"

// SpeakerFallback is the single-speaker label used when diarization returns
// nothing or is unavailable.
const SpeakerFallback = "SPEAKER_00"

// TranscriptSegment is one timed span of transcribed text.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SpeakerSegment is one timed span attributed to a speaker by diarization.
type SpeakerSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// AlignedSegment is a transcript segment annotated with the speaker who owns
// most of its duration.
type AlignedSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// Transcript bundles the transcription capability's output for one recording.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
	Text     string              `json:"text"`
	Duration float64             `json:"duration"`
}
