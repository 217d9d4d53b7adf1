package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/types"
)

var httpClient = &http.Client{
	Timeout: 5 * time.Minute, // uploads of long recordings are slow
}

// WhisperClient transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint (Groq's whisper deployment in production).
type WhisperClient struct {
	baseURL string
	apiKey  string
	model   string
}

// NewWhisperClient builds a transcription client. Model defaults to
// whisper-large-v3 when empty.
func NewWhisperClient(baseURL, apiKey, model string) *WhisperClient {
	if model == "" {
		model = "whisper-large-v3"
	}
	return &WhisperClient{baseURL: baseURL, apiKey: apiKey, model: model}
}

// verbose_json response shape.
type whisperResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio file and returns timed segments.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	log := logger.New().WithField("component", "transcription").WithField("file", filepath.Base(audioPath))

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	_ = w.WriteField("model", c.model)
	_ = w.WriteField("response_format", "verbose_json")
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", bytes.NewReader(b.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Info("starting transcription")
	var parsed whisperResponse
	if err := doJSONRequest(req, &parsed); err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}

	tr := &types.Transcript{
		Text:     parsed.Text,
		Duration: parsed.Duration,
		Segments: make([]types.TranscriptSegment, 0, len(parsed.Segments)),
	}
	for _, seg := range parsed.Segments {
		tr.Segments = append(tr.Segments, types.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	log.WithField("segments", len(tr.Segments)).Info("transcription complete")
	return tr, nil
}

// HTTPDiarizer calls a diarization service that accepts an audio upload and
// returns speaker-timed segments.
type HTTPDiarizer struct {
	baseURL string
	apiKey  string
}

// NewHTTPDiarizer builds a diarization client.
func NewHTTPDiarizer(baseURL, apiKey string) *HTTPDiarizer {
	return &HTTPDiarizer{baseURL: baseURL, apiKey: apiKey}
}

type diarizeResponse struct {
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

// Diarize uploads the audio file and returns speaker segments. An empty
// slice is a valid single-speaker result.
func (c *HTTPDiarizer) Diarize(ctx context.Context, audioPath string) ([]types.SpeakerSegment, error) {
	log := logger.New().WithField("component", "diarization").WithField("file", filepath.Base(audioPath))

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", bytes.NewReader(b.Bytes()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var parsed diarizeResponse
	if err := doJSONRequest(req, &parsed); err != nil {
		return nil, fmt.Errorf("diarization: %w", err)
	}

	segments := make([]types.SpeakerSegment, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		segments = append(segments, types.SpeakerSegment{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: seg.Speaker,
		})
	}

	log.WithField("segments", len(segments)).Info("diarization complete")
	return segments, nil
}

// doJSONRequest sends a request, retrying server errors with backoff, and
// decodes the JSON response into target.
func doJSONRequest(req *http.Request, target interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	body := req.Body
	var payload []byte
	if body != nil {
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	operation := func() error {
		if payload != nil {
			req.Body = io.NopCloser(bytes.NewReader(payload))
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status=%d body=%s", resp.StatusCode, respBody)
			return lastErr
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("request failed: status=%d body=%s", resp.StatusCode, respBody)
			return backoff.Permanent(lastErr)
		}

		if err := json.Unmarshal(respBody, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, respBody)
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, req.Context())); err != nil {
		return lastErr
	}
	return nil
}
