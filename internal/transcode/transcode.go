package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spksound/syncroom/internal/types"
)

// Result is the shape the engine consumes from the external transcoding
// pipeline: a streamable URL, the total track duration, and the ordered
// segment list for segmented formats.
type Result struct {
	StreamURL string          `json:"stream_url"`
	Duration  int64           `json:"duration_ms"`
	Segments  []types.Segment `json:"segments"`
}

// Transcoder turns a raw audio URL into a segmented streaming format. One
// opaque async call; failures surface to the requesting client with no
// automatic retry. Release frees artifacts owned exclusively by a room and
// is called during teardown.
type Transcoder interface {
	Convert(ctx context.Context, mediaURL string) (Result, error)
	Release(ctx context.Context, streamURL string) error
}

// HTTPTranscoder calls an external pipeline service over HTTP.
type HTTPTranscoder struct {
	endpoint string
	client   *http.Client
}

func NewHTTPTranscoder(endpoint string) *HTTPTranscoder {
	return &HTTPTranscoder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

type convertRequest struct {
	MediaURL string `json:"media_url"`
}

func (t *HTTPTranscoder) Convert(ctx context.Context, mediaURL string) (Result, error) {
	body, err := json.Marshal(convertRequest{MediaURL: mediaURL})
	if err != nil {
		return Result{}, fmt.Errorf("encode convert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build convert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcode pipeline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("transcode pipeline: unexpected status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode convert response: %w", err)
	}
	return result, nil
}

// Release asks the pipeline to delete the artifacts behind streamURL.
func (t *HTTPTranscoder) Release(ctx context.Context, streamURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.endpoint+"?stream="+streamURL, nil)
	if err != nil {
		return fmt.Errorf("build release request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transcode pipeline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("transcode pipeline: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PassthroughTranscoder serves deployments without a pipeline: the raw URL
// is treated as directly streamable with no segment index, so late joiners
// fall back to start-from-elapsed.
type PassthroughTranscoder struct{}

func (PassthroughTranscoder) Convert(_ context.Context, mediaURL string) (Result, error) {
	return Result{StreamURL: mediaURL}, nil
}

func (PassthroughTranscoder) Release(context.Context, string) error { return nil }
