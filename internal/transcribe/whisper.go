// Package transcribe wraps a Whisper-compatible inference server. One client
// is constructed at startup and shared; it is read-only after construction.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client calls a Whisper inference server over HTTP.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Model      string
}

type inferenceResponse struct {
	Text string `json:"text"`
}

// NewClient builds the shared transcription client.
func NewClient(baseURL, model string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
	}
}

// Transcribe runs speech recognition on the full audio buffer. The language
// hint is optional; empty lets the model detect it.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("whisper base url missing")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", c.Model)
	_ = mw.WriteField("response_format", "json")
	if language != "" {
		_ = mw.WriteField("language", language)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := c.BaseURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return "", err
	}
	return strings.TrimSpace(ir.Text), nil
}
