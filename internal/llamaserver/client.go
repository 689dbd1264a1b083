package llamaserver

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// client wraps the persistent HTTP session to the spawned server. The
// transport is owned exclusively by the handle and reused across all calls.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(port int) *client {
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	// Timeout stays 0: generations run for minutes, so deadlines are always
	// carried by request contexts, never by the client.
	return &client{
		http:    &http.Client{Transport: tr, Timeout: 0},
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
	}
}

// postJSON issues a non-streaming POST and decodes the JSON response into out.
func (c *client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode, body: drainBody(resp.Body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON issues a GET and decodes the JSON response into out.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode, body: drainBody(resp.Body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// tokenize converts text to token ids via POST /tokenize.
func (c *client) tokenize(ctx context.Context, content string, addSpecial bool) ([]int, error) {
	var result struct {
		Tokens []int `json:"tokens"`
	}
	payload := map[string]any{
		"content":     content,
		"add_special": addSpecial,
	}
	if err := c.postJSON(ctx, "/tokenize", payload, &result); err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	return result.Tokens, nil
}

// detokenize converts token ids back to text via POST /detokenize.
func (c *client) detokenize(ctx context.Context, tokens []int) (string, error) {
	var result struct {
		Content string `json:"content"`
	}
	payload := map[string]any{
		"tokens": tokens,
	}
	if err := c.postJSON(ctx, "/detokenize", payload, &result); err != nil {
		return "", fmt.Errorf("detokenize: %w", err)
	}
	return result.Content, nil
}

// fetchVocabularySize reads n_vocab from GET /v1/models. Best effort: older
// server versions do not report it and that is not an error.
func (c *client) fetchVocabularySize(ctx context.Context) (int, bool) {
	var result struct {
		Data []struct {
			Meta struct {
				NVocab int `json:"n_vocab"`
			} `json:"meta"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/v1/models", &result); err != nil {
		return 0, false
	}
	if len(result.Data) == 0 || result.Data[0].Meta.NVocab == 0 {
		return 0, false
	}
	return result.Data[0].Meta.NVocab, true
}

// fetchBOSToken reads the BOS token string from GET /props. Best effort.
func (c *client) fetchBOSToken(ctx context.Context) (string, bool) {
	var result struct {
		BOSToken string `json:"bos_token"`
	}
	if err := c.getJSON(ctx, "/props", &result); err != nil {
		return "", false
	}
	if result.BOSToken == "" {
		return "", false
	}
	return result.BOSToken, true
}
