package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"collab-chat/internal/models"
)

// Responder answers a chat message given the recent conversation.
type Responder interface {
	Reply(ctx context.Context, message string, history []models.HistoryEntry) (string, error)
}

// ProxyClient calls the POST /api/ai route of a chat server.
type ProxyClient struct {
	baseURL string
	http    *http.Client
}

// NewProxyClient targets the server at baseURL. A nil httpClient uses http.DefaultClient.
func NewProxyClient(baseURL string, httpClient *http.Client) *ProxyClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProxyClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Reply posts the message and history and returns the response text.
func (c *ProxyClient) Reply(ctx context.Context, message string, history []models.HistoryEntry) (string, error) {
	body, err := json.Marshal(models.AIRequest{Message: message, ConversationHistory: history})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "ai proxy request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read ai proxy response")
	}
	var out models.AIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrapf(err, "decode ai proxy response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return "", errors.Errorf("ai proxy failed: status=%d error=%q", resp.StatusCode, out.Error)
	}
	return out.Response, nil
}

// GeneratorResponder answers in-process through a Generator, without the HTTP hop.
type GeneratorResponder struct {
	Generator Generator
}

func (r GeneratorResponder) Reply(ctx context.Context, message string, history []models.HistoryEntry) (string, error) {
	return r.Generator.Generate(ctx, BuildPrompt(message, TrimHistory(history)))
}
