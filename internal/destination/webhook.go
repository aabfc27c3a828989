package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"

	"github.com/searchlight-alerting/searchlight/internal/models"
)

const webhookTimeout = 30 * time.Second

// maxResponseSnippet bounds how much of the destination response is kept as
// the message id.
const maxResponseSnippet = 256

// HostDeniedError marks a publish rejected by the host deny list.
type HostDeniedError struct {
	Host string
}

func (e *HostDeniedError) Error() string {
	return fmt.Sprintf("publish host %q is on the deny list", e.Host)
}

// hostDenied matches the host against the deny list patterns.
func hostDenied(host string, denyList []string) bool {
	for _, pattern := range denyList {
		if wildcard.Match(pattern, host) {
			return true
		}
	}
	return false
}

func publishWebhook(ctx context.Context, dest models.Destination, message string, denyList []string) (string, error) {
	parsed, err := url.Parse(dest.URL)
	if err != nil {
		return "", fmt.Errorf("invalid destination URL: %w", err)
	}
	if hostDenied(parsed.Hostname(), denyList) {
		return "", &HostDeniedError{Host: parsed.Hostname()}
	}

	payload, err := webhookPayload(dest.Type, message)
	if err != nil {
		return "", err
	}

	method := dest.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, dest.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create webhook request: %w", err)
	}
	for key, value := range dest.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Searchlight-Alerting/1.0")

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook %s returned status %d: %s", dest.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Debug().
		Str("destination", dest.Name).
		Int("status", resp.StatusCode).
		Msg("Webhook published")

	messageID := strings.TrimSpace(string(body))
	if messageID == "" {
		messageID = strconv.Itoa(resp.StatusCode)
	}
	return messageID, nil
}

// webhookPayload shapes the message for the destination's service.
func webhookPayload(destType models.DestinationType, message string) ([]byte, error) {
	switch destType {
	case models.DestinationSlack:
		return json.Marshal(map[string]string{"text": message})
	case models.DestinationChime:
		return json.Marshal(map[string]string{"Content": message})
	default:
		if json.Valid([]byte(message)) {
			return []byte(message), nil
		}
		return json.Marshal(map[string]string{"message": message})
	}
}
