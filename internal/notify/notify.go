package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier posts completion callbacks to the downstream consumer. One POST,
// no retries; callers treat failures as best-effort.
type Notifier struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Notifier {
	return &Notifier{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PredictionCompleted notifies the consumer that the prediction identified by
// uid is ready.
func (n *Notifier) PredictionCompleted(ctx context.Context, uid, chatID string) error {
	payload, err := json.Marshal(map[string]string{"chat_id": chatID})
	if err != nil {
		return fmt.Errorf("encoding callback payload: %w", err)
	}

	url := fmt.Sprintf("%s/predictions/%s", n.baseURL, uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
