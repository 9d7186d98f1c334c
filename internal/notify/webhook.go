package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kb1sig/ic705scanner/internal/obs"
)

// webhookTimeout bounds a single POST attempt; a detection is worth
// retrying once but never worth blocking the coordinator over.
const webhookTimeout = 5 * time.Second

// webhookPayload is the JSON body posted for each detection.
type webhookPayload struct {
	Callsign    string  `json:"callsign"`
	FrequencyHz uint64  `json:"frequency_hz"`
	Timestamp   string  `json:"timestamp"`
	DurationMs  int64   `json:"duration_ms"`
	Confidence  float64 `json:"confidence"`
	Text        string  `json:"text,omitempty"`
}

// Webhook POSTs a JSON payload to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	log    logger
}

// NewWebhook builds a transport posting to url with a bounded timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		log:    obs.For("notify.webhook"),
	}
}

// SendActivity posts the detection, retrying once on a 5xx response or
// a transport error.
// Any failure is logged and swallowed, per the Notifier contract.
func (w *Webhook) SendActivity(a DetectedActivity) {
	payload := webhookPayload{
		Callsign:    a.Callsign,
		FrequencyHz: a.FrequencyHz,
		Timestamp:   a.Timestamp.UTC().Format(time.RFC3339),
		DurationMs:  a.Duration.Milliseconds(),
		Confidence:  a.Confidence,
		Text:        a.Text,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		w.log.Errorf("marshal: %v", err)
		return
	}

	if ok := w.post(data); !ok {
		w.log.Warnf("retrying after failed delivery to %s", w.url)
		w.post(data)
	}
}

// post issues one POST attempt and reports whether it is done: false on
// a transport error or 5xx (worth one retry), true otherwise. A 4xx is
// logged as an error and not retried.
func (w *Webhook) post(data []byte) bool {
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(data))
	if err != nil {
		w.log.Errorf("post %s: %v", w.url, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		w.log.Warnf("post %s: server error %d", w.url, resp.StatusCode)
		return false
	}
	if resp.StatusCode >= 400 {
		w.log.Errorf("post %s: client error %d", w.url, resp.StatusCode)
	}
	return true
}
