// Package notify announces remote pushes and pulls to chat and webhook targets.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rowjay/dotenvenc/internal/config"
)

const (
	EventPush = "push"
	EventPull = "pull"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event never carries secrets: only names, keys and fingerprints.
type Event struct {
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Project     string    `json:"project"`
	FileName    string    `json:"file_name"`
	Key         string    `json:"key,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Duration    string    `json:"duration"`
	Error       string    `json:"error,omitempty"`
}

func (e Event) Summary() string {
	msg := fmt.Sprintf("[%s] %s %s/%s", e.Status, e.Type, e.Project, e.FileName)
	if e.Key != "" {
		msg += " (" + e.Key + ")"
	}
	if e.Error != "" {
		msg += ": " + e.Error
	}
	return msg
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans out to every target and joins their errors.
type Multi struct {
	Targets []Notifier
}

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, target := range m.Targets {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Empty() bool {
	return len(m.Targets) == 0
}

// Webhook posts the event itself as JSON.
type Webhook struct {
	Name    string
	URL     string
	Headers map[string]string
	Client  *http.Client
}

func (w Webhook) Notify(ctx context.Context, event Event) error {
	return post(ctx, w.Client, "webhook "+w.Name, w.URL, w.Headers, event)
}

// Mattermost posts the summary line to an incoming webhook.
type Mattermost struct {
	Name   string
	URL    string
	Client *http.Client
}

func (m Mattermost) Notify(ctx context.Context, event Event) error {
	return post(ctx, m.Client, "mattermost "+m.Name, m.URL, nil, map[string]string{"text": event.Summary()})
}

// Matrix sends the summary line as an m.text room message.
type Matrix struct {
	Name        string
	ServerURL   string
	AccessToken string
	RoomID      string
	Client      *http.Client
}

func (m Matrix) Notify(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%d",
		m.ServerURL, url.PathEscape(m.RoomID), event.EndedAt.UnixNano())
	headers := map[string]string{"Authorization": "Bearer " + m.AccessToken}
	body := map[string]string{"msgtype": "m.text", "body": event.Summary()}
	return post(ctx, m.Client, "matrix "+m.Name, endpoint, headers, body)
}

func FromConfig(cfg config.NotificationsConfig) Multi {
	var targets []Notifier
	for _, w := range cfg.Webhooks {
		targets = append(targets, Webhook{Name: w.Name, URL: w.URL, Headers: w.Headers})
	}
	for _, mm := range cfg.Mattermost {
		targets = append(targets, Mattermost{Name: mm.Name, URL: mm.URL})
	}
	for _, mx := range cfg.Matrix {
		targets = append(targets, Matrix{Name: mx.Name, ServerURL: mx.ServerURL, AccessToken: mx.AccessToken, RoomID: mx.RoomID})
	}
	return Multi{Targets: targets}
}

func post(ctx context.Context, client *http.Client, target, endpoint string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return nil
}
