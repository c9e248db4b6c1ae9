// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
)

// WebhookConfig configures webhook delivery.
type WebhookConfig struct {
	// URL is the default delivery endpoint.
	URL string

	// Channels maps team names to per-team endpoints that override URL.
	Channels map[string]string

	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout time.Duration

	// SigningKey, when set, enables HMAC-SHA256 payload signatures.
	// The key is moved into a secure enclave; the caller's copy is
	// wiped.
	SigningKey []byte
}

// WebhookSender delivers notifications as signed JSON POSTs.
//
// # Description
//
// Each notification is serialized and posted to the team's channel
// endpoint, falling back to the default URL. When a signing key is
// configured the payload is signed with HMAC-SHA256 and the signature
// travels in X-Strait-Signature as "sha256=<hex>". The key lives in a
// memguard enclave and is only decrypted for the duration of a single
// signing operation.
//
// # Thread Safety
//
// Safe for concurrent use.
type WebhookSender struct {
	url        string
	channels   map[string]string
	httpClient *http.Client
	key        *memguard.Enclave
}

// NewWebhookSender creates a webhook sender. At least one of cfg.URL or
// cfg.Channels must be set.
func NewWebhookSender(cfg WebhookConfig) (*WebhookSender, error) {
	if cfg.URL == "" && len(cfg.Channels) == 0 {
		return nil, errors.New("webhook sender requires a URL or at least one channel")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &WebhookSender{
		url:      cfg.URL,
		channels: cfg.Channels,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	if len(cfg.SigningKey) > 0 {
		// NewEnclave wipes the source slice after sealing.
		s.key = memguard.NewEnclave(cfg.SigningKey)
	}
	return s, nil
}

// Notify implements Notifier.
func (s *WebhookSender) Notify(ctx context.Context, n Notification) error {
	endpoint := s.url
	if url, ok := s.channels[n.Team]; ok {
		endpoint = url
	}
	if endpoint == "" {
		return fmt.Errorf("no webhook endpoint for team %q", n.Team)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Strait-Event", n.Type)
	req.Header.Set("X-Strait-Delivery", n.ID)

	if s.key != nil {
		sig, err := s.sign(body)
		if err != nil {
			return fmt.Errorf("sign payload: %w", err)
		}
		req.Header.Set("X-Strait-Signature", "sha256="+sig)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(tail))
	}
	return nil
}

// sign computes the hex HMAC-SHA256 of body. The signing key is
// decrypted only for the lifetime of this call.
func (s *WebhookSender) sign(body []byte) (string, error) {
	buf, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("open signing key: %w", err)
	}
	defer buf.Destroy()

	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

var _ Notifier = (*WebhookSender)(nil)
