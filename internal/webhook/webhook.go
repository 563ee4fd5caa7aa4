// Package webhook sends MAC-authenticated JSON POSTs to tenant
// endpoints. It is the single outbound HTTP client shared by the
// process_mo tenant callback and the send_mt_status callback; both
// jobs build a body and hand it to Send.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ProductName and Version are sent in the User-Agent header.
const (
	ProductName = "kosmos-gateway"
	Version     = "0.1.0"
)

// MACHeader is the header carrying the base64 HMAC-SHA256 of the body.
const MACHeader = "Kosmos-MAC"

// Client sends MAC-authenticated webhook POSTs. It performs no retries;
// the caller (a worker job) decides whether and when to retry.
type Client struct {
	http *http.Client
}

// Config configures the underlying HTTP transport.
type Config struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// New builds a Client whose transport enforces the given connect and
// total-request timeouts.
func New(cfg Config) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// Send POSTs body to endpoint with Content-Type: application/json and a
// Kosmos-MAC header computed as base64(HMAC-SHA256(body, key)). It
// returns an error for transport failures or non-2xx responses; the
// response body is discarded either way, a fire-and-forget delivery
// with no reply payload to interpret.
func (c *Client) Send(ctx context.Context, endpoint string, key, body []byte) error {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(MACHeader, sig)
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", ProductName, Version))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send to %s: %w", endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s responded %d", endpoint, resp.StatusCode)
	}
	return nil
}
