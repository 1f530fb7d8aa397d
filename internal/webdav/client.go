// Package webdav implements the Nextcloud-flavored WebDAV client used by
// the sync engine: authenticated PROPFIND/GET/PUT/DELETE with streamed
// bodies, the server-identity check, and the multistatus response parser.
package webdav

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each request so a hung connection cannot stall a
// sync pass indefinitely.
const DefaultTimeout = 30 * time.Second

const userAgent = "ncdav-sync/0.1"

// propfindBody is the fixed PROPFIND request listing the properties the
// sync engine consumes. The body is sent verbatim.
const propfindBody = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:displayname/>
    <d:getcontentlength/>
    <d:getlastmodified/>
    <d:getcontenttype/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`

// identityBodyLimit caps how much of the landing page is read when probing
// for the "nextcloud" marker.
const identityBodyLimit = 1 << 20

// Client is an authenticated WebDAV client against a single server.
// Certificate verification uses the system trust store; invalid
// certificates are rejected and surface as ErrTLSUntrusted.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a WebDAV client for the given base URL and Basic auth
// credentials. A nil httpClient gets a default with DefaultTimeout.
func NewClient(baseURL, username, password string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the configured server base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Username returns the account the client authenticates as.
func (c *Client) Username() string { return c.username }

// Propfind issues a PROPFIND with the given Depth against url and returns
// the raw multistatus XML. Any non-2xx status is a *StatusError.
func (c *Client) Propfind(ctx context.Context, url string, depth int) ([]byte, error) {
	req, err := c.newRequest(ctx, "PROPFIND", url, strings.NewReader(propfindBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Depth", strconv.Itoa(depth))
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, nil); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webdav: reading PROPFIND response from %s: %w", url, err)
	}

	c.logger.Debug("propfind complete", slog.String("url", url), slog.Int("bytes", len(body)))

	return body, nil
}

// Get streams a resource body. The caller must close the returned reader.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, http.Header, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, nil, err
	}

	if err := c.checkStatus(resp, nil); err != nil {
		resp.Body.Close()
		return nil, nil, err
	}

	return resp.Body, resp.Header, nil
}

// Put uploads body to url. mtimeSeconds is sent as X-OC-MTime so the
// server preserves the file's modification time (whole seconds).
func (c *Client) Put(ctx context.Context, url string, body io.Reader, size int64, mtimeSeconds int64) error {
	req, err := c.newRequest(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}

	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-OC-MTime", strconv.FormatInt(mtimeSeconds, 10))

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, nil); err != nil {
		return err
	}

	c.logger.Debug("put complete", slog.String("url", url), slog.Int64("size", size))

	return nil
}

// Delete removes a resource. A 404 counts as success so deletion stays
// idempotent across retried passes.
func (c *Client) Delete(ctx context.Context, url string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	okStatuses := []int{http.StatusNotFound}

	if err := c.checkStatus(resp, okStatuses); err != nil {
		return err
	}

	c.logger.Debug("delete complete", slog.String("url", url), slog.Int("status", resp.StatusCode))

	return nil
}

// CheckServerIdentity probes the base URL and verifies the response looks
// like Nextcloud: either an X-Nextcloud-* response header or the
// case-insensitive substring "nextcloud" in the landing page body.
func (c *Client) CheckServerIdentity(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for name := range resp.Header {
		if strings.HasPrefix(strings.ToLower(name), "x-nextcloud-") {
			c.logger.Debug("server identity confirmed by header", slog.String("header", name))
			return nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, identityBodyLimit))
	if err != nil {
		return fmt.Errorf("webdav: reading identity response from %s: %w", c.baseURL, err)
	}

	if strings.Contains(strings.ToLower(string(body)), "nextcloud") {
		c.logger.Debug("server identity confirmed by body marker")
		return nil
	}

	return fmt.Errorf("%w: %s", ErrNotNextcloud, c.baseURL)
}

// newRequest builds a request with Basic auth and the client User-Agent.
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("webdav: creating %s request for %s: %w", method, url, err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

// do executes a request, classifying transport errors. TLS rejections are
// logged with the host so the operator can see which server failed.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := wrapTransportErr(req.Method, req.URL.String(), err)
		if isTLSUntrusted(wrapped) {
			c.logger.Error("rejecting untrusted TLS certificate", slog.String("host", req.URL.Host))
		}

		return nil, wrapped
	}

	return resp, nil
}

// checkStatus drains and closes nothing; callers own the body. Statuses in
// extraOK are accepted alongside 2xx.
func (c *Client) checkStatus(resp *http.Response, extraOK []int) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	for _, code := range extraOK {
		if resp.StatusCode == code {
			return nil
		}
	}

	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.String(),
		Code:   resp.StatusCode,
	}
}
