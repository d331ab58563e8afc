package source

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/gabriel-vasile/mimetype"

	"epgcacher/config"
	"epgcacher/models"
	"epgcacher/utils"
)

const (
	maxPayloadBytes = 256 * 1024 * 1024
	fetchAttempts   = 3
	userAgent       = "EPG-Cacher/1.0"
)

// HTTPAdapter pulls a guide payload over HTTP with conditional fetch
// support. Gzipped bodies and gzip-wrapped ZIP archives are transparently
// unwrapped, as some guide providers ship their XMLTV that way.
type HTTPAdapter struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPAdapter creates an HTTP source adapter. A nil client falls back to
// http.DefaultClient; per-request timeouts come from the source config.
func NewHTTPAdapter(cfg config.SourceConfig, client *http.Client) *HTTPAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	// Guide URLs copied out of provider panels sometimes carry raw spaces.
	sourceURL := cfg.URL
	if encoded, err := utils.EncodeURLWithSpaces(sourceURL); err == nil {
		sourceURL = encoded
	}
	return &HTTPAdapter{
		name:    cfg.Name,
		url:     sourceURL,
		timeout: cfg.Timeout(),
		client:  client,
	}
}

func (a *HTTPAdapter) Name() string { return a.name }

// Fetch downloads the payload, retrying transient failures a bounded number
// of times within the call. Permanent failures (4xx, malformed URL) are
// returned immediately.
func (a *HTTPAdapter) Fetch(ctx context.Context, prev models.SourceVersion) (*RawPayload, error) {
	if _, err := url.ParseRequestURI(a.url); err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchPermanent, Err: err}
	}

	var payload *RawPayload
	err := retry.Do(
		func() error {
			var err error
			payload, err = a.fetchOnce(ctx, prev)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(fetchAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(models.IsTransientFetch),
	)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (a *HTTPAdapter) fetchOnce(ctx context.Context, prev models.SourceVersion) (*RawPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchPermanent, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml, text/xml, */*")
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Timeouts, resets and DNS hiccups are all worth retrying.
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &RawPayload{Source: a.name, Version: prev, NotModified: true}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &models.FetchError{
			Source: a.name,
			Kind:   models.FetchTransient,
			Err:    fmt.Errorf("upstream returned status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &models.FetchError{
			Source: a.name,
			Kind:   models.FetchPermanent,
			Err:    fmt.Errorf("upstream returned status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchTransient, Err: err}
	}

	body, err = unwrapPayload(body)
	if err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchPermanent, Err: err}
	}

	return &RawPayload{
		Source: a.name,
		Body:   body,
		Version: models.SourceVersion{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		},
	}, nil
}

// unwrapPayload decompresses gzip bodies, including the gzip-wrapped ZIP
// archives some providers publish, until plain content remains.
func unwrapPayload(body []byte) ([]byte, error) {
	for {
		mtype := mimetype.Detect(body)
		switch {
		case mtype.Is("application/gzip"):
			zr, err := gzip.NewReader(bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("open gzip payload: %w", err)
			}
			inflated, err := io.ReadAll(io.LimitReader(zr, maxPayloadBytes))
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("decompress gzip payload: %w", err)
			}
			body = inflated
		case mtype.Is("application/zip"):
			extracted, err := extractZipXML(body)
			if err != nil {
				return nil, err
			}
			body = extracted
			return body, nil
		default:
			return body, nil
		}
	}
}

// extractZipXML returns the first XML member of a ZIP archive.
func extractZipXML(body []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open zip payload: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip member %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxPayloadBytes))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip member %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no xml file found in zip payload")
}
