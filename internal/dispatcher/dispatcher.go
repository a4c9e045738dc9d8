// Package dispatcher rotates uploads across a pool of pre-provisioned
// webhook endpoints and fetches chunk bodies back from signed CDN URLs,
// absorbing rate-limit responses from both paths.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/chunkdrive/chunkdrive/internal/pacer"
)

const requestTimeout = 10 * time.Second

// NetworkError wraps a transport-level failure (timeout, connection
// refused, ...).
type NetworkError struct{ Reason string }

func (e *NetworkError) Error() string { return "dispatcher: network error: " + e.Reason }

// UploadError wraps a non-200, non-429 response body from a webhook POST.
type UploadError struct{ Body string }

func (e *UploadError) Error() string { return "dispatcher: upload failed: " + e.Body }

// UnexpectedStatusError wraps a non-200, non-429 response from a GET.
type UnexpectedStatusError struct{ StatusCode int }

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("dispatcher: unexpected status %d", e.StatusCode)
}

// Attachment is the subset of the upload response we care about.
type Attachment struct {
	URL string `json:"url"`
}

// UploadResponse is the webhook POST's 200 JSON body.
type UploadResponse struct {
	ID          string       `json:"id"`
	Attachments []Attachment `json:"attachments"`
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// Dispatcher round-robins uploads across webhook endpoints and fetches
// chunk bodies from CDN URLs, both with rate-limit-aware retry.
type Dispatcher struct {
	endpoints []string
	index     atomic.Uint64
	client    *http.Client
	pacer     *pacer.Pacer
}

// New builds a Dispatcher over the given webhook endpoint pool.
func New(endpoints []string) *Dispatcher {
	return &Dispatcher{
		endpoints: endpoints,
		client:    &http.Client{Timeout: requestTimeout},
		pacer:     pacer.New(),
	}
}

// nextEndpoint advances the round-robin index and returns the endpoint at
// index mod N. Concurrent callers simply interleave which endpoint they
// land on; this is intentional (see spec §5).
func (d *Dispatcher) nextEndpoint() string {
	i := d.index.Add(1)
	return d.endpoints[i%uint64(len(d.endpoints))]
}

// Send uploads filename/body as multipart field "file" to the next
// webhook endpoint, retrying on 429 with the server's requested delay plus
// a small safety margin.
func (d *Dispatcher) Send(ctx context.Context, filename string, body []byte) (*UploadResponse, error) {
	var result *UploadResponse

	err := d.pacer.Call(ctx, func() (bool, error) {
		endpoint := d.nextEndpoint()

		reqBody, contentType, err := multipartBody(filename, body)
		if err != nil {
			return false, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := d.client.Do(req)
		if err != nil {
			if isTimeout(err) {
				return false, &NetworkError{Reason: "timeout"}
			}
			return false, errors.Wrap(err, "dispatcher: post")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, errors.Wrap(err, "dispatcher: read response")
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var parsed UploadResponse
			if err := json.Unmarshal(respBody, &parsed); err != nil {
				return false, errors.Wrap(err, "dispatcher: decode upload response")
			}
			result = &parsed
			return false, nil
		case http.StatusTooManyRequests:
			var rl rateLimitBody
			if err := json.Unmarshal(respBody, &rl); err != nil {
				return false, errors.Wrap(err, "dispatcher: decode rate limit body")
			}
			wait := time.Duration(rl.RetryAfter*float64(time.Second)) + 30*time.Millisecond
			return true, pacer.RetryAfter{Wait: wait}
		default:
			return false, &UploadError{Body: string(respBody)}
		}
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get downloads the body at url, retrying on 429 (same shape as Send, plus
// a 100ms-backoff retry on an unexpected empty 200 body).
func (d *Dispatcher) Get(ctx context.Context, url string) ([]byte, error) {
	var result []byte

	err := d.pacer.Call(ctx, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}

		resp, err := d.client.Do(req)
		if err != nil {
			if isTimeout(err) {
				return false, &NetworkError{Reason: "timeout"}
			}
			return false, errors.Wrap(err, "dispatcher: get")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, errors.Wrap(err, "dispatcher: read body")
		}

		switch resp.StatusCode {
		case http.StatusOK:
			if len(body) == 0 {
				return true, pacer.RetryAfter{Wait: 100 * time.Millisecond}
			}
			result = body
			return false, nil
		case http.StatusTooManyRequests:
			var rl rateLimitBody
			if err := json.Unmarshal(body, &rl); err != nil {
				return false, errors.Wrap(err, "dispatcher: decode rate limit body")
			}
			wait := time.Duration(rl.RetryAfter*float64(time.Second)) + 100*time.Millisecond
			return true, pacer.RetryAfter{Wait: wait}
		default:
			return false, &UnexpectedStatusError{StatusCode: resp.StatusCode}
		}
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

func multipartBody(filename string, body []byte) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(body); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
