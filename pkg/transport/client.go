// Package transport talks to the stream server: it submits queries and turns
// the server-sent event stream of a thread into stream events.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// EndSentinel is the data value that ends a stream.
const EndSentinel = "<|end|>"

const maxLineSize = 1024 * 1024

var (
	ErrSubmitFailed = errors.New("Error: Failed to get response")
	ErrStreamClosed = errors.New("stream closed before the end sentinel")
)

type SubmitRequest struct {
	ID    uuid.UUID `json:"id"`
	Query string    `json:"query"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	ret := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Run submits the query and streams the response. Every outcome is published
// to the sinks attached to ctx, including a failed submission.
func (c *Client) Run(ctx context.Context, id uuid.UUID, query string) error {
	meta := events.EventMetadata{ID: id, Query: query}

	if err := c.Submit(ctx, id, query); err != nil {
		log.Warn().Err(err).Str("thread_id", id.String()).Msg("submit failed")
		events.PublishEventToContext(ctx, events.NewErrorEvent(meta, ErrSubmitFailed))
		return err
	}

	return c.Stream(ctx, meta)
}

// Submit registers the query with the server. It returns before any streaming
// starts.
func (c *Client) Submit(ctx context.Context, id uuid.UUID, query string) error {
	body, err := json.Marshal(SubmitRequest{ID: id, Query: query})
	if err != nil {
		return errors.Wrap(err, "could not encode submit request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/init", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "could not create submit request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "submit request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "could not read submit response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("submit returned %s: %s", resp.Status, gjson.GetBytes(b, "message").String())
	}
	if status := gjson.GetBytes(b, "status").String(); status != "success" {
		return errors.Errorf("submit returned status %q", status)
	}

	return nil
}

// Stream reads the event stream of a submitted thread until the end sentinel,
// an error, or the cancellation of ctx. The response body is closed on every
// path.
func (c *Client) Stream(ctx context.Context, meta events.EventMetadata) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/chat/stream/%s", c.baseURL, meta.ID), nil)
	if err != nil {
		return c.fail(ctx, meta, errors.Wrap(err, "could not create stream request"))
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			events.PublishEventToContext(ctx, events.NewInterruptEvent(meta, ""))
			return ctx.Err()
		}
		return c.fail(ctx, meta, errors.Wrap(err, "stream request failed"))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return c.fail(ctx, meta, errors.Errorf("stream returned %s", resp.Status))
	}

	events.PublishEventToContext(ctx, events.NewStartEvent(meta))

	completion := strings.Builder{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]

			if payload == EndSentinel {
				log.Debug().Str("thread_id", meta.ID.String()).Int("len", completion.Len()).Msg("stream ended")
				events.PublishEventToContext(ctx, events.NewFinalEvent(meta, completion.String()))
				return nil
			}

			delta := DecodeChunk(payload)
			completion.WriteString(delta)
			events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(meta, delta, completion.String()))
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			// comments, event names and ids carry nothing for us
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}

	if ctx.Err() != nil {
		log.Debug().Str("thread_id", meta.ID.String()).Msg("stream cancelled")
		events.PublishEventToContext(ctx, events.NewInterruptEvent(meta, completion.String()))
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return c.fail(ctx, meta, errors.Wrap(err, "could not read stream"))
	}
	return c.fail(ctx, meta, ErrStreamClosed)
}

func (c *Client) fail(ctx context.Context, meta events.EventMetadata, err error) error {
	log.Warn().Err(err).Str("thread_id", meta.ID.String()).Msg("stream failed")
	events.PublishEventToContext(ctx, events.NewErrorEvent(meta, err))
	return err
}

// DecodeChunk turns an event payload into response text. Payloads are JSON
// strings; objects with a chunk field and non-JSON data are accepted too.
func DecodeChunk(data string) string {
	if !gjson.Valid(data) {
		return data
	}
	res := gjson.Parse(data)
	switch {
	case res.Type == gjson.String:
		return res.String()
	case res.IsObject() && res.Get("chunk").Exists():
		return res.Get("chunk").String()
	default:
		return data
	}
}
