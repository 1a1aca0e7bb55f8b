package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ledgerkeep/ledgersync/models"
)

// sseChannel is one server-sent-events stream for a (table, filter) pair.
// The stream must outlive the mutation client's request timeout, so it is
// opened on the adapter's timeout-free stream client as a raw, unparsed
// response and read by a pump goroutine until Close or a transport failure.
type sseChannel struct {
	events chan RowChange
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

func (h *httpBackendAdapter) OpenChannel(ctx context.Context, table models.TableIdentity, filter string) (Channel, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req := h.authedStreamRequest(streamCtx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream")
	if filter != "" {
		req.SetQueryParam("filter", filter)
	}

	resp, err := req.Get("/v1/realtime/" + string(table))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open channel request: %w: %w", ErrNetwork, err)
	}
	if resp.StatusCode() >= 300 {
		body := resp.RawBody()
		raw, _ := io.ReadAll(io.LimitReader(body, 4096))
		body.Close()
		cancel()

		// Re-dress the raw response so the shared status mapping applies.
		return nil, mapSSEOpenError(resp.StatusCode(), string(raw))
	}

	ch := &sseChannel{
		events: make(chan RowChange),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go ch.pump(resp.RawBody())

	return ch, nil
}

func mapSSEOpenError(code int, body string) error {
	body = strings.TrimSpace(body)
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%w: http %d: %s", ErrOwnership, code, body)
	case code >= 500 || code == 408 || code == 429:
		return fmt.Errorf("%w: http %d: %s", ErrNetwork, code, body)
	default:
		return fmt.Errorf("%w: http %d: %s", ErrValidation, code, body)
	}
}

// pump reads SSE frames off the wire and forwards decoded row events until
// the stream ends. Frames are newline-delimited; the payload is carried in
// "data:" lines and a blank line terminates a frame.
func (c *sseChannel) pump(body io.ReadCloser) {
	defer close(c.events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			payload := data.String()
			data.Reset()

			var change RowChange
			if err := json.Unmarshal([]byte(payload), &change); err != nil {
				c.fail(fmt.Errorf("decode push event: %w", err))
				return
			}
			if !c.deliver(change) {
				return
			}
		default:
			// Comment or event-name line; the payload carries the kind.
		}
	}

	if err := scanner.Err(); err != nil {
		c.fail(fmt.Errorf("push channel read: %w: %w", ErrNetwork, err))
	}
}

// deliver hands one event to the consumer, giving up when the channel has
// been closed underneath the pump.
func (c *sseChannel) deliver(change RowChange) bool {
	select {
	case c.events <- change:
		return true
	case <-c.done:
		return false
	}
}

func (c *sseChannel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.err = err
	}
}

func (c *sseChannel) Events() <-chan RowChange { return c.events }

func (c *sseChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *sseChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.cancel()
}
