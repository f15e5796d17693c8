package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Anuvesh07/Planicorn/domain"
)

// Events connects to the account's SSE feed and emits parsed events until
// ctx is cancelled or the connection drops. The channel is closed on exit;
// reconnecting (and the full refetch that recovers missed events) is the
// caller's job.
func (c *Client) Events(ctx context.Context) (<-chan domain.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout: the stream stays open until cancelled.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024)); err == nil && len(data) > 0 {
			msg = string(data)
		}
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	ch := make(chan domain.Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var data bytes.Buffer
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if data.Len() == 0 {
					continue
				}
				var ev domain.Event
				if err := json.Unmarshal(data.Bytes(), &ev); err == nil {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
				data.Reset()
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}
			if v, ok := strings.CutPrefix(line, "data:"); ok {
				data.WriteString(strings.TrimPrefix(v, " "))
			}
		}
	}()
	return ch, nil
}

// Listen pipes the event feed into the board until ctx is cancelled or the
// stream ends.
func (c *Client) Listen(ctx context.Context, board *Board) error {
	events, err := c.Events(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		board.ApplyEvent(ev)
	}
	return ctx.Err()
}
