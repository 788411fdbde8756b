package livesync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// StatusPayload is the data of a "status" server-sent event.
type StatusPayload struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// SSEFeed opens channels against the API's /api/realtime endpoint.
type SSEFeed struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (f *SSEFeed) Open(ctx context.Context, bindings []Binding) (Stream, error) {
	if len(bindings) == 0 {
		return nil, ErrInvalidScope
	}
	query := url.Values{}
	for _, binding := range bindings {
		query.Add("binding", binding.String())
	}
	endpoint := strings.TrimRight(f.BaseURL, "/") + "/api/realtime?" + query.Encode()

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("livesync: realtime endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return &sseStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
	}, nil
}

// sseStream decodes one text/event-stream response. Reads unblock when the
// stream is closed or the context passed to Open is cancelled.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *sseStream) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		name, data, err := s.readEvent()
		if err != nil {
			if s.isClosed() || errors.Is(err, io.EOF) {
				return Event{}, ErrStreamClosed
			}
			return Event{}, err
		}

		switch name {
		case "status":
			var payload StatusPayload
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return Event{}, fmt.Errorf("livesync: decode status event: %w", err)
			}
			var statusErr error
			if payload.Message != "" {
				statusErr = errors.New(payload.Message)
			}
			return StatusOf(payload.Status, statusErr), nil
		case "change":
			var change ChangeEvent
			if err := json.Unmarshal([]byte(data), &change); err != nil {
				return Event{}, fmt.Errorf("livesync: decode change event: %w", err)
			}
			return ChangeOf(change), nil
		default:
			// heartbeat and unknown events
		}
	}
}

// readEvent reads lines until a blank line terminates an event.
func (s *sseStream) readEvent() (string, string, error) {
	var name string
	var data []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if name == "" && len(data) == 0 {
				continue
			}
			if name == "" {
				name = "message"
			}
			return name, strings.Join(data, "\n"), nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
}

func (s *sseStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.body.Close()
	})
	return err
}
