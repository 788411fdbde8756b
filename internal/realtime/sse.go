package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/livesync"
)

const DefaultHeartbeat = 25 * time.Second

// Streamer writes a hub subscription as text/event-stream.
type Streamer struct {
	hub       *Hub
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewStreamer(hub *Hub, heartbeat time.Duration, logger *zap.Logger) *Streamer {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{hub: hub, heartbeat: heartbeat, logger: logger.Named("sse")}
}

// Stream blocks until the client goes away or the hub closes. The first
// event is a SUBSCRIBED status; hub shutdown ends the stream with CLOSED.
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, principal Principal, bindings []Binding) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	sub := s.hub.Subscribe(principal, bindings)
	defer sub.Close()

	logger := s.logger.With(zap.String("subscription_id", sub.ID()))
	logger.Debug("realtime client connected", zap.Int("bindings", len(bindings)))

	w.WriteHeader(http.StatusOK)
	select {
	case <-sub.Done():
		writeStatus(w, livesync.StatusClosed, "server shutting down")
		flusher.Flush()
		return
	default:
	}
	writeStatus(w, livesync.StatusSubscribed, "")
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("realtime client disconnected")
			return
		case <-sub.Done():
			writeStatus(w, livesync.StatusClosed, "server shutting down")
			flusher.Flush()
			return
		case <-ticker.C:
			writeEvent(w, "heartbeat", "", fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()))
			flusher.Flush()
		case n := <-sub.C():
			data, err := json.Marshal(n.ChangeEvent())
			if err != nil {
				logger.Error("marshal change event", zap.Error(err))
				continue
			}
			writeEvent(w, "change", fmt.Sprintf("%d", n.CommitTimestamp.UnixNano()), string(data))
			flusher.Flush()
		}
	}
}

func writeStatus(w http.ResponseWriter, status livesync.Status, message string) {
	data, _ := json.Marshal(livesync.StatusPayload{Status: status, Message: message})
	writeEvent(w, "status", "", string(data))
}

func writeEvent(w http.ResponseWriter, event, id, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
