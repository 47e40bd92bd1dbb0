// -----------------------------------------------------------------------
// Last Modified: Wednesday, 8th October 2025 9:38:41 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/common"
	"github.com/parkseohuinim/ai-crawler/internal/services/crawler"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsConn pairs a connection with its own write-mutex; gorilla/websocket
// connections are not safe for concurrent writes.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WebSocketHandler serves the progress-hub WebSocket: log/status streams
// broadcast to every connection, but crawl progress is job-scoped — a
// connection only receives events for jobs it has subscribed to (spec §9's
// Progress Hub redesign, spec §5's "job_id -> [connection_ids]" model).
type WebSocketHandler struct {
	logger arbor.ILogger
	config *common.WebSocketConfig

	mu      sync.RWMutex
	clients map[string]*wsConn

	subMu          sync.RWMutex
	jobSubscribers map[string]map[string]bool // job_id -> connection_id set

	logKeysMu   sync.RWMutex
	lastLogKeys map[string]bool
}

// NewWebSocketHandler builds a Progress Hub WebSocket handler.
func NewWebSocketHandler(logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		logger:         logger,
		config:         config,
		clients:        make(map[string]*wsConn),
		jobSubscribers: make(map[string]map[string]bool),
		lastLogKeys:    make(map[string]bool),
	}
}

// WSMessage is the envelope for every outbound frame.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is the periodic service-health broadcast.
type StatusUpdate struct {
	Service     string `json:"service"`
	Status      string `json:"status"`
	EnginesUp   int    `json:"enginesUp"`
	ActiveJobs  int    `json:"activeJobs"`
	LastCrawl   string `json:"lastCrawl"`
}

// LogEntry is a single streamed log line.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// clientMessage is an inbound control frame: {"type":"subscribe","job_id":"..."}.
type clientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

// HandleWebSocket upgrades the connection and services its lifecycle:
// registration, subscribe/unsubscribe control frames, and cleanup on close.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	connID := uuid.New().String()
	client := &wsConn{conn: conn}

	h.mu.Lock()
	h.clients[connID] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Int("clients", clientCount).Msg("WebSocket client connected")

	h.sendStatus(client)

	defer func() {
		h.mu.Lock()
		delete(h.clients, connID)
		remaining := len(h.clients)
		h.mu.Unlock()

		h.subMu.Lock()
		for jobID, subs := range h.jobSubscribers {
			delete(subs, connID)
			if len(subs) == 0 {
				delete(h.jobSubscribers, jobID)
			}
		}
		h.subMu.Unlock()

		conn.Close()
		h.logger.Info().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			h.subscribe(msg.JobID, connID)
		case "unsubscribe":
			h.unsubscribe(msg.JobID, connID)
		}
	}
}

func (h *WebSocketHandler) subscribe(jobID, connID string) {
	if jobID == "" {
		return
	}
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if h.jobSubscribers[jobID] == nil {
		h.jobSubscribers[jobID] = make(map[string]bool)
	}
	h.jobSubscribers[jobID][connID] = true
}

func (h *WebSocketHandler) unsubscribe(jobID, connID string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if subs, ok := h.jobSubscribers[jobID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.jobSubscribers, jobID)
		}
	}
}

// Publish implements crawler.ProgressPublisher: event is delivered only to
// connections subscribed to jobID, never broadcast.
func (h *WebSocketHandler) Publish(jobID string, event crawler.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to marshal progress event")
		return
	}

	h.subMu.RLock()
	subs := h.jobSubscribers[jobID]
	connIDs := make([]string, 0, len(subs))
	for id := range subs {
		connIDs = append(connIDs, id)
	}
	h.subMu.RUnlock()

	h.mu.RLock()
	clients := make([]*wsConn, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.writeRaw(c, data)
	}
}

func (h *WebSocketHandler) writeRaw(c *wsConn, data []byte) {
	c.mu.Lock()
	err := c.conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write WebSocket message")
	}
}

func (h *WebSocketHandler) write(c *wsConn, msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}
	h.writeRaw(c, data)
}

func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*wsConn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.writeRaw(c, data)
	}
}

// BroadcastStatus sends a status update to every connected client.
func (h *WebSocketHandler) BroadcastStatus(status StatusUpdate) {
	h.broadcast("status", status)
}

// BroadcastLog sends a log entry to every connected client.
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.broadcast("log", entry)
}

// SendLog is a convenience wrapper building a LogEntry from level/message.
func (h *WebSocketHandler) SendLog(level, message string) {
	h.BroadcastLog(LogEntry{
		Timestamp: time.Now().Format("15:04:05"),
		Level:     strings.ToLower(level),
		Message:   message,
	})
}

func (h *WebSocketHandler) sendStatus(c *wsConn) {
	h.write(c, "status", StatusUpdate{Service: "ai-crawler", Status: "online"})
}

// StartStatusBroadcaster periodically re-broadcasts service status so
// clients connected for a while still see a heartbeat.
func (h *WebSocketHandler) StartStatusBroadcaster() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			h.mu.RLock()
			n := len(h.clients)
			h.mu.RUnlock()
			if n > 0 {
				h.BroadcastStatus(StatusUpdate{Service: "ai-crawler", Status: "online"})
			}
		}
	}()
}

// StartLogStreamer periodically drains arbor's memory writer and forwards
// new entries as LogEntry broadcasts.
func (h *WebSocketHandler) StartLogStreamer() {
	ticker := time.NewTicker(2 * time.Second)
	go func() {
		for range ticker.C {
			h.mu.RLock()
			n := len(h.clients)
			h.mu.RUnlock()
			if n > 0 {
				h.sendLogs()
			}
		}
	}()
}

func (h *WebSocketHandler) sendLogs() {
	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	if memWriter == nil {
		return
	}
	entries, err := memWriter.GetEntriesWithLimit(50)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to get log entries from memory writer")
		return
	}
	if len(entries) == 0 {
		return
	}

	h.logKeysMu.Lock()
	newKeys := make(map[string]bool, len(entries))
	for key, logLine := range entries {
		newKeys[key] = true
		if !h.lastLogKeys[key] {
			h.parseAndBroadcastLog(logLine)
		}
	}
	h.lastLogKeys = newKeys
	h.logKeysMu.Unlock()
}

// parseAndBroadcastLog parses arbor's memory-writer line format
// ("LVL|Date Time|Message key=value ...") into a LogEntry and broadcasts it.
func (h *WebSocketHandler) parseAndBroadcastLog(logLine string) {
	if logLine == "" {
		return
	}
	if excluded := h.excludedByPattern(logLine); excluded {
		return
	}

	parts := strings.SplitN(logLine, "|", 3)
	if len(parts) != 3 {
		return
	}

	levelStr := strings.TrimSpace(parts[0])
	dateTime := strings.TrimSpace(parts[1])
	message := strings.TrimSpace(parts[2])

	level := "info"
	switch levelStr {
	case "ERR", "ERROR", "FATAL", "PANIC":
		level = "error"
	case "WRN", "WARN":
		level = "warn"
	case "INF", "INFO", "DBG", "DEBUG":
		level = "info"
	}

	timeParts := strings.Fields(dateTime)
	timestamp := time.Now().Format("15:04:05")
	if len(timeParts) >= 3 {
		timestamp = timeParts[len(timeParts)-1]
	}

	h.BroadcastLog(LogEntry{Timestamp: timestamp, Level: level, Message: message})
}

func (h *WebSocketHandler) excludedByPattern(logLine string) bool {
	defaults := []string{
		"WebSocket client connected", "WebSocket client disconnected",
		"HTTP request", "HTTP response", "DEBUG: Memory writer entry",
	}
	for _, p := range defaults {
		if strings.Contains(logLine, p) {
			return true
		}
	}
	if h.config == nil {
		return false
	}
	for _, p := range h.config.ExcludePatterns {
		if strings.Contains(logLine, p) {
			return true
		}
	}
	return false
}

// GetRecentLogsHandler returns recent in-memory logs as JSON, for clients
// that want a snapshot without opening a WebSocket.
func (h *WebSocketHandler) GetRecentLogsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var logs []LogEntry
	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	if memWriter != nil {
		entries, err := memWriter.GetEntriesWithLimit(100)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to get log entries")
			http.Error(w, "Failed to retrieve logs", http.StatusInternalServerError)
			return
		}
		for _, logLine := range entries {
			if h.excludedByPattern(logLine) {
				continue
			}
			parts := strings.SplitN(logLine, "|", 3)
			if len(parts) != 3 {
				continue
			}
			levelStr := strings.TrimSpace(parts[0])
			dateTime := strings.TrimSpace(parts[1])
			message := strings.TrimSpace(parts[2])

			level := "info"
			switch levelStr {
			case "ERR", "ERROR", "FATAL", "PANIC":
				level = "error"
			case "WRN", "WARN":
				level = "warn"
			}

			timeParts := strings.Fields(dateTime)
			timestamp := time.Now().Format("15:04:05")
			if len(timeParts) >= 3 {
				timestamp = timeParts[len(timeParts)-1]
			}

			logs = append(logs, LogEntry{Timestamp: timestamp, Level: level, Message: message})
		}
	}

	if logs == nil {
		logs = []LogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"logs": logs, "count": len(logs)})
}
