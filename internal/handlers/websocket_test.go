package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/services/crawler"
)

// TestLogDispatchFanOut verifies that log broadcast correctly fans out to multiple subscribers
// without blocking or leaking goroutines
func TestLogDispatchFanOut(t *testing.T) {
	logger := arbor.NewLogger()
	handler := NewWebSocketHandler(logger, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	numSubscribers := 5

	receivedMessages := make([][]LogEntry, numSubscribers)
	var receivedMutex sync.Mutex

	var wg sync.WaitGroup
	wg.Add(numSubscribers)

	initialGoroutines := countGoroutines()

	subscribers := make([]*websocket.Conn, numSubscribers)
	for i := 0; i < numSubscribers; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect subscriber %d: %v", i, err)
		}
		subscribers[i] = conn

		subscriberIdx := i
		go func() {
			defer wg.Done()
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			for {
				var msg WSMessage
				err := conn.ReadJSON(&msg)
				if err != nil {
					return
				}

				if msg.Type == "log" {
					logData, err := json.Marshal(msg.Payload)
					if err != nil {
						continue
					}

					var logEntry LogEntry
					if err := json.Unmarshal(logData, &logEntry); err != nil {
						continue
					}

					receivedMutex.Lock()
					receivedMessages[subscriberIdx] = append(receivedMessages[subscriberIdx], logEntry)
					receivedMutex.Unlock()
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)

	handler.mu.RLock()
	connectedClients := len(handler.clients)
	handler.mu.RUnlock()

	if connectedClients != numSubscribers {
		t.Errorf("Expected %d connected clients, got %d", numSubscribers, connectedClients)
	}

	testLogs := []struct {
		level   string
		message string
	}{
		{"INFO", "Test log message 1"},
		{"DEBUG", "Test log message 2"},
		{"WARN", "Test log message 3"},
		{"ERROR", "Test log message 4"},
		{"INFO", "Test log message 5"},
	}

	var sendWg sync.WaitGroup
	sendWg.Add(len(testLogs))

	for _, log := range testLogs {
		logCopy := log
		go func() {
			defer sendWg.Done()
			handler.SendLog(logCopy.level, logCopy.message)
		}()
	}

	sendWg.Wait()

	time.Sleep(500 * time.Millisecond)

	for _, conn := range subscribers {
		conn.Close()
	}

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for subscribers to finish")
	}

	receivedMutex.Lock()
	defer receivedMutex.Unlock()

	for i, messages := range receivedMessages {
		logCount := 0
		for _, msg := range messages {
			for _, testLog := range testLogs {
				if msg.Level == strings.ToLower(testLog.level) && msg.Message == testLog.message {
					logCount++
					break
				}
			}
		}

		if logCount != len(testLogs) {
			t.Errorf("Subscriber %d received %d test logs, expected %d", i, logCount, len(testLogs))
			t.Logf("Subscriber %d messages: %+v", i, messages)
		}
	}

	time.Sleep(100 * time.Millisecond)

	finalGoroutines := countGoroutines()
	goroutineDiff := finalGoroutines - initialGoroutines

	if goroutineDiff > 2 {
		t.Errorf("Potential goroutine leak detected: %d goroutines leaked", goroutineDiff)
	}

	handler.mu.RLock()
	remainingClients := len(handler.clients)
	handler.mu.RUnlock()

	if remainingClients != 0 {
		t.Errorf("Handler still has %d clients after cleanup", remainingClients)
	}

	t.Logf("Successfully broadcast %d logs to %d subscribers", len(testLogs), numSubscribers)
}

// TestConcurrentLogDispatch verifies that concurrent log dispatches don't cause race conditions
func TestConcurrentLogDispatch(t *testing.T) {
	logger := arbor.NewLogger()
	handler := NewWebSocketHandler(logger, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect subscriber: %v", err)
	}
	defer conn.Close()

	var messageCount int32
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))

		for {
			var msg WSMessage
			err := conn.ReadJSON(&msg)
			if err != nil {
				return
			}

			if msg.Type == "log" {
				atomic.AddInt32(&messageCount, 1)
			}
		}
	}()

	numSenders := 10
	logsPerSender := 10

	var wg sync.WaitGroup
	wg.Add(numSenders)

	start := time.Now()

	for i := 0; i < numSenders; i++ {
		senderID := i
		go func() {
			defer wg.Done()
			for j := 0; j < logsPerSender; j++ {
				handler.SendLog("INFO", "Sender "+string(rune(senderID))+" message "+string(rune(j)))
			}
		}()
	}

	wg.Wait()

	time.Sleep(500 * time.Millisecond)

	conn.Close()

	<-done

	elapsed := time.Since(start)

	totalExpected := int32(numSenders * logsPerSender)
	received := atomic.LoadInt32(&messageCount)

	if received != totalExpected {
		t.Errorf("Received %d messages, expected %d", received, totalExpected)
	}

	t.Logf("Successfully sent %d messages concurrently from %d senders (elapsed: %v)", totalExpected, numSenders, elapsed)
}

// TestLogDispatchWithTimeouts verifies that slow/blocked subscribers don't affect others
func TestLogDispatchWithTimeouts(t *testing.T) {
	logger := arbor.NewLogger()
	handler := NewWebSocketHandler(logger, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	fastConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect fast subscriber: %v", err)
	}
	defer fastConn.Close()

	slowConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect slow subscriber: %v", err)
	}
	defer slowConn.Close()

	var fastMessages int32
	fastDone := make(chan struct{})

	go func() {
		defer close(fastDone)
		fastConn.SetReadDeadline(time.Now().Add(3 * time.Second))

		for {
			var msg WSMessage
			err := fastConn.ReadJSON(&msg)
			if err != nil {
				return
			}

			if msg.Type == "log" {
				atomic.AddInt32(&fastMessages, 1)
			}
		}
	}()

	numLogs := 20
	for i := 0; i < numLogs; i++ {
		handler.SendLog("INFO", "Test message "+string(rune(i)))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)

	fastConn.Close()
	slowConn.Close()

	<-fastDone

	received := atomic.LoadInt32(&fastMessages)
	if received != int32(numLogs) {
		t.Errorf("Fast subscriber received %d messages, expected %d", received, numLogs)
	}

	t.Logf("Fast subscriber received all %d messages; slow subscriber did not block it", numLogs)
}

// TestJobScopedProgress verifies Publish only reaches connections
// subscribed to the matching job_id.
func TestJobScopedProgress(t *testing.T) {
	logger := arbor.NewLogger()
	handler := NewWebSocketHandler(logger, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	connA, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect conn A: %v", err)
	}
	defer connA.Close()

	connB, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect conn B: %v", err)
	}
	defer connB.Close()

	// drain the initial status frame on each connection
	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	var discard WSMessage
	connA.ReadJSON(&discard)
	connB.ReadJSON(&discard)

	if err := connA.WriteJSON(clientMessage{Type: "subscribe", JobID: "job_a"}); err != nil {
		t.Fatalf("subscribe write failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	handler.Publish("job_a", crawler.ProgressEvent{Type: "progress_update", JobID: "job_a", Progress: 50})

	connA.SetReadDeadline(time.Now().Add(1 * time.Second))
	var gotA crawler.ProgressEvent
	if err := connA.ReadJSON(&gotA); err != nil {
		t.Fatalf("conn A expected a progress event, got error: %v", err)
	}
	if gotA.JobID != "job_a" {
		t.Errorf("conn A got job_id %q, expected job_a", gotA.JobID)
	}

	connB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var gotB crawler.ProgressEvent
	if err := connB.ReadJSON(&gotB); err == nil {
		t.Errorf("conn B should not have received job_a's progress event, got %+v", gotB)
	}
}

// Helper function to count goroutines
func countGoroutines() int {
	return runtime.NumGoroutine()
}
