package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"debtster/internal/domain"
	ws "debtster/internal/transport/websocket"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *ws.Hub, userID int64) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, userID)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + server.URL[4:]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// give the hub time to register the connection
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var received ws.Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return received
}

func messageData(t *testing.T, m ws.Message) map[string]interface{} {
	t.Helper()

	dataBytes, err := json.Marshal(m.Data)
	if err != nil {
		t.Fatalf("Failed to marshal data: %v", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	return data
}

func TestWebSocketClient_PushNotification(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	conn := dialHub(t, hub, 7)

	client := NewWebSocketClient(hub)

	debtID := int64(42)
	client.PushNotification(7, domain.Notification{
		ID:      101,
		UserID:  7,
		Type:    domain.NotificationNewDebt,
		Message: "New debt recorded",
		DebtID:  &debtID,
	})

	received := readMessage(t, conn)
	if received.Type != "notification" {
		t.Errorf("Expected type 'notification', got '%s'", received.Type)
	}
	if received.Channel != "notifications#7" {
		t.Errorf("Expected channel 'notifications#7', got '%s'", received.Channel)
	}

	data := messageData(t, received)
	if data["message"] != "New debt recorded" {
		t.Errorf("Expected message 'New debt recorded', got '%v'", data["message"])
	}
	if int64(data["debt_id"].(float64)) != 42 {
		t.Errorf("Expected debt_id 42, got %v", data["debt_id"])
	}
}

func TestWebSocketClient_NotifyExportProgress(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	conn := dialHub(t, hub, 1)

	client := NewWebSocketClient(hub)

	if err := client.NotifyExportProgress(context.Background(), 1, "exports:abc", 50.5, ""); err != nil {
		t.Fatalf("Failed to notify progress: %v", err)
	}

	received := readMessage(t, conn)
	if received.Type != "export_progress" {
		t.Errorf("Expected type 'export_progress', got '%s'", received.Type)
	}
	if received.UserID != 1 {
		t.Errorf("Expected userID 1, got %d", received.UserID)
	}
	if received.Channel != "notify_user_of_progress_export#1" {
		t.Errorf("Expected channel 'notify_user_of_progress_export#1', got '%s'", received.Channel)
	}

	data := messageData(t, received)
	if data["id"] != "exports:abc" {
		t.Errorf("Expected id 'exports:abc', got '%v'", data["id"])
	}
	if data["progress"].(float64) != 50.5 {
		t.Errorf("Expected progress 50.5, got %v", data["progress"])
	}
}

func TestWebSocketClient_NotifyExportComplete(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	conn := dialHub(t, hub, 1)

	client := NewWebSocketClient(hub)

	err := client.NotifyExportComplete(context.Background(), 1, "exports:abc", "https://example.com/file.xlsx", "debts_20240101.xlsx")
	if err != nil {
		t.Fatalf("Failed to notify complete: %v", err)
	}

	received := readMessage(t, conn)
	if received.Type != "export_complete" {
		t.Errorf("Expected type 'export_complete', got '%s'", received.Type)
	}
	if received.Channel != "notify_user_when_export_complete#1" {
		t.Errorf("Expected channel 'notify_user_when_export_complete#1', got '%s'", received.Channel)
	}

	data := messageData(t, received)
	if data["url"] != "https://example.com/file.xlsx" {
		t.Errorf("Expected url 'https://example.com/file.xlsx', got '%v'", data["url"])
	}
	if data["filename"] != "debts_20240101.xlsx" {
		t.Errorf("Expected filename 'debts_20240101.xlsx', got '%v'", data["filename"])
	}
	if int64(data["user_id"].(float64)) != 1 {
		t.Errorf("Expected user_id 1, got %v", data["user_id"])
	}
}

func TestWebSocketClient_NotifyExportFailed(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	conn := dialHub(t, hub, 1)

	client := NewWebSocketClient(hub)

	if err := client.NotifyExportFailed(context.Background(), 1, "exports:abc", "upload failed"); err != nil {
		t.Fatalf("Failed to notify failed: %v", err)
	}

	received := readMessage(t, conn)
	if received.Type != "export_failed" {
		t.Errorf("Expected type 'export_failed', got '%s'", received.Type)
	}
	if received.Channel != "notify_user_when_export_failed#1" {
		t.Errorf("Expected channel 'notify_user_when_export_failed#1', got '%s'", received.Channel)
	}

	data := messageData(t, received)
	if data["message"] != "upload failed" {
		t.Errorf("Expected message 'upload failed', got '%v'", data["message"])
	}
}

func TestWebSocketClient_NilHub(t *testing.T) {
	client := NewWebSocketClient(nil)

	// all pushes are best-effort no-ops without a hub
	client.PushNotification(1, domain.Notification{ID: 1})

	if err := client.NotifyExportProgress(context.Background(), 1, "exports:abc", 50.5, ""); err != nil {
		t.Errorf("Should not return error with nil hub, got: %v", err)
	}
	if err := client.NotifyExportComplete(context.Background(), 1, "exports:abc", "https://example.com/f.xlsx", "f.xlsx"); err != nil {
		t.Errorf("Should not return error with nil hub, got: %v", err)
	}
}

func TestWebSocketClient_MultipleProgressUpdates(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	conn := dialHub(t, hub, 1)

	client := NewWebSocketClient(hub)

	progresses := []float64{10.0, 25.0, 50.0, 75.0, 100.0}
	for _, progress := range progresses {
		if err := client.NotifyExportProgress(context.Background(), 1, "exports:abc", progress, ""); err != nil {
			t.Fatalf("Failed to notify progress: %v", err)
		}

		received := readMessage(t, conn)
		data := messageData(t, received)
		if data["progress"].(float64) != progress {
			t.Errorf("Expected progress %.1f, got %.1f", progress, data["progress"].(float64))
		}
	}
}
