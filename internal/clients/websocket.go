package clients

import (
	"context"

	ws "deal-service/internal/transport/websocket"
)

// WebSocketClient pushes export notifications to the caller's websocket connections.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{hub: hub}
}

func (c *WebSocketClient) NotifyExportProgress(_ context.Context, userID, exportID string, progress float64, stage string) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]any{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "export_progress",
		Channel: "deal_export_progress#" + userID,
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyExportComplete(_ context.Context, userID, exportID, url, filename string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "export_complete",
		Channel: "deal_export_complete#" + userID,
		Data: map[string]any{
			"id":       exportID,
			"url":      url,
			"filename": filename,
		},
	})
	return nil
}

func (c *WebSocketClient) NotifyExportFailed(_ context.Context, userID, exportID, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	c.hub.Broadcast(userID, &ws.Message{
		Type:    "export_failed",
		Channel: "deal_export_failed#" + userID,
		Data: map[string]any{
			"id":      exportID,
			"message": errMsg,
		},
	})
	return nil
}
