package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/openhearth/casefile/internal/models"
)

// StreamAudit streams new audit log entries via WebSocket. Entries are
// cursor-polled by creation time, oldest first.
func (s *Server) StreamAudit(c *websocket.Conn) {
	defer c.Close()

	var lastCreatedAt time.Time
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	// Also listen for close messages from client.
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var rows []models.AuditLog
			query := s.db.Order("created_at ASC").Limit(50)
			if !lastCreatedAt.IsZero() {
				query = query.Where("created_at > ?", lastCreatedAt)
			}
			query.Find(&rows)

			for _, row := range rows {
				data, err := json.Marshal(row)
				if err != nil {
					continue
				}
				if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
				lastCreatedAt = row.CreatedAt
			}
		}
	}
}
