// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/EmoBanana/smtd-server/internal/middleware"
	"github.com/EmoBanana/smtd-server/internal/registry"
)

// WSHandler upgrades a client to the bidirectional match channel. Every
// client holds exactly one connection; events are addressed by room code
// inside each message rather than by URL.
func WSHandler(logger *logrus.Logger, ms *MatchServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		ctx, cancel := context.WithCancel(r.Context())
		conn := registry.NewConn()
		conn.Cancel = cancel

		middleware.LogWebSocketConnect(logger, remoteAddr, conn.ID.String())
		if ms.Monitor != nil {
			ms.Monitor.IncConnectedClients()
		}

		go writePump(ctx, c, conn, logger)

		readErr := readPump(ctx, c, conn, ms, logger)

		// Cleanup: departure handling for every room this connection
		// occupied, then unbind the handle.
		ms.Disconnect(conn)
		cancel()
		if ms.Monitor != nil {
			ms.Monitor.DecConnectedClients()
		}
		middleware.LogWebSocketDisconnect(logger, remoteAddr, conn.ID.String(), readErr)
	}
}

// readPump consumes inbound frames until the connection closes. Each frame
// is decoded for its event type and handed to the MatchServer, which runs it
// to completion before the next frame is read.
func readPump(ctx context.Context, c *websocket.Conn, conn *registry.Conn, ms *MatchServer, logger *logrus.Logger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			logger.Warnf("conn %s: read error: %v (CloseStatus: %d)", conn.ID, err, closeStatus)
			return err
		}

		if typ != websocket.MessageText {
			logger.Warnf("conn %s: non-text message type %d ignored", conn.ID, typ)
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil || envelope.Type == "" {
			logger.Warnf("conn %s: invalid json: %v", conn.ID, err)
			conn.WriteError("Invalid JSON format")
			continue
		}

		ms.HandleMessage(conn, envelope.Type, msg)
	}
}

// writePump drains the connection's out-channel to the websocket and keeps
// the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *registry.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("conn %s: failed to marshal outgoing msg: %v", conn.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: failed to write to websocket: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: ping failed: %v, assuming disconnect", conn.ID, err)
				return
			}
		}
	}
}
