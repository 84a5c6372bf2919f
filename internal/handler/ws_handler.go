package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"quickchat/internal/app/chat"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/limiter"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/req"
	"quickchat/internal/pkg/resp"
)

// HandleWebSocket upgrades the request and runs the connection until it closes.
// The connection starts unregistered; the client identifies itself with a register event.
func HandleWebSocket(hub *chat.Hub, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := req.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn := chat.NewConn(hub, wsConn, ip)
		hub.Attach(conn)

		go conn.WritePump()

		logx.Debug("WebSocket connection established", "conn_id", conn.ID())

		conn.ReadPump()
	}
}
