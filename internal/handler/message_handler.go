package handler

import (
	"net/http"

	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/resp"
)

// HandleListMessages returns the full history between userId and peerId, oldest first.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		userID, peerID := query.Get("userId"), query.Get("peerId")
		if userID == "" || peerID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		history, err := deps.Store.ListMessages(r.Context(), userID, peerID)
		if err != nil {
			logx.Error(err, "list messages failed", "user_id", userID, "peer_id", peerID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": history})
	}
}
