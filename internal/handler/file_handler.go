package handler

import (
	"net/http"

	"quickchat/internal/app/storage"
	"quickchat/internal/pkg/auth/jwt"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/req"
	"quickchat/internal/pkg/resp"
)

// PresignAvatarInput defines the JSON input structure for generating an avatar upload URL.
type PresignAvatarInput struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignAvatarURL returns a time-limited PUT URL for a new avatar owned by the caller.
// The client sets the returned key on its profile once the upload completes.
func HandlePresignAvatarURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		identity := jwt.GetPayloadFromContext(r)

		var input PresignAvatarInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateAvatarUpload(input.FileName, input.MimeType, input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		key := storage.NewAvatarKey(identity.ID, input.FileName)

		url, err := deps.Storage.PresignUpload(r.Context(), key, input.MimeType, input.FileSize, storage.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"avatarKey":    key,
		})
	}
}

// HandleAvatarRedirect redirects to a short-lived download URL for an uploaded avatar (?k=<key>).
func HandleAvatarRedirect(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Storage == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		key := r.URL.Query().Get("k")
		if !storage.IsUploadedAvatar(key) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidAvatarKey))
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), key, storage.PresignedURLDuration)
		if err != nil {
			logx.Warn("avatar download presign failed", "key", key)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
