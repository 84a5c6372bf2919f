package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"quickchat/internal/app/storage"
	"quickchat/internal/app/store"
	"quickchat/internal/app/user"
	"quickchat/internal/pkg/auth/jwt"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/req"
	"quickchat/internal/pkg/resp"
)

const avatarCleanupTimeout = 10 * time.Second

// HandleListUsers returns the newest users, optionally leaving out the caller.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exclude := r.URL.Query().Get("exclude")

		users, err := deps.Store.ListUsers(r.Context(), exclude, store.DefaultListUsersLimit)
		if err != nil {
			logx.Error(err, "list users failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"users": users})
	}
}

// UpdateProfileInput uses pointers so omitted fields stay unchanged.
type UpdateProfileInput struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	AvatarKey   *string `json:"avatarKey"`
}

// HandleUpdateProfile edits the caller's own profile.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input UpdateProfileInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		update, customErr := validateProfileUpdate(r.Context(), deps, identity.ID, input)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		previous, err := deps.Store.GetUser(r.Context(), identity.ID)
		if err != nil {
			respondUserLookupError(w, r, err)
			return
		}

		updated, err := deps.Store.UpdateProfile(r.Context(), identity.ID, update)
		if err != nil {
			respondUserLookupError(w, r, err)
			return
		}

		if old := previous.AvatarKey; old != updated.AvatarKey && storage.IsUploadedAvatar(old) && deps.Storage != nil {
			go func(key string) {
				ctx, cancel := context.WithTimeout(context.Background(), avatarCleanupTimeout)
				defer cancel()
				if err := deps.Storage.Delete(ctx, key); err != nil {
					logx.Warn("update_profile: failed to delete replaced avatar", "key", key, "error", err.Error())
				}
			}(old)
		}

		resp.RespondSuccess(w, r, map[string]any{"user": updated})
	}
}

func validateProfileUpdate(ctx context.Context, deps *AppDeps, userID string, input UpdateProfileInput) (store.ProfileUpdate, *errs.CustomError) {
	var update store.ProfileUpdate

	if input.DisplayName != nil {
		name, ok := user.NormalizeDisplayName(*input.DisplayName)
		if !ok {
			return update, errs.NewError(errs.ErrInvalidDisplayName)
		}
		update.DisplayName = &name
	}

	if input.Bio != nil {
		bio := strings.TrimSpace(*input.Bio)
		if utf8.RuneCountInString(bio) > user.MaxBioLength {
			return update, errs.NewError(errs.ErrInvalidParams)
		}
		update.Bio = &bio
	}

	if input.AvatarKey != nil {
		key := strings.TrimSpace(*input.AvatarKey)
		if !user.AvatarKeyAllowed(userID, key) {
			return update, errs.NewError(errs.ErrInvalidAvatarKey)
		}
		if storage.IsUploadedAvatar(key) {
			if customErr := checkUploadedAvatar(ctx, deps, key); customErr != nil {
				return update, customErr
			}
		}
		update.AvatarKey = &key
	}

	return update, nil
}

// checkUploadedAvatar confirms the client actually finished uploading key.
func checkUploadedAvatar(ctx context.Context, deps *AppDeps, key string) *errs.CustomError {
	if deps.Storage == nil {
		return errs.NewError(errs.ErrFeatureDisabled)
	}

	if _, err := deps.Storage.ObjectInfo(ctx, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return errs.NewError(errs.ErrInvalidAvatarKey)
		}
		return errs.NewError(errs.ErrFileStorageFailed)
	}
	return nil
}

func respondUserLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
		return
	}
	logx.Error(err, "user lookup failed")
	resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
}
