/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"quickchat/internal/app/store"
	"quickchat/internal/app/user"
	"quickchat/internal/pkg/auth/jwt"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/pow"
	"quickchat/internal/pkg/randx"
	"quickchat/internal/pkg/req"
	"quickchat/internal/pkg/resp"
)

// AuthResult is returned by every endpoint that establishes an identity.
type AuthResult struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

type RegisterInput struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// HandleRegister creates a password account and returns it with a fresh token.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		displayName, ok := user.NormalizeDisplayName(input.DisplayName)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidDisplayName))
			return
		}

		email, ok := user.NormalizeEmail(input.Email)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
			return
		}

		if !user.ValidPassword(input.Password) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword, user.MinPasswordLength, user.MaxPasswordLength))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		created, err := deps.Store.CreateUser(r.Context(), store.NewUser{
			DisplayName:  displayName,
			Email:        email,
			Bio:          user.DefaultBio,
			PasswordHash: string(hashedPassword),
		})
		if err != nil {
			if errors.Is(err, store.ErrEmailTaken) {
				logx.Warn("registration conflict: email already exists")
				resp.RespondError(w, r, errs.NewError(errs.ErrEmailAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		respondWithIdentity(w, r, deps, created, jwt.UserTypeRegistered, http.StatusCreated)
	}
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		email, ok := user.NormalizeEmail(input.Email)
		if !ok || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		creds, err := deps.Store.GetCredentialsByEmail(r.Context(), email)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logx.Error(err, "login: credential lookup failed")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}
			logx.Warn("login: unknown email")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		// Guest accounts have no password and can never log in.
		if creds.PasswordHash == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "user_id", creds.User.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		respondWithIdentity(w, r, deps, creds.User, jwt.UserTypeRegistered, http.StatusOK)
	}
}

// HandleGetChallenge issues a proof-of-work challenge for guest creation.
func HandleGetChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Pow.Issue())
	}
}

type VerifyChallengeInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandleVerifyChallenge exchanges a solved challenge for a single-use proof token.
func HandleVerifyChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input VerifyChallengeInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Nonce == "" || input.Counter == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		token, err := deps.Pow.Verify(input.Nonce, input.Counter)
		if err != nil {
			logx.Info("PoW verification failed", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"powToken":  token,
			"expiresIn": int(pow.ProofTokenDuration.Seconds()),
		})
	}
}

// HandleCreateGuest creates a throwaway account. The request must carry a proof token.
func HandleCreateGuest(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Pow.Redeem(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		displayName, err := randx.GuestDisplayName()
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		email, err := randx.GuestEmail()
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		created, err := deps.Store.CreateUser(r.Context(), store.NewUser{
			DisplayName: displayName,
			Email:       email,
			Bio:         user.DefaultBio,
		})
		if err != nil {
			logx.Error(err, "failed to create guest user")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Guest account created", "user_id", created.ID)
		respondWithIdentity(w, r, deps, created, jwt.UserTypeGuest, http.StatusCreated)
	}
}

func respondWithIdentity(w http.ResponseWriter, r *http.Request, deps *AppDeps, u user.User, userType string, status int) {
	token, err := jwt.GenerateToken(&jwt.Payload{ID: u.ID, UserType: userType}, deps.Config.JWTSecret, jwt.IdentityExpiration)
	if err != nil {
		logx.Error(err, "jwt generation failed", "user_id", u.ID)
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return
	}

	if status == http.StatusCreated {
		resp.RespondCreated(w, r, AuthResult{Token: token, User: u})
		return
	}
	resp.RespondSuccess(w, r, AuthResult{Token: token, User: u})
}
