package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cliphub/apiserver/internal/events"
	"github.com/cliphub/apiserver/internal/services"
	"github.com/cliphub/apiserver/internal/store"
	"github.com/cliphub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory = 32 << 20

	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	avatarFolder = "avatars"
	coverFolder  = "covers"
)

// AuthHandler provides registration and session lifecycle endpoints.
type AuthHandler struct {
	userService *services.UserService
	authService *services.AuthService
	media       *services.MediaService
	tokens      *services.TokenManager
	bus         *events.Bus
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	userService *services.UserService,
	authService *services.AuthService,
	media *services.MediaService,
	tokens *services.TokenManager,
	bus *events.Bus,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authService: authService,
		media:       media,
		tokens:      tokens,
		bus:         bus,
	}
}

// AuthRouter registers account and session routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh-token", handler.Refresh)
	r.With(authMiddleware).Post("/logout", handler.Logout)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// RequireAuth enforces access-token authentication and injects the
// user ID into the request context. The token is read from the
// accessToken cookie or from a bearer Authorization header.
func RequireAuth(tokens *services.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := requestAccessToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := tokens.VerifyAccess(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextUserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account from a multipart form carrying
// the profile fields plus an avatar image and an optional cover image.
// No user row is created unless every upload succeeds.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	params := services.RegisterParams{
		FullName: strings.TrimSpace(r.FormValue("fullName")),
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	if params.FullName == "" || params.Username == "" || params.Email == "" || params.Password == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}

	if _, err := h.userService.GetByUsernameOrEmail(r.Context(), params.Username, params.Email); err == nil {
		writeError(w, http.StatusConflict, "user with email or username already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to check user")
		return
	}

	avatarFile, avatarHeader, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar image is required")
		return
	}
	defer avatarFile.Close()

	avatarURL, err := h.media.UploadImage(
		r.Context(),
		avatarFolder,
		avatarHeader.Filename,
		avatarFile,
		avatarHeader.Size,
		avatarHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar image")
		return
	}
	params.AvatarURL = avatarURL

	if coverFile, coverHeader, err := r.FormFile("coverImage"); err == nil {
		defer coverFile.Close()
		coverURL, err := h.media.UploadImage(
			r.Context(),
			coverFolder,
			coverHeader.Filename,
			coverFile,
			coverHeader.Size,
			coverHeader.Header.Get("Content-Type"),
		)
		if err != nil {
			h.media.Remove(r.Context(), avatarURL)
			writeError(w, http.StatusInternalServerError, "failed to store cover image")
			return
		}
		params.CoverImageURL = coverURL
	}

	user, err := h.userService.Register(r.Context(), params)
	if err != nil {
		h.media.Remove(r.Context(), params.AvatarURL)
		if params.CoverImageURL != "" {
			h.media.Remove(r.Context(), params.CoverImageURL)
		}
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "user with email or username already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.bus.Emit(r.Context(), events.TopicUserRegistered, events.AccountEvent{
		UserID:   user.ID,
		Username: user.Username,
	})

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and opens a session. The minted token
// pair is placed in http-only cookies and echoed in the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.authService.VerifyCredentials(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "username or email is required")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user does not exist")
		case errors.Is(err, services.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	pair, err := h.authService.IssueSession(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.bus.Emit(r.Context(), events.TopicUserLoggedIn, events.AccountEvent{
		UserID:   user.ID,
		Username: user.Username,
	})

	h.setTokenCookies(w, pair.AccessToken, pair.RefreshToken)
	writeJSON(w, http.StatusOK, SessionResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout ends the caller's session: the stored refresh token is
// cleared and both cookies are expired. Outstanding access tokens run
// out on their own TTL.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.authService.TerminateSession(r.Context(), userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	h.bus.Emit(r.Context(), events.TopicUserLoggedOut, events.AccountEvent{UserID: userID})

	h.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

// Refresh rotates the session: the presented refresh token is
// exchanged for a new pair and stops working. The token is read from
// the refreshToken cookie or from the request body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" && r.Body != nil {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	pair, err := h.authService.RotateSession(r.Context(), presented)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to refresh session")
		return
	}

	h.setTokenCookies(w, pair.AccessToken, pair.RefreshToken)
	writeJSON(w, http.StatusOK, pair)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.tokens.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.tokens.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func requestAccessToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse is returned by Login. Tokens are duplicated in the
// body for clients that cannot use cookies.
type SessionResponse struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
}
