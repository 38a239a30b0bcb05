package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cliphub/apiserver/internal/services"
	"github.com/cliphub/apiserver/internal/store"
	"github.com/cliphub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler provides profile maintenance endpoints for the
// authenticated user.
type UserHandler struct {
	userService *services.UserService
	media       *services.MediaService
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, media *services.MediaService) *UserHandler {
	return &UserHandler{userService: userService, media: media}
}

// ProfileRouter registers profile routes on the given router. All of
// them require authentication.
func ProfileRouter(r chi.Router, handler *UserHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Post("/change-password", handler.ChangePassword)
	r.With(authMiddleware).Patch("/update-account", handler.UpdateAccount)
	r.With(authMiddleware).Patch("/avatar", handler.UpdateAvatar)
	r.With(authMiddleware).Patch("/cover-image", handler.UpdateCoverImage)
}

// ChangePassword replaces the caller's password after verifying the
// old one. The active session is untouched.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid password")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		default:
			writeError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "password changed"})
}

// UpdateAccount changes the caller's display name and email.
func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, req.FullName, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "full name and email are required")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "email already in use")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update account")
		}
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateAvatar replaces the caller's avatar image.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", avatarFolder, h.userService.UpdateAvatarURL)
}

// UpdateCoverImage replaces the caller's cover image.
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", coverFolder, h.userService.UpdateCoverImageURL)
}

func (h *UserHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field, folder string,
	update func(ctx context.Context, id int, url string) (types.User, error),
) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, field+" image is required")
		return
	}
	defer file.Close()

	previous, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	url, err := h.uploadFormImage(r, folder, file, header)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store "+field+" image")
		return
	}

	user, err := update(r.Context(), userID, url)
	if err != nil {
		h.media.Remove(r.Context(), url)
		writeError(w, http.StatusInternalServerError, "failed to update "+field)
		return
	}

	// The replaced object is unreferenced now; drop it best-effort.
	if old := previousImageURL(previous, field); old != "" && old != url {
		h.media.Remove(r.Context(), old)
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) uploadFormImage(r *http.Request, folder string, file multipart.File, header *multipart.FileHeader) (string, error) {
	return h.media.UploadImage(
		r.Context(),
		folder,
		header.Filename,
		file,
		header.Size,
		header.Header.Get("Content-Type"),
	)
}

func previousImageURL(user types.User, field string) string {
	if strings.HasPrefix(field, "avatar") {
		return user.AvatarURL
	}
	return user.CoverImageURL
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type UpdateAccountRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}
