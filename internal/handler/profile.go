package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/accomplo/internal/service"
)

// ProfileHandler serves the signed-in user's tracker profile.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HandleGet returns the profile, creating it on first access.
//
// HTTP: GET /api/profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// updateProfileRequest uses pointers so an omitted field is distinguishable
// from an empty one: omitted leaves the value, "" clears it.
type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// HandleUpdate changes the display name and/or avatar.
//
// HTTP: PATCH /api/profile
// REQUEST BODY: {"displayName": "Ada", "avatarUrl": ""}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.profiles.Update(r.Context(), userID, req.DisplayName, req.AvatarURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
