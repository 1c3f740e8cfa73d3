package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/service"
)

// TimezoneHeader names the caller's IANA zone. The tz query parameter is
// the fallback for clients that cannot set headers.
const TimezoneHeader = "X-Timezone"

// AccomplishmentHandler serves the accomplishment log and its weekly view.
type AccomplishmentHandler struct {
	accomplishments *service.AccomplishmentService
	logger          *slog.Logger
}

func NewAccomplishmentHandler(accomplishments *service.AccomplishmentService, logger *slog.Logger) *AccomplishmentHandler {
	return &AccomplishmentHandler{accomplishments: accomplishments, logger: logger}
}

// HandleList returns the user's accomplishments, newest first. The current
// week's records are missing until Sunday's reveal in the caller's zone.
//
// HTTP: GET /api/accomplishments
// HEADERS: X-Timezone: Europe/Berlin (optional, or ?tz=)
func (h *AccomplishmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	loc, err := callerLocation(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.accomplishments.List(r.Context(), userID, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createAccomplishmentRequest struct {
	Content  string                   `json:"content"`
	Type     model.AccomplishmentType `json:"type"`
	Category string                   `json:"category"`
}

// HandleCreate records a new accomplishment.
//
// HTTP: POST /api/accomplishments
// REQUEST BODY: {"content": "Shipped v1", "type": "big", "category": "work"}
func (h *AccomplishmentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createAccomplishmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.accomplishments.Create(r.Context(), userID, req.Content, req.Type, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleDelete removes one of the user's accomplishments.
//
// HTTP: DELETE /api/accomplishments/{id}
func (h *AccomplishmentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.accomplishments.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WeekResponse is one week of the history. Accomplishments is omitted while
// the week is locked; Count is always present.
type WeekResponse struct {
	WeekStart       time.Time              `json:"weekStart"`
	WeekEnd         time.Time              `json:"weekEnd"`
	IsCurrentWeek   bool                   `json:"isCurrentWeek"`
	IsRevealed      bool                   `json:"isRevealed"`
	Count           int                    `json:"count"`
	Accomplishments []model.Accomplishment `json:"accomplishments,omitempty"`
}

// WeeksResponse is the body of GET /api/weeks.
type WeeksResponse struct {
	Now          time.Time      `json:"now"`
	Timezone     string         `json:"timezone"`
	NextRevealAt time.Time      `json:"nextRevealAt"`
	Weeks        []WeekResponse `json:"weeks"`
}

// HandleWeeks returns the history grouped into Sunday to Saturday weeks as
// seen from the caller's timezone.
//
// HTTP: GET /api/weeks
// Timezone: X-Timezone header or ?tz=, IANA name (e.g. "Europe/Berlin")
func (h *AccomplishmentHandler) HandleWeeks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	loc, err := callerLocation(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.accomplishments.Weeks(r.Context(), userID, loc)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := WeeksResponse{
		Now:          view.Now,
		Timezone:     view.Now.Location().String(),
		NextRevealAt: view.NextRevealAt,
		Weeks:        make([]WeekResponse, 0, len(view.Weeks)),
	}
	for _, b := range view.Weeks {
		wr := WeekResponse{
			WeekStart:     b.WeekStart,
			WeekEnd:       b.WeekEnd,
			IsCurrentWeek: b.IsCurrentWeek,
			IsRevealed:    b.IsRevealed,
			Count:         b.Count(),
		}
		if b.IsRevealed {
			wr.Accomplishments = b.Accomplishments
		}
		resp.Weeks = append(resp.Weeks, wr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// callerLocation reads the caller's zone. Nil means "server local".
func callerLocation(r *http.Request) (*time.Location, error) {
	name := strings.TrimSpace(r.Header.Get(TimezoneHeader))
	if name == "" {
		name = strings.TrimSpace(r.URL.Query().Get("tz"))
	}
	if name == "" {
		return nil, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperror.ValidationFailed("tz", "Unknown timezone "+name)
	}
	return loc, nil
}
