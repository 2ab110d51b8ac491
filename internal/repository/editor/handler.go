package editor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/debemdeboas/archive-editor/internal/auth"
	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/render"
	"github.com/debemdeboas/archive-editor/internal/repository"
	"github.com/debemdeboas/archive-editor/internal/routes"
	"github.com/debemdeboas/archive-editor/internal/session"
	"github.com/rs/zerolog"
)

type Handler struct {
	repo     Repository
	auth     auth.AuthProvider
	renderer *render.Renderer
}

func NewHandler(repo Repository, authProvider auth.AuthProvider, renderer *render.Renderer) *Handler {
	return &Handler{
		repo:     repo,
		auth:     authProvider,
		renderer: renderer,
	}
}

// Register adds the session API to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(routes.SessionsOpen, h.open)
	mux.HandleFunc(routes.SessionsList, h.list)
	mux.HandleFunc(routes.SessionGet, h.withSession(h.get))
	mux.HandleFunc(routes.SessionClose, h.close)
	mux.HandleFunc(routes.SessionDraft, h.withSession(h.patchDraft))
	mux.HandleFunc(routes.SessionInput, h.withSession(h.input))
	mux.HandleFunc(routes.SessionSelect, h.withSession(h.selection))
	mux.HandleFunc(routes.SessionKey, h.withSession(h.key))
	mux.HandleFunc(routes.SessionPointer, h.withSession(h.pointer))
	mux.HandleFunc(routes.SessionSave, h.withSession(h.save))
	mux.HandleFunc(routes.SessionPublish, h.withSession(h.publish(true)))
	mux.HandleFunc(routes.SessionUnpub, h.withSession(h.publish(false)))
	mux.HandleFunc(routes.SlideAppend, h.withSession(h.appendSlide))
	mux.HandleFunc(routes.SlideUpdate, h.withSession(h.updateSlide))
	mux.HandleFunc(routes.SlideDelete, h.withSession(h.deleteSlide))
	mux.HandleFunc(routes.SessionConfirm, h.withSession(h.confirm))
	mux.HandleFunc(routes.SessionPreview, h.withSession(h.preview))
}

// AuthorizeEvents lets only the owner of a session listen to its events.
func (h *Handler) AuthorizeEvents(r *http.Request, sessionID string) (int, error) {
	userID, err := h.auth.GetUserIDFromSession(r)
	if err != nil {
		return http.StatusUnauthorized, err
	}
	if _, err := h.repo.Get(SessionID(sessionID), userID); err != nil {
		return errorStatus(err), err
	}
	return http.StatusOK, nil
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, e *Entry)

func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.auth.EnforceUserAndGetID(w, r)
		if err != nil {
			return
		}
		entry, err := h.repo.Get(SessionID(r.PathValue("id")), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, entry)
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, repository.ErrPostNotFound), errors.Is(err, ErrNoPendingConfirm):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, repository.ErrUnknownField), errors.Is(err, repository.ErrInvalidFieldValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return config.ErrSessionNotFound
	case errors.Is(err, repository.ErrPostNotFound):
		return config.ErrPostNotFound
	case errors.Is(err, ErrNoPendingConfirm):
		return config.ErrNoPendingConfirm
	case errors.Is(err, ErrForbidden):
		return config.ErrForbidden
	case errorStatus(err) == http.StatusInternalServerError:
		return config.ErrInternalServerError
	default:
		return err.Error()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Session request failed")
	}
	http.Error(w, errorMessage(err), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads the JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Invalid request body")
		http.Error(w, config.ErrInvalidBody, http.StatusBadRequest)
		return false
	}
	return true
}

type openRequest struct {
	PostID model.PostID `json:"post_id"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.EnforceUserAndGetID(w, r)
	if err != nil {
		return
	}

	var req openRequest
	if !decode(w, r, &req) {
		return
	}

	entry, err := h.repo.Open(r.Context(), userID, req.PostID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry.Session.View())
}

type sessionSummary struct {
	ID     SessionID    `json:"id"`
	PostID model.PostID `json:"post_id"`
	Title  string       `json:"title"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.EnforceUserAndGetID(w, r)
	if err != nil {
		return
	}

	entries := h.repo.List(userID)
	out := make([]sessionSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, sessionSummary{ID: e.ID, PostID: e.PostID, Title: e.Session.Draft().Title})
	}
	writeJSON(w, http.StatusOK, out)
}

// sessionResponse is the session view plus the questions still waiting for
// an answer through the confirm route.
type sessionResponse struct {
	session.View
	PendingConfirm []session.ConfirmEvent `json:"pending_confirm"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, e *Entry) {
	writeJSON(w, http.StatusOK, sessionResponse{
		View:           e.Session.View(),
		PendingConfirm: e.Confirmer.Pending(),
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.EnforceUserAndGetID(w, r)
	if err != nil {
		return
	}
	if err := h.repo.Close(SessionID(r.PathValue("id")), userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type draftRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (h *Handler) patchDraft(w http.ResponseWriter, r *http.Request, e *Entry) {
	var req draftRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Title != nil {
		e.Session.SetTitle(*req.Title)
	}
	if req.Description != nil {
		e.Session.SetDescription(*req.Description)
	}
	writeJSON(w, http.StatusOK, e.Session.View())
}

type inputRequest struct {
	Text string `json:"text"`
}

func (h *Handler) input(w http.ResponseWriter, r *http.Request, e *Entry) {
	var req inputRequest
	if !decode(w, r, &req) {
		return
	}
	e.Session.InsertText(req.Text)
	writeJSON(w, http.StatusOK, e.Session.View())
}

type selectionRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (h *Handler) selection(w http.ResponseWriter, r *http.Request, e *Entry) {
	var req selectionRequest
	if !decode(w, r, &req) {
		return
	}
	e.Session.SetSelection(req.Start, req.End)
	writeJSON(w, http.StatusOK, e.Session.View())
}

type keyResponse struct {
	PreventDefault bool         `json:"prevent_default"`
	View           session.View `json:"view"`
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request, e *Entry) {
	var ev session.KeyEvent
	if !decode(w, r, &ev) {
		return
	}
	if ev.Key == "" {
		http.Error(w, config.ErrInvalidBody, http.StatusBadRequest)
		return
	}
	prevent := e.Session.KeyDown(ev)
	writeJSON(w, http.StatusOK, keyResponse{PreventDefault: prevent, View: e.Session.View()})
}

type pointerRequest struct {
	Position *int `json:"position"`
}

func (h *Handler) pointer(w http.ResponseWriter, r *http.Request, e *Entry) {
	var req pointerRequest
	if !decode(w, r, &req) {
		return
	}
	pos := -1
	if req.Position != nil {
		pos = *req.Position
	}
	e.Session.PointerDown(pos)
	writeJSON(w, http.StatusOK, e.Session.View())
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, e *Entry) {
	if err := e.Session.Save(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, e.Session.View())
}

func (h *Handler) publish(published bool) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, e *Entry) {
		var err error
		if published {
			err = e.Session.Publish(r.Context())
		} else {
			err = e.Session.Unpublish(r.Context())
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e.Session.View())
	}
}

type slideRequest struct {
	Value string `json:"value"`
}

func (h *Handler) appendSlide(w http.ResponseWriter, r *http.Request, e *Entry) {
	var req slideRequest
	if !decode(w, r, &req) {
		return
	}
	e.Session.AppendSlide(req.Value)
	writeJSON(w, http.StatusCreated, e.Session.View())
}

func slideIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, config.ErrInvalidSlideIndex, http.StatusBadRequest)
		return 0, false
	}
	return i, true
}

func (h *Handler) updateSlide(w http.ResponseWriter, r *http.Request, e *Entry) {
	i, ok := slideIndex(w, r)
	if !ok {
		return
	}
	var req slideRequest
	if !decode(w, r, &req) {
		return
	}
	if !e.Session.UpdateSlide(i, req.Value) {
		http.Error(w, config.ErrInvalidSlideIndex, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e.Session.View())
}

func (h *Handler) deleteSlide(w http.ResponseWriter, r *http.Request, e *Entry) {
	i, ok := slideIndex(w, r)
	if !ok {
		return
	}
	if !e.Session.DeleteSlide(i) {
		http.Error(w, config.ErrInvalidSlideIndex, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e.Session.View())
}

type confirmRequest struct {
	Token  string `json:"token"`
	Accept bool   `json:"accept"`
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, e *Entry) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	if err := e.Confirmer.Answer(req.Token, req.Accept); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request, e *Entry) {
	source := r.URL.Query().Get("source") == "true"
	writeJSON(w, http.StatusOK, h.renderer.Preview(e.Session.Draft(), source))
}
