package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

// Decision actions accepted in request bodies
const (
	ActionConfirm = "confirm"
	ActionNew     = "new"
	ActionSkip    = "skip"
	ActionProceed = "proceed"
	ActionCancel  = "cancel"
)

// SupplierDecision is the body of POST /sessions/{id}/supplier
type SupplierDecision struct {
	Action     string    `json:"action"`
	SupplierID uuid.UUID `json:"supplierId"`
}

// LineDecision is the body of POST /sessions/{id}/lines/{index}
type LineDecision struct {
	Action    string    `json:"action"`
	ProductID uuid.UUID `json:"productId"`
}

// DuplicateDecision is the body of POST /sessions/{id}/duplicate
type DuplicateDecision struct {
	Action string `json:"action"`
}

func sessionID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

// GetSession returns the session view with its pending decisions
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, sess)
		return
	}

	view := workflow.NewView(sess)
	if h.opts.Archive != nil && sess.SourcePath != "" {
		url, err := h.opts.Archive.PresignedURL(r.Context(), sess.SourcePath)
		if err != nil {
			h.logger.Warn().Err(err).Str("session_id", id.String()).Msg("Could not sign document URL")
		} else {
			view.SourceURL = url
		}
	}
	json.NewEncoder(w).Encode(view)
}

// CancelSession discards the session
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.service.Cancel(r.Context(), id, h.currentUser(r))
	h.respond(w, sess, err)
}

// ResolveSupplier confirms an existing supplier or marks it new
func (h *Handler) ResolveSupplier(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var body SupplierDecision
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := h.currentUser(r)
	switch body.Action {
	case ActionConfirm:
		if body.SupplierID == uuid.Nil {
			h.sendError(w, http.StatusBadRequest, "supplierId is required")
			return
		}
		sess, err := h.service.ConfirmSupplier(r.Context(), id, body.SupplierID, user)
		h.respond(w, sess, err)
	case ActionNew:
		sess, err := h.service.MarkSupplierNew(r.Context(), id, user)
		h.respond(w, sess, err)
	default:
		h.sendError(w, http.StatusBadRequest, "action must be confirm or new")
	}
}

// ResolveLine confirms a product for a line, marks it new or skips it
func (h *Handler) ResolveLine(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid line index")
		return
	}
	var body LineDecision
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := h.currentUser(r)
	var sess *workflow.Session
	switch body.Action {
	case ActionConfirm:
		if body.ProductID == uuid.Nil {
			h.sendError(w, http.StatusBadRequest, "productId is required")
			return
		}
		sess, err = h.service.ConfirmProduct(r.Context(), id, index, body.ProductID, user)
	case ActionNew:
		sess, err = h.service.MarkLineNew(r.Context(), id, index, user)
	case ActionSkip:
		sess, err = h.service.SkipLine(r.Context(), id, index, user)
	default:
		h.sendError(w, http.StatusBadRequest, "action must be confirm, new or skip")
		return
	}
	h.respond(w, sess, err)
}

// Acknowledge accepts the validation warnings
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.service.AcknowledgeWarnings(r.Context(), id, h.currentUser(r))
	h.respond(w, sess, err)
}

// ResolveDuplicate proceeds past or cancels on a duplicate warning
func (h *Handler) ResolveDuplicate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var body DuplicateDecision
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Action != ActionProceed && body.Action != ActionCancel {
		h.sendError(w, http.StatusBadRequest, "action must be proceed or cancel")
		return
	}

	sess, err := h.service.ResolveDuplicate(r.Context(), id, body.Action == ActionProceed, h.currentUser(r))
	h.respond(w, sess, err)
}

// Commit writes the reconciled invoice. A duplicate found at commit time answers
// 409 with the candidates and the session, now waiting for a duplicate decision.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := sessionID(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := h.service.Commit(r.Context(), id, h.currentUser(r))
	h.respond(w, sess, err)
}

func (h *Handler) respond(w http.ResponseWriter, sess *workflow.Session, err error) {
	if err != nil {
		h.writeError(w, err, sess)
		return
	}
	json.NewEncoder(w).Encode(workflow.NewView(sess))
}
