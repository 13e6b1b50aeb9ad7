package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/rfsched/internal/journal"
	"github.com/me/rfsched/pkg/model"
)

type commandResponse struct {
	ID     string                 `json:"id"`
	Kind   string                 `json:"kind"`
	Status model.Status           `json:"status"`
	Record *journal.CommandRecord `json:"record,omitempty"`
}

type stopRequest struct {
	Type string `json:"type"`
}

type stopResponse struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	Status model.Status `json:"status"`
}

// journalID maps a scenario id to the command ID the journal uses.
func (s *Server) journalID(id string) string {
	if s.commands != nil {
		if cmd, ok := s.commands.Command(id); ok {
			return cmd.ID
		}
	}
	return id
}

func (s *Server) requireJournal(w http.ResponseWriter, reqID string) bool {
	if s.journal == nil {
		respondError(w, reqID, model.NewNotFoundError("journal", "history"))
		return false
	}
	return true
}

// GET /api/v1/commands
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireJournal(w, reqID) {
		return
	}
	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}

	recs, total, err := s.journal.ListCommands(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if recs == nil {
		recs = []*journal.CommandRecord{}
	}
	respondList(w, reqID, recs, opts.Page(len(recs), total))
}

// GET /api/v1/commands/{id}
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var resp *commandResponse
	if s.commands != nil {
		if cmd, ok := s.commands.Command(id); ok {
			resp = &commandResponse{ID: cmd.ID, Kind: cmd.Kind, Status: s.radio.Status(cmd)}
		}
	}
	if s.journal != nil {
		rec, err := s.journal.GetCommand(r.Context(), s.journalID(id))
		if err != nil {
			respondError(w, reqID, model.NewInternalError(err.Error()))
			return
		}
		if rec != nil {
			if resp == nil {
				resp = &commandResponse{ID: rec.ID, Kind: rec.Kind, Status: rec.Status}
			}
			resp.Record = rec
		}
	}
	if resp == nil {
		respondError(w, reqID, model.NewNotFoundError("command", id))
		return
	}
	respondOK(w, reqID, resp)
}

// GET /api/v1/commands/{id}/transitions
func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireJournal(w, reqID) {
		return
	}
	trs, err := s.journal.ListTransitions(r.Context(), s.journalID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if trs == nil {
		trs = []model.Transition{}
	}
	respondOK(w, reqID, trs)
}

// GET /api/v1/commands/{id}/notifications
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireJournal(w, reqID) {
		return
	}
	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}

	notes, total, err := s.journal.ListNotifications(r.Context(), s.journalID(chi.URLParam(r, "id")), opts)
	if err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if notes == nil {
		notes = []model.Notification{}
	}
	respondList(w, reqID, notes, opts.Page(len(notes), total))
}

// POST /api/v1/commands/{id}/stop
func (s *Server) handleStopCommand(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var cmd *model.Command
	if s.commands != nil {
		cmd, _ = s.commands.Command(id)
	}
	if cmd == nil {
		respondError(w, reqID, model.NewNotFoundError("command", id))
		return
	}

	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, model.NewValidationError("invalid JSON body",
			model.FieldError{Message: err.Error()}))
		return
	}
	t, err := model.ParseStopType(req.Type)
	if err != nil || t == model.StopNone {
		respondError(w, reqID, model.NewValidationError("invalid stop type",
			model.FieldError{Field: "type", Message: "must be deschedule, graceful or hard"}))
		return
	}

	if st := s.radio.Status(cmd); st.IsTerminal() {
		respondError(w, reqID, model.NewConflictError("command "+id+" already ended with status "+st.String()))
		return
	}
	st := s.radio.Stop(cmd, t)
	s.logger.Info("stop requested", "id", id, "type", t, "status", st)
	respondOK(w, reqID, stopResponse{ID: cmd.ID, Type: t.String(), Status: st})
}
