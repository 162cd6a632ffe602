package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tmaly1980/banked/internal/amqp"
	"github.com/tmaly1980/banked/internal/core"
	"github.com/tmaly1980/banked/internal/engine"
	"github.com/tmaly1980/banked/internal/storage"
)

type instancesResponse struct {
	Instances []core.Instance `json:"instances"`
	Loading   bool            `json:"loading"`
	Stale     bool            `json:"stale"`
}

type recordRequest struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Notes  string `json:"notes"`
	Paid   bool   `json:"paid"`
}

type templateRequest struct {
	Amount    string `json:"amount"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Unit      string `json:"unit"`
	Interval  int    `json:"interval"`
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, instancesResponse{
		Instances: agg.Instances(),
		Loading:   agg.Loading(),
		Stale:     agg.Stale(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	if err := agg.Refresh(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "refresh failed", "kind", agg.Kind(), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"stale": agg.Stale(),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	rec, ok := s.decodeRecord(w, r, agg.Kind())
	if !ok {
		return
	}

	created, err := s.repo.CreateRecord(r.Context(), rec)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, created.ID, amqp.OpCreated)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	rec, ok := s.decodeRecord(w, r, agg.Kind())
	if !ok {
		return
	}
	rec.ID = r.PathValue("id")

	if err := s.repo.UpdateRecord(r.Context(), rec); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, rec.ID, amqp.OpUpdated)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.repo.DeleteRecord(r.Context(), s.userID, id); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, id, amqp.OpDeleted)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.repo.MarkPaid(r.Context(), s.userID, id); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, id, amqp.OpPaid)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	tpl, ok := s.decodeTemplate(w, r, agg.Kind())
	if !ok {
		return
	}

	created, err := s.repo.CreateTemplate(r.Context(), tpl)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, created.ID, amqp.OpCreated)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	tpl, ok := s.decodeTemplate(w, r, agg.Kind())
	if !ok {
		return
	}
	tpl.ID = r.PathValue("id")

	if err := s.repo.UpdateTemplate(r.Context(), tpl); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, tpl.ID, amqp.OpUpdated)
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.repo.DeleteTemplate(r.Context(), s.userID, id); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	s.afterMutation(r, agg, id, amqp.OpDeleted)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeRecord(w http.ResponseWriter, r *http.Request, kind core.EventKind) (core.Record, bool) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return core.Record{}, false
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return core.Record{}, false
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return core.Record{}, false
	}
	return core.Record{
		UserID: s.userID,
		Kind:   kind,
		Amount: amount,
		Date:   date,
		Notes:  req.Notes,
		Paid:   req.Paid,
	}, true
}

func (s *Server) decodeTemplate(w http.ResponseWriter, r *http.Request, kind core.EventKind) (core.Template, bool) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return core.Template{}, false
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return core.Template{}, false
	}
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date, expected YYYY-MM-DD")
		return core.Template{}, false
	}
	tpl := core.Template{
		UserID:    s.userID,
		Kind:      kind,
		Amount:    amount,
		StartDate: start,
		Unit:      core.RecurrenceUnit(req.Unit),
		Interval:  req.Interval,
	}
	if req.EndDate != "" {
		end, err := core.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end date, expected YYYY-MM-DD")
			return core.Template{}, false
		}
		tpl.EndDate = &end
	}
	if err := tpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return core.Template{}, false
	}
	return tpl, true
}

// afterMutation publishes the change notification and refreshes the
// owning aggregator so the published list reflects the mutation. Both
// are best-effort: the write already succeeded.
func (s *Server) afterMutation(r *http.Request, agg *engine.Aggregator, id, op string) {
	ctx := r.Context()
	if s.notifier != nil {
		if err := s.notifier.PublishRecordChange(ctx, agg.Kind(), id, op); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish change notification",
				"kind", agg.Kind(), "id", id, "op", op, "error", err)
		}
	}
	if err := agg.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "post-mutation refresh failed",
			"kind", agg.Kind(), "error", err)
	}
}

func (s *Server) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidRecurrence),
		errors.Is(err, core.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "storage operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
