package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zakazai/enrichdb/internal/ingest"
	"github.com/zakazai/enrichdb/internal/lookup"
	"github.com/zakazai/enrichdb/internal/notify"
	"github.com/zakazai/enrichdb/internal/parser"
	"github.com/zakazai/enrichdb/internal/planner"
	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/types"
)

// queryRequest is the body of the select, update and delete endpoints.
// Where is the JSON predicate form, e.g. {"age": [">=", 30]}; Filter is the
// text form, e.g. "age >= 30 AND gender == 'male'". At most one may be set.
type queryRequest struct {
	Where   storage.Predicate      `json:"where"`
	Filter  string                 `json:"filter"`
	Limit   *int                   `json:"limit"`
	Set     map[string]interface{} `json:"set"`
	SetText string                 `json:"setText"`
}

// badRequest marks client input errors that do not come from the store.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.respondError(w, r, &badRequest{msg: "could not read body"})
		return
	}

	rec, err := s.ingest.Handle(r.Context(), body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, planner.NewShow(), http.StatusOK)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if _, err := s.planner.Execute(planner.NewCreate(table)); err != nil {
		s.respondError(w, r, &badRequest{msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"table": table})
}

func (s *Server) handleAllRows(w http.ResponseWriter, r *http.Request) {
	plan := planner.NewSelect(chi.URLParam(r, "table"), nil, storage.NoLimit)
	s.execute(w, r, plan, http.StatusOK)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.respondError(w, r, &badRequest{msg: "could not read body"})
		return
	}
	row, err := types.DecodeRow(body)
	if err != nil {
		s.respondError(w, r, &badRequest{msg: fmt.Sprintf("invalid row: %v", err)})
		return
	}
	s.execute(w, r, planner.NewInsert(chi.URLParam(r, "table"), row), http.StatusCreated)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	req, where, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	limit := storage.NoLimit
	if req.Limit != nil {
		if *req.Limit < 0 {
			s.respondError(w, r, &badRequest{msg: "limit must not be negative"})
			return
		}
		limit = *req.Limit
	}
	s.execute(w, r, planner.NewSelect(chi.URLParam(r, "table"), where, limit), http.StatusOK)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, where, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	set := req.Set
	if req.SetText != "" {
		if set != nil {
			s.respondError(w, r, &badRequest{msg: "use either set or setText, not both"})
			return
		}
		parsed, err := parser.ParseAssignments(req.SetText)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		set = parsed
	}
	if len(set) == 0 {
		s.respondError(w, r, &badRequest{msg: "set must name at least one column"})
		return
	}
	for col, v := range set {
		set[col] = types.FromJSON(v)
	}

	s.execute(w, r, planner.NewUpdate(chi.URLParam(r, "table"), where, set), http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, where, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.execute(w, r, planner.NewDelete(chi.URLParam(r, "table"), where), http.StatusOK)
}

// decodeQuery reads a queryRequest and resolves its predicate. An empty
// body means an empty predicate.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*queryRequest, storage.Predicate, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.respondError(w, r, &badRequest{msg: "could not read body"})
		return nil, nil, false
	}

	req := &queryRequest{}
	if len(bytes.TrimSpace(body)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(req); err != nil {
			s.respondError(w, r, &badRequest{msg: fmt.Sprintf("invalid request body: %v", err)})
			return nil, nil, false
		}
	}

	if req.Filter == "" {
		return req, req.Where, true
	}
	if req.Where != nil {
		s.respondError(w, r, &badRequest{msg: "use either where or filter, not both"})
		return nil, nil, false
	}
	where, err := parser.ParseWhere(req.Filter)
	if err != nil {
		s.respondError(w, r, err)
		return nil, nil, false
	}
	return req, where, true
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, plan *planner.Plan, status int) {
	res, err := s.planner.Execute(plan)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, status, res)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		unknownTable  *storage.UnknownTableError
		unknownColumn *storage.UnknownColumnError
		typeMismatch  *storage.TypeMismatchError
		syntaxErr     *parser.SyntaxError
		malformed     *ingest.MalformedEmailError
		bad           *badRequest
		lookupErr     *lookup.ExternalLookupError
		fwdErr        *notify.ForwardingError
	)
	switch {
	case errors.As(err, &unknownTable):
		return http.StatusNotFound
	case errors.As(err, &unknownColumn), errors.As(err, &typeMismatch), errors.As(err, &syntaxErr),
		errors.As(err, &malformed), errors.As(err, &bad), errors.Is(err, ingest.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.As(err, &lookupErr), errors.As(err, &fwdErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logger.WithFields(map[string]interface{}{
		"path":       r.URL.Path,
		"method":     r.Method,
		"status":     status,
		"request_id": middleware.GetReqID(r.Context()),
	}).Warning("request error: %v", err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		types.GlobalLogger.WithModule("web").Error("json encode error: %v", err)
	}
}
