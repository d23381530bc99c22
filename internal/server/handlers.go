package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxBodyBytes bounds request bodies; both payloads are a single short field pair.
const maxBodyBytes = 4 << 10

// QueueItem is one row of GET /queue.
type QueueItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	VoteSum    int    `json:"vote_sum"`
	ClientVote int    `json:"client_vote"`
}

// AdmitRequest is the body of POST /queue.
type AdmitRequest struct {
	SongLink string `json:"song_link" validate:"required"`
}

// VoteRequest is the body of POST /vote. Vote is a pointer so an explicit 0 passes validation.
type VoteRequest struct {
	SongID string `json:"song_id" validate:"required"`
	Vote   *int   `json:"vote" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newQueueItems(rows []models.RankedSong) []QueueItem {
	items := make([]QueueItem, len(rows))
	for i, r := range rows {
		items[i] = QueueItem{
			ID:         r.ID,
			Name:       r.Name,
			Artist:     r.Artist,
			VoteSum:    r.VoteSum,
			ClientVote: r.ClientVote,
		}
	}
	return items
}

// jsonFieldName reports validation failures by their JSON names.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func clientID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ClientIDHeader))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	rows, err := s.queue.Queue(r.Context(), clientID(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newQueueItems(rows))
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req AdmitRequest
	if !s.decode(w, r, &req) {
		return
	}

	ok, err := s.queue.AdmitLink(r.Context(), req.SongLink)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, ok)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	client := clientID(r)
	if client == "" {
		s.writeError(w, http.StatusBadRequest, shared.ErrMissingClientID)
		return
	}

	var req VoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	ok, err := s.queue.Vote(r.Context(), req.SongID, client, *req.Vote)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, ok)
}

// decode reads and validates a JSON body into v, writing a 400 and returning false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fe.Field()
		}
		return errors.New("missing or invalid fields: " + strings.Join(fields, ", "))
	}
	return shared.ErrInvalidInput
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidLink),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingClientID):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrServiceUnavailable),
		errors.Is(err, shared.ErrRateLimited),
		errors.Is(err, shared.ErrAuthFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "status", status, "error", err)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
