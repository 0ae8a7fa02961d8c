package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hackhub/internal/apperr"
	"hackhub/internal/attachment"
	"hackhub/internal/dm"
	"hackhub/internal/message"
)

type healthPayload struct {
	Status string `json:"status"`
	Remote bool   `json:"remote"`
	Mode   string `json:"mode"`
}

type contentRequest struct {
	Content string `json:"content"`
}

type countResponse struct {
	Count int `json:"count"`
}

type batchResponse struct {
	Sent     []message.Message `json:"sent"`
	Failures []problem         `json:"failures,omitempty"`
}

func (s *Server) health(ctx context.Context) healthPayload {
	remote := s.svc.RemoteAvailable(ctx)
	mode := dm.BackendLocal
	if remote {
		mode = dm.BackendRemote
	}
	return healthPayload{Status: "ok", Remote: remote, Mode: mode}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.HealthChecks.Add(1)
		writeJSON(w, http.StatusOK, s.health(r.Context()))
	}
}

func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"http": map[string]uint64{
				"requests":      s.metrics.Requests.Load(),
				"health_checks": s.metrics.HealthChecks.Load(),
				"uploads":       s.metrics.Uploads.Load(),
				"client_errors": s.metrics.ClientErrors.Load(),
				"server_errors": s.metrics.ServerErrors.Load(),
			},
			"dm": s.svc.MetricsSnapshot(),
		})
	}
}

func (s *Server) partnersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := s.svc.ListConversationPartners(r.Context(), currentUser(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func conversation(r *http.Request) message.ConversationKey {
	return message.NewConversationKey(currentUser(r), chi.URLParam(r, "peer"))
}

func (s *Server) messagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := s.svc.GetMessages(r.Context(), conversation(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func decodeContent(r *http.Request) (string, error) {
	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", apperr.Validation("body", "invalid payload")
	}
	return req.Content, nil
}

func (s *Server) sendTextHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := decodeContent(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		m, err := s.svc.SendText(r.Context(), currentUser(r), chi.URLParam(r, "peer"), content)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func (s *Server) sendFilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Uploads.Add(1)
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeProblem(w, http.StatusRequestEntityTooLarge, string(apperr.CodeValidation), "", "upload too large")
				return
			}
			s.writeError(w, apperr.Validation("body", "expected multipart form"))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		files, err := readFiles(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		sent, err := s.svc.SendFiles(r.Context(), currentUser(r), chi.URLParam(r, "peer"), files, r.FormValue("content"))
		var batch *apperr.BatchError
		switch {
		case errors.As(err, &batch):
			resp := batchResponse{Sent: sent}
			for _, f := range batch.Failures {
				resp.Failures = append(resp.Failures, problem{Code: string(f.Code), Item: f.Item, Message: f.Err.Error()})
			}
			writeJSON(w, http.StatusMultiStatus, resp)
		case err != nil:
			s.writeError(w, err)
		default:
			writeJSON(w, http.StatusCreated, batchResponse{Sent: sent})
		}
	}
}

func readFiles(r *http.Request) ([]attachment.File, error) {
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		return nil, apperr.Validation("file", "no file field in form")
	}
	files := make([]attachment.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, fh.Filename, "unreadable upload", err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, fh.Filename, "unreadable upload", err)
		}
		files = append(files, attachment.File{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return files, nil
}

func (s *Server) markReadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.svc.MarkRead(r.Context(), conversation(r), currentUser(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

func (s *Server) editHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := decodeContent(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		m, err := s.svc.EditMessage(r.Context(), chi.URLParam(r, "id"), currentUser(r), content)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (s *Server) deleteMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.DeleteMessage(r.Context(), chi.URLParam(r, "id"), currentUser(r)); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) deleteAttachmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.DeleteAttachment(r.Context(), chi.URLParam(r, "id"), currentUser(r)); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) usageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.svc.GetStorageUsage(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (s *Server) maintenanceHandler(name string, run func(context.Context) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := run(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.log.Info().Str("operation", name).Str("user", currentUser(r)).Int("count", n).Msg("maintenance run")
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

func (s *Server) invalidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.svc.InvalidateProbe()
		writeJSON(w, http.StatusOK, s.health(r.Context()))
	}
}
