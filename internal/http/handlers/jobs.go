package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stager/internal/lifecycle"
	"stager/internal/middleware"
)

type jobAccepted struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Upload accepts a multipart "image" field plus an optional "email" and
// creates a job in the created state.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	if !a.parseMultipart(w, r) {
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, r, http.StatusBadRequest, "image_required")
		return
	}
	defer file.Close()
	if header.Size > a.MaxUploadBytes {
		a.error(w, r, http.StatusRequestEntityTooLarge, "payload_too_large")
		return
	}

	data, contentType, code := readImage(file, header)
	if code != "" {
		a.error(w, r, http.StatusBadRequest, code)
		return
	}

	job, err := a.Jobs.Create(r.Context(), lifecycle.CreateInput{
		Data:        data,
		Filename:    header.Filename,
		ContentType: contentType,
		Requester:   r.FormValue("email"),
	})
	if err != nil {
		a.fail(w, r, "", err)
		return
	}
	a.json(w, http.StatusOK, jobAccepted{
		JobID:   job.ID,
		Status:  string(job.State),
		Message: message(middleware.LocaleFromContext(r.Context()), "uploaded"),
	})
}

// Process triggers the pipeline of a created job.
func (a *App) Process(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	job, err := a.Jobs.Trigger(r.Context(), id)
	if err != nil {
		a.fail(w, r, id, err)
		return
	}
	a.json(w, http.StatusAccepted, jobAccepted{
		JobID:   job.ID,
		Status:  string(job.State),
		Message: message(middleware.LocaleFromContext(r.Context()), "processing_started"),
	})
}

// JobStatus returns the job snapshot.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	job, err := a.Jobs.Query(r.Context(), id)
	if err != nil {
		a.fail(w, r, id, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// Download streams the staged image of a completed job.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	data, job, err := a.Jobs.FetchResult(r.Context(), id)
	if err != nil {
		a.fail(w, r, id, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="staged_%s.png"`, job.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseMultipart bounds the body and parses the form, answering 413 or 400
// itself on failure.
func (a *App) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	// headroom for form fields and part headers
	limit := a.MaxUploadBytes + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, "payload_too_large")
			return false
		}
		a.error(w, r, http.StatusBadRequest, "invalid_input")
		return false
	}
	return true
}

// readImage returns the part bytes and sniffed content type, or a response
// code when the part is not an acceptable image.
func readImage(file multipart.File, header *multipart.FileHeader) ([]byte, string, string) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "invalid_input"
	}
	if len(data) == 0 {
		return nil, "", "image_required"
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", "unsupported_media"
	}
	if declared := header.Header.Get("Content-Type"); strings.HasPrefix(declared, "image/") {
		contentType = declared
	}
	return data, contentType, ""
}
