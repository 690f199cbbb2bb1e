package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"stager/internal/lifecycle"
	"stager/internal/middleware"
)

type webhookJob struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

type webhookSkip struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type webhookResponse struct {
	Received bool          `json:"received"`
	Jobs     []webhookJob  `json:"jobs"`
	Skipped  []webhookSkip `json:"skipped,omitempty"`
}

// MailgunInbound turns each image attachment of an inbound mail into a
// created job on behalf of the sender. Jobs are not triggered.
func (a *App) MailgunInbound(w http.ResponseWriter, r *http.Request) {
	if !a.parseMultipart(w, r) {
		return
	}
	sender := strings.TrimSpace(r.FormValue("sender"))
	if sender == "" {
		sender = strings.TrimSpace(r.FormValue("from"))
	}

	resp := webhookResponse{Received: true, Jobs: []webhookJob{}}
	var createErr error
	for _, field := range attachmentFields(r) {
		for _, header := range r.MultipartForm.File[field] {
			if header.Size > a.MaxUploadBytes {
				resp.Skipped = append(resp.Skipped, webhookSkip{Filename: header.Filename, Reason: "payload_too_large"})
				continue
			}
			file, err := header.Open()
			if err != nil {
				resp.Skipped = append(resp.Skipped, webhookSkip{Filename: header.Filename, Reason: "invalid_input"})
				continue
			}
			data, contentType, code := readImage(file, header)
			_ = file.Close()
			if code != "" {
				resp.Skipped = append(resp.Skipped, webhookSkip{Filename: header.Filename, Reason: code})
				continue
			}

			job, err := a.Jobs.Create(r.Context(), lifecycle.CreateInput{
				Data:        data,
				Filename:    header.Filename,
				ContentType: contentType,
				Requester:   sender,
			})
			if err != nil {
				createErr = err
				_, reason, _ := classify(err)
				a.Logger.Error().
					Err(err).
					Str("sender", sender).
					Str("filename", header.Filename).
					Str("request_id", middleware.RequestIDFromContext(r.Context())).
					Msg("webhook: attachment not stored")
				resp.Skipped = append(resp.Skipped, webhookSkip{Filename: header.Filename, Reason: reason})
				continue
			}
			resp.Jobs = append(resp.Jobs, webhookJob{JobID: job.ID, Status: string(job.State), Filename: header.Filename})
		}
	}

	if createErr != nil && len(resp.Jobs) == 0 {
		// Nothing was stored, so the mail can be redelivered as a whole.
		a.fail(w, r, "", createErr)
		return
	}

	a.Logger.Info().
		Str("sender", sender).
		Int("jobs", len(resp.Jobs)).
		Int("skipped", len(resp.Skipped)).
		Msg("webhook: inbound mail processed")
	a.json(w, http.StatusOK, resp)
}

// attachmentFields lists attachment-1..N in numeric order. When
// attachment-count is absent every attachment-* field is used.
func attachmentFields(r *http.Request) []string {
	if r.MultipartForm == nil {
		return nil
	}
	if n, err := strconv.Atoi(r.FormValue("attachment-count")); err == nil && n > 0 {
		fields := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			fields = append(fields, "attachment-"+strconv.Itoa(i))
		}
		return fields
	}

	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for name := range r.MultipartForm.File {
		suffix, ok := strings.CutPrefix(name, "attachment-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		found = append(found, numbered{name: name, n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	fields := make([]string, len(found))
	for i, f := range found {
		fields[i] = f.name
	}
	return fields
}
