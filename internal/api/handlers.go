package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nocturnelabs/coderag/internal/apperr"
	"github.com/nocturnelabs/coderag/internal/jobs"
	"github.com/nocturnelabs/coderag/internal/ragpipeline"
)

type indexRequest struct {
	GithubURL string `json:"githubUrl"`
}

type indexResponse struct {
	JobID string `json:"jobId"`
}

func (h *handler) postIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.BadInput, "invalid JSON body"))
		return
	}

	owner, name, ok := parseGithubURL(req.GithubURL)
	if !ok {
		writeError(w, apperr.New(apperr.BadInput, "githubUrl must be an owner/name repo reference"))
		return
	}

	jobID, err := h.deps.Runner.Enqueue(r.Context(), jobs.IndexRequest{Owner: owner, Name: name})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, indexResponse{JobID: jobID})
}

func (h *handler) getIndexStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.deps.Runner.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type ragQueryRequest struct {
	RepoID string `json:"repoId"`
	Query  string `json:"query"`
	TopK   int    `json:"topK,omitempty"`
}

// ragQueryResponse buffers the full pipeline run into one JSON body, for
// callers that don't want an SSE stream.
type ragQueryResponse struct {
	Answer    string        `json:"answer"`
	Citations interface{}   `json:"citations"`
	Chunks    []interface{} `json:"chunks"`
	Meta      ragQueryMeta  `json:"meta"`
}

type ragQueryMeta struct {
	RepoID string `json:"repoId"`
	Query  string `json:"query"`
}

// bufferingSink collects a pipeline run's events instead of streaming them,
// so postRAGQuery can return one synchronous JSON response.
type bufferingSink struct {
	events []ragpipeline.Event
}

func (b *bufferingSink) Send(e ragpipeline.Event) error {
	b.events = append(b.events, e)
	return nil
}

func (h *handler) postRAGQuery(w http.ResponseWriter, r *http.Request) {
	var req ragQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.BadInput, "invalid JSON body"))
		return
	}
	if req.RepoID == "" || req.Query == "" {
		writeError(w, apperr.New(apperr.BadInput, "repoId and query are required"))
		return
	}

	sink := &bufferingSink{}
	err := h.deps.Pipeline.Run(r.Context(), ragpipeline.Request{
		RepoID: req.RepoID,
		Query:  req.Query,
		Opts:   retrieverOptionsFromTopK(req.TopK),
	}, sink)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ragQueryResponse{Meta: ragQueryMeta{RepoID: req.RepoID, Query: req.Query}}
	for _, e := range sink.events {
		switch {
		case e.Name == ragpipeline.EventName("stage:context") && e.Status == "done":
			resp.Citations = e.Citations
		case e.Name == ragpipeline.EventName("stage:ranking") && e.Status == "done":
			for _, c := range e.Chunks {
				resp.Chunks = append(resp.Chunks, c)
			}
		case e.Name == ragpipeline.EventName("stage:generation") && e.Status == "done":
			resp.Answer = e.Answer
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) postRAGPipeline(w http.ResponseWriter, r *http.Request) {
	var req ragQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.BadInput, "invalid JSON body"))
		return
	}
	if req.RepoID == "" || req.Query == "" {
		writeError(w, apperr.New(apperr.BadInput, "repoId and query are required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.Internal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: flusher}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Minute)
	defer cancel()

	_ = h.deps.Pipeline.Run(ctx, ragpipeline.Request{
		RepoID: req.RepoID,
		Query:  req.Query,
		Opts:   retrieverOptionsFromTopK(req.TopK),
	}, sink)
}

// sseSink writes each pipeline event as one "event: <name>\ndata: <json>\n\n"
// frame and flushes immediately, so a client sees stages as they complete
// rather than buffered until the connection closes.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(e ragpipeline.Event) error {
	var v interface{} = e
	if e.Name == ragpipeline.EventToken {
		// token frames carry only the text: {"text":"..."}.
		v = struct {
			Text string `json:"text"`
		}{e.Text}
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("event: " + string(e.Name) + "\ndata: " + string(payload) + "\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{Kind: string(kind), Message: err.Error()})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.BadInput, apperr.SchemaMismatch:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.UpstreamUnavailable:
		return http.StatusBadGateway
	case apperr.Cancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// parseGithubURL accepts either "owner/name" or a full GitHub URL
// ("https://github.com/owner/name", optionally with a trailing ".git" or
// path segments) and returns the owner and repo name.
func parseGithubURL(raw string) (owner, name string, ok bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "github.com/")
	raw = strings.TrimSuffix(raw, ".git")
	raw = strings.TrimSuffix(raw, "/")

	parts := strings.Split(raw, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
