// Package api is the thin HTTP glue exposing the RAG engine: the job
// runner behind /index and the pipeline behind /rag, following the
// teacher's per-feature RegisterRoutes(r chi.Router, ...) self-registration
// convention.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/nocturnelabs/coderag/internal/jobs"
	"github.com/nocturnelabs/coderag/internal/ragpipeline"
	"github.com/nocturnelabs/coderag/internal/retriever"
)

// Deps are the engine components the API routes are thin adapters over.
type Deps struct {
	Runner   *jobs.Runner
	Pipeline *ragpipeline.Pipeline
}

// RegisterRoutes mounts the index and RAG routes on r.
func RegisterRoutes(r chi.Router, deps Deps) {
	h := &handler{deps: deps}

	r.Post("/index", h.postIndex)
	r.Get("/index/status/{jobId}", h.getIndexStatus)
	r.Post("/rag/query", h.postRAGQuery)
	r.Post("/rag/pipeline", h.postRAGPipeline)
}

type handler struct {
	deps Deps
}

// retrieverOptionsFromTopK maps the JSON request's optional topK onto
// retriever.Options, leaving the rest at their zero value so
// retriever.Retrieve applies its own defaults.
func retrieverOptionsFromTopK(topK int) retriever.Options {
	return retriever.Options{TopK: topK}
}
