// Package ragpipeline drives the retrieval-augmented generation request as
// an explicit finite-state sequence — embedding, retrieval, ranking,
// context, generation — emitting a start/done event per stage plus
// incremental token events during generation, so a caller can render
// live progress instead of waiting for a single final answer.
package ragpipeline

import (
	"context"
	"time"

	"github.com/nocturnelabs/coderag/internal/embeddings"
	"github.com/nocturnelabs/coderag/internal/llm"
	"github.com/nocturnelabs/coderag/internal/ragcontext"
	"github.com/nocturnelabs/coderag/internal/retriever"
)

// Stage is one state of the pipeline's finite-state sequence, in order.
type Stage string

const (
	StageEmbedding  Stage = "embedding"
	StageRetrieval  Stage = "retrieval"
	StageRanking    Stage = "ranking"
	StageContext    Stage = "context"
	StageGeneration Stage = "generation"
)

// EventName is the SSE-visible event name; "stage:<name>" for stage
// transitions, plus the flat "token" and "error" event names.
type EventName string

// Event is one emitted pipeline event. Only the fields relevant to Name
// are populated.
type Event struct {
	Name       EventName   `json:"event"`
	Status     string      `json:"status,omitempty"` // "start" | "done"
	DurationMs int64       `json:"durationMs,omitempty"`
	Chunks     []retriever.RetrievedChunk `json:"chunks,omitempty"`
	Citations  ragcontext.CitationMap     `json:"citations,omitempty"`
	Text       string      `json:"text,omitempty"`
	Answer     string      `json:"answer,omitempty"`
	Message    string      `json:"message,omitempty"`
}

func stageEvent(s Stage) EventName { return EventName("stage:" + string(s)) }

const (
	EventToken EventName = "token"
	EventError EventName = "error"
)

// EventSink receives pipeline events in emission order. internal/api's SSE
// encoder and an in-memory test sink both implement this.
type EventSink interface {
	Send(event Event) error
}

// Request is one pipeline run's input.
type Request struct {
	RepoID string
	Query  string
	Opts   retriever.Options
}

// Pipeline wires a retriever, context assembler, and LLM provider into the
// staged run.
type Pipeline struct {
	retriever *retriever.Retriever
	llm       llm.Provider
	llmModel  string
	charBudget int
}

// New creates a Pipeline.
func New(r *retriever.Retriever, provider llm.Provider, model string, charBudget int) *Pipeline {
	return &Pipeline{retriever: r, llm: provider, llmModel: model, charBudget: charBudget}
}

// Run drives the full stage sequence, sending events to sink as each stage
// starts and completes. Any stage error emits one terminal error event and
// returns immediately — no later stage's "done" is ever sent after an
// earlier stage's failure. Context cancellation during generation aborts
// the in-flight LLM stream and discards the partial answer, never emitting
// stage:generation's done event.
func (p *Pipeline) Run(ctx context.Context, req Request, sink EventSink) error {
	opts := req.Opts
	opts.RepoID = req.RepoID

	result, err := p.runRetrieveAndRank(ctx, req, opts, sink)
	if err != nil {
		return p.fail(sink, err)
	}

	ctxResult, err := p.runContext(sink, req.Query, result.Chunks, req.RepoID)
	if err != nil {
		return p.fail(sink, err)
	}

	if err := p.runGeneration(ctx, sink, ctxResult); err != nil {
		if ctx.Err() != nil {
			// Cancellation during generation discards the partial answer
			// without a terminal error event, per the concurrency model.
			return err
		}
		return p.fail(sink, err)
	}
	return nil
}

func (p *Pipeline) runRetrieveAndRank(ctx context.Context, req Request, opts retriever.Options, sink EventSink) (retriever.Result, error) {
	if err := sink.Send(Event{Name: stageEvent(StageEmbedding), Status: "start"}); err != nil {
		return retriever.Result{}, err
	}
	embedStart := time.Now()

	// Embedding and retrieval are one call on the retriever, but the FSM
	// still reports them as two stages: the embedding stage completes once
	// the query's embed text is built; the query vector itself is computed
	// inside Retrieve, so its time counts toward the retrieval stage.
	queryText := embeddings.BuildEmbedText("", "", "", req.Query)
	if err := sink.Send(Event{Name: stageEvent(StageEmbedding), Status: "done", DurationMs: sinceMs(embedStart)}); err != nil {
		return retriever.Result{}, err
	}
	_ = queryText

	if err := sink.Send(Event{Name: stageEvent(StageRetrieval), Status: "start"}); err != nil {
		return retriever.Result{}, err
	}
	retrieveStart := time.Now()
	result, err := p.retriever.Retrieve(ctx, req.Query, opts)
	if err != nil {
		return retriever.Result{}, err
	}
	if err := sink.Send(Event{Name: stageEvent(StageRetrieval), Status: "done", DurationMs: sinceMs(retrieveStart)}); err != nil {
		return retriever.Result{}, err
	}

	if err := sink.Send(Event{Name: stageEvent(StageRanking), Status: "start"}); err != nil {
		return retriever.Result{}, err
	}
	if err := sink.Send(Event{Name: stageEvent(StageRanking), Status: "done", Chunks: result.Chunks}); err != nil {
		return retriever.Result{}, err
	}

	return result, nil
}

func (p *Pipeline) runContext(sink EventSink, query string, chunks []retriever.RetrievedChunk, repoID string) (ragcontext.Result, error) {
	if err := sink.Send(Event{Name: stageEvent(StageContext), Status: "start"}); err != nil {
		return ragcontext.Result{}, err
	}
	assembled, err := ragcontext.Assemble(query, chunks, repoID, ragcontext.Options{CharBudget: p.charBudget})
	if err != nil {
		return ragcontext.Result{}, err
	}
	if err := sink.Send(Event{Name: stageEvent(StageContext), Status: "done", Citations: assembled.Citations}); err != nil {
		return ragcontext.Result{}, err
	}
	return assembled, nil
}

func (p *Pipeline) runGeneration(ctx context.Context, sink EventSink, assembled ragcontext.Result) error {
	if err := sink.Send(Event{Name: stageEvent(StageGeneration), Status: "start"}); err != nil {
		return err
	}

	tokens, err := p.llm.CompleteStream(ctx, llm.CompletionRequest{
		Model: p.llmModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: assembled.SystemPrompt},
			{Role: llm.RoleUser, Content: assembled.UserPrompt},
		},
	})
	if err != nil {
		return err
	}

	var answer string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-tokens:
			if !ok {
				return sink.Send(Event{Name: stageEvent(StageGeneration), Status: "done", Answer: answer})
			}
			answer += text
			if err := sink.Send(Event{Name: EventToken, Text: text}); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) fail(sink EventSink, err error) error {
	_ = sink.Send(Event{Name: EventError, Message: err.Error()})
	return err
}

func sinceMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
