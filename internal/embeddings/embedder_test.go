package embeddings

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedder struct {
	dim       int
	batches   [][]string
	failUntil int
	calls     int
}

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return f.dim }
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	if f.calls <= f.failUntil {
		return nil, errors.New("transient upstream error")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func TestBuildEmbedTextIdenticalConstruction(t *testing.T) {
	indexTime := BuildEmbedText("internal/foo.go", "DoThing", "go", "func DoThing() {}")
	queryTime := BuildEmbedText("internal/foo.go", "DoThing", "go", "func DoThing() {}")
	if indexTime != queryTime {
		t.Fatal("BuildEmbedText must construct identical text for identical inputs")
	}
}

func TestBuildEmbedTextPlainQuery(t *testing.T) {
	got := BuildEmbedText("", "", "", "how does auth work?")
	if got != "how does auth work?" {
		t.Fatalf("expected plain query text passthrough, got %q", got)
	}
}

func TestRunBatchesAt100(t *testing.T) {
	f := &fakeEmbedder{dim: 4}
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "text"
	}
	out, err := Run(context.Background(), f, texts, TaskRetrievalDocument)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 250 {
		t.Fatalf("expected 250 embeddings, got %d", len(out))
	}
	if len(f.batches) != 3 {
		t.Fatalf("expected 3 batches of <=100, got %d", len(f.batches))
	}
	for _, b := range f.batches {
		if len(b) > MaxBatchSize {
			t.Fatalf("batch exceeded MaxBatchSize: %d", len(b))
		}
	}
}

func TestRunDimensionMismatchAborts(t *testing.T) {
	f := &fakeEmbedder{dim: 4}
	f2 := &wrongDimEmbedder{declared: 4, actual: 3}
	_, err := Run(context.Background(), f2, []string{"a"}, TaskRetrievalDocument)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	_ = f
}

type wrongDimEmbedder struct {
	declared int
	actual   int
}

func (w *wrongDimEmbedder) Name() string    { return "wrong" }
func (w *wrongDimEmbedder) Dimensions() int { return w.declared }
func (w *wrongDimEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, w.actual)
	}
	return out, nil
}

func TestRunRetriesTransientFailure(t *testing.T) {
	f := &fakeEmbedder{dim: 4, failUntil: 2}
	out, err := Run(context.Background(), f, []string{"a", "b"}, TaskRetrievalQuery)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(out))
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", f.calls)
	}
}

func TestRunAbortsAfterExhaustingRetries(t *testing.T) {
	f := &fakeEmbedder{dim: 4, failUntil: 100}
	_, err := Run(context.Background(), f, []string{"a"}, TaskRetrievalDocument)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
