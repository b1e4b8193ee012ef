package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// CompleteStream sends a completion request and streams content tokens
	// on the returned channel as they arrive, closing it when the response
	// is complete or ctx is cancelled. A non-nil error return means the
	// request never started streaming; errors encountered mid-stream close
	// the channel without a separate error value, mirroring the decode-until-
	// EOF shape of a chat-streaming HTTP endpoint.
	CompleteStream(ctx context.Context, req CompletionRequest) (<-chan string, error)
	// Name returns the name of this provider.
	Name() string
}

// singleShotStream runs a non-streaming Complete and emits its whole
// content as one message on the returned channel, for providers whose
// underlying API has no incremental streaming mode. The pipeline streamer
// still sees a token event, just with the entire answer as a single token.
func singleShotStream(ctx context.Context, complete func(context.Context, CompletionRequest) (*CompletionResponse, error), req CompletionRequest) (<-chan string, error) {
	resp, err := complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 1)
	ch <- resp.Content
	close(ch)
	return ch, nil
}
