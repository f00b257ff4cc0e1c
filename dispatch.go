package main

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ChunkFunc receives one streamed content delta from an in-flight model call.
type ChunkFunc func(model string, instance int, text string)

// instanceIndexes tags every entry of a council list with the count of
// identical model ids appearing before it, so duplicate entries stay
// distinguishable (e.g. [M1, M2, M1] -> 0, 0, 1).
func instanceIndexes(models []string) []int {
	seen := make(map[string]int)
	indexes := make([]int, len(models))
	for i, model := range models {
		indexes[i] = seen[model]
		seen[model]++
	}
	return indexes
}

// queryCouncil fans a prompt out to every entry of models concurrently,
// one call per entry, and collects the surviving responses in completion
// order. Individual failures are logged and dropped; the stage only fails
// when nothing survives, in which case a *StageFailure is returned. When
// onChunk is non-nil the calls stream and forward deltas as they arrive.
func queryCouncil(ctx context.Context, client ModelClient, stage string, models []string, messages []ChatMessage, timeout time.Duration, onChunk ChunkFunc) ([]ModelResponse, error) {
	g, gctx := errgroup.WithContext(ctx)

	indexes := instanceIndexes(models)

	var mu sync.Mutex
	var survivors []ModelResponse

	for i, model := range models {
		model, instance := model, indexes[i]
		g.Go(func() error {
			var reply *ModelReply
			var err error
			if onChunk != nil {
				reply, err = client.QueryStream(gctx, model, messages, timeout, func(text string) {
					onChunk(model, instance, text)
				})
			} else {
				reply, err = client.Query(gctx, model, messages, timeout)
			}

			// Graceful degradation: a failed call leaves no entry
			// for its slot and never aborts the stage.
			if err != nil {
				log.Printf("%s: error querying model %s (instance %d): %v", stage, model, instance, err)
				return nil
			}

			mu.Lock()
			survivors = append(survivors, ModelResponse{
				Model:     model,
				Instance:  instance,
				Response:  reply.Content,
				Reasoning: reply.Reasoning,
				ElapsedMS: reply.ElapsedMS,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(survivors) == 0 {
		return nil, &StageFailure{Stage: stage, Attempted: len(models)}
	}

	return survivors, nil
}
