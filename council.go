package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CouncilConfig is the per-run configuration for a deliberation.
type CouncilConfig struct {
	// CouncilModels is the ordered list of backends that answer, fact-check
	// and rank. Duplicates are permitted and tracked by instance index.
	CouncilModels []string

	// ChairmanModel performs the single final synthesis call. It may also
	// appear in CouncilModels.
	ChairmanModel string

	// TitleModel generates short conversation titles.
	TitleModel string

	// FactChecking enables stage 2. When false, stage 3 runs without
	// fact-check context and no fact_check_* events are emitted.
	FactChecking bool

	// Streaming makes each stage emit per-chunk events as backends stream
	// partial content. Requires a sink to be useful.
	Streaming bool

	QueryTimeout time.Duration
	TitleTimeout time.Duration
}

// Council runs multi-model deliberations against a ModelClient.
type Council struct {
	Client ModelClient
	Config CouncilConfig
}

// NewCouncil creates a Council, filling unset config fields from the
// package defaults.
func NewCouncil(client ModelClient, config CouncilConfig) *Council {
	if len(config.CouncilModels) == 0 {
		config.CouncilModels = DefaultCouncilModels
	}
	if config.ChairmanModel == "" {
		config.ChairmanModel = DefaultChairmanModel
	}
	if config.TitleModel == "" {
		config.TitleModel = DefaultTitleModel
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = ModelQueryTimeout
	}
	if config.TitleTimeout == 0 {
		config.TitleTimeout = TitleGenTimeout
	}
	return &Council{Client: client, Config: config}
}

// deliberation is the per-run context: state machine position, anonymization
// map, partial-result accumulators and diagnostics. It is created at run
// start, never shared across runs, and discarded when the run ends.
type deliberation struct {
	council  *Council
	question string

	sink   EventSink
	sinkMu sync.Mutex

	state RunState
	anon  *AnonymizationMap

	stage1              []ModelResponse
	factChecks          []FactCheckResult
	rankings            []RankingResult
	aggregateFactChecks []AggregateFactCheck
	aggregateRankings   []AggregateRanking

	diagnostics RunDiagnostics
}

// emit forwards an event to the sink, serializing concurrent chunk callbacks.
func (d *deliberation) emit(event Event) {
	if d.sink == nil {
		return
	}
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()
	d.sink(event)
}

// setState advances the state machine, refusing illegal edges. Terminal
// states are never left.
func (d *deliberation) setState(next RunState) {
	if !CanTransition(d.state, next) {
		panic(fmt.Sprintf("illegal state transition %s -> %s", d.state, next))
	}
	d.state = next
}

// chunkFunc returns a ChunkFunc emitting events of the given type, or nil
// when streaming is off or no sink is attached.
func (d *deliberation) chunkFunc(eventType string) ChunkFunc {
	if !d.council.Config.Streaming || d.sink == nil {
		return nil
	}
	return func(model string, instance int, text string) {
		d.emit(Event{Type: eventType, Model: model, Instance: instance, Text: text})
	}
}

// dispatch fans the prompt out to the council for one stage and records the
// attempted/succeeded counts.
func (d *deliberation) dispatch(ctx context.Context, stage, chunkType string, messages []ChatMessage) ([]ModelResponse, error) {
	models := d.council.Config.CouncilModels
	survivors, err := queryCouncil(ctx, d.council.Client, stage, models, messages, d.council.Config.QueryTimeout, d.chunkFunc(chunkType))
	d.diagnostics.Stages[stage] = StageAttempts{Attempted: len(models), Succeeded: len(survivors)}
	return survivors, err
}

// fail moves the run to its terminal failed state and emits the error event.
// Caller cancellation is reported under the stage name "cancelled".
func (d *deliberation) fail(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		stage = "cancelled"
	}
	d.setState(StateFailed)
	d.emit(Event{Type: EventError, Stage: stage, Message: err.Error()})
	return err
}

func (d *deliberation) recordDropped(stage string, count int) {
	if count == 0 {
		return
	}
	if d.diagnostics.DroppedLabels == nil {
		d.diagnostics.DroppedLabels = make(map[string]int)
	}
	d.diagnostics.DroppedLabels[stage] += count
}

// anonymizedBatch renders the surviving stage-1 responses under their
// anonymous labels for inclusion in stage 2/3 prompts. Real model ids never
// appear here.
func (d *deliberation) anonymizedBatch() string {
	var b strings.Builder
	for _, response := range d.stage1 {
		label, _ := d.anon.LabelFor(response.Model, response.Instance)
		fmt.Fprintf(&b, "%s:\n%s\n\n", label, response.Response)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run executes the full deliberation over question, emitting progress events
// to sink (which may be nil). Stage 2 runs only when fact-checking is
// enabled. The returned result carries all stage outputs, the de-anonymized
// label mapping, aggregates and diagnostics.
func (c *Council) Run(ctx context.Context, question string, sink EventSink) (*DeliberationResult, error) {
	d := &deliberation{
		council:  c,
		question: question,
		sink:     sink,
		state:    StateIdle,
		diagnostics: RunDiagnostics{
			Stages: make(map[string]StageAttempts),
		},
	}

	// Stage 1: independent answers.
	d.setState(StateStage1Collecting)
	d.emit(Event{Type: EventStage1Start})
	stage1, err := d.dispatch(ctx, "stage1", EventStage1Chunk, []ChatMessage{
		{Role: "user", Content: question},
	})
	if err != nil {
		return nil, d.fail(ctx, "stage1", err)
	}
	d.stage1 = stage1
	d.anon = anonymize(stage1)
	d.setState(StateStage1Done)
	d.emit(Event{Type: EventStage1Complete, Data: stage1})

	// Stage 2: cross fact-checking (skippable).
	if c.Config.FactChecking {
		d.setState(StateStage2FactChecking)
		d.emit(Event{Type: EventFactCheckStart})
		checks, err := d.stage2FactCheck(ctx)
		if err != nil {
			return nil, d.fail(ctx, "stage2", err)
		}
		d.factChecks = checks

		aggregates, dropped := AggregateFactChecks(checks, d.anon)
		d.aggregateFactChecks = aggregates
		d.recordDropped("stage2", dropped)

		d.setState(StateStage2Done)
		d.emit(Event{
			Type: EventFactCheckComplete,
			Data: checks,
			Metadata: map[string]interface{}{
				"label_to_model":        d.anon.LabelToModel(),
				"aggregate_fact_checks": aggregates,
			},
		})
	}

	// Stage 3: peer ranking.
	d.setState(StateStage3Ranking)
	d.emit(Event{Type: EventStage3Start})
	rankings, err := d.stage3CollectRankings(ctx)
	if err != nil {
		return nil, d.fail(ctx, "stage3", err)
	}
	d.rankings = rankings

	aggregates, dropped := AggregateRankings(rankings, d.anon)
	d.aggregateRankings = aggregates
	d.recordDropped("stage3", dropped)

	d.setState(StateStage3Done)
	d.emit(Event{
		Type: EventStage3Complete,
		Data: rankings,
		Metadata: map[string]interface{}{
			"label_to_model":     d.anon.LabelToModel(),
			"aggregate_rankings": aggregates,
		},
	})

	// Stage 4: chairman synthesis.
	d.setState(StateStage4Synthesizing)
	d.emit(Event{Type: EventStage4Start})
	synthesis, err := d.stage4Synthesize(ctx)
	if err != nil {
		return nil, d.fail(ctx, "stage4", err)
	}
	d.setState(StateComplete)
	d.emit(Event{Type: EventStage4Complete, Data: synthesis})

	return &DeliberationResult{
		Stage1:     d.stage1,
		FactChecks: d.factChecks,
		Rankings:   d.rankings,
		Synthesis:  synthesis,
		Metadata: RunMetadata{
			LabelToModel:        d.anon.LabelToModel(),
			AggregateFactChecks: d.aggregateFactChecks,
			AggregateRankings:   d.aggregateRankings,
			FactCheckingEnabled: c.Config.FactChecking,
			Diagnostics:         d.diagnostics,
		},
	}, nil
}

// stage2FactCheck has every council model fact-check the anonymized batch.
func (d *deliberation) stage2FactCheck(ctx context.Context) ([]FactCheckResult, error) {
	prompt := fmt.Sprintf(`You are a fact-checker evaluating different AI responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task is to fact-check each response thoroughly:

1. For EACH response, identify:
   - **Accurate Claims**: List specific claims that are factually correct
   - **Inaccurate Claims**: List specific claims that are factually incorrect or misleading, and explain why
   - **Unverifiable Claims**: List claims that cannot be easily verified or are speculative
   - **Missing Important Information**: Note any crucial information the response failed to include

2. At the very end of your analysis, provide a summary section.

IMPORTANT: Your summary MUST be formatted EXACTLY as follows:
- Start with the line "FACT CHECK SUMMARY:" (all caps, with colon)
- For each response, on a new line write: "Response X: [ACCURATE/MOSTLY ACCURATE/MIXED/MOSTLY INACCURATE/INACCURATE]"
- After rating all responses, add a line: "MOST RELIABLE: Response X" (the single most factually reliable response)

Example of the correct format for your summary:

FACT CHECK SUMMARY:
Response A: MOSTLY ACCURATE
Response B: MIXED
Response C: ACCURATE
MOST RELIABLE: Response C

Now provide your detailed fact-check analysis:`, d.question, d.anonymizedBatch())

	responses, err := d.dispatch(ctx, "stage2", EventFactCheckChunk, []ChatMessage{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	results := make([]FactCheckResult, 0, len(responses))
	for _, response := range responses {
		results = append(results, FactCheckResult{
			Model:     response.Model,
			Instance:  response.Instance,
			FactCheck: response.Response,
			Parsed:    ParseFactCheckSummary(response.Response),
			ElapsedMS: response.ElapsedMS,
		})
	}
	return results, nil
}

// stage3CollectRankings has every council model rank the anonymized batch,
// with fact-check context when stage 2 ran.
func (d *deliberation) stage3CollectRankings(ctx context.Context) ([]RankingResult, error) {
	var factCheckContext string
	if len(d.factChecks) > 0 {
		var b strings.Builder
		for i, check := range d.factChecks {
			fmt.Fprintf(&b, "Fact-checker %d:\n%s\n\n", i+1, check.FactCheck)
		}
		factCheckContext = fmt.Sprintf(`---

Here are the fact-check analyses from peer reviewers:

%s---

Your task:
1. Consider both the quality of each response AND the fact-check findings.
2. Evaluate each response individually, taking into account:
   - Factual accuracy (as revealed by the fact-checks)
   - Completeness and helpfulness
   - Clarity and reasoning
3. Then, at the very end of your response, provide a final ranking.`, b.String())
	} else {
		factCheckContext = `Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.`
	}

	prompt := fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

%s

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format:

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, d.question, d.anonymizedBatch(), factCheckContext)

	responses, err := d.dispatch(ctx, "stage3", EventStage3Chunk, []ChatMessage{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	results := make([]RankingResult, 0, len(responses))
	for _, response := range responses {
		results = append(results, RankingResult{
			Model:         response.Model,
			Instance:      response.Instance,
			Ranking:       response.Response,
			ParsedRanking: ParseFinalRanking(response.Response),
			ElapsedMS:     response.ElapsedMS,
		})
	}
	return results, nil
}

// aggregateFactCheckText renders the consensus ratings for the chairman.
func (d *deliberation) aggregateFactCheckText() string {
	var b strings.Builder
	for _, agg := range d.aggregateFactChecks {
		if agg.RatingCount == 0 {
			fmt.Fprintf(&b, "%s (%s): no ratings\n", agg.Model, agg.Label)
			continue
		}
		fmt.Fprintf(&b, "%s (%s): %s (average %.2f from %d ratings, %d most-reliable votes)\n",
			agg.Model, agg.Label, agg.ConsensusRating, agg.AverageScore, agg.RatingCount, agg.MostReliableVotes)
	}
	return b.String()
}

// aggregateRankingText renders the consensus ranking for the chairman.
func (d *deliberation) aggregateRankingText() string {
	var b strings.Builder
	for _, agg := range d.aggregateRankings {
		if agg.VoteCount == 0 {
			fmt.Fprintf(&b, "%s (%s): not ranked\n", agg.Model, agg.Label)
			continue
		}
		fmt.Fprintf(&b, "%s (%s): average position %.2f across %d rankings\n",
			agg.Model, agg.Label, agg.AveragePosition, agg.VoteCount)
	}
	return b.String()
}

// stage4Synthesize makes the single chairman call with the full
// de-anonymized context. Failure here is fatal to the run.
func (d *deliberation) stage4Synthesize(ctx context.Context) (ChairmanSynthesis, error) {
	config := d.council.Config

	var stage1Text strings.Builder
	for _, response := range d.stage1 {
		fmt.Fprintf(&stage1Text, "Model: %s\nResponse: %s\n\n", response.Model, response.Response)
	}

	var rankingText strings.Builder
	for _, ranking := range d.rankings {
		fmt.Fprintf(&rankingText, "Model: %s\nRanking: %s\n\n", ranking.Model, ranking.Ranking)
	}

	var prompt string
	if len(d.factChecks) > 0 {
		var factCheckText strings.Builder
		for _, check := range d.factChecks {
			fmt.Fprintf(&factCheckText, "Fact-checker (%s):\n%s\n\n", check.Model, check.FactCheck)
		}

		prompt = fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question. Then each model fact-checked each other's responses. Finally, each model ranked the responses taking the fact-checks into account.

Original Question: %s

=== STAGE 1 - Individual Responses ===
%s
=== STAGE 2 - Fact-Check Analyses ===
%s
Consensus fact-check ratings (averaged across fact-checkers):
%s
=== STAGE 3 - Peer Rankings (Informed by Fact-Checks) ===
%s
Consensus ranking (averaged across rankers, lower is better):
%s
---

Your task as Chairman is comprehensive. You must:

1. **FACT-CHECK SYNTHESIS**: First, analyze all the fact-check reports. Identify:
   - Claims that multiple fact-checkers agreed were ACCURATE
   - Claims that multiple fact-checkers agreed were INACCURATE (these are confirmed errors)
   - Claims where fact-checkers DISAGREED (these need your judgment)
   - Any factual errors that were missed by some fact-checkers

2. **FACT-CHECK VALIDATION**: Review the fact-checkers themselves. Did any fact-checker make errors in their fact-checking? Note any corrections needed.

3. **FINAL ANSWER**: Synthesize all of this into a single, comprehensive, FACTUALLY ACCURATE answer to the user's question. Your answer should:
   - Incorporate the best insights from all responses
   - EXCLUDE or CORRECT any claims that were identified as inaccurate
   - Note any areas of genuine uncertainty where fact-checkers disagreed
   - Be clear about what is well-established fact vs. what is opinion or speculation

Structure your response as follows:

## Fact-Check Synthesis
[Your analysis of the fact-checking results - what was confirmed accurate, what was confirmed inaccurate, and any disagreements]

## Fact-Checker Validation
[Any corrections to the fact-checkers themselves, or confirmation that their analyses were sound]

## Final Council Answer
[Your comprehensive, fact-checked answer to the user's question]

Now provide your Chairman synthesis:`,
			d.question, stage1Text.String(), factCheckText.String(),
			d.aggregateFactCheckText(), rankingText.String(), d.aggregateRankingText())
	} else {
		prompt = fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

=== STAGE 1 - Individual Responses ===
%s
=== STAGE 3 - Peer Rankings ===
%s
Consensus ranking (averaged across rankers, lower is better):
%s
---

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
			d.question, stage1Text.String(), rankingText.String(), d.aggregateRankingText())
	}

	messages := []ChatMessage{{Role: "user", Content: prompt}}

	var reply *ModelReply
	var err error
	if chunk := d.chunkFunc(EventStage4Chunk); chunk != nil {
		reply, err = d.council.Client.QueryStream(ctx, config.ChairmanModel, messages, config.QueryTimeout, func(text string) {
			chunk(config.ChairmanModel, 0, text)
		})
	} else {
		reply, err = d.council.Client.Query(ctx, config.ChairmanModel, messages, config.QueryTimeout)
	}

	d.diagnostics.Stages["stage4"] = StageAttempts{Attempted: 1}
	if err != nil {
		return ChairmanSynthesis{}, &StageFailure{Stage: "stage4", Attempted: 1, Reason: err.Error()}
	}
	d.diagnostics.Stages["stage4"] = StageAttempts{Attempted: 1, Succeeded: 1}

	return ChairmanSynthesis{
		Model:     config.ChairmanModel,
		Response:  reply.Content,
		ElapsedMS: reply.ElapsedMS,
	}, nil
}

// GenerateTitle generates a short conversation title from the first user
// message using the configured title model.
func (c *Council) GenerateTitle(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, question)

	reply, err := c.Client.Query(ctx, c.Config.TitleModel, []ChatMessage{
		{Role: "user", Content: prompt},
	}, c.Config.TitleTimeout)
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := strings.TrimSpace(reply.Content)
	title = strings.Trim(title, "\"'")
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title, nil
}
