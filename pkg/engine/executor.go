package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/veriflow/veriflow/pkg/container"
	"github.com/veriflow/veriflow/pkg/runbook"
)

// ArtifactEvent describes the completion of one artifact during a run.
type ArtifactEvent struct {
	RunID      string
	ArtifactID string
	Origin     string
	Status     ExecutionStatus
	Skipped    bool
	Duration   time.Duration
	Error      string
}

// EventPublisher receives artifact completion events. Implementations must
// not block; the executor calls Publish from its coordinator goroutine.
type EventPublisher interface {
	Publish(ctx context.Context, event ArtifactEvent)
}

// Executor runs an execution plan with bounded parallelism and deterministic
// failure semantics. The coordinator goroutine owns all run bookkeeping;
// workers only produce messages and report back on a channel.
type Executor struct {
	registry  ComponentRegistry
	container *container.Container
	logger    zerolog.Logger
	publisher EventPublisher
	tracer    trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger. The default discards everything.
func WithLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithEventPublisher sets the artifact event sink.
func WithEventPublisher(p EventPublisher) ExecutorOption {
	return func(e *Executor) { e.publisher = p }
}

// WithTracer sets the tracer used for per-artifact spans.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an executor. The artifact store is resolved from the
// container at the start of each run and must be registered transient so
// every run gets a fresh instance.
func NewExecutor(registry ComponentRegistry, c *container.Container, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:  registry,
		container: c,
		logger:    zerolog.Nop(),
		tracer:    noop.NewTracerProvider().Tracer("veriflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// completion is the message a worker sends back to the coordinator.
type completion struct {
	id  string
	msg Message
}

// Execute runs the plan. A run-wide deadline from the runbook config bounds
// the whole execution; on deadline the executor moves every artifact that has
// neither completed nor been skipped into the skipped set and returns a
// well-formed result. Timeout is not an error at this level.
func (e *Executor) Execute(ctx context.Context, plan *ExecutionPlan) (*ExecutionResult, error) {
	if plan == nil {
		return nil, NewConfigurationError("plan is nil", nil)
	}

	store, err := container.Resolve[ArtifactStore](e.container)
	if err != nil {
		return nil, NewServiceUnavailableError("artifact store is not registered", err)
	}

	runID := ulid.Make().String()
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, plan.Runbook.Config.Timeout())
	defer cancel()

	runCtx, runSpan := e.tracer.Start(runCtx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("runbook.name", plan.Runbook.Name),
		))
	defer runSpan.End()

	e.logger.Info().
		Str("run_id", runID).
		Str("runbook", plan.Runbook.Name).
		Int("artifacts", len(plan.Runbook.Artifacts)).
		Int("max_concurrency", plan.Runbook.Config.MaxConcurrency).
		Msg("run started")

	result := e.run(runCtx, plan, store, runID)
	result.StartedAt = started
	result.DurationSeconds = time.Since(started).Seconds()

	summary := result.Summarize()
	e.logger.Info().
		Str("run_id", runID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Float64("duration_seconds", result.DurationSeconds).
		Msg("run finished")

	return result, nil
}

// run walks the DAG. The loop is single-threaded: it dispatches ready
// artifacts to workers gated by the semaphore and folds completions back in.
// Workers never touch the result maps.
func (e *Executor) run(ctx context.Context, plan *ExecutionPlan, store ArtifactStore, runID string) *ExecutionResult {
	result := &ExecutionResult{
		RunID:     runID,
		Artifacts: make(map[string]Message),
		Skipped:   make(map[string]bool),
	}

	inDegree := make(map[string]int, len(plan.DAG.Reverse))
	for id, preds := range plan.DAG.Reverse {
		inDegree[id] = len(preds)
	}

	semaphore := make(chan struct{}, plan.Runbook.Config.MaxConcurrency)
	// Buffered to the artifact count so late workers never block after the
	// deadline fires and their output is discarded.
	completions := make(chan completion, len(inDegree))

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	done := make(map[string]bool, len(inDegree))
	inFlight := 0

	finish := func(id string) {
		done[id] = true
		for _, succ := range plan.DAG.Forward[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	for len(done) < len(inDegree) {
		// Dispatch everything ready. Skipped artifacts are marked done
		// without producing a message so the DAG drains.
		for len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			if result.Skipped[id] {
				finish(id)
				continue
			}
			inFlight++
			go e.produce(ctx, plan, store, runID, id, semaphore, completions)
		}

		if inFlight == 0 {
			if len(done) < len(inDegree) {
				// Everything left is unreachable; only possible after a
				// cascade emptied the ready set.
				break
			}
			continue
		}

		select {
		case c := <-completions:
			inFlight--
			result.Artifacts[c.id] = c.msg
			result.Order = append(result.Order, c.id)
			e.publishCompletion(ctx, runID, c)
			finish(c.id)
			if c.msg.Execution != nil && c.msg.Execution.Status == ExecutionStatusError {
				e.cascadeSkip(ctx, plan, c.id, result)
			}
		case <-ctx.Done():
			// Deadline or caller cancellation: everything not completed is
			// skipped. In-flight workers may finish in the background; their
			// sends land in the buffered channel and are discarded. A worker
			// that already saved its message leaves it in the store even
			// though the result reports the artifact skipped; the result is
			// the authority on what a run produced.
			for id := range inDegree {
				if _, produced := result.Artifacts[id]; !produced {
					result.Skipped[id] = true
				}
			}
			e.logger.Warn().
				Str("run_id", runID).
				Int("skipped", len(result.Skipped)).
				Msg("run deadline reached, remaining artifacts skipped")
			return result
		}
	}

	return result
}

// cascadeSkip walks the reverse of the failure: every transitive dependent of
// the failed artifact joins the skipped set. Iterative BFS keeps deep chains
// off the stack.
func (e *Executor) cascadeSkip(ctx context.Context, plan *ExecutionPlan, failedID string, result *ExecutionResult) {
	queue := append([]string{}, plan.DAG.Forward[failedID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if result.Skipped[id] {
			continue
		}
		result.Skipped[id] = true
		if e.publisher != nil {
			e.publisher.Publish(ctx, ArtifactEvent{
				RunID:      result.RunID,
				ArtifactID: id,
				Origin:     artifactOrigin(id),
				Skipped:    true,
			})
		}
		queue = append(queue, plan.DAG.Forward[id]...)
	}
}

// produce runs on a worker goroutine: it acquires the semaphore, produces the
// artifact, and reports the annotated message (or a synthetic error message)
// back to the coordinator. Component failures never escape; panics are
// captured as processing errors.
func (e *Executor) produce(ctx context.Context, plan *ExecutionPlan, store ArtifactStore, runID, id string, semaphore chan struct{}, completions chan<- completion) {
	select {
	case semaphore <- struct{}{}:
		defer func() { <-semaphore }()
	case <-ctx.Done():
		return
	}

	started := time.Now()
	def := plan.Runbook.Artifacts[id]
	schemas := plan.Schemas[id]
	origin := artifactOrigin(id)
	alias := plan.ReversedAliases[id]

	ctx, span := e.tracer.Start(ctx, "artifact.produce",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("artifact.id", id),
		))
	defer span.End()

	msg, err := e.produceMessage(ctx, def, schemas, store, runID)

	duration := time.Since(started)
	if err != nil {
		event := e.logger.Debug()
		if def.Optional {
			event = e.logger.Warn()
		}
		event.Str("run_id", runID).
			Str("artifact", id).
			Err(err).
			Msg("artifact production failed")

		completions <- completion{id: id, msg: ErrorMessage(uuid.NewString(), schemas.Output, ExecutionContext{
			DurationSeconds: duration.Seconds(),
			Origin:          origin,
			Alias:           alias,
			Error:           err.Error(),
		})}
		return
	}

	annotated := msg.WithExecution(ExecutionContext{
		Status:          ExecutionStatusSuccess,
		DurationSeconds: duration.Seconds(),
		Origin:          origin,
		Alias:           alias,
	})

	if err := store.Save(ctx, runID, id, annotated); err != nil {
		completions <- completion{id: id, msg: ErrorMessage(uuid.NewString(), schemas.Output, ExecutionContext{
			DurationSeconds: time.Since(started).Seconds(),
			Origin:          origin,
			Alias:           alias,
			Error:           fmt.Sprintf("store artifact: %v", err),
		})}
		return
	}

	e.logger.Debug().
		Str("run_id", runID).
		Str("artifact", id).
		Float64("duration_seconds", duration.Seconds()).
		Msg("artifact produced")

	completions <- completion{id: id, msg: annotated}
}

// produceMessage invokes the connector or processor for one artifact.
func (e *Executor) produceMessage(ctx context.Context, def runbook.ArtifactDefinition, schemas ArtifactSchemas, store ArtifactStore, runID string) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewProcessingError(fmt.Sprintf("component panicked: %v", r), nil)
		}
	}()

	if def.Source != nil {
		factory, ok := e.registry.ConnectorFactory(def.Source.Type)
		if !ok {
			return Message{}, NewConnectorConfigError(
				fmt.Sprintf("unknown connector type %q", def.Source.Type), nil)
		}
		connector, err := factory.Create(def.Source.Properties)
		if err != nil {
			return Message{}, err
		}
		return connector.Extract(ctx, schemas.Output)
	}

	inputs := make([]Message, 0, len(def.Inputs))
	for _, pred := range def.Inputs {
		in, err := store.Get(ctx, runID, pred)
		if err != nil {
			return Message{}, NewProcessingError(
				fmt.Sprintf("load input %q", pred), err)
		}
		inputs = append(inputs, in)
	}

	if def.Process == nil {
		if len(inputs) != 1 {
			return Message{}, NewProcessingError(
				fmt.Sprintf("passthrough with %d inputs is not implemented", len(inputs)), nil)
		}
		return inputs[0], nil
	}

	factory, ok := e.registry.ProcessorFactory(def.Process.Type)
	if !ok {
		return Message{}, NewProcessingError(
			fmt.Sprintf("unknown processor type %q", def.Process.Type), nil)
	}
	processor, err := factory.Create(def.Process.Properties)
	if err != nil {
		return Message{}, err
	}
	return processor.Process(ctx, inputs, schemas.Output)
}

// publishCompletion forwards a completion to the event sink, if any.
func (e *Executor) publishCompletion(ctx context.Context, runID string, c completion) {
	if e.publisher == nil {
		return
	}
	event := ArtifactEvent{
		RunID:      runID,
		ArtifactID: c.id,
	}
	if c.msg.Execution != nil {
		event.Origin = c.msg.Execution.Origin
		event.Status = c.msg.Execution.Status
		event.Duration = time.Duration(c.msg.Execution.DurationSeconds * float64(time.Second))
		event.Error = c.msg.Execution.Error
	}
	e.publisher.Publish(ctx, event)
}

// artifactOrigin derives the origin annotation from the artifact ID. IDs of
// the form child:<runbookName>:<localID> originate from a child runbook;
// everything else is the parent.
func artifactOrigin(id string) string {
	if rest, ok := strings.CutPrefix(id, "child:"); ok {
		if name, _, found := strings.Cut(rest, ":"); found && name != "" {
			return "child:" + name
		}
	}
	return "parent"
}
