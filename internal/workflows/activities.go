package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerline/advisor-plane/internal/artifact"
	"github.com/ledgerline/advisor-plane/internal/bundle"
	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/llm"
	"github.com/ledgerline/advisor-plane/internal/store"
	"github.com/ledgerline/advisor-plane/internal/workers"
)

type BeginInput struct {
	DispatchID string
	ClientID   string
	Query      string
	Workers    []string
	// TaskIDs were minted by the accepting handler so the 202 response and
	// the eventual rows agree; the rows themselves are created here, after
	// the duplicate-start check has already passed.
	TaskIDs map[string]string
}

// BeginOutput carries the snapshot every worker of the dispatch shares.
type BeginOutput struct {
	Bundle *bundle.ContextBundle
}

type RunWorkerInput struct {
	DispatchID string
	ClientID   string
	Query      string
	Worker     string
	TaskID     string
	// Bundle is the snapshot built by BeginDispatch. Workers never rebuild
	// it, so state mutated mid-dispatch stays invisible to the fan-out.
	Bundle *bundle.ContextBundle
}

type FinalizeInput struct {
	DispatchID string
	ClientID   string
	Query      string
	Requested  []string
	TaskIDs    map[string]string
	Outputs    map[string]workers.Output
	Failures   map[string]string
}

// DispatchActivities holds the side-effecting half of the dispatch
// workflow. Task transitions go straight to the store; progress events go
// to the control plane over HTTP, which republishes them on its broker.
type DispatchActivities struct {
	store        store.Store
	adapters     map[workers.Kind]workers.Adapter
	controlPlane string
	httpClient   *http.Client
}

func NewDispatchActivities(st store.Store, llmConfig llm.Config, controlPlaneURL string) *DispatchActivities {
	var provider llm.Provider
	if llmConfig.Configured() {
		p, err := llm.NewProvider(llmConfig)
		if err != nil {
			log.Printf("workflows: llm provider unavailable, deterministic fallback: %v", err)
		} else {
			provider = p
		}
	}
	return &DispatchActivities{
		store:        st,
		adapters:     workers.NewAdapters(provider),
		controlPlane: strings.TrimRight(controlPlaneURL, "/"),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *DispatchActivities) BeginDispatch(ctx context.Context, input BeginInput) (BeginOutput, error) {
	if strings.TrimSpace(input.DispatchID) == "" {
		return BeginOutput{}, errors.New("dispatch_id required")
	}
	// The snapshot is assembled here, once, before any task row exists.
	// An unknown client fails the dispatch before it leaves any trace.
	b, err := bundle.Build(ctx, a.store, input.ClientID, input.Query)
	if err != nil {
		return BeginOutput{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, worker := range input.Workers {
		taskID := input.TaskIDs[worker]
		if taskID == "" {
			return BeginOutput{}, fmt.Errorf("missing task id for worker: %s", worker)
		}
		if err := a.store.CreateTask(ctx, store.Task{
			ID:          taskID,
			ClientID:    input.ClientID,
			DispatchID:  input.DispatchID,
			Worker:      worker,
			Status:      store.TaskPending,
			Input:       map[string]any{"query": input.Query},
			Disposition: store.DispositionNone,
			CreatedAt:   now,
		}); err != nil {
			return BeginOutput{}, err
		}
		a.postEvent(ctx, events.Event{
			Type:       events.TypeDispatchStarted,
			ClientID:   input.ClientID,
			DispatchID: input.DispatchID,
			TaskID:     taskID,
			Worker:     worker,
			Payload:    map[string]any{"query": input.Query},
		})
	}
	if err := a.store.AddChatMessage(ctx, store.ChatMessage{
		ID:        input.DispatchID + ":request",
		ClientID:  input.ClientID,
		Role:      "advisor",
		Content:   input.Query,
		CreatedAt: now,
	}); err != nil {
		return BeginOutput{}, err
	}
	return BeginOutput{Bundle: b}, nil
}

func (a *DispatchActivities) RunWorker(ctx context.Context, input RunWorkerInput) (workers.Output, error) {
	kind, err := workers.ParseKind(input.Worker)
	if err != nil {
		return workers.Output{}, err
	}
	adapter, ok := a.adapters[kind]
	if !ok {
		return workers.Output{}, fmt.Errorf("no adapter registered for worker: %s", kind)
	}

	if input.Bundle == nil {
		return workers.Output{}, errors.New("context bundle missing from worker input")
	}

	if _, err := a.store.TransitionTask(ctx, store.TaskTransition{
		ID:     input.TaskID,
		Status: store.TaskRunning,
	}); err != nil {
		return workers.Output{}, err
	}
	a.postEvent(ctx, events.Event{
		Type:       events.TypeWorkerProgress,
		ClientID:   input.ClientID,
		DispatchID: input.DispatchID,
		TaskID:     input.TaskID,
		Worker:     input.Worker,
		Payload:    map[string]any{"status": store.TaskRunning},
	})

	invokeCtx, cancel := context.WithTimeout(ctx, adapter.Timeout())
	defer cancel()
	output, err := adapter.Invoke(invokeCtx, input.Bundle)
	if err != nil {
		a.failTask(ctx, input, err)
		return workers.Output{}, err
	}

	outputMap, err := toMap(output)
	if err != nil {
		a.failTask(ctx, input, err)
		return workers.Output{}, err
	}
	if _, err := a.store.TransitionTask(ctx, store.TaskTransition{
		ID:          input.TaskID,
		Status:      store.TaskCompleted,
		Output:      outputMap,
		CompletedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return workers.Output{}, err
	}
	a.postEvent(ctx, events.Event{
		Type:       events.TypeWorkerCompleted,
		ClientID:   input.ClientID,
		DispatchID: input.DispatchID,
		TaskID:     input.TaskID,
		Worker:     input.Worker,
		Payload:    map[string]any{"status": store.TaskCompleted},
	})
	return output, nil
}

func (a *DispatchActivities) FinalizeDispatch(ctx context.Context, input FinalizeInput) (DispatchResult, error) {
	a.sweepUnfinished(ctx, &input)

	outputs := make(map[workers.Kind]workers.Output, len(input.Outputs))
	for name, output := range input.Outputs {
		outputs[workers.Kind(name)] = output
	}
	failures := make(map[workers.Kind]string, len(input.Failures))
	for name, reason := range input.Failures {
		failures[workers.Kind(name)] = reason
	}
	requested := make([]workers.Kind, 0, len(input.Requested))
	for _, name := range input.Requested {
		if kind, err := workers.ParseKind(name); err == nil {
			requested = append(requested, kind)
		}
	}

	composite := artifact.Assemble(input.DispatchID, input.ClientID, input.Query, requested, outputs, failures)

	if len(composite.Succeeded) == 0 {
		a.postEvent(ctx, events.Event{
			Type:       events.TypeError,
			ClientID:   input.ClientID,
			DispatchID: input.DispatchID,
			Payload:    map[string]any{"error": "all workers failed", "failures": input.Failures},
		})
		return DispatchResult{Status: "failed", Failed: composite.Failed},
			fmt.Errorf("dispatch %s: all workers failed", input.DispatchID)
	}

	encoded, err := json.Marshal(composite)
	if err != nil {
		return DispatchResult{}, err
	}
	if err := a.store.AddChatMessage(ctx, store.ChatMessage{
		ID:        input.DispatchID + ":composite",
		ClientID:  input.ClientID,
		Role:      "assistant",
		Content:   string(encoded),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return DispatchResult{}, err
	}

	compositeMap, err := toMap(composite)
	if err != nil {
		return DispatchResult{}, err
	}
	a.postEvent(ctx, events.Event{
		Type:       events.TypeCompositeReady,
		ClientID:   input.ClientID,
		DispatchID: input.DispatchID,
		Payload:    compositeMap,
	})

	status := "completed"
	if len(composite.Failed) > 0 {
		status = "partial"
	}
	return DispatchResult{Status: status, Succeeded: composite.Succeeded, Failed: composite.Failed}, nil
}

// sweepUnfinished forces every task row of the dispatch that never reached
// a terminal status to failed. Workers that timed out or crashed at the
// process level never ran their own failure transition; without the sweep
// their rows would sit pending or running forever. The transition is
// idempotent, so rows a worker already settled are left untouched.
func (a *DispatchActivities) sweepUnfinished(ctx context.Context, input *FinalizeInput) {
	for worker, taskID := range input.TaskIDs {
		if _, ok := input.Outputs[worker]; ok {
			continue
		}
		reason := input.Failures[worker]
		if reason == "" {
			reason = "worker did not reach a terminal state"
		}
		applied, err := a.store.TransitionTask(ctx, store.TaskTransition{
			ID:          taskID,
			Status:      store.TaskFailed,
			Failure:     reason,
			CompletedAt: time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			log.Printf("workflows: task=%s sweep transition error: %v", taskID, err)
			continue
		}
		if input.Failures == nil {
			input.Failures = map[string]string{}
		}
		input.Failures[worker] = reason
		if applied {
			a.postEvent(ctx, events.Event{
				Type:       events.TypeWorkerCompleted,
				ClientID:   input.ClientID,
				DispatchID: input.DispatchID,
				TaskID:     taskID,
				Worker:     worker,
				Payload:    map[string]any{"status": store.TaskFailed, "error": reason},
			})
		}
	}
}

func (a *DispatchActivities) failTask(ctx context.Context, input RunWorkerInput, cause error) {
	if _, err := a.store.TransitionTask(ctx, store.TaskTransition{
		ID:          input.TaskID,
		Status:      store.TaskFailed,
		Failure:     cause.Error(),
		CompletedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		log.Printf("workflows: task=%s failure transition error: %v", input.TaskID, err)
	}
	a.postEvent(ctx, events.Event{
		Type:       events.TypeWorkerCompleted,
		ClientID:   input.ClientID,
		DispatchID: input.DispatchID,
		TaskID:     input.TaskID,
		Worker:     input.Worker,
		Payload:    map[string]any{"status": store.TaskFailed, "error": cause.Error()},
	})
}

// postEvent pushes a progress event to the control plane's ingest route.
// Events are ephemeral, so delivery is best effort.
func (a *DispatchActivities) postEvent(ctx context.Context, event events.Event) {
	if a.controlPlane == "" {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.controlPlane+"/internal/events", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.Printf("workflows: event post failed type=%s: %v", event.Type, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("workflows: event post rejected type=%s status=%d", event.Type, resp.StatusCode)
	}
}

func toMap(value any) (map[string]any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}
