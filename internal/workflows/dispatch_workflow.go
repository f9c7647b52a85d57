package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ledgerline/advisor-plane/internal/workers"
)

type DispatchInput struct {
	DispatchID string
	ClientID   string
	Query      string
	Workers    []string
	// TaskIDs maps worker kind to the pending task row created at accept
	// time, so the caller already holds every ID it was promised.
	TaskIDs map[string]string
}

type DispatchResult struct {
	Status    string
	Succeeded []string
	Failed    []string
}

// DispatchWorkflow fans the request out to one activity per selected
// worker, joins on all of them, and finalizes the composite regardless of
// individual failures. The dispatch itself fails only when every worker
// failed.
func DispatchWorkflow(ctx workflow.Context, input DispatchInput) (DispatchResult, error) {
	logger := workflow.GetLogger(ctx)

	beginCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var begin BeginOutput
	if err := workflow.ExecuteActivity(beginCtx, "BeginDispatch", BeginInput{
		DispatchID: input.DispatchID,
		ClientID:   input.ClientID,
		Query:      input.Query,
		Workers:    input.Workers,
		TaskIDs:    input.TaskIDs,
	}).Get(beginCtx, &begin); err != nil {
		logger.Error("begin activity failed", "error", err)
		return DispatchResult{Status: "failed"}, err
	}

	type pending struct {
		worker string
		future workflow.Future
	}
	futures := make([]pending, 0, len(input.Workers))
	for _, worker := range input.Workers {
		kind, err := workers.ParseKind(worker)
		if err != nil {
			logger.Error("unknown worker requested", "worker", worker)
			continue
		}
		workerCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: workers.Timeout(kind) + 5*time.Second,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})
		futures = append(futures, pending{
			worker: worker,
			future: workflow.ExecuteActivity(workerCtx, "RunWorker", RunWorkerInput{
				DispatchID: input.DispatchID,
				ClientID:   input.ClientID,
				Query:      input.Query,
				Worker:     worker,
				TaskID:     input.TaskIDs[worker],
				Bundle:     begin.Bundle,
			}),
		})
	}

	outputs := map[string]workers.Output{}
	failures := map[string]string{}
	for _, p := range futures {
		var output workers.Output
		if err := p.future.Get(ctx, &output); err != nil {
			logger.Error("worker activity failed", "worker", p.worker, "error", err)
			failures[p.worker] = err.Error()
			continue
		}
		outputs[p.worker] = output
	}

	finalizeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	result := DispatchResult{}
	if err := workflow.ExecuteActivity(finalizeCtx, "FinalizeDispatch", FinalizeInput{
		DispatchID: input.DispatchID,
		ClientID:   input.ClientID,
		Query:      input.Query,
		Requested:  input.Workers,
		TaskIDs:    input.TaskIDs,
		Outputs:    outputs,
		Failures:   failures,
	}).Get(finalizeCtx, &result); err != nil {
		logger.Error("finalize activity failed", "error", err)
		return DispatchResult{Status: "failed"}, err
	}
	return result, nil
}
