package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// ErrBusy means a dispatch is already in flight for the client. The
// workflow ID is derived from the client ID, so Temporal's duplicate-start
// rejection is the lock.
var ErrBusy = errors.New("dispatch already in flight for client")

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = "advisor-dispatches"
	}
	return &Service{client: client, taskQueue: taskQueue}
}

func (s *Service) StartDispatch(ctx context.Context, input DispatchInput) error {
	options := client.StartWorkflowOptions{
		ID:        workflowID(input.ClientID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, DispatchWorkflow, input)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return ErrBusy
		}
		return err
	}
	return nil
}

func (s *Service) CancelDispatch(ctx context.Context, clientID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(clientID), "")
}

func workflowID(clientID string) string {
	return fmt.Sprintf("dispatch:%s", clientID)
}
