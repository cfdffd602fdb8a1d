package automation

import "context"

// Runtime runs dispatch tasks asynchronously. Submit returns as soon as the
// task is accepted.
type Runtime interface {
	Submit(ctx context.Context, task DispatchTask) error
	Close() error
}

// StepHandler executes one task. A returned error asks the runtime to retry.
type StepHandler func(ctx context.Context, task DispatchTask) error
