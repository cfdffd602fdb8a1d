package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sdrops/internal/constants"
	"sdrops/internal/logger"
	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/logging"
	"sdrops/pkg/metrics"
)

// Executor performs one kind of action. The returned value is stored as the
// log result.
type Executor interface {
	Execute(ctx context.Context, task DispatchTask, cfg ActionConfig) (interface{}, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task DispatchTask, cfg ActionConfig) (interface{}, error)

func (f ExecutorFunc) Execute(ctx context.Context, task DispatchTask, cfg ActionConfig) (interface{}, error) {
	return f(ctx, task, cfg)
}

// Dispatcher is the step handler the runtimes call. It returns an error only
// when the execution log could not be written; action failures are recorded
// on the log row.
type Dispatcher struct {
	logs      LogRepository
	executors map[ActionType]Executor
	timeout   time.Duration
	logger    logger.Logger
}

func NewDispatcher(logs LogRepository, timeout time.Duration, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		logs:      logs,
		executors: make(map[ActionType]Executor),
		timeout:   timeout,
		logger:    log,
	}
}

func (d *Dispatcher) Register(actionType ActionType, executor Executor) {
	d.executors[actionType] = executor
}

func (d *Dispatcher) Dispatch(ctx context.Context, task DispatchTask) error {
	ctx = logging.WithOrganizationID(ctx, task.OrganizationID)
	ctx = logging.WithRuleID(ctx, task.Rule.ID)

	ruleID := task.Rule.ID
	entry := &Log{
		ID:             task.ID,
		OrganizationID: task.OrganizationID,
		RuleID:         &ruleID,
		ExportID:       task.Event.ExportID,
		ActionType:     task.Rule.ActionType,
	}

	status, err := d.logs.CreatePending(ctx, entry)
	if errors.Is(err, ErrRuleDeleted) {
		d.logger.InfowCtx(ctx, "Rule deleted before dispatch, skipping",
			"task_id", task.ID,
			"rule_id", task.Rule.ID,
		)
		metrics.IncDispatch(string(task.Rule.ActionType), "skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record dispatch start: %w", err)
	}
	if status.Terminal() {
		d.logger.DebugwCtx(ctx, "Dispatch already resolved, skipping",
			"task_id", task.ID,
			"status", status,
		)
		return nil
	}

	start := time.Now()
	result, execErr := d.execute(ctx, task)
	actionType := string(task.Rule.ActionType)
	metrics.ObserveDispatchDuration(actionType, time.Since(start))

	// The outcome is written even when ctx was cancelled during the action,
	// otherwise the row would stay pending.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.OutcomeWriteTimeout)
	defer cancel()

	var updated bool
	if execErr != nil {
		msg := execErr.Error()
		d.logger.WarnwCtx(ctx, "Action failed",
			"task_id", task.ID,
			"action_type", actionType,
			"export_id", task.Event.ExportID,
			"error", execErr,
		)
		updated, err = d.logs.Resolve(writeCtx, task.OrganizationID, task.ID, StatusError, nil, &msg)
	} else {
		var raw []byte
		if result != nil {
			raw, err = json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to encode action result: %w", err)
			}
		}
		updated, err = d.logs.Resolve(writeCtx, task.OrganizationID, task.ID, StatusSuccess, raw, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to record dispatch outcome: %w", err)
	}

	outcome := string(StatusSuccess)
	if execErr != nil {
		outcome = string(StatusError)
	}
	metrics.IncDispatch(actionType, outcome)

	if !updated {
		d.logger.DebugwCtx(ctx, "Dispatch resolved concurrently", "task_id", task.ID)
		return nil
	}

	d.logger.InfowCtx(ctx, "Dispatch completed",
		"task_id", task.ID,
		"action_type", actionType,
		"export_id", task.Event.ExportID,
		"status", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, task DispatchTask) (result interface{}, err error) {
	executor, ok := d.executors[task.Rule.ActionType]
	if !ok {
		return nil, fmt.Errorf("unsupported action type %q", task.Rule.ActionType)
	}

	cfg, err := ParseActionConfig(task.Rule.ActionType, task.Rule.ActionConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid action config: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorwCtx(ctx, "Action panicked",
				"task_id", task.ID,
				"error", pkgerrors.RecoverPanic(r, task.ID),
			)
			result = nil
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	return executor.Execute(ctx, task, cfg)
}
