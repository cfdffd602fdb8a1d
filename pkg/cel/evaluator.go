package cel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Vars are the values a rule condition can reference.
type Vars struct {
	ExportID     string
	Tags         []string
	PreviousTags []string
	AddedTags    []string
	RemovedTags  []string
}

func (v Vars) activation() map[string]interface{} {
	return map[string]interface{}{
		"export_id":     v.ExportID,
		"tags":          nonNil(v.Tags),
		"previous_tags": nonNil(v.PreviousTags),
		"added_tags":    nonNil(v.AddedTags),
		"removed_tags":  nonNil(v.RemovedTags),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Evaluator compiles and runs rule conditions. Compiled programs are cached by
// expression text.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewEvaluator() (*Evaluator, error) {
	listOfString := cel.ListType(cel.StringType)
	env, err := cel.NewEnv(
		cel.Variable("export_id", cel.StringType),
		cel.Variable("tags", listOfString),
		cel.Variable("previous_tags", listOfString),
		cel.Variable("added_tags", listOfString),
		cel.Variable("removed_tags", listOfString),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidateCondition checks that expression compiles and yields a bool.
func (e *Evaluator) ValidateCondition(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("condition must return bool, got %v", ast.OutputType())
	}

	return nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	if err := e.ValidateCondition(expression); err != nil {
		return nil, err
	}
	prg, err := e.CompileExpression(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expression] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *Evaluator) EvaluateCondition(ctx context.Context, expression string, vars Vars) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	result, _, err := program.ContextEval(ctx, vars.activation())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}
