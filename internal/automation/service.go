package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sdrops/internal/auth"
	"sdrops/internal/constants"
	"sdrops/internal/logger"
	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/metrics"
)

const (
	msgNoNewTags     = "No new tags added"
	msgNoMatchedRule = "No matching automation rules"
)

type Service interface {
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error)
	UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error)
	BulkToggle(ctx context.Context, req BulkToggleRequest) (*BulkToggleResponse, error)
	BulkDeleteRules(ctx context.Context, req IDsRequest) (*DeletedCountResponse, error)
	DeleteRule(ctx context.Context, id string) (*DeletedResponse, error)

	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error)

	ListLogs(ctx context.Context, filter LogFilter) (*LogListResponse, error)
	GetLog(ctx context.Context, id string) (*LogDetail, error)
	ExportLogs(ctx context.Context, filter LogFilter) ([]Log, error)
	BulkDeleteLogs(ctx context.Context, req IDsRequest) (*DeletedCountResponse, error)
	ClearLogs(ctx context.Context, filter ClearFilter) (*DeletedCountResponse, error)
	Analytics(ctx context.Context, filter AnalyticsFilter) (*Analytics, error)
}

type service struct {
	rules     RuleRepository
	logs      LogRepository
	matcher   *Matcher
	validator *Validator
	runtime   Runtime
	logger    logger.Logger

	cache            AnalyticsCache
	analyticsMaxRows int
}

type ServiceOption func(*service)

func WithAnalyticsCache(cache AnalyticsCache) ServiceOption {
	return func(s *service) {
		s.cache = cache
	}
}

func WithAnalyticsMaxRows(n int) ServiceOption {
	return func(s *service) {
		if n > 0 {
			s.analyticsMaxRows = n
		}
	}
}

func NewService(rules RuleRepository, logs LogRepository, matcher *Matcher, validator *Validator, runtime Runtime, log logger.Logger, opts ...ServiceOption) Service {
	s := &service{
		rules:            rules,
		logs:             logs,
		matcher:          matcher,
		validator:        validator,
		runtime:          runtime,
		logger:           log,
		analyticsMaxRows: 50000,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func identity(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return auth.Identity{}, pkgerrors.ErrUnauthorized
	}
	return id, nil
}

func compactIDs(ids []string) []string {
	return NormalizeTags(ids)
}

func (s *service) ListRules(ctx context.Context) ([]Rule, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.ListRules(ctx, id.OrganizationID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return rules, nil
}

func (s *service) GetRule(ctx context.Context, ruleID string) (*Rule, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.rules.GetRule(ctx, id.OrganizationID, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return r, nil
}

func (s *service) CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	r := &Rule{
		OrganizationID: id.OrganizationID,
		Name:           req.Name,
		Description:    nonEmpty(req.Description),
		TriggerTags:    req.TriggerTags,
		TriggerMode:    TriggerMode(strings.TrimSpace(req.TriggerMode)),
		Condition:      req.Condition,
		ActionType:     ActionType(strings.TrimSpace(req.ActionType)),
		ActionConfig:   req.ActionConfig,
		Enabled:        true,
	}
	if req.Enabled != nil {
		r.Enabled = *req.Enabled
	}
	if id.UserID != "" {
		createdBy := id.UserID
		r.CreatedBy = &createdBy
	}

	if err := s.validator.ValidateRule(r); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	if err := s.rules.CreateRule(ctx, r); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.logger.InfowCtx(ctx, "Automation rule created",
		"rule_id", r.ID,
		"action_type", r.ActionType,
		"trigger_mode", r.TriggerMode,
	)
	return r, nil
}

func (s *service) UpdateRule(ctx context.Context, ruleID string, req UpdateRuleRequest) (*Rule, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, pkgerrors.ErrValidation.WithMessage("No fields to update")
	}

	existing, err := s.rules.GetRule(ctx, id.OrganizationID, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	merged := *existing
	if req.Name != nil {
		merged.Name = *req.Name
	}
	if req.Description != nil {
		merged.Description = nonEmpty(req.Description)
	}
	if req.TriggerTags != nil {
		merged.TriggerTags = *req.TriggerTags
	}
	if req.TriggerMode != nil {
		merged.TriggerMode = TriggerMode(strings.TrimSpace(*req.TriggerMode))
	}
	if req.Condition != nil {
		merged.Condition = *req.Condition
	}
	if req.ActionType != nil {
		merged.ActionType = ActionType(strings.TrimSpace(*req.ActionType))
	}
	if req.hasActionConfig() {
		merged.ActionConfig = req.ActionConfig
	}
	if req.Enabled != nil {
		merged.Enabled = *req.Enabled
	}

	if err := s.validator.ValidateRule(&merged); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	if err := s.rules.UpdateRule(ctx, &merged); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.logger.InfowCtx(ctx, "Automation rule updated", "rule_id", merged.ID)
	return &merged, nil
}

func (s *service) BulkToggle(ctx context.Context, req BulkToggleRequest) (*BulkToggleResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	ruleIDs := compactIDs(req.IDs)
	if len(ruleIDs) == 0 {
		return nil, pkgerrors.ErrValidation.WithMessage("ids must be a non-empty array")
	}
	if req.Enabled == nil {
		return nil, pkgerrors.ErrValidation.WithMessage("enabled must be a boolean")
	}

	results, err := s.rules.BulkToggle(ctx, id.OrganizationID, ruleIDs, *req.Enabled)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return &BulkToggleResponse{Updated: len(results), Results: results}, nil
}

func (s *service) BulkDeleteRules(ctx context.Context, req IDsRequest) (*DeletedCountResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	ruleIDs := compactIDs(req.IDs)
	if len(ruleIDs) == 0 {
		return nil, pkgerrors.ErrValidation.WithMessage("ids must be a non-empty array")
	}

	deleted, err := s.rules.DeleteRules(ctx, id.OrganizationID, ruleIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.logger.InfowCtx(ctx, "Automation rules deleted", "requested", len(ruleIDs), "deleted", deleted)
	return &DeletedCountResponse{Deleted: deleted}, nil
}

func (s *service) DeleteRule(ctx context.Context, ruleID string) (*DeletedResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	deleted, err := s.rules.DeleteRules(ctx, id.OrganizationID, []string{ruleID})
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if deleted == 0 {
		return nil, pkgerrors.ErrNotFound.WithMessage("Rule not found")
	}

	s.logger.InfowCtx(ctx, "Automation rule deleted", "rule_id", ruleID)
	return &DeletedResponse{Deleted: true}, nil
}

// Trigger matches a tag change against the organization's enabled rules and
// submits one dispatch task per match.
func (s *service) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	event := TagEvent{
		ExportID:     strings.TrimSpace(req.ExportID),
		Tags:         NormalizeTags(req.Tags),
		PreviousTags: NormalizeTags(req.PreviousTags),
	}
	if event.ExportID == "" {
		return nil, pkgerrors.ErrValidation.WithMessage("export_id is required")
	}

	if len(event.Added()) == 0 {
		metrics.IncTriggerEvent("no_new_tags")
		return &TriggerResponse{Triggered: 0, Rules: []MatchedRule{}, Message: msgNoNewTags}, nil
	}

	rules, err := s.rules.ListEnabledRules(ctx, id.OrganizationID)
	if err != nil {
		metrics.IncTriggerEvent("error")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	matched := s.matcher.MatchRules(ctx, rules, event)
	if len(matched) == 0 {
		metrics.IncTriggerEvent("no_match")
		return &TriggerResponse{Triggered: 0, Rules: []MatchedRule{}, Message: msgNoMatchedRule}, nil
	}

	now := time.Now().UTC()
	resp := &TriggerResponse{Triggered: len(matched), Rules: make([]MatchedRule, 0, len(matched))}
	for _, r := range matched {
		task := DispatchTask{
			ID:             uuid.NewString(),
			OrganizationID: id.OrganizationID,
			TriggeredBy:    id.UserID,
			Rule:           r,
			Event:          event,
			SubmittedAt:    now,
		}
		if err := s.runtime.Submit(ctx, task); err != nil {
			s.recordSubmitFailure(ctx, task, err)
		}
		resp.Rules = append(resp.Rules, MatchedRule{RuleID: r.ID, RuleName: r.Name, ActionType: r.ActionType})
	}

	metrics.IncTriggerEvent("matched")
	s.logger.InfowCtx(ctx, "Automation rules triggered",
		"export_id", event.ExportID,
		"added_tags", event.Added(),
		"matched", len(matched),
	)
	return resp, nil
}

func (s *service) recordSubmitFailure(ctx context.Context, task DispatchTask, submitErr error) {
	s.logger.ErrorwCtx(ctx, "Failed to submit dispatch task",
		"task_id", task.ID,
		"rule_id", task.Rule.ID,
		"error", submitErr,
	)

	msg := fmt.Sprintf("failed to enqueue dispatch: %v", submitErr)
	ruleID := task.Rule.ID
	entry := &Log{
		ID:             task.ID,
		OrganizationID: task.OrganizationID,
		RuleID:         &ruleID,
		ExportID:       task.Event.ExportID,
		ActionType:     task.Rule.ActionType,
		Status:         StatusError,
		ErrorMessage:   &msg,
		CreatedAt:      task.SubmittedAt,
	}
	if err := s.logs.InsertTerminal(ctx, entry); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to record dispatch submit failure",
			"task_id", task.ID,
			"error", err,
		)
		return
	}
	metrics.IncDispatch(string(task.Rule.ActionType), "submit_failed")
}

func (s *service) ListLogs(ctx context.Context, filter LogFilter) (*LogListResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	filter = NormalizeLogFilter(filter)
	logs, total, err := s.logs.ListLogs(ctx, id.OrganizationID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return &LogListResponse{Logs: logs, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *service) GetLog(ctx context.Context, logID string) (*LogDetail, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	detail, err := s.logs.GetLog(ctx, id.OrganizationID, logID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return detail, nil
}

func (s *service) ExportLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	filter = NormalizeLogFilter(filter)
	logs, err := s.logs.ExportLogs(ctx, id.OrganizationID, filter, constants.MaxCSVExportRows)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return logs, nil
}

func (s *service) BulkDeleteLogs(ctx context.Context, req IDsRequest) (*DeletedCountResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	logIDs := compactIDs(req.IDs)
	if len(logIDs) == 0 {
		return nil, pkgerrors.ErrValidation.WithMessage("ids must be a non-empty array")
	}

	deleted, err := s.logs.BulkDelete(ctx, id.OrganizationID, logIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return &DeletedCountResponse{Deleted: deleted}, nil
}

func (s *service) ClearLogs(ctx context.Context, filter ClearFilter) (*DeletedCountResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	if filter.Status != "" && !LogStatus(filter.Status).Valid() {
		return nil, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("invalid status %q", filter.Status))
	}

	deleted, err := s.logs.Clear(ctx, id.OrganizationID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.logger.InfowCtx(ctx, "Automation logs cleared",
		"rule_id", filter.RuleID,
		"status", filter.Status,
		"older_than_days", filter.OlderThanDays,
		"deleted", deleted,
	)
	return &DeletedCountResponse{Deleted: deleted}, nil
}

func (s *service) Analytics(ctx context.Context, filter AnalyticsFilter) (*Analytics, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := buildLogConditions(id.OrganizationID, analyticsLogFilter(filter)); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	if s.cache != nil {
		if snapshot, ok := s.cache.Get(ctx, id.OrganizationID, filter); ok {
			return snapshot, nil
		}
	}

	rows, err := s.logs.AnalyticsRows(ctx, id.OrganizationID, filter, s.analyticsMaxRows)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if len(rows) == s.analyticsMaxRows {
		s.logger.WarnwCtx(ctx, "Analytics row cap reached, snapshot is partial", "max_rows", s.analyticsMaxRows)
	}

	snapshot := ComputeAnalytics(rows)
	if s.cache != nil {
		s.cache.Set(ctx, id.OrganizationID, filter, snapshot)
	}
	return snapshot, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
