package action

import (
	"encoding/json"

	"sdrops/internal/automation"
)

func task(actionType automation.ActionType, cfg string) automation.DispatchTask {
	return automation.DispatchTask{
		ID:             "task-1",
		OrganizationID: "org-1",
		TriggeredBy:    "user-1",
		Rule: automation.Rule{
			ID:             "rule-1",
			OrganizationID: "org-1",
			Name:           "Hot leads",
			TriggerTags:    []string{"hot"},
			TriggerMode:    automation.TriggerModeAny,
			ActionType:     actionType,
			ActionConfig:   json.RawMessage(cfg),
			Enabled:        true,
		},
		Event: automation.TagEvent{
			ExportID:     "exp-9",
			Tags:         []string{"hot", "vip"},
			PreviousTags: []string{"vip"},
		},
	}
}

func parse(actionType automation.ActionType, raw string) automation.ActionConfig {
	cfg, err := automation.ParseActionConfig(actionType, json.RawMessage(raw))
	if err != nil {
		panic(err)
	}
	return cfg
}
