package automation

import (
	"encoding/csv"
	"io"
	"strings"
	"time"
)

var csvHeader = []string{"ID", "Rule Name", "Action Type", "Export ID", "Status", "Error Message", "Trigger Tags", "Created At"}

// WriteLogsCSV writes logs as CSV with a header row.
func WriteLogsCSV(w io.Writer, logs []Log) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, l := range logs {
		ruleName := "Unknown"
		if l.RuleName != nil && *l.RuleName != "" {
			ruleName = *l.RuleName
		}
		errorMessage := ""
		if l.ErrorMessage != nil {
			errorMessage = *l.ErrorMessage
		}

		record := []string{
			l.ID,
			ruleName,
			string(l.ActionType),
			l.ExportID,
			string(l.Status),
			errorMessage,
			strings.Join(l.RuleTriggerTags, "; "),
			l.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
