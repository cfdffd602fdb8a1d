package automation

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLogsCSV(t *testing.T) {
	created := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	logs := []Log{
		{
			ID: "l1", ExportID: "e1", ActionType: ActionGitHubIssue, Status: StatusSuccess, CreatedAt: created,
			RuleName: strPtr("Hot leads"), RuleTriggerTags: []string{"hot", "vip"},
		},
		{
			ID: "l2", ExportID: "e2", ActionType: ActionEscalateReview, Status: StatusError, CreatedAt: created,
			ErrorMessage: strPtr(`failed, "quoted"`),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLogsCSV(&buf, logs))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"l1", "Hot leads", "github_issue", "e1", "success", "", "hot; vip", "2025-04-02T10:00:00Z"}, records[1])
	assert.Equal(t, "Unknown", records[2][1])
	assert.Equal(t, `failed, "quoted"`, records[2][5])
	assert.Equal(t, "", records[2][6])
}

func TestWriteLogsCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLogsCSV(&buf, nil))
	assert.Equal(t, "ID,Rule Name,Action Type,Export ID,Status,Error Message,Trigger Tags,Created At\n", buf.String())
}
