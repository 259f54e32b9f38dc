package apiserver_test

import "github.com/cropdesk/cropdesk/internal/store/model"

func historyRecord(userID, jobID string) model.HistoryRecord {
	return model.HistoryRecord{
		UserID:    userID,
		ToolName:  "flipkart",
		JobID:     jobID,
		Artifacts: []model.ArtifactSummary{{Name: "a.pdf", URL: "/api/v1/download/flipkart/" + jobID + "/a.pdf"}},
	}
}
