package mappers

import (
	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/internal/store/model"
	"github.com/cropdesk/cropdesk/internal/tools"
)

func ArtifactListToApi(artifacts []service.Artifact) []api.Artifact {
	list := make([]api.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		list = append(list, api.Artifact{Name: a.Name, Url: a.URL})
	}
	return list
}

func HistoryRecordToApi(r model.HistoryRecord) api.HistoryRecord {
	outputs := make([]api.Artifact, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		outputs = append(outputs, api.Artifact{Name: a.Name, Url: a.URL})
	}
	return api.HistoryRecord{
		UserId:    r.UserID,
		ToolName:  r.ToolName,
		JobId:     r.JobID,
		Timestamp: r.CreatedAt,
		Outputs:   outputs,
	}
}

func HistoryListToApi(records model.HistoryList) api.HistoryList {
	list := make(api.HistoryList, 0, len(records))
	for _, r := range records {
		list = append(list, HistoryRecordToApi(r))
	}
	return list
}

func JobResultToApi(result *service.JobResult) api.JobResponse {
	return api.JobResponse{
		Success: true,
		Tool:    result.Tool,
		JobId:   result.JobID,
		Outputs: ArtifactListToApi(result.Outputs),
		History: HistoryListToApi(result.History),
	}
}

func ToolToApi(t tools.Tool) api.Tool {
	return api.Tool{
		Key:        t.Key,
		Folder:     t.Folder,
		Executable: t.Executable,
		Extensions: t.OutputExtensions,
		Sentinel:   t.Sentinel,
		Deadline:   t.Deadline.String(),
	}
}

func ToolListToApi(list []tools.Tool) api.ToolList {
	out := make(api.ToolList, 0, len(list))
	for _, t := range list {
		out = append(out, ToolToApi(t))
	}
	return out
}

func StoredArtifactListToApi(list []service.StoredArtifact) api.StoredArtifactList {
	out := make(api.StoredArtifactList, 0, len(list))
	for _, a := range list {
		out = append(out, api.StoredArtifact{
			Tool:       a.Tool,
			JobId:      a.JobID,
			Name:       a.Name,
			Size:       a.Size,
			ModifiedAt: a.ModifiedAt,
			Url:        a.URL,
			Sheets:     a.Sheets,
		})
	}
	return out
}
