// Package v1alpha1 holds the wire types of the cropdesk HTTP API.
package v1alpha1

import "time"

// Artifact is a downloadable file produced by a job.
type Artifact struct {
	Name string `json:"name"`
	Url  string `json:"url"`
}

type HistoryRecord struct {
	UserId    string     `json:"userId"`
	ToolName  string     `json:"toolName"`
	JobId     string     `json:"jobId"`
	Timestamp time.Time  `json:"timestamp"`
	Outputs   []Artifact `json:"outputs"`
}

type HistoryList []HistoryRecord

// JobResponse is returned by a completed upload.
type JobResponse struct {
	Success bool        `json:"success"`
	Tool    string      `json:"tool"`
	JobId   string      `json:"jobId"`
	Outputs []Artifact  `json:"outputs"`
	History HistoryList `json:"history"`
}

type HistoryResponse struct {
	Success bool        `json:"success"`
	History HistoryList `json:"history"`
}

type Error struct {
	Error     string  `json:"error"`
	RequestId *string `json:"requestId,omitempty"`
}

type Tool struct {
	Key        string   `json:"key"`
	Folder     string   `json:"folder"`
	Executable string   `json:"executable"`
	Extensions []string `json:"extensions"`
	Sentinel   string   `json:"sentinel"`
	Deadline   string   `json:"deadline"`
}

type ToolList []Tool

// StoredArtifact is an artifact found on disk by the admin listing.
type StoredArtifact struct {
	Tool       string    `json:"tool"`
	JobId      string    `json:"jobId"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Url        string    `json:"url"`
	Sheets     []string  `json:"sheets,omitempty"`
}

type StoredArtifactList []StoredArtifact

type Status struct {
	Status string `json:"status"`
}

// UploadForm carries the non file fields of an upload.
type UploadForm struct {
	Tool     string  `validate:"required,tool"`
	UserId   *string `validate:"omitempty,max=256,user_id"`
	Settings *string
}

// ArtifactPath addresses one artifact of one job.
type ArtifactPath struct {
	Tool     string `validate:"required,tool"`
	JobId    string `validate:"required,job_id"`
	Filename string `validate:"required,max=255,path_element"`
}
