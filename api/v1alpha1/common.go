package v1alpha1

import (
	"net/url"
	"path"
)

const (
	APIPrefix = "/api/v1"

	// UploadField is the multipart field carrying the documents.
	UploadField   = "files"
	UserIdField   = "userId"
	SettingsField = "settings"
)

// DownloadUrl is the download endpoint path of an artifact.
func DownloadUrl(tool, jobId, name string) string {
	return path.Join(APIPrefix, "download", tool, jobId) + "/" + url.PathEscape(name)
}

// UploadUrl is the job creation endpoint path of a tool.
func UploadUrl(tool string) string {
	return path.Join(APIPrefix, "tools", tool, "jobs")
}

func HistoryUrl(userId string) string {
	return path.Join(APIPrefix, "history") + "/" + url.PathEscape(userId)
}
