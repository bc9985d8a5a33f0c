package storage

import "time"

const ManifestSuffix = ".manifest.json"

// Manifest describes one pushed artifact. Fingerprint is the md5 of the
// artifact text as it sat on disk, checked again on pull.
type Manifest struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Project     string    `json:"project"`
	FileName    string    `json:"file_name"`
	Fingerprint string    `json:"fingerprint"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	ToolVersion string    `json:"tool_version"`
}

func ManifestKey(objectKey string) string {
	return objectKey + ManifestSuffix
}
