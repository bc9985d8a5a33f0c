package util

import (
	"path"
	"strings"
	"time"
)

// BuildObjectKey constructs a normalized remote key for one pushed artifact.
func BuildObjectKey(prefix, project, fileName string, when time.Time, extension string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	parts = append(parts, project, sanitize(fileName))
	suffix := when.UTC().Format("20060102T150405.000000000Z")
	if extension != "" {
		suffix = suffix + "." + extension
	}
	parts = append(parts, suffix)
	return path.Join(parts...)
}

// BuildPrefix builds the prefix for listing remote copies of a project.
func BuildPrefix(prefix, project, fileName string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if project != "" {
		parts = append(parts, project)
	}
	if fileName != "" {
		parts = append(parts, sanitize(fileName))
	}
	return path.Join(parts...)
}

// sanitize keeps dotfiles from becoming hidden path segments.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	if strings.HasPrefix(name, ".") {
		name = "_" + name[1:]
	}
	return name
}
