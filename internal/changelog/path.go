//go:build windows
// +build windows

package changelog

import "strings"

// stripRemotePrefix removes a sync job's remote prefix from an absolute
// remote path, yielding the path relative to the sync root that every
// placeholder engine call expects.
func stripRemotePrefix(remotePath, prefix string) string {
	remotePath = strings.ReplaceAll(remotePath, "\\", "/")
	prefix = strings.ReplaceAll(prefix, "\\", "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return strings.TrimPrefix(remotePath, "/")
	}
	rel := strings.TrimPrefix(remotePath, "/"+prefix)
	rel = strings.TrimPrefix(rel, prefix)
	return strings.TrimPrefix(rel, "/")
}
