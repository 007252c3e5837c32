//go:build windows
// +build windows

package changelog

import "testing"

func TestStripRemotePrefix(t *testing.T) {
	tests := []struct {
		remotePath, prefix, want string
	}{
		{"/teams/acme/docs/report.pdf", "teams/acme", "docs/report.pdf"},
		{"teams/acme/docs/report.pdf", "/teams/acme/", "docs/report.pdf"},
		{"/docs/report.pdf", "", "docs/report.pdf"},
		{"report.pdf", "", "report.pdf"},
		{"teams\\acme\\docs\\report.pdf", "teams/acme", "docs/report.pdf"},
	}
	for _, tt := range tests {
		if got := stripRemotePrefix(tt.remotePath, tt.prefix); got != tt.want {
			t.Errorf("stripRemotePrefix(%q, %q) = %q, want %q", tt.remotePath, tt.prefix, got, tt.want)
		}
	}
}
