//go:build windows
// +build windows

package reconcile

import "testing"

func TestExclusionSetDefaults(t *testing.T) {
	set := newExclusionSet(nil)

	excluded := []string{
		"~$report.docx",
		"notes.tmp",
		"draft.temp",
		"file.swp",
		"backup~",
		"desktop.ini",
		"Thumbs.db",
		"$RECYCLE.BIN",
		"System Volume Information",
	}
	for _, name := range excluded {
		if !set.matches(name) {
			t.Errorf("expected %q to be excluded by default pattern set", name)
		}
	}

	kept := []string{"report.docx", "photo.jpg", "README.md", "~notes"}
	for _, name := range kept {
		if set.matches(name) {
			t.Errorf("expected %q to survive the default pattern set", name)
		}
	}
}

func TestExclusionSetFromGlobs(t *testing.T) {
	set, err := newExclusionSetFromGlobs([]string{"*.bak", "private"})
	if err != nil {
		t.Fatalf("newExclusionSetFromGlobs: %v", err)
	}

	if !set.matches("file.bak") {
		t.Error("expected file.bak to be excluded by job pattern")
	}
	if !set.matches("private") {
		t.Error("expected exact-name job pattern to match")
	}
	if !set.matches("desktop.ini") {
		t.Error("expected default patterns to remain active alongside job patterns")
	}
	if set.matches("file.txt") {
		t.Error("did not expect file.txt to be excluded")
	}
}
