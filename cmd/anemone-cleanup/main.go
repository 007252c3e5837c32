//go:build windows

// anemone-cleanup is a standalone admin tool for diagnosing and repairing a
// sync root that cfapi left in a bad state: a stuck registration, orphaned
// placeholders after a crashed uninstall, or a directory too busy for a
// normal unregister to clear. It drives the same cloudfiles package the
// daemon uses rather than talking to cldapi.dll directly.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_sync_windows/internal/cloudfiles"
)

func main() {
	doDelete, doDryRun, doHelp, path := parseArgs(os.Args[1:])

	if doHelp || path == "" {
		printUsage()
		if doHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if !isAdmin() {
		fmt.Println("warning: not running elevated; some repair steps may fail with access denied")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Printf("error: resolve path: %v\n", err)
		os.Exit(1)
	}

	status := diagnose(absPath)
	printStatus(status)

	if doDelete {
		if err := repairSyncRoot(absPath, doDryRun); err != nil {
			fmt.Printf("repair failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func parseArgs(args []string) (doDelete, doDryRun, doHelp bool, path string) {
	for _, a := range args {
		switch a {
		case "--delete":
			doDelete = true
		case "--dry-run":
			doDryRun = true
		case "--help", "-h":
			doHelp = true
		default:
			path = a
		}
	}
	return
}

func printUsage() {
	fmt.Println(`Usage: anemone-cleanup [--delete] [--dry-run] [--help] <path>

  --delete    remove orphaned placeholders and unregister the sync root
  --dry-run   report what --delete would do without changing anything
  --help      show this message`)
}

type syncRootStatus struct {
	path         string
	registered   bool
	placeholders int
	normalFiles  int
}

// diagnose reports the registration and placeholder-population state of a
// candidate sync root path, without mutating anything.
func diagnose(path string) syncRootStatus {
	status := syncRootStatus{path: path}

	syncRoot, err := cloudfiles.NewSyncRootManager(cloudfiles.SyncRootConfig{
		Path:         path,
		ProviderName: "AnemoneSync",
		ProviderID:   cloudfiles.DefaultProviderID(),
	})
	if err == nil {
		status.registered = syncRoot.IsRegistered()
	}

	status.placeholders, status.normalFiles = scanFiles(path)
	return status
}

func printStatus(status syncRootStatus) {
	fmt.Printf("path:         %s\n", status.path)
	fmt.Printf("registered:   %v\n", status.registered)
	fmt.Printf("placeholders: %d\n", status.placeholders)
	fmt.Printf("normal files: %d\n", status.normalFiles)
}

// scanFiles walks path and counts reparse-point placeholders vs ordinary
// files, without hydrating anything (os.Stat never triggers a fetch).
func scanFiles(rootPath string) (placeholders, normal int) {
	filepath.Walk(rootPath, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if isPlaceholder(info) {
			placeholders++
		} else {
			normal++
		}
		return nil
	})
	return
}

func isPlaceholder(info os.FileInfo) bool {
	return info.Mode()&os.ModeIrregular != 0 || info.Mode()&os.ModeSymlink != 0
}

// repairSyncRoot deletes orphaned placeholders under path and, unless
// dryRun, unregisters the sync root through RootLifecycle's busy-directory
// tombstone fallback rather than a bare os.RemoveAll.
func repairSyncRoot(path string, dryRun bool) error {
	deleted, preserved, failed := deletePlaceholders(path, dryRun)
	fmt.Printf("placeholders deleted: %d, preserved: %d, errors: %d\n", deleted, preserved, failed)

	empty := cleanEmptyDirs(path, dryRun)
	fmt.Printf("empty directories removed: %d\n", empty)

	if dryRun {
		fmt.Println("dry run: skipping unregister")
		return nil
	}

	return unregisterSyncRoot(path)
}

// unregisterSyncRoot drives the same bounded-retry-then-tombstone path the
// daemon uses for a normal shutdown, so a busy directory here doesn't need
// its own one-off retry loop.
func unregisterSyncRoot(path string) error {
	logger, _ := zap.NewProduction()
	if logger == nil {
		logger = zap.NewNop()
	}
	syncRoot, err := cloudfiles.NewSyncRootManager(cloudfiles.SyncRootConfig{
		Path:         path,
		ProviderName: "AnemoneSync",
		ProviderID:   cloudfiles.DefaultProviderID(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("open sync root manager: %w", err)
	}

	lifecycle := cloudfiles.NewRootLifecycle(syncRoot, nil, logger)
	return lifecycle.Unregister(context.Background())
}

// deletePlaceholders removes every placeholder file under rootPath that is
// not pinned, leaving pinned (explicitly kept-local) files untouched.
func deletePlaceholders(rootPath string, dryRun bool) (deleted, preserved, errs int) {
	filepath.Walk(rootPath, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() || !isPlaceholder(info) {
			return nil
		}
		if attrs, ok := info.Sys().(*syscall.Win32FileAttributeData); ok && attrs.FileAttributes&cloudfiles.FILE_ATTRIBUTE_PINNED != 0 {
			preserved++
			return nil
		}
		if dryRun {
			deleted++
			return nil
		}
		if rmErr := os.Remove(p); rmErr != nil {
			errs++
			return nil
		}
		deleted++
		return nil
	})
	return
}

// cleanEmptyDirs removes directories left empty after deletePlaceholders,
// deepest first so a parent only empties once its children are gone.
func cleanEmptyDirs(rootPath string, dryRun bool) int {
	var dirs []string
	filepath.Walk(rootPath, func(p string, info os.FileInfo, err error) error {
		if err == nil && info != nil && info.IsDir() && p != rootPath {
			dirs = append(dirs, p)
		}
		return nil
	})

	removed := 0
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) != 0 {
			continue
		}
		if dryRun {
			removed++
			continue
		}
		if os.Remove(dirs[i]) == nil {
			removed++
		}
	}
	return removed
}

func isAdmin() bool {
	f, err := os.Open(`\\.\PHYSICALDRIVE0`)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
