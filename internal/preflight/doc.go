// Package preflight runs the system checks behind 'docindex doctor' and the
// startup checks of 'docindex serve' and 'docindex worker'.
//
// The built-in checks cover:
//   - Free disk space under the data directory (minimum 100 MB)
//   - Write permission on the data directory
//   - The open file limit (minimum 1024; the index keeps many segments open)
//
// Callers add store checks of their own as Check funcs:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, dataDir, queueCheck)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
