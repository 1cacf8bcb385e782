// Package artifact stores and manages the documents produced while
// generating an exercise: per-revision draft snapshots, review payloads,
// and the final rendered markdown.
//
// Artifacts live under the thread directory:
//
//	<baseDir>/threads/<threadID>/artifacts/
//
// Large compressible artifacts are stored gzipped; Load handles the
// compression transparently.
//
// The LifecycleManager applies retention policy over thread directories:
// old completed threads are archived as tar.gz under
// <baseDir>/archive/<YYYY-MM>/ and eventually deleted. Threads that are
// running, suspended for human review, or failed (when KeepFailed is set)
// are never touched.
package artifact
