// Package transcript records and retrieves the model calls made while
// generating exercises.
//
// Every agent call (drafter, guardian, critic) is captured as a Turn
// with its prompt, response, token counts, and timing, grouped into one
// Transcript per thread. Transcripts are stored as JSON files, gzipped
// above 100KB.
//
// Core types:
//   - Manager: Interface for transcript operations
//   - FileStore: File-based Manager implementation
//   - Transcript: Complete record of one thread's agent calls
//   - Turn: One agent's model call
//
// Supporting tools:
//   - Viewer: Terminal display and markdown/JSON export
//   - Searcher: Content search and aggregate statistics
package transcript
