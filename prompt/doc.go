// Package prompt provides prompt template loading for the workflow stages.
//
// Core types:
//   - Loader: loads prompt templates from disk or embedded defaults
//   - Builder: assembles user prompts section by section
//
// The embedded defaults carry the stage instructions (draft, draft-revise,
// safety-review, clinical-review); deployments override them by placing
// .txt files under .careflow/prompts/.
//
// Example usage:
//
//	loader := prompt.NewLoader(".")
//	system, err := loader.Load("safety-review")
package prompt
