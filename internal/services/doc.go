// Package services holds the cross-cutting error taxonomy and context
// helpers shared by the external collaborator clients under services/...
//
// Every collaborator failure is wrapped with one of the sentinel errors so
// the orchestrator can decide between remote fallback and terminal failure
// without inspecting error strings.
package services
