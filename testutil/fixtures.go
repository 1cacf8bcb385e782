// Package testutil provides shared fixtures for exercising workflows in
// tests: canned stage outputs, scripted LLM clients, and a service
// harness backed by a throwaway store.
package testutil

import (
	"time"

	"github.com/randalmurphal/careflow"
)

// Canned stage outputs. DraftJSON parses into the exercise returned by
// DraftExercise; the pass variants score high enough to clear both
// review thresholds, the fail variants low enough to force a revision.
const (
	DraftJSON = `{"title":"Box Breathing","description":"A calming breathing exercise.","steps":["Inhale for 4 counts","Hold for 4 counts","Exhale for 4 counts"],"rationale":"Paced breathing activates the parasympathetic nervous system.","safetyNotes":"Stop if you feel dizzy."}`

	SafetyPassJSON = `{"safe":true,"score":9,"issues":[],"recommendations":[]}`
	SafetyFailJSON = `{"safe":false,"score":4,"issues":["Could trigger hyperventilation"],"recommendations":["Add pacing guidance"]}`

	ClinicalPassJSON = `{"empathyScore":9,"qualityScore":9,"feedback":"Warm and actionable."}`
	ClinicalFailJSON = `{"empathyScore":5,"qualityScore":6,"feedback":"Tone is clinical and cold."}`
)

// DraftExercise returns the exercise encoded in DraftJSON.
func DraftExercise() careflow.Exercise {
	return careflow.Exercise{
		Title:       "Box Breathing",
		Description: "A calming breathing exercise.",
		Steps: []string{
			"Inhale for 4 counts",
			"Hold for 4 counts",
			"Exhale for 4 counts",
		},
		Rationale:   "Paced breathing activates the parasympathetic nervous system.",
		SafetyNotes: "Stop if you feel dizzy.",
	}
}

// ParkedState returns a thread suspended at the human gate: drafted,
// both reviews passed, waiting on a reviewer decision.
func ParkedState(threadID, intent string) careflow.State {
	st := careflow.NewState(threadID, intent, careflow.ModeInteractive)
	draft := DraftExercise()
	st.CurrentDraft = &draft
	st.SafetyReview = &careflow.SafetyReview{Safe: true, Score: 9}
	st.ClinicalReview = &careflow.ClinicalReview{EmpathyScore: 9, QualityScore: 9, Feedback: "Warm and actionable."}
	st.Scratchpad = []careflow.Note{
		careflow.NewNote("drafter", "Created initial draft."),
		careflow.NewNote("supervisor", "Draft approved by Supervisor."),
	}
	st.Status = careflow.StatusPendingHuman
	st.UpdatedAt = time.Now().UTC()
	return st
}
