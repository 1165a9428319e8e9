package services

import (
	"fmt"
	"strings"
)

// Prompt builders for the three model calls the pipeline makes. Kept as
// plain functions so tests can assert on the exact text handed to the
// engine.

// AnalysisPrompt asks for the full per-entry analysis in one shot. Tags
// ride along in the same reply to keep the number of model calls down.
func AnalysisPrompt(entryText string) string {
	var b strings.Builder
	b.WriteString("Analyze the following diary entry. If the diary entry is too short to analyze, return NULL. ")
	b.WriteString("Otherwise return a single JSON object with these fields:\n")
	b.WriteString("- mood, moodConfidence, summary, reflectionQuestions, writingStyle, emotionDistribution, stressLevel, tone, selfHelp, tags\n")
	b.WriteString("moodConfidence is a number between 0 and 1. stressLevel is a number between 0 and 10. ")
	b.WriteString("emotionDistribution is an object mapping emotion names to fractions. ")
	b.WriteString("tags is an array of at most 3 short topic tags.\n")
	b.WriteString("Return only the JSON object, no prose.\n")
	fmt.Fprintf(&b, "Entry:\n%q\n", entryText)
	return b.String()
}

// TagsPrompt asks for search tags only, used to translate a free-text
// question into tag candidates.
func TagsPrompt(entryText string) string {
	var b strings.Builder
	b.WriteString("Analyze the following text and return a JSON object with a single field:\n")
	b.WriteString("- tags: an array of at most 3 short topic tags appropriate for it\n")
	b.WriteString("Return only the JSON object, no prose.\n")
	fmt.Fprintf(&b, "Entry:\n%q\n", entryText)
	return b.String()
}

// SignaturePrompt asks for the slow-moving profile signature derived
// from one entry.
func SignaturePrompt(entryText string) string {
	var b strings.Builder
	b.WriteString("Analyze the following diary entry and return a JSON object with:\n")
	b.WriteString("- visualMoodColour, moodSensitivityLevel, thinkingStyle, learningStyle, writingStyle, emotionalStrength, emotionalWeakness, emotionalSignature\n")
	b.WriteString("visualMoodColour is a hex colour. moodSensitivityLevel is a number between 0 and 10. ")
	b.WriteString("Return only the JSON object, no prose.\n")
	fmt.Fprintf(&b, "Entry:\n%q\n", entryText)
	return b.String()
}
