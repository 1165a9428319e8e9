// Package analysis converts raw model replies into typed records. The
// model output is unreliable: fenced, partially structured, with fields
// that drift between types and spellings. Every entry point absorbs that
// noise and returns nil instead of failing past the boundary.
package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/inkwelldiary/inkwell/internal/logger"
)

// Analysis mirrors the columns of a diary_analysis row. Numeric fields
// are pointers: the model omitting a value is not the same as zero.
type Analysis struct {
	Mood                string
	MoodConfidence      *float64
	Summary             string
	ReflectionQuestions string
	WritingStyle        string
	EmotionDistribution string
	StressLevel         *int
	Tone                string
	SelfHelp            string
}

// Result is the outcome of parsing a full analysis reply: the record
// plus the tag names, which are persisted to their own table.
type Result struct {
	Analysis Analysis
	Tags     []string
}

// SignaturePatch is a partial profile update. Only non-nil fields are
// merged into the stored profile; everything else stays untouched.
type SignaturePatch struct {
	VisualMoodColour     *string
	MoodSensitivityLevel *int
	ThinkingStyle        *string
	LearningStyle        *string
	WritingStyle         *string
	EmotionalStrength    *string
	EmotionalWeakness    *string
	EmotionalSignature   *string
}

// IsEmpty reports whether the patch carries no field at all.
func (p *SignaturePatch) IsEmpty() bool {
	return p.VisualMoodColour == nil &&
		p.MoodSensitivityLevel == nil &&
		p.ThinkingStyle == nil &&
		p.LearningStyle == nil &&
		p.WritingStyle == nil &&
		p.EmotionalStrength == nil &&
		p.EmotionalWeakness == nil &&
		p.EmotionalSignature == nil
}

type Parser struct {
	log *logger.Logger
}

func NewParser(baseLog *logger.Logger) *Parser {
	return &Parser{log: baseLog.With("service", "ResponseParser")}
}

// ParseAnalysis parses a full analysis reply. Returns nil when the reply
// holds no usable JSON object.
func (p *Parser) ParseAnalysis(raw string) *Result {
	obj, err := p.cleanObject(raw)
	if err != nil {
		p.log.Warn("Analysis reply not parseable", "raw", raw, "error", err)
		return nil
	}

	result := &Result{
		Analysis: Analysis{
			Mood:                optString(obj, "mood"),
			MoodConfidence:      optConfidence(obj, "moodConfidence"),
			Summary:             optString(obj, "summary"),
			ReflectionQuestions: optStringOrList(obj, "reflectionQuestions"),
			WritingStyle:        optString(obj, "writingStyle"),
			EmotionDistribution: optObjectString(obj, "emotionDistribution"),
			StressLevel:         optLevel(obj, "stressLevel"),
			Tone:                optString(obj, "tone"),
			SelfHelp:            optString(obj, "selfHelp", "selfhelp", "self-help"),
		},
		Tags: optTags(obj, "tags"),
	}
	return result
}

// ParseTags parses a tags-only reply into a plain list of names.
func (p *Parser) ParseTags(raw string) []string {
	obj, err := p.cleanObject(raw)
	if err != nil {
		p.log.Warn("Tags reply not parseable", "raw", raw, "error", err)
		return nil
	}
	return optTags(obj, "tags")
}

// ParseSignature parses a profile-signature reply into a partial patch.
func (p *Parser) ParseSignature(raw string) *SignaturePatch {
	obj, err := p.cleanObject(raw)
	if err != nil {
		p.log.Warn("Signature reply not parseable", "raw", raw, "error", err)
		return nil
	}

	return &SignaturePatch{
		VisualMoodColour:     optStringPtr(obj, "visualMoodColour", "visualMoodColor"),
		MoodSensitivityLevel: optLevel(obj, "moodSensitivityLevel"),
		ThinkingStyle:        optStringPtr(obj, "thinkingStyle"),
		LearningStyle:        optStringPtr(obj, "learningStyle"),
		WritingStyle:         optStringPtr(obj, "writingStyle"),
		EmotionalStrength:    optStringPtr(obj, "emotionalStrength"),
		EmotionalWeakness:    optStringPtr(obj, "emotionalWeakness"),
		EmotionalSignature:   optStringOrListPtr(obj, "emotionalSignature"),
	}
}

// cleanObject strips fences and invisible runes, recovers the outermost
// {...} boundary and decodes it into a generic object.
func (p *Parser) cleanObject(raw string) (map[string]interface{}, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty reply")
	}

	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object boundary")
	}
	s = s[start : end+1]

	// Some model outputs embed BOM/zero-width/non-breaking runes that
	// break the decoder.
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\uFEFF', '\u200B', '\u200C', '\u200D', '\u00A0':
			return -1
		}
		return r
	}, s)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return obj, nil
}

// optString reads the first present key as a string; blank and literal
// "null" count as absent.
func optString(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		return s
	}
	return ""
}

func optStringPtr(obj map[string]interface{}, keys ...string) *string {
	if s := optString(obj, keys...); s != "" {
		return &s
	}
	return nil
}

// optConfidence reads a 0..1 number; negative values are the model's way
// of saying "unset" and never reach storage.
func optConfidence(obj map[string]interface{}, key string) *float64 {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	f, ok := v.(float64)
	if !ok || f < 0 {
		return nil
	}
	return &f
}

var levelWords = map[string]int{
	"low":      2,
	"medium":   5,
	"moderate": 5,
	"high":     8,
}

// optLevel reads a 0..10 level that arrives either as a number, a
// numeric string, or a qualitative word.
func optLevel(obj map[string]interface{}, key string) *int {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case float64:
		n := int(t)
		if n < 0 {
			return nil
		}
		return &n
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "" {
			return nil
		}
		if n, ok := levelWords[s]; ok {
			return &n
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// optStringOrList tolerates the model emitting either a plain string or
// an array; arrays are flattened into one ", "-delimited string.
func optStringOrList(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				continue
			}
			return s
		case []interface{}:
			parts := make([]string, 0, len(t))
			for _, el := range t {
				if s := toText(el); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) == 0 {
				continue
			}
			return strings.Join(parts, ", ")
		}
	}
	return ""
}

func optStringOrListPtr(obj map[string]interface{}, keys ...string) *string {
	if s := optStringOrList(obj, keys...); s != "" {
		return &s
	}
	return nil
}

// optObjectString re-serializes a nested object (e.g. the emotion
// distribution map) into a compact JSON string for storage. A string
// value is accepted as-is.
func optObjectString(obj map[string]interface{}, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if len(t) == 0 {
			return ""
		}
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// optTags reads the tag list, order-preserved. A bare string is accepted
// as a comma-separated list.
func optTags(obj map[string]interface{}, key string) []string {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		tags := make([]string, 0, len(t))
		for _, el := range t {
			if s := toText(el); s != "" {
				tags = append(tags, s)
			}
		}
		if len(tags) == 0 {
			return nil
		}
		return tags
	case string:
		var tags []string
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

func toText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
