package services

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/analysis"
	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/repos"
	"github.com/inkwelldiary/inkwell/internal/types"
)

// ProfileService owns the singleton user profile: user-driven per-field
// edits plus the background signature enrichment fed by new entries.
type ProfileService interface {
	EnsureProfile(ctx context.Context) (*types.UserProfile, error)
	Profile(ctx context.Context) (*types.UserProfile, error)
	EnrichFromEntry(ctx context.Context, entryID int64, text string)

	UpdateName(ctx context.Context, name string) error
	UpdateAbout(ctx context.Context, about string) error
	UpdateVisualMoodColour(ctx context.Context, colour string) error
	UpdateMoodSensitivityLevel(ctx context.Context, level int) error
	UpdateThinkingStyle(ctx context.Context, style string) error
	UpdateLearningStyle(ctx context.Context, style string) error
	UpdateWritingStyle(ctx context.Context, style string) error
	UpdateEmotionalStrength(ctx context.Context, value string) error
	UpdateEmotionalWeakness(ctx context.Context, value string) error
	UpdateEmotionalSignature(ctx context.Context, value string) error
}

type profileService struct {
	log     *logger.Logger
	llm     Generator
	parser  *analysis.Parser
	profile repos.UserProfileRepo

	// Serializes signature merges so two enrichment rounds interleave at
	// field granularity, not byte granularity.
	mergeMu sync.Mutex
}

func NewProfileService(
	baseLog *logger.Logger,
	llm Generator,
	parser *analysis.Parser,
	profile repos.UserProfileRepo,
) ProfileService {
	return &profileService{
		log:     baseLog.With("service", "ProfileService"),
		llm:     llm,
		parser:  parser,
		profile: profile,
	}
}

func (s *profileService) EnsureProfile(ctx context.Context) (*types.UserProfile, error) {
	return s.profile.EnsureDefault(ctx, nil)
}

func (s *profileService) Profile(ctx context.Context) (*types.UserProfile, error) {
	return s.profile.Get(ctx, nil)
}

// EnrichFromEntry derives the slow-moving emotional signature from one
// entry and merges the fields the model produced into the profile.
// Best-effort: every failure is logged and swallowed, never retried.
func (s *profileService) EnrichFromEntry(ctx context.Context, entryID int64, text string) {
	reply, err := s.llm.Generate(ctx, SignaturePrompt(text))
	if err != nil {
		s.log.Warn("Signature generation failed", "entry_id", entryID, "error", err)
		return
	}

	patch := s.parser.ParseSignature(reply)
	if patch == nil || patch.IsEmpty() {
		s.log.Info("No signature produced for entry", "entry_id", entryID)
		return
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if err := s.applyPatch(ctx, patch); err != nil {
		s.log.Warn("Signature merge failed", "entry_id", entryID, "error", err)
		return
	}
	s.log.Info("Profile signature updated", "entry_id", entryID)
}

// applyPatch writes each present field as its own single-column update;
// absent fields never touch the stored row.
func (s *profileService) applyPatch(ctx context.Context, patch *analysis.SignaturePatch) error {
	type fieldWrite struct {
		column string
		value  interface{}
		set    bool
	}
	writes := []fieldWrite{
		{"visual_mood_colour", deref(patch.VisualMoodColour), patch.VisualMoodColour != nil},
		{"mood_sensitivity_level", derefInt(patch.MoodSensitivityLevel), patch.MoodSensitivityLevel != nil},
		{"thinking_style", deref(patch.ThinkingStyle), patch.ThinkingStyle != nil},
		{"learning_style", deref(patch.LearningStyle), patch.LearningStyle != nil},
		{"writing_style", deref(patch.WritingStyle), patch.WritingStyle != nil},
		{"emotional_strength", deref(patch.EmotionalStrength), patch.EmotionalStrength != nil},
		{"emotional_weakness", deref(patch.EmotionalWeakness), patch.EmotionalWeakness != nil},
		{"emotional_signature", deref(patch.EmotionalSignature), patch.EmotionalSignature != nil},
	}
	for _, w := range writes {
		if !w.set {
			continue
		}
		if err := s.profile.UpdateField(ctx, nil, w.column, w.value); err != nil {
			return fmt.Errorf("update %s: %w", w.column, err)
		}
	}
	return nil
}

func deref(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func derefInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func (s *profileService) updateField(ctx context.Context, tx *gorm.DB, column string, value interface{}) error {
	if err := s.profile.UpdateField(ctx, tx, column, value); err != nil {
		return fmt.Errorf("update profile %s: %w", column, err)
	}
	return nil
}

func (s *profileService) UpdateName(ctx context.Context, name string) error {
	return s.updateField(ctx, nil, "name", name)
}

func (s *profileService) UpdateAbout(ctx context.Context, about string) error {
	return s.updateField(ctx, nil, "about", about)
}

func (s *profileService) UpdateVisualMoodColour(ctx context.Context, colour string) error {
	return s.updateField(ctx, nil, "visual_mood_colour", colour)
}

func (s *profileService) UpdateMoodSensitivityLevel(ctx context.Context, level int) error {
	return s.updateField(ctx, nil, "mood_sensitivity_level", level)
}

func (s *profileService) UpdateThinkingStyle(ctx context.Context, style string) error {
	return s.updateField(ctx, nil, "thinking_style", style)
}

func (s *profileService) UpdateLearningStyle(ctx context.Context, style string) error {
	return s.updateField(ctx, nil, "learning_style", style)
}

func (s *profileService) UpdateWritingStyle(ctx context.Context, style string) error {
	return s.updateField(ctx, nil, "writing_style", style)
}

func (s *profileService) UpdateEmotionalStrength(ctx context.Context, value string) error {
	return s.updateField(ctx, nil, "emotional_strength", value)
}

func (s *profileService) UpdateEmotionalWeakness(ctx context.Context, value string) error {
	return s.updateField(ctx, nil, "emotional_weakness", value)
}

func (s *profileService) UpdateEmotionalSignature(ctx context.Context, value string) error {
	return s.updateField(ctx, nil, "emotional_signature", value)
}
