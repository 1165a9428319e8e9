package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/analysis"
	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/repos"
	"github.com/inkwelldiary/inkwell/internal/types"
)

// NoMemoryFound is returned by SearchThroughMemories when no entry
// matches the question's tags.
const NoMemoryFound = "No relevant memory found."

// Generator is the one capability the diary pipeline needs from the
// inference layer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EnrichQueue hands an entry off for background profile enrichment.
type EnrichQueue interface {
	Enqueue(entryID int64, text string) bool
}

type DiaryService interface {
	CreateEntry(ctx context.Context, text string) (int64, error)
	Entries(ctx context.Context) ([]types.DiaryWithTags, error)
	EntryWithTags(ctx context.Context, id int64) (*types.DiaryWithTags, error)
	EntryWithAnalysis(ctx context.Context, id int64) (*types.DiaryWithAnalysis, error)
	SoftDelete(ctx context.Context, id int64) error
	SearchByMood(ctx context.Context, mood string) ([]types.DiaryAnalysis, error)
	SearchThroughMemories(ctx context.Context, question string) (string, error)
	TagCloud(ctx context.Context) ([]types.TagCount, error)
	ClearAll(ctx context.Context) error

	Watch(ctx context.Context) (<-chan []types.DiaryWithTags, func())
	Loading() bool
	Events() (<-chan Event, func())

	LoadMood(ctx context.Context, entryID int64)
	LoadMoodConfidence(ctx context.Context, entryID int64)
	LoadSummary(ctx context.Context, entryID int64)
	LoadReflectionQuestions(ctx context.Context, entryID int64)
	LoadWritingStyle(ctx context.Context, entryID int64)
	LoadEmotionDistribution(ctx context.Context, entryID int64)
	LoadStressLevel(ctx context.Context, entryID int64)
	LoadTone(ctx context.Context, entryID int64)
	LoadSelfHelp(ctx context.Context, entryID int64)

	Mood(entryID int64) *string
	MoodConfidence(entryID int64) *float64
	Summary(entryID int64) *string
	ReflectionQuestions(entryID int64) *string
	WritingStyle(entryID int64) *string
	EmotionDistribution(entryID int64) *string
	StressLevel(entryID int64) *int
	Tone(entryID int64) *string
	SelfHelp(entryID int64) *string
}

type diaryService struct {
	log      *logger.Logger
	db       *gorm.DB
	llm      Generator
	parser   *analysis.Parser
	entries  repos.DiaryEntryRepo
	tags     repos.TagRepo
	analyses repos.AnalysisRepo
	feed     *repos.ChangeFeed
	events   *EventHub
	enrich   EnrichQueue
	tracer   trace.Tracer

	loading atomic.Bool

	// Per-entry caches backing the per-field accessors. A present key
	// with a nil value means "looked up, analysis has no value".
	fieldMu      sync.RWMutex
	stringFields map[string]map[int64]*string
	confidences  map[int64]*float64
	stressLevels map[int64]*int
}

func NewDiaryService(
	baseLog *logger.Logger,
	db *gorm.DB,
	llm Generator,
	parser *analysis.Parser,
	entries repos.DiaryEntryRepo,
	tags repos.TagRepo,
	analyses repos.AnalysisRepo,
	feed *repos.ChangeFeed,
	events *EventHub,
	enrich EnrichQueue,
) DiaryService {
	return &diaryService{
		log:          baseLog.With("service", "DiaryService"),
		db:           db,
		llm:          llm,
		parser:       parser,
		entries:      entries,
		tags:         tags,
		analyses:     analyses,
		feed:         feed,
		events:       events,
		enrich:       enrich,
		tracer:       otel.Tracer("inkwell/diary"),
		stringFields: make(map[string]map[int64]*string),
		confidences:  make(map[int64]*float64),
		stressLevels: make(map[int64]*int),
	}
}

// Rotating pastel palette for entry cards; deterministic per day.
var entryPalette = []string{
	"#FDE2E4", "#E2ECE9", "#BEE1E6", "#FFF1E6", "#EAE4E9", "#DFE7FD", "#CDDAFD",
}

func pickEntryColor(t time.Time) string {
	return entryPalette[t.YearDay()%len(entryPalette)]
}

// CreateEntry runs the full ingestion pipeline for one entry. The entry
// itself is persisted first and survives every downstream failure:
// analysis problems degrade the entry, they never lose it.
func (s *diaryService) CreateEntry(ctx context.Context, text string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CreateEntry")
	defer span.End()

	s.loading.Store(true)
	defer s.loading.Store(false)

	now := time.Now()
	entry := &types.DiaryEntry{
		DateMillis: now.UnixMilli(),
		Text:       text,
		EntryColor: pickEntryColor(now),
	}
	id, err := s.entries.Insert(ctx, nil, entry)
	if err != nil {
		s.events.Emit(ShowError{Message: "Could not save your entry."})
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	span.SetAttributes(attribute.Int64("entry.id", id))
	s.log.Info("Entry created", "entry_id", id, "entry_text", text)

	reply, err := s.llm.Generate(ctx, AnalysisPrompt(text))
	if err != nil {
		s.log.Warn("Analysis generation failed", "entry_id", id, "error", err)
		s.events.Emit(ShowError{Message: "Analysis failed, but your entry was saved."})
		return id, nil
	}

	result := s.parser.ParseAnalysis(reply)
	if result == nil {
		// Short entries legitimately come back as NULL; nothing to
		// attach, but the signature round runs off the original text and
		// does not depend on the analysis parse.
		s.log.Info("No analysis produced for entry", "entry_id", id)
		if !s.enrich.Enqueue(id, text) {
			s.log.Warn("Enrichment queue full, skipping entry", "entry_id", id)
		}
		return id, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := analysisRecord(id, result.Analysis)
		if err := s.analyses.Insert(ctx, tx, record); err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		rows := make([]*types.Tag, 0, len(result.Tags))
		for _, name := range result.Tags {
			rows = append(rows, &types.Tag{EntryID: id, Name: name})
		}
		if err := s.tags.InsertMany(ctx, tx, rows); err != nil {
			return fmt.Errorf("insert tags: %w", err)
		}
		return nil
	})
	if err != nil {
		s.events.Emit(ShowError{Message: "Could not save the analysis for your entry."})
		return id, fmt.Errorf("persist analysis for entry %d: %w", id, err)
	}
	s.feed.Publish(repos.TableAnalysis)
	s.feed.Publish(repos.TableTags)
	s.log.Info("Analysis persisted", "entry_id", id, "tag_count", len(result.Tags))

	if !s.enrich.Enqueue(id, text) {
		s.log.Warn("Enrichment queue full, skipping entry", "entry_id", id)
	}
	return id, nil
}

func analysisRecord(entryID int64, a analysis.Analysis) *types.DiaryAnalysis {
	record := &types.DiaryAnalysis{
		EntryID:             entryID,
		Mood:                a.Mood,
		MoodConfidence:      a.MoodConfidence,
		Summary:             a.Summary,
		ReflectionQuestions: a.ReflectionQuestions,
		WritingStyle:        a.WritingStyle,
		StressLevel:         a.StressLevel,
		Tone:                a.Tone,
		SelfHelp:            a.SelfHelp,
	}
	if a.EmotionDistribution != "" {
		record.EmotionDistribution = datatypes.JSON([]byte(a.EmotionDistribution))
	}
	return record
}

func (s *diaryService) Entries(ctx context.Context) ([]types.DiaryWithTags, error) {
	return s.entries.ListActiveWithTags(ctx, nil)
}

func (s *diaryService) EntryWithTags(ctx context.Context, id int64) (*types.DiaryWithTags, error) {
	entry, err := s.entries.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	tags, err := s.tags.ListForEntry(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &types.DiaryWithTags{Entry: *entry, Tags: tags}, nil
}

func (s *diaryService) EntryWithAnalysis(ctx context.Context, id int64) (*types.DiaryWithAnalysis, error) {
	entry, err := s.entries.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	record, err := s.analyses.GetForEntry(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &types.DiaryWithAnalysis{Entry: *entry, Analysis: record}, nil
}

func (s *diaryService) SoftDelete(ctx context.Context, id int64) error {
	return s.entries.SoftDelete(ctx, nil, id)
}

func (s *diaryService) SearchByMood(ctx context.Context, mood string) ([]types.DiaryAnalysis, error) {
	return s.analyses.SearchByMood(ctx, nil, mood)
}

func (s *diaryService) TagCloud(ctx context.Context) ([]types.TagCount, error) {
	return s.tags.NameCounts(ctx, nil)
}

// ClearAll wipes entries, tags and analysis rows in one transaction.
// Development reset only; the profile row survives.
func (s *diaryService) ClearAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tags.ClearAll(ctx, tx); err != nil {
			return err
		}
		if err := s.analyses.ClearAll(ctx, tx); err != nil {
			return err
		}
		return s.entries.ClearAll(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	s.feed.Publish(repos.TableTags)
	s.feed.Publish(repos.TableAnalysis)
	s.feed.Publish(repos.TableEntries)
	return nil
}

// SearchThroughMemories answers a free-text question by asking the model
// for tags, matching them against stored entries, and returning the most
// recently created match's text.
func (s *diaryService) SearchThroughMemories(ctx context.Context, question string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "SearchThroughMemories")
	defer span.End()

	reply, err := s.llm.Generate(ctx, TagsPrompt(question))
	if err != nil {
		return "", fmt.Errorf("generate search tags: %w", err)
	}
	tags := s.parser.ParseTags(reply)
	if len(tags) > 3 {
		tags = tags[:3]
	}
	if len(tags) == 0 {
		return NoMemoryFound, nil
	}
	s.log.Debug("Searching memories", "tags", fmt.Sprintf("%v", tags))

	var (
		mu      sync.Mutex
		matches []types.DiaryEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, tag := range tags {
		g.Go(func() error {
			found, err := s.entries.SearchByTag(gctx, nil, tag)
			if err != nil {
				return err
			}
			mu.Lock()
			matches = append(matches, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("search by tag: %w", err)
	}

	var best *types.DiaryEntry
	for i := range matches {
		if best == nil || matches[i].CreatedAt.After(best.CreatedAt) {
			best = &matches[i]
		}
	}
	if best == nil {
		return NoMemoryFound, nil
	}
	return best.Text, nil
}

// Watch emits a fresh entries-with-tags snapshot immediately and again
// on every committed change to the entries or tags tables. The returned
// cancel func stops the watcher.
func (s *diaryService) Watch(ctx context.Context) (<-chan []types.DiaryWithTags, func()) {
	feedCh, cancelFeed := s.feed.Subscribe(repos.TableEntries, repos.TableTags)
	out := make(chan []types.DiaryWithTags, 1)

	go func() {
		defer close(out)
		emit := func() {
			rows, err := s.entries.ListActiveWithTags(ctx, nil)
			if err != nil {
				s.log.Warn("Snapshot query failed", "error", err)
				return
			}
			// A slow consumer gets the newest snapshot, not a backlog.
			select {
			case out <- rows:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- rows:
				default:
				}
			}
		}
		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-feedCh:
				if !ok {
					return
				}
				emit()
			}
		}
	}()
	return out, cancelFeed
}

func (s *diaryService) Loading() bool {
	return s.loading.Load()
}

func (s *diaryService) Events() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// loadStringField fetches one analysis column in the background and
// caches it under the entry id. Failures emit an event and leave the
// cache untouched.
func (s *diaryService) loadStringField(
	ctx context.Context,
	entryID int64,
	field string,
	fetch func(context.Context, *gorm.DB, int64) (*string, error),
) {
	go func() {
		val, err := fetch(ctx, nil, entryID)
		if err != nil {
			s.log.Warn("Field load failed", "entry_id", entryID, "field", field, "error", err)
			s.events.Emit(ShowError{Message: "Could not load entry details."})
			return
		}
		s.fieldMu.Lock()
		slot, ok := s.stringFields[field]
		if !ok {
			slot = make(map[int64]*string)
			s.stringFields[field] = slot
		}
		slot[entryID] = val
		s.fieldMu.Unlock()
	}()
}

func (s *diaryService) stringField(field string, entryID int64) *string {
	s.fieldMu.RLock()
	defer s.fieldMu.RUnlock()
	return s.stringFields[field][entryID]
}

func (s *diaryService) LoadMood(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "mood", s.analyses.Mood)
}

func (s *diaryService) LoadSummary(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "summary", s.analyses.Summary)
}

func (s *diaryService) LoadReflectionQuestions(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "reflection_questions", s.analyses.ReflectionQuestions)
}

func (s *diaryService) LoadWritingStyle(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "writing_style", s.analyses.WritingStyle)
}

func (s *diaryService) LoadEmotionDistribution(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "emotion_distribution", s.analyses.EmotionDistribution)
}

func (s *diaryService) LoadTone(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "tone", s.analyses.Tone)
}

func (s *diaryService) LoadSelfHelp(ctx context.Context, entryID int64) {
	s.loadStringField(ctx, entryID, "selfhelp", s.analyses.SelfHelp)
}

func (s *diaryService) LoadMoodConfidence(ctx context.Context, entryID int64) {
	go func() {
		val, err := s.analyses.MoodConfidence(ctx, nil, entryID)
		if err != nil {
			s.log.Warn("Field load failed", "entry_id", entryID, "field", "mood_confidence", "error", err)
			s.events.Emit(ShowError{Message: "Could not load entry details."})
			return
		}
		s.fieldMu.Lock()
		s.confidences[entryID] = val
		s.fieldMu.Unlock()
	}()
}

func (s *diaryService) LoadStressLevel(ctx context.Context, entryID int64) {
	go func() {
		val, err := s.analyses.StressLevel(ctx, nil, entryID)
		if err != nil {
			s.log.Warn("Field load failed", "entry_id", entryID, "field", "stress_level", "error", err)
			s.events.Emit(ShowError{Message: "Could not load entry details."})
			return
		}
		s.fieldMu.Lock()
		s.stressLevels[entryID] = val
		s.fieldMu.Unlock()
	}()
}

func (s *diaryService) Mood(entryID int64) *string {
	return s.stringField("mood", entryID)
}

func (s *diaryService) Summary(entryID int64) *string {
	return s.stringField("summary", entryID)
}

func (s *diaryService) ReflectionQuestions(entryID int64) *string {
	return s.stringField("reflection_questions", entryID)
}

func (s *diaryService) WritingStyle(entryID int64) *string {
	return s.stringField("writing_style", entryID)
}

func (s *diaryService) EmotionDistribution(entryID int64) *string {
	return s.stringField("emotion_distribution", entryID)
}

func (s *diaryService) Tone(entryID int64) *string {
	return s.stringField("tone", entryID)
}

func (s *diaryService) SelfHelp(entryID int64) *string {
	return s.stringField("selfhelp", entryID)
}

func (s *diaryService) MoodConfidence(entryID int64) *float64 {
	s.fieldMu.RLock()
	defer s.fieldMu.RUnlock()
	return s.confidences[entryID]
}

func (s *diaryService) StressLevel(entryID int64) *int {
	s.fieldMu.RLock()
	defer s.fieldMu.RUnlock()
	return s.stressLevels[entryID]
}
