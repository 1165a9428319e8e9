package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/analysis"
	"github.com/inkwelldiary/inkwell/internal/db"
	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/repos"
	"github.com/inkwelldiary/inkwell/internal/types"
)

type scriptedGenerator struct {
	replies    []string
	err        error
	calls      int
	onGenerate func()
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.onGenerate != nil {
		g.onGenerate()
	}
	if g.err != nil {
		return "", g.err
	}
	idx := g.calls
	g.calls++
	if idx < len(g.replies) {
		return g.replies[idx], nil
	}
	return "NULL", nil
}

type stubQueue struct {
	jobs []int64
	full bool
}

func (q *stubQueue) Enqueue(entryID int64, text string) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, entryID)
	return true
}

type diaryFixture struct {
	db       *gorm.DB
	svc      DiaryService
	gen      *scriptedGenerator
	queue    *stubQueue
	events   *EventHub
	entries  repos.DiaryEntryRepo
	tags     repos.TagRepo
	analyses repos.AnalysisRepo
}

func newDiaryFixture(t *testing.T) *diaryFixture {
	t.Helper()

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	store, err := db.NewSQLiteService(log, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	feed := repos.NewChangeFeed(log)
	entries := repos.NewDiaryEntryRepo(store.DB(), log, feed)
	tags := repos.NewTagRepo(store.DB(), log, feed)
	analyses := repos.NewAnalysisRepo(store.DB(), log, feed)

	gen := &scriptedGenerator{}
	queue := &stubQueue{}
	events := NewEventHub()

	svc := NewDiaryService(
		log, store.DB(), gen, analysis.NewParser(log),
		entries, tags, analyses, feed, events, queue,
	)

	return &diaryFixture{
		db:       store.DB(),
		svc:      svc,
		gen:      gen,
		queue:    queue,
		events:   events,
		entries:  entries,
		tags:     tags,
		analyses: analyses,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCreateEntryPersistsAnalysisAndTags(t *testing.T) {
	f := newDiaryFixture(t)
	f.gen.replies = []string{"```json\n" +
		`{"mood":"content","moodConfidence":0.9,"summary":"productive day","stressLevel":"low","tags":["work","focus"]}` +
		"\n```"}

	ctx := context.Background()
	id, err := f.svc.CreateEntry(ctx, "Finished the big refactor today and felt great about it.")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive entry id, got %d", id)
	}

	record, err := f.analyses.GetForEntry(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetForEntry: %v", err)
	}
	if record == nil {
		t.Fatal("expected analysis row for entry")
	}
	if record.Mood != "content" {
		t.Fatalf("mood=%q, want content", record.Mood)
	}
	if record.StressLevel == nil || *record.StressLevel != 2 {
		t.Fatalf("stressLevel=%v, want 2", record.StressLevel)
	}

	tagRows, err := f.tags.ListForEntry(ctx, nil, id)
	if err != nil {
		t.Fatalf("ListForEntry: %v", err)
	}
	if len(tagRows) != 2 {
		t.Fatalf("got %d tags, want 2", len(tagRows))
	}

	if len(f.queue.jobs) != 1 || f.queue.jobs[0] != id {
		t.Fatalf("enrichment queue jobs=%v, want [%d]", f.queue.jobs, id)
	}
	if f.svc.Loading() {
		t.Fatal("loading flag still set after CreateEntry")
	}
}

func TestCreateEntryInsertsEntryExactlyOnce(t *testing.T) {
	f := newDiaryFixture(t)
	f.gen.replies = []string{`{"mood":"ok","tags":["one"]}`}

	ctx := context.Background()
	if _, err := f.svc.CreateEntry(ctx, "An ordinary day with nothing remarkable."); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	rows, err := f.entries.ListActiveWithTags(ctx, nil)
	if err != nil {
		t.Fatalf("ListActiveWithTags: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d entries, want exactly 1", len(rows))
	}
}

func TestCreateEntryAttachFailureRollsBackAtomically(t *testing.T) {
	f := newDiaryFixture(t)
	f.gen.replies = []string{`{"mood":"tense","summary":"a rough day","tags":["doom"]}`}

	// Sabotage the tag insert so the attach transaction fails after the
	// analysis insert succeeded inside it.
	if err := f.db.Exec(`DROP TABLE tags`).Error; err != nil {
		t.Fatalf("drop tags table: %v", err)
	}

	events, cancel := f.events.Subscribe()
	defer cancel()

	ctx := context.Background()
	id, err := f.svc.CreateEntry(ctx, "An entry whose analysis must not half-persist.")
	if err == nil {
		t.Fatal("CreateEntry should surface the persistence failure")
	}
	if id <= 0 {
		t.Fatalf("entry id=%d, the entry insert happened before the attach", id)
	}

	// Analysis and tags commit together or not at all: the analysis row
	// from the aborted transaction must not be visible.
	entry, getErr := f.entries.GetByID(ctx, nil, id)
	if getErr != nil || entry == nil {
		t.Fatalf("entry must survive the failed attach: entry=%v err=%v", entry, getErr)
	}
	record, getErr := f.analyses.GetForEntry(ctx, nil, id)
	if getErr != nil {
		t.Fatalf("GetForEntry: %v", getErr)
	}
	if record != nil {
		t.Fatal("analysis row visible after rolled-back attach transaction")
	}

	select {
	case ev := <-events:
		if _, ok := ev.(ShowError); !ok {
			t.Fatalf("expected ShowError event, got %T", ev)
		}
	default:
		t.Fatal("expected one ShowError event")
	}
	select {
	case ev := <-events:
		t.Fatalf("expected exactly one event, also got %T", ev)
	default:
	}

	if f.svc.Loading() {
		t.Fatal("loading flag still set after failed attach")
	}
}

func TestCreateEntryGenerationFailureKeepsEntry(t *testing.T) {
	f := newDiaryFixture(t)
	f.gen.err = errors.New("engine busy")

	events, cancel := f.events.Subscribe()
	defer cancel()

	ctx := context.Background()
	id, err := f.svc.CreateEntry(ctx, "This entry should survive the analysis failure.")
	if err != nil {
		t.Fatalf("CreateEntry should not fail when generation fails, got %v", err)
	}

	entry, err := f.entries.GetByID(ctx, nil, id)
	if err != nil || entry == nil {
		t.Fatalf("entry missing after generation failure: entry=%v err=%v", entry, err)
	}

	record, err := f.analyses.GetForEntry(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetForEntry: %v", err)
	}
	if record != nil {
		t.Fatal("no analysis row should exist after generation failure")
	}

	select {
	case ev := <-events:
		if _, ok := ev.(ShowError); !ok {
			t.Fatalf("expected ShowError event, got %T", ev)
		}
	default:
		t.Fatal("expected one ShowError event")
	}

	if len(f.queue.jobs) != 0 {
		t.Fatal("no enrichment should be queued when analysis failed")
	}
	if f.svc.Loading() {
		t.Fatal("loading flag still set after failure")
	}
}

func TestCreateEntryNullReplySkipsAnalysis(t *testing.T) {
	f := newDiaryFixture(t)
	f.gen.replies = []string{"NULL"}

	events, cancel := f.events.Subscribe()
	defer cancel()

	ctx := context.Background()
	id, err := f.svc.CreateEntry(ctx, "short")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	record, err := f.analyses.GetForEntry(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetForEntry: %v", err)
	}
	if record != nil {
		t.Fatal("NULL reply must not produce an analysis row")
	}

	// A short entry is not an error condition.
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %T for NULL reply", ev)
	default:
	}

	// Enrichment runs off the original text, independent of the analysis.
	if len(f.queue.jobs) != 1 || f.queue.jobs[0] != id {
		t.Fatalf("enrichment queue jobs=%v, want [%d]", f.queue.jobs, id)
	}
}

func TestCreateEntrySetsLoadingDuringGeneration(t *testing.T) {
	f := newDiaryFixture(t)
	loadingDuringGen := false
	f.gen.onGenerate = func() {
		loadingDuringGen = f.svc.Loading()
	}
	f.gen.replies = []string{"NULL"}

	if _, err := f.svc.CreateEntry(context.Background(), "checking the loading flag"); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if !loadingDuringGen {
		t.Fatal("loading flag was not set while generating")
	}
}

func seedEntry(t *testing.T, f *diaryFixture, text string, createdAt time.Time, tagNames ...string) int64 {
	t.Helper()
	ctx := context.Background()
	entry := &types.DiaryEntry{
		DateMillis: createdAt.UnixMilli(),
		Text:       text,
		CreatedAt:  createdAt,
	}
	id, err := f.entries.Insert(ctx, nil, entry)
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	for _, name := range tagNames {
		if err := f.tags.Insert(ctx, nil, &types.Tag{EntryID: id, Name: name}); err != nil {
			t.Fatalf("seed tag: %v", err)
		}
	}
	return id
}

func TestSearchThroughMemoriesReturnsMostRecentMatch(t *testing.T) {
	f := newDiaryFixture(t)

	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	seedEntry(t, f, "Old hiking trip in the rain.", older, "hiking")
	seedEntry(t, f, "New hiking trip under blue skies.", newer, "hiking")
	seedEntry(t, f, "Unrelated cooking experiment.", newer, "cooking")

	f.gen.replies = []string{`{"tags": ["hiking"]}`}

	answer, err := f.svc.SearchThroughMemories(context.Background(), "when did I last go hiking?")
	if err != nil {
		t.Fatalf("SearchThroughMemories: %v", err)
	}
	if answer != "New hiking trip under blue skies." {
		t.Fatalf("answer=%q, want the most recent hiking entry", answer)
	}
}

func TestSearchThroughMemoriesNoMatch(t *testing.T) {
	f := newDiaryFixture(t)
	f.gen.replies = []string{`{"tags": ["sailing"]}`}

	answer, err := f.svc.SearchThroughMemories(context.Background(), "have I ever been sailing?")
	if err != nil {
		t.Fatalf("SearchThroughMemories: %v", err)
	}
	if answer != NoMemoryFound {
		t.Fatalf("answer=%q, want %q", answer, NoMemoryFound)
	}
}

func TestSoftDeleteHidesEntry(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()

	id := seedEntry(t, f, "To be deleted.", time.Now(), "temp")
	if err := f.svc.SoftDelete(ctx, id); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	rows, err := f.svc.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	for _, row := range rows {
		if row.Entry.ID == id {
			t.Fatal("soft-deleted entry still listed")
		}
	}

	// The row itself survives; only listing hides it.
	entry, err := f.entries.GetByID(ctx, nil, id)
	if err != nil || entry == nil {
		t.Fatalf("soft-deleted entry should still exist: entry=%v err=%v", entry, err)
	}
	if !entry.IsDeleted {
		t.Fatal("is_deleted not set")
	}
}

func TestClearAllWipesStore(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()

	id := seedEntry(t, f, "Doomed entry.", time.Now(), "doom")
	if err := f.analyses.Insert(ctx, nil, &types.DiaryAnalysis{EntryID: id, Mood: "grim"}); err != nil {
		t.Fatalf("seed analysis: %v", err)
	}

	if err := f.svc.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	rows, err := f.svc.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("%d entries survived ClearAll", len(rows))
	}
	record, err := f.analyses.GetForEntry(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetForEntry: %v", err)
	}
	if record != nil {
		t.Fatal("analysis survived ClearAll")
	}
}

func TestWatchEmitsSnapshotsOnChange(t *testing.T) {
	f := newDiaryFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, stop := f.svc.Watch(ctx)
	defer stop()

	select {
	case snap := <-snapshots:
		if len(snap) != 0 {
			t.Fatalf("initial snapshot has %d entries, want 0", len(snap))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	seedEntry(t, f, "A fresh entry.", time.Now())

	waitFor(t, func() bool {
		select {
		case snap := <-snapshots:
			return len(snap) == 1
		default:
			return false
		}
	})
}

func TestPerFieldLoaders(t *testing.T) {
	f := newDiaryFixture(t)
	ctx := context.Background()

	id := seedEntry(t, f, "Field loader entry.", time.Now())
	stress := 6
	if err := f.analyses.Insert(ctx, nil, &types.DiaryAnalysis{
		EntryID:     id,
		Mood:        "hopeful",
		StressLevel: &stress,
	}); err != nil {
		t.Fatalf("seed analysis: %v", err)
	}

	f.svc.LoadMood(ctx, id)
	f.svc.LoadStressLevel(ctx, id)

	waitFor(t, func() bool {
		mood := f.svc.Mood(id)
		level := f.svc.StressLevel(id)
		return mood != nil && *mood == "hopeful" && level != nil && *level == 6
	})

	// Absent analysis yields nil without an error event.
	missing := seedEntry(t, f, "No analysis here.", time.Now())
	f.svc.LoadSummary(ctx, missing)
	time.Sleep(50 * time.Millisecond)
	if got := f.svc.Summary(missing); got != nil {
		t.Fatalf("summary for missing analysis = %v, want nil", got)
	}
}
