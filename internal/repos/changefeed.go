package repos

import (
	"sync"

	"github.com/google/uuid"

	"github.com/inkwelldiary/inkwell/internal/logger"
)

// Table identifies which store table a change notification refers to.
type Table string

const (
	TableEntries  Table = "entries"
	TableTags     Table = "tags"
	TableAnalysis Table = "diary_analysis"
	TableProfile  Table = "user_profile"
)

type feedSub struct {
	ch     chan Table
	tables map[Table]bool
}

// ChangeFeed is the in-process "observe store, re-emit on change"
// primitive. Repos publish a table name after a committed write; watchers
// re-query and push a fresh snapshot. Each subscriber channel is buffered
// with one slot and publishes are dropped when it is full — watchers
// requery the whole table on wakeup, so a coalesced notification loses
// nothing.
type ChangeFeed struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*feedSub
	log  *logger.Logger
}

func NewChangeFeed(log *logger.Logger) *ChangeFeed {
	return &ChangeFeed{
		subs: make(map[uuid.UUID]*feedSub),
		log:  log.With("component", "ChangeFeed"),
	}
}

// Subscribe registers interest in the given tables (all tables when none
// are named). The returned cancel func must be called to release the
// subscription; the channel is closed by cancel.
func (f *ChangeFeed) Subscribe(tables ...Table) (<-chan Table, func()) {
	sub := &feedSub{ch: make(chan Table, 1)}
	if len(tables) > 0 {
		sub.tables = make(map[Table]bool, len(tables))
		for _, t := range tables {
			sub.tables[t] = true
		}
	}

	id := uuid.New()
	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if s, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(s.ch)
		}
		f.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish notifies current subscribers that rows in table changed.
// Never blocks.
func (f *ChangeFeed) Publish(table Table) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.tables != nil && !sub.tables[table] {
			continue
		}
		select {
		case sub.ch <- table:
		default:
		}
	}
}
