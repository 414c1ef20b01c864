// Package history implements linear undo/redo over editor commands.
//
// A Log is an arena of applied commands with a single cursor. Entries left of
// the cursor can be undone, entries right of it can be redone. Pushing a new
// command discards the redo side. Pipeline writes never go through a Log.
package history

import (
	"errors"
	"sync"

	"github.com/wudi/pagetrans/document"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Command is a reversible delta over one or more pages.
type Command interface {
	Apply() error
	Revert() error
	// Pages lists the pages the command touches.
	Pages() []*document.Page
	String() string
}

// Merger is implemented by commands that coalesce with the next command of
// the same interactive gesture. Merge reports whether next was absorbed.
type Merger interface {
	Merge(next Command) bool
}

// Entry is one applied command and its sequence number.
type Entry struct {
	Seq uint64
	Cmd Command
}

// Log is a linear command history.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	cursor  int
	nextSeq uint64
	limit   int
}

// NewLog returns a log that keeps at most limit entries; limit <= 0 means
// unbounded.
func NewLog(limit int) *Log {
	return &Log{limit: limit, nextSeq: 1}
}

func checkIdle(cmd Command) error {
	for _, p := range cmd.Pages() {
		if p.Busy() {
			return document.ErrPageBusy
		}
	}
	return nil
}

// Do applies cmd and records it. If cmd fails to apply the log is unchanged.
func (l *Log) Do(cmd Command) error {
	if err := checkIdle(cmd); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := cmd.Apply(); err != nil {
		return err
	}
	l.entries = l.entries[:l.cursor]
	if n := len(l.entries); n > 0 {
		if m, ok := l.entries[n-1].Cmd.(Merger); ok && m.Merge(cmd) {
			return nil
		}
	}
	l.entries = append(l.entries, Entry{Seq: l.nextSeq, Cmd: cmd})
	l.nextSeq++
	if l.limit > 0 && len(l.entries) > l.limit {
		drop := len(l.entries) - l.limit
		l.entries = append(l.entries[:0], l.entries[drop:]...)
	}
	l.cursor = len(l.entries)
	return nil
}

// Undo reverts the most recently applied command.
func (l *Log) Undo() (Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor == 0 {
		return nil, ErrNothingToUndo
	}
	cmd := l.entries[l.cursor-1].Cmd
	if err := checkIdle(cmd); err != nil {
		return nil, err
	}
	if err := cmd.Revert(); err != nil {
		return nil, err
	}
	l.cursor--
	return cmd, nil
}

// Redo re-applies the most recently undone command.
func (l *Log) Redo() (Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor == len(l.entries) {
		return nil, ErrNothingToRedo
	}
	cmd := l.entries[l.cursor].Cmd
	if err := checkIdle(cmd); err != nil {
		return nil, err
	}
	if err := cmd.Apply(); err != nil {
		return nil, err
	}
	l.cursor++
	return cmd, nil
}

func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0
}

func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)
}

// Entries returns the recorded entries and the cursor position.
func (l *Log) Entries() ([]Entry, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...), l.cursor
}

// Clear drops all entries. Sequence numbers keep increasing.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.cursor = 0
	l.mu.Unlock()
}
