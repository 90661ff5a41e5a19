// Package chanlog appends relayed events to per-channel, per-day JSON files.
//
// The store is a best-effort sink: Register never blocks the caller, writes
// happen on a single background goroutine, and every failure is swallowed
// after a log line. Losing an entry never fails a broadcast.
package chanlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/proto"
)

// Entry is one logged event. Field names are part of the on-disk format.
type Entry struct {
	Sender    string `json:"Sender"`
	Message   string `json:"Message"`
	TimeStamp string `json:"TimeStamp"`
}

// Store writes and reads channel history files under a single directory.
type Store struct {
	dir   string
	queue chan *proto.Envelope
	log   *zerolog.Logger

	dropped atomic.Int64
	failed  atomic.Int64

	now func() time.Time
}

// New constructs a store writing under dir with a bounded queue.
func New(dir string, queueSize int, logger *zerolog.Logger) *Store {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Store{
		dir:   dir,
		queue: make(chan *proto.Envelope, queueSize),
		log:   logger,
		now:   time.Now,
	}
}

// Register enqueues an event for appending. A full queue drops the entry
// and bumps the dropped counter; the caller is never blocked or failed.
func (s *Store) Register(env *proto.Envelope) {
	if env == nil || env.Channel == "" {
		return
	}
	select {
	case s.queue <- env:
	default:
		s.dropped.Add(1)
		s.log.Warn().Str("channel", env.Channel).Msg("chanlog queue full, entry dropped")
	}
}

// Run drains the queue until the context is cancelled, then flushes
// whatever is still buffered.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case env := <-s.queue:
			s.append(env)
		case <-ctx.Done():
			for {
				select {
				case env := <-s.queue:
					s.append(env)
				default:
					return
				}
			}
		}
	}
}

// append does the read-modify-write of one history file. The whole file is
// a pretty-printed JSON array; a corrupt file is reset rather than surfaced.
func (s *Store) append(env *proto.Envelope) {
	now := s.now()
	path := s.filePath(env.Channel, now.Format(time.DateOnly))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.fail(err, path)
		return
	}

	var entries []Entry
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &entries); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("corrupt history file, starting over")
			entries = nil
		}
	}

	entries = append(entries, Entry{
		Sender:    env.Sender,
		Message:   env.Message,
		TimeStamp: timestamp(now),
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		s.fail(err, path)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.fail(err, path)
	}
}

// ReadHistory returns the entries logged for a channel on a calendar date
// (YYYY-MM-DD), defaulting to today. Missing or unreadable files yield an
// empty history, never an error to the caller.
func (s *Store) ReadHistory(channel, date string) []Entry {
	if date == "" {
		date = s.now().Format(time.DateOnly)
	}
	path := s.filePath(channel, date)

	raw, err := os.ReadFile(path)
	if err != nil {
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("failed to parse history file")
		return []Entry{}
	}
	return entries
}

// Stats returns how many entries were dropped on enqueue and how many
// writes failed.
func (s *Store) Stats() (dropped, failed int64) {
	return s.dropped.Load(), s.failed.Load()
}

func (s *Store) filePath(channel, date string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", channel, date))
}

func (s *Store) fail(err error, path string) {
	s.failed.Add(1)
	s.log.Error().Err(err).Str("path", path).Msg("failed to append history entry")
}

// timestamp renders the wall-clock time the way the history format always
// has: unpadded hours/minutes/seconds plus milliseconds.
func timestamp(t time.Time) string {
	return fmt.Sprintf("%d:%d:%d.%d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e6)
}
