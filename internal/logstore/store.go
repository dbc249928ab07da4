package logstore

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/loykin/wrapmcp/internal/metrics"
	"github.com/loykin/wrapmcp/internal/protocol"
)

// DefaultCapacity bounds the store when no explicit capacity is configured.
const DefaultCapacity = 1000

// Store is a bounded, concurrency-safe append/query log of proxy
// interactions. Appends evict the oldest entry once the capacity is
// reached; sequence numbers keep increasing for the lifetime of the
// process and are never reused, even across Clear.
type Store struct {
	mu       sync.RWMutex
	ring     []Entry
	head     int // index of the oldest entry
	size     int
	nextSeq  uint64
	capacity int
}

// New creates a store holding at most capacity entries.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		ring:     make([]Entry, capacity),
		nextSeq:  1,
		capacity: capacity,
	}
}

// Capacity returns the fixed entry limit.
func (s *Store) Capacity() int { return s.capacity }

// Len returns the current number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) append(e Entry) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Seq = s.nextSeq
	s.nextSeq++
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	idx := (s.head + s.size) % s.capacity
	s.ring[idx] = e
	if s.size < s.capacity {
		s.size++
	} else {
		// Full: the slot we just wrote was the oldest entry.
		s.head = (s.head + 1) % s.capacity
	}
	metrics.SetLogEntries(s.size)
	return e.Seq
}

// AddRequest records a forwarded or locally handled tool request and
// returns its sequence number for later correlation.
func (s *Store) AddRequest(tool protocol.ToolName, args json.RawMessage) uint64 {
	return s.append(Entry{Kind: KindRequest, Tool: tool, Payload: args})
}

// AddResponse records a successful tool response.
func (s *Store) AddResponse(id protocol.RequestID, tool protocol.ToolName, result json.RawMessage, elapsed time.Duration) uint64 {
	return s.append(Entry{Kind: KindResponse, Tool: tool, CorrelationID: id, Payload: result, Elapsed: elapsed})
}

// AddError records a failed tool call.
func (s *Store) AddError(id protocol.RequestID, tool protocol.ToolName, message string, elapsed time.Duration) uint64 {
	return s.append(Entry{Kind: KindError, Tool: tool, CorrelationID: id, Text: message, Elapsed: elapsed})
}

// AddStderr records one captured diagnostic line from the wrappee.
func (s *Store) AddStderr(line string) uint64 {
	return s.append(Entry{Kind: KindStderr, Text: line})
}

// Clear empties the store. Sequence numbers are not reset so that entries
// recorded after a clear remain distinguishable from evicted ones.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.size = 0
	metrics.SetLogEntries(0)
	slog.Debug("log store cleared")
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Limit   int
	Tool    protocol.ToolName
	Kind    Kind
	Keyword string
}

// Query returns entries matching the filter, most recent first, capped at
// Filter.Limit (or all matches when Limit <= 0). The keyword is compiled
// as a regular expression; if it does not compile it degrades to a literal
// substring match. Stored entries are copied out and never mutated.
func (s *Store) Query(f Filter) []Entry {
	var match func(string) bool
	if f.Keyword != "" {
		if re, err := regexp.Compile(f.Keyword); err == nil {
			match = re.MatchString
		} else {
			lit := f.Keyword
			match = func(text string) bool { return strings.Contains(text, lit) }
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(s.size, max(f.Limit, 0)))
	// Walk newest to oldest so the cap applies to the most recent matches.
	for i := s.size - 1; i >= 0; i-- {
		e := s.ring[(s.head+i)%s.capacity]
		if f.Tool != "" {
			if e.Kind == KindStderr || e.Tool != f.Tool {
				continue
			}
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if match != nil && !match(e.searchText()) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
