package upsert

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/teskje/materialize/internal/obs"
	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

// Mode selects how the operator batches writes to its Backend.
type Mode int

const (
	// ModeStreaming writes each input record to the backend as it
	// arrives. Appropriate for in-memory backends where per-operation
	// cost is negligible.
	ModeStreaming Mode = iota
	// ModePreReduce buffers records per closed time, collapses same-key
	// writes to a single last-writer-wins representative, then issues
	// one backend Ingest call per closed time carrying one write per key.
	// Preferred when the
	// backend's per-operation cost dominates (e.g. the LSM backend).
	ModePreReduce
)

// Record is one input to the upsert operator: a key/value write observed
// at a logical time. Seq, if non-nil, breaks ties between same-key,
// same-time writes deterministically in ModePreReduce; when nil, ties are
// broken by arrival order within Ingest's input slice (see DESIGN.md's
// Open Question decision: Go map iteration order is never relied on).
type Record struct {
	Key, Value []byte
	Time       trace.Time
	Seq        *uint64
}

// Upserter drives a Backend according to Mode, translating its
// (k, v, prev) results into the retract-then-add emission rule.
type Upserter struct {
	backend Backend
	mode    Mode
	token   shutdown.Token
	log     zerolog.Logger

	recordsRead uint64
	lastClosed  trace.Time
}

// NewUpserter constructs an operator over backend in the given mode.
func NewUpserter(backend Backend, mode Mode, token shutdown.Token) *Upserter {
	return &Upserter{backend: backend, mode: mode, token: token, log: obs.New("upsert")}
}

// Ingest applies records, assumed to all be at closed times (times the
// caller will never again deliver an earlier or equal record for), and
// returns the resulting emissions in retract-then-add order. Returns
// nil, nil if the operator's shutdown token has been tripped.
func (u *Upserter) Ingest(records []Record) ([]trace.Entry, error) {
	if u.token.Cancelled() {
		return nil, nil
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []trace.Entry
	var err error
	switch u.mode {
	case ModeStreaming:
		out, err = u.ingestStreaming(records)
	default:
		out, err = u.ingestPreReduce(records)
	}
	if err != nil {
		return nil, err
	}

	u.recordsRead += uint64(len(records))
	for _, r := range records {
		if r.Time > u.lastClosed {
			u.lastClosed = r.Time
		}
	}
	u.log.Info().
		Uint64("records_read", u.recordsRead).
		Int("batch_size", len(records)).
		Int("emissions", len(out)).
		Msg("upsert progress")

	return out, nil
}

func (u *Upserter) ingestStreaming(records []Record) ([]trace.Entry, error) {
	var out []trace.Entry
	for _, r := range records {
		results, err := u.backend.Ingest([][]KV{{{Key: r.Key, Value: r.Value}}})
		if err != nil {
			return nil, err
		}
		out = append(out, emit(results[0], r.Time)...)
	}
	return out, nil
}

func (u *Upserter) ingestPreReduce(records []Record) ([]trace.Entry, error) {
	byTime := make(map[trace.Time][]Record)
	var times []trace.Time
	for _, r := range records {
		if _, ok := byTime[r.Time]; !ok {
			times = append(times, r.Time)
		}
		byTime[r.Time] = append(byTime[r.Time], r)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	var out []trace.Entry
	for _, t := range times {
		collapsed := lastWriterWins(byTime[t])
		results, err := u.backend.Ingest([][]KV{collapsed})
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			out = append(out, emit(res, t)...)
		}
	}
	return out, nil
}

// lastWriterWins collapses same-key records to one KV per key: by Seq
// when every record in the group carries one, else by arrival order
// within recs.
func lastWriterWins(recs []Record) []KV {
	type winner struct {
		rec Record
		idx int
	}
	allSeq := make(map[string]bool, len(recs))
	for _, r := range recs {
		k := string(r.Key)
		prev, seen := allSeq[k]
		allSeq[k] = (!seen || prev) && r.Seq != nil
	}
	order := make([]string, 0, len(recs))
	best := make(map[string]winner, len(recs))
	for i, r := range recs {
		k := string(r.Key)
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = winner{rec: r, idx: i}
			continue
		}
		if wins(r, i, cur.rec, cur.idx, allSeq[k]) {
			best[k] = winner{rec: r, idx: i}
		}
	}
	out := make([]KV, 0, len(order))
	for _, k := range order {
		out = append(out, KV{Key: best[k].rec.Key, Value: best[k].rec.Value})
	}
	return out
}

// wins reports whether candidate (at position candIdx) should replace
// incumbent (at position incIdx) as the last writer for their shared key:
// by Seq when bySeq (every record for the key carries one), else by
// position.
func wins(cand Record, candIdx int, inc Record, incIdx int, bySeq bool) bool {
	if bySeq {
		return *cand.Seq >= *inc.Seq
	}
	return candIdx >= incIdx
}

// emit translates one backend Result into retract-then-add trace
// entries.
func emit(res Result, t trace.Time) []trace.Entry {
	var out []trace.Entry
	if res.HasPrev {
		out = append(out, trace.Entry{Key: res.Key, Val: res.Prev, Time: t, Diff: -1})
	}
	out = append(out, trace.Entry{Key: res.Key, Val: res.Value, Time: t, Diff: 1})
	return out
}

// LastClosedTime reports the latest record time this operator has
// ingested, used to compute per-backend upsert lag relative to a
// dataflow's current frontier.
func (u *Upserter) LastClosedTime() trace.Time { return u.lastClosed }

// RecordsRead reports the cumulative count of records passed to Ingest.
func (u *Upserter) RecordsRead() uint64 { return u.recordsRead }

// Close releases the underlying backend.
func (u *Upserter) Close() error { return u.backend.Close() }
