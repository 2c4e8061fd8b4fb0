// Package render lowers a logical plan.Plan into the stateful operators
// of internal/join and internal/trace. It evaluates a
// plan to completion against already-materialized input collections; the
// scheduling of live, incrementally-arriving batches across repeated
// activations is the concern of internal/join and internal/upsert
// themselves, so this package's job is purely the structural lowering of
// the operator tree.
package render

import (
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/teskje/materialize/internal/join"
	"github.com/teskje/materialize/internal/obs"
	"github.com/teskje/materialize/internal/plan"
	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

// ShutdownToken is the token every object built by a Renderer shares;
// dropping it (Cancel) signals every derived operator to discard pending
// work at its next activation.
type ShutdownToken = shutdown.Token

// Collection is a rendered (ok, err) pair: every logical node's lowering
// consumes and produces one of these.
type Collection struct {
	Oks  []trace.Entry
	Errs []join.ErrorRow
}

// AsOf suppresses any output at times <= AsOf: data at or below it is
// reclocked to MinTime instead of its natural time, so a fresh view's
// initial snapshot lands in one batch instead of dribbling in as
// individual times.
type Renderer struct {
	AsOf                  trace.Time
	Token                 ShutdownToken
	LetRecDefaultMaxIters uint64

	// DataflowID tags every log line this Renderer emits, so a single
	// dataflow's render can be traced across concurrently running ones.
	DataflowID uuid.UUID

	scope map[string]Collection
	log   zerolog.Logger
}

// New constructs a Renderer. asOf and token are per-dataflow; scope
// starts empty, populated by Let/LetRec/Get as rendering descends the
// plan tree.
func New(asOf trace.Time, token ShutdownToken, letRecDefaultMaxIters uint64) *Renderer {
	id := uuid.New()
	return &Renderer{
		AsOf:                  asOf,
		Token:                 token,
		LetRecDefaultMaxIters: letRecDefaultMaxIters,
		DataflowID:            id,
		scope:                 map[string]Collection{},
		log:                   obs.New("render").With().Str("dataflow_id", id.String()).Logger(),
	}
}

// Render lowers p to a Collection. It is the exhaustive dispatch over
// the closed plan.Plan catalog.
func (r *Renderer) Render(p plan.Plan) (Collection, error) {
	if r.Token.Cancelled() {
		return Collection{}, nil
	}

	switch n := p.(type) {
	case *plan.Constant:
		return r.renderConstant(n)
	case *plan.Get:
		return r.renderGet(n)
	case *plan.Let:
		return r.renderLet(n)
	case *plan.LetRec:
		return r.renderLetRec(n)
	case *plan.Mfp:
		return r.renderMfp(n)
	case *plan.FlatMap:
		return r.renderFlatMap(n)
	case *plan.Join:
		return r.renderJoin(n)
	case *plan.Reduce:
		return r.renderReduce(n)
	case *plan.TopK:
		return r.renderTopK(n)
	case *plan.Negate:
		return r.renderNegate(n)
	case *plan.Threshold:
		return r.renderThreshold(n)
	case *plan.Union:
		return r.renderUnion(n)
	case *plan.ArrangeBy:
		return r.renderArrangeBy(n)
	default:
		err := errors.Errorf("render: unknown plan node %T", p)
		r.log.Error().Err(err).Msg("render: unreachable plan node")
		return Collection{}, err
	}
}

// suppress applies as_of suppression to a single entry's time (spec
// §4.F.3): times at or below AsOf are reclocked to the minimum time.
func (r *Renderer) suppress(t trace.Time) trace.Time {
	if t <= r.AsOf {
		return trace.MinTime
	}
	return t
}

func (r *Renderer) renderConstant(n *plan.Constant) (Collection, error) {
	var out Collection
	for _, rd := range n.Rows {
		out.Oks = append(out.Oks, trace.Entry{Val: rd.Row, Time: r.suppress(trace.MinTime), Diff: rd.Diff})
	}
	for _, ce := range n.Errors {
		out.Errs = append(out.Errs, join.ErrorRow{Key: ce.Key, Err: ce.Err})
	}
	return out, nil
}

func (r *Renderer) renderGet(n *plan.Get) (Collection, error) {
	c, ok := r.scope[n.Ident]
	if !ok {
		return Collection{}, errors.Errorf("render: unbound identifier %q", n.Ident)
	}
	return c, nil
}

func (r *Renderer) renderLet(n *plan.Let) (Collection, error) {
	val, err := r.Render(n.Value)
	if err != nil {
		return Collection{}, errors.Wrapf(err, "render: binding %q", n.Ident)
	}
	return r.withBinding(n.Ident, val, n.Body)
}

// withBinding renders body in a scope extended with one binding,
// restoring the outer scope afterward (Let/LetRec bindings do not leak
// past their body).
func (r *Renderer) withBinding(ident string, val Collection, body plan.Plan) (Collection, error) {
	prev, had := r.scope[ident]
	r.scope[ident] = val
	out, err := r.Render(body)
	if had {
		r.scope[ident] = prev
	} else {
		delete(r.scope, ident)
	}
	return out, err
}

func (r *Renderer) renderMfp(n *plan.Mfp) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}
	out := Collection{Errs: in.Errs}
	for _, e := range in.Oks {
		row, keep, err := n.Eval(e.Val)
		if err != nil {
			out.Errs = append(out.Errs, join.ErrorRow{Key: e.Key, Err: err})
			continue
		}
		if !keep {
			continue
		}
		out.Oks = append(out.Oks, trace.Entry{Key: e.Key, Val: row, Time: e.Time, Diff: e.Diff})
	}
	return out, nil
}

func (r *Renderer) renderFlatMap(n *plan.FlatMap) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}
	out := Collection{Errs: in.Errs}
	for _, e := range in.Oks {
		rows, err := n.Eval(e.Val)
		if err != nil {
			out.Errs = append(out.Errs, join.ErrorRow{Key: e.Key, Err: err})
			continue
		}
		for _, row := range rows {
			out.Oks = append(out.Oks, trace.Entry{Key: e.Key, Val: row, Time: e.Time, Diff: e.Diff})
		}
	}
	return out, nil
}

func (r *Renderer) renderNegate(n *plan.Negate) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}
	out := Collection{Errs: in.Errs}
	for _, e := range in.Oks {
		out.Oks = append(out.Oks, trace.Entry{Key: e.Key, Val: e.Val, Time: e.Time, Diff: -e.Diff})
	}
	return out, nil
}

func (r *Renderer) renderThreshold(n *plan.Threshold) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}
	type cell struct{ key, val string }
	sums := make(map[cell]int64)
	order := make([]cell, 0)
	maxTime := trace.MinTime
	for _, e := range in.Oks {
		c := cell{string(e.Key), string(e.Val)}
		if _, ok := sums[c]; !ok {
			order = append(order, c)
		}
		sums[c] += e.Diff
		if e.Time > maxTime {
			maxTime = e.Time
		}
	}
	out := Collection{Errs: in.Errs}
	for _, c := range order {
		if sums[c] > 0 {
			out.Oks = append(out.Oks, trace.Entry{Key: []byte(c.key), Val: []byte(c.val), Time: maxTime, Diff: 1})
		}
	}
	return out, nil
}

func (r *Renderer) renderUnion(n *plan.Union) (Collection, error) {
	var out Collection
	for _, input := range n.Inputs {
		c, err := r.Render(input)
		if err != nil {
			return Collection{}, err
		}
		out.Oks = append(out.Oks, c.Oks...)
		out.Errs = append(out.Errs, c.Errs...)
	}
	return out, nil
}

func (r *Renderer) renderArrangeBy(n *plan.ArrangeBy) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}
	out := Collection{Errs: in.Errs}
	for _, e := range in.Oks {
		out.Oks = append(out.Oks, trace.Entry{Key: n.KeyOf(e.Val), Val: e.Val, Time: e.Time, Diff: e.Diff})
	}
	return out, nil
}

func (r *Renderer) renderJoin(n *plan.Join) (Collection, error) {
	left, err := r.Render(n.Left)
	if err != nil {
		return Collection{}, errors.Wrap(err, "render: join left input")
	}
	right, err := r.Render(n.Right)
	if err != nil {
		return Collection{}, errors.Wrap(err, "render: join right input")
	}

	leftTrace := collectionToTrace(left.Oks, n.LeftKey)
	rightTrace := collectionToTrace(right.Oks, n.RightKey)

	logic := join.Logic(n.Logic)
	j := join.NewJoin(leftTrace, rightTrace, logic, r.Token)

	neverYield := func(int) bool { return false }
	oks, joinErrs, _ := j.Activate(nil, nil, join.ClosedFrontier, join.ClosedFrontier, neverYield)

	out := Collection{Oks: oks}
	out.Errs = append(out.Errs, left.Errs...)
	out.Errs = append(out.Errs, right.Errs...)
	out.Errs = append(out.Errs, joinErrs...)
	return out, nil
}

// collectionToTrace arranges entries by keyOf into a single trace
// holding one batch that spans every time present, appropriate for the
// one-shot, render-to-completion evaluation mode this package runs in.
func collectionToTrace(entries []trace.Entry, keyOf func([]byte) []byte) *trace.Trace {
	upper := trace.MinTime + 1
	keyed := make([]trace.Entry, len(entries))
	for i, e := range entries {
		keyed[i] = trace.Entry{Key: keyOf(e.Val), Val: e.Val, Time: e.Time, Diff: e.Diff}
		if e.Time >= upper {
			upper = e.Time + 1
		}
	}
	t := trace.New()
	t.InsertBatch(trace.NewBatch(trace.MinTime, upper, keyed))
	return t
}

func (r *Renderer) renderReduce(n *plan.Reduce) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}

	type group struct {
		key     []byte
		acc     any
		maxTime trace.Time
	}
	groups := make(map[string]*group)
	var order []string
	for _, e := range in.Oks {
		k := n.KeyOf(e.Val)
		sk := string(k)
		g, ok := groups[sk]
		if !ok {
			g = &group{key: k, acc: n.Init()}
			groups[sk] = g
			order = append(order, sk)
		}
		g.acc = n.Step(g.acc, e.Val, e.Diff)
		if e.Time > g.maxTime {
			g.maxTime = e.Time
		}
	}

	out := Collection{Errs: in.Errs}
	for _, sk := range order {
		g := groups[sk]
		row, diff, ok := n.Finish(g.key, g.acc)
		if !ok {
			continue
		}
		out.Oks = append(out.Oks, trace.Entry{Key: g.key, Val: row, Time: g.maxTime, Diff: diff})
	}
	return out, nil
}

func (r *Renderer) renderTopK(n *plan.TopK) (Collection, error) {
	in, err := r.Render(n.Input)
	if err != nil {
		return Collection{}, err
	}

	groups := make(map[string][]trace.Entry)
	var order []string
	for _, e := range in.Oks {
		k := string(n.KeyOf(e.Val))
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	out := Collection{Errs: in.Errs}
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return n.Less(g[i].Val, g[j].Val) })
		limit := n.Limit
		if limit > len(g) {
			limit = len(g)
		}
		out.Oks = append(out.Oks, g[:limit]...)
	}
	return out, nil
}
