package render

import (
	"fmt"

	"github.com/teskje/materialize/internal/join"
	"github.com/teskje/materialize/internal/plan"
	"github.com/teskje/materialize/internal/trace"
)

// LetRecLimitExceeded is the error-stream row emitted when a bounded
// recursive binding reaches its iteration limit without return-at-limit
// set.
type LetRecLimitExceeded struct {
	MaxIters uint64
}

func (e *LetRecLimitExceeded) Error() string {
	return fmt.Sprintf("LetRecLimitExceeded(%d)", e.MaxIters)
}

// renderLetRec implements iterative-scope rendering: one feedback
// variable per binding, rendered together each round until every binding
// has either converged to a fixed point or been frozen by its iteration
// limit.
func (r *Renderer) renderLetRec(n *plan.LetRec) (Collection, error) {
	state := make([]Collection, len(n.Idents))
	frozen := make([]bool, len(n.Idents))

	restore := r.pushScope(n.Idents, state)
	defer restore()

	for iter := uint64(1); ; iter++ {
		changed := false

		for i, ident := range n.Idents {
			if frozen[i] {
				continue
			}
			r.scope[ident] = state[i]

			rendered, err := r.Render(n.Values[i])
			if err != nil {
				return Collection{}, err
			}
			rendered.Oks = trace.Consolidate(rendered.Oks)
			rendered.Errs = newErrDedup().Filter(rendered.Errs)

			limit := n.Limits[i]
			if limit != nil && iter == limit.MaxIters {
				// Both branches keep this round's result as the fixed
				// point: it is the max_iters-th iterate (see DESIGN.md's
				// Open Question decision on return-at-limit semantics).
				// return_at_limit=false additionally surfaces that the
				// computation had not yet converged.
				if !limit.ReturnAtLimit {
					rendered.Errs = append(rendered.Errs, join.ErrorRow{
						Err: &LetRecLimitExceeded{MaxIters: limit.MaxIters},
					})
					r.log.Warn().Str("ident", ident).Uint64("max_iters", limit.MaxIters).
						Msg("letrec binding hit its iteration limit without converging")
				}
				frozen[i] = true
				state[i] = rendered
				changed = true
				continue
			}

			if !collectionEqual(state[i], rendered) {
				changed = true
			}
			state[i] = rendered
		}

		if !changed {
			break
		}
		if allFrozen(frozen) {
			break
		}
		if iter >= r.hardIterationCap(n) {
			break
		}
	}

	for i, ident := range n.Idents {
		r.scope[ident] = state[i]
	}
	return r.Render(n.Body)
}

// pushScope saves the current bindings for idents (if any) so they can
// be restored once the recursive scope is left, matching Let/LetRec's
// rule that bindings do not leak past their body.
func (r *Renderer) pushScope(idents []string, initial []Collection) func() {
	saved := make(map[string]Collection, len(idents))
	had := make(map[string]bool, len(idents))
	for i, ident := range idents {
		saved[ident], had[ident] = r.scope[ident]
		r.scope[ident] = initial[i]
	}
	return func() {
		for _, ident := range idents {
			if had[ident] {
				r.scope[ident] = saved[ident]
			} else {
				delete(r.scope, ident)
			}
		}
	}
}

func allFrozen(frozen []bool) bool {
	for _, f := range frozen {
		if !f {
			return false
		}
	}
	return true
}

// hardIterationCap bounds bindings that carry no explicit limit, so an
// unbounded recursive binding that never converges cannot loop this
// synchronous evaluator forever.
func (r *Renderer) hardIterationCap(n *plan.LetRec) uint64 {
	capIter := r.LetRecDefaultMaxIters
	for _, l := range n.Limits {
		if l != nil && l.MaxIters > capIter {
			capIter = l.MaxIters
		}
	}
	return capIter
}

func collectionEqual(a, b Collection) bool {
	if len(a.Oks) != len(b.Oks) || len(a.Errs) != len(b.Errs) {
		return false
	}
	for i := range a.Oks {
		if string(a.Oks[i].Key) != string(b.Oks[i].Key) ||
			string(a.Oks[i].Val) != string(b.Oks[i].Val) ||
			a.Oks[i].Time != b.Oks[i].Time ||
			a.Oks[i].Diff != b.Oks[i].Diff {
			return false
		}
	}
	return true
}
