package operator

import (
	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// Filter re-evaluates a residual condition on every incoming change and
// forwards only the portion of the change that keeps the downstream view
// consistent. An Edit whose row crosses the filter boundary is translated
// into a Remove or Add rather than forwarded as an Edit, since the
// downstream side never saw the row on the side that no longer (or now)
// matches (§4.2 "filter").
type Filter struct {
	Cond   value.Condition
	Params map[string]value.Value
	Output Output
}

func NewFilter(cond value.Condition, params map[string]value.Value, out Output) *Filter {
	return &Filter{Cond: cond, Params: params, Output: out}
}

func (f *Filter) Push(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		ok, err := value.Eval(f.Cond, c.Node.Row, f.Params)
		if err != nil || !ok {
			return err
		}
		return f.Output.Push(c)
	case change.KindRemove:
		ok, err := value.Eval(f.Cond, c.Node.Row, f.Params)
		if err != nil || !ok {
			return err
		}
		return f.Output.Push(c)
	case change.KindEdit:
		oldOK, err := value.Eval(f.Cond, c.OldRow, f.Params)
		if err != nil {
			return err
		}
		newOK, err := value.Eval(f.Cond, c.NewRow, f.Params)
		if err != nil {
			return err
		}
		switch {
		case oldOK && newOK:
			return f.Output.Push(c)
		case oldOK && !newOK:
			return f.Output.Push(change.Remove(&change.Node{Row: c.OldRow}))
		case !oldOK && newOK:
			return f.Output.Push(change.Add(&change.Node{Row: c.NewRow}))
		default:
			return nil
		}
	default:
		return nil
	}
}
