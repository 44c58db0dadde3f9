package typemap

import (
	"fmt"
	"strings"

	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/ir"
)

// Errors is every mapping error of a model, in declaration order.
type Errors []*Error

// Error returns a short error message.
func (e Errors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%v mapping errors, first: %v", len(e), e[0])
}

// String returns the full multi-line error message.
func (e Errors) String() string {
	var b strings.Builder
	for _, err := range e {
		b.WriteString(err.Error())
		b.WriteByte('\n')
	}
	return b.String()
}

func (e Errors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

// MapModel maps every generated method of the model. The returned error
// is always of type [Errors].
func (e *Engine) MapModel(m *ir.Model, t config.Target) (map[*ir.Method]*MethodMapping, error) {
	res := map[*ir.Method]*MethodMapping{}
	var errs Errors
	for _, u := range m.Units {
		for _, meth := range u.Generated() {
			mm, mErrs := e.MapMethod(meth, t)
			if len(mErrs) > 0 {
				errs = append(errs, mErrs...)
				continue
			}
			res[meth] = mm
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return res, nil
}
