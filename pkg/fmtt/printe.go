// Package fmtt renders error chains for logs and debugging.
package fmtt

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/davecgh/go-spew/spew"
)

// ErrChain walks an error chain and returns each layer with its type.
// Joined errors are expanded depth-first.
func ErrChain(err error) []string {
	var out []string
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		for ; e != nil; e = errors.Unwrap(e) {
			out = append(out, fmt.Sprintf("[%d] %T: %v", depth, e, e))
			depth++
			if j, ok := e.(interface{ Unwrap() []error }); ok {
				for _, inner := range j.Unwrap() {
					walk(inner, depth)
				}
				return
			}
		}
	}
	walk(err, 0)
	return out
}

// DumpErrChain writes every layer of err to w with its exported fields and
// a spew dump. Meant for development only: it can print secrets.
func DumpErrChain(w io.Writer, err error) {
	cfg := spew.ConfigState{Indent: "  ", MaxDepth: 4, DisablePointerAddresses: true}

	for i := 0; err != nil; err = errors.Unwrap(err) {
		fmt.Fprintf(w, "[%d] %T\n", i, err)
		fmt.Fprintf(w, "   Error(): %v\n", err)
		cfg.Fdump(w, err)

		rv := reflect.ValueOf(err)
		rt := rv.Type()
		if rt.Kind() == reflect.Ptr && !rv.IsNil() {
			rv = rv.Elem()
			rt = rt.Elem()
		}
		if rt.Kind() == reflect.Struct {
			for j := 0; j < rt.NumField(); j++ {
				f := rt.Field(j)
				if v := rv.Field(j); v.CanInterface() {
					fmt.Fprintf(w, "   Field %s (%s): %+v\n", f.Name, f.Type, v.Interface())
				}
			}
		}
		i++
	}
}
