package renderer

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/GriffinCanCode/webbridge/internal/channel"
	"github.com/GriffinCanCode/webbridge/internal/protocol"
	"github.com/dop251/goja"
)

var errNotCallable = errors.New("callback is not a function")

// maxSafeInteger bounds integers that survive a round trip through a JS number.
const maxSafeInteger = 1<<53 - 1

const (
	// maxListDepth bounds array nesting in a single value.
	maxListDepth = 64
	// maxListItems bounds the total array elements in a single value. Every
	// element costs at least one byte on the wire, so nothing larger could fit
	// in a frame anyway.
	maxListItems = channel.DefaultMaxFrameBytes / 2
)

// toWire converts a script value to its wire form. ok is false when the value
// (or something nested in it) has no wire form and was replaced by null.
// Cyclic arrays, nesting deeper than maxListDepth and values holding more than
// maxListItems elements in total become null.
func toWire(v goja.Value) (protocol.Value, bool) {
	w := walker{budget: maxListItems, path: make(map[*goja.Object]struct{})}
	return w.value(v, 0)
}

type walker struct {
	budget int
	path   map[*goja.Object]struct{}
}

func (w *walker) value(v goja.Value, depth int) (protocol.Value, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return protocol.Null(), true
	}

	if obj, isObj := v.(*goja.Object); isObj {
		if obj.ClassName() != "Array" {
			return protocol.Null(), false
		}
		return w.list(obj, depth)
	}

	switch x := v.Export().(type) {
	case bool:
		return protocol.Bool(x), true
	case int64:
		return protocol.Int(x), true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxSafeInteger {
			return protocol.Int(int64(x)), true
		}
		return protocol.Float(x), true
	case string:
		return protocol.String(x), true
	}
	return protocol.Null(), false
}

func (w *walker) list(obj *goja.Object, depth int) (protocol.Value, bool) {
	if depth >= maxListDepth {
		return protocol.Null(), false
	}
	if _, cyclic := w.path[obj]; cyclic {
		return protocol.Null(), false
	}
	n := obj.Get("length").ToInteger()
	if n < 0 || n > int64(w.budget) {
		w.budget = 0
		return protocol.Null(), false
	}
	w.budget -= int(n)

	w.path[obj] = struct{}{}
	defer delete(w.path, obj)

	items := make([]protocol.Value, n)
	ok := true
	for i := range items {
		item, itemOK := w.value(obj.Get(strconv.Itoa(i)), depth+1)
		items[i] = item
		ok = ok && itemOK
	}
	return protocol.List(items...), ok
}

// fromWire converts a wire value into a script value owned by vm.
func fromWire(vm *goja.Runtime, v protocol.Value) goja.Value {
	switch v.Kind() {
	case protocol.KindBool:
		return vm.ToValue(v.Bool())
	case protocol.KindInt:
		return vm.ToValue(v.Int())
	case protocol.KindFloat:
		return vm.ToValue(v.Float())
	case protocol.KindString:
		return vm.ToValue(v.Str())
	case protocol.KindList:
		items := make([]interface{}, v.Len())
		for i, item := range v.Items() {
			items[i] = fromWire(vm, item)
		}
		return vm.NewArray(items...)
	}
	return goja.Null()
}

func fromWireAll(vm *goja.Runtime, args []protocol.Value) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = fromWire(vm, a)
	}
	return out
}

// describe renders a script error for a warning message.
func describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if val := ex.Value(); val != nil {
			return val.String()
		}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("interrupted: %v", interrupted.Value())
	}
	return err.Error()
}
