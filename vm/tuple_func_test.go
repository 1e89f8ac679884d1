package vm

import (
	"errors"
	"testing"
)

// nativeApplier runs native functions only.
type nativeApplier struct{}

func (nativeApplier) Apply(fn *Function, args []Value) (Value, error) {
	if fn.native == nil {
		return nil, errors.New("interpreted function")
	}
	return fn.native(args)
}

func TestReduceFuncOrder(t *testing.T) {
	var calls [][2]Value
	concat := NativeFunction("concat", 2, func(args []Value) (Value, error) {
		calls = append(calls, [2]Value{args[0], args[1]})
		return Str(Format(args[0]) + Format(args[1])), nil
	})

	got, err := NewTuple(Str("a"), Str("b"), Str("c")).ReduceFunc(nativeApplier{}, Str(""), concat)
	if err != nil {
		t.Fatalf("ReduceFunc: %v", err)
	}
	if !Equal(got, Str("abc")) {
		t.Errorf("ReduceFunc = %v, want abc", got)
	}
	want := [][2]Value{{Str("a"), Str("b")}, {Str("ab"), Str("c")}}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if !Equal(calls[i][0], want[i][0]) || !Equal(calls[i][1], want[i][1]) {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}

	got, err = NewTuple().ReduceFunc(nativeApplier{}, Num(42), concat)
	if err != nil || !Equal(got, Num(42)) {
		t.Errorf("empty ReduceFunc = %v, %v; want the default", got, err)
	}
}

func TestMapFuncSideEffects(t *testing.T) {
	var seen []Value
	record := NativeFunction("record", 1, func(args []Value) (Value, error) {
		seen = append(seen, args[0])
		return args[0].(Num) + 1, nil
	})

	got, err := nums(3, 1, 2).MapFunc(nativeApplier{}, record)
	if err != nil {
		t.Fatalf("MapFunc: %v", err)
	}
	if !got.Equal(nums(4, 2, 3)) {
		t.Errorf("MapFunc = %v", got)
	}
	if !NewTuple(seen...).Equal(nums(3, 1, 2)) {
		t.Errorf("applied in order %v, want element order", seen)
	}
}

func TestFilterFunc(t *testing.T) {
	positive := NativeFunction("positive", 1, func(args []Value) (Value, error) {
		return Bool(args[0].(Num) > 0), nil
	})
	got, err := nums(-1, 2, 0, 5).FilterFunc(nativeApplier{}, positive)
	if err != nil || !got.Equal(nums(2, 5)) {
		t.Errorf("FilterFunc = %v, %v", got, err)
	}

	notBool := NativeFunction("id", 1, func(args []Value) (Value, error) { return args[0], nil })
	if _, err := nums(1).FilterFunc(nativeApplier{}, notBool); !errors.Is(err, ErrType) {
		t.Errorf("non-boolean predicate error = %v, want ErrType", err)
	}
}

func TestFuncOverloadArgumentChecks(t *testing.T) {
	unary := NativeFunction("u", 1, func(args []Value) (Value, error) { return args[0], nil })
	binary := NativeFunction("b", 2, func(args []Value) (Value, error) { return args[0], nil })
	tup := nums(1, 2)
	ap := nativeApplier{}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"reduce unary", func() error { _, err := tup.ReduceFunc(ap, Num(0), unary); return err }, ErrArgument},
		{"reduce nil default", func() error { _, err := tup.ReduceFunc(ap, nil, binary); return err }, ErrNullReference},
		{"reduce null default", func() error { _, err := NewTuple().ReduceFunc(ap, Null{}, binary); return err }, ErrNullReference},
		{"reduce nil fn", func() error { _, err := tup.ReduceFunc(ap, Num(0), nil); return err }, ErrNullReference},
		{"map binary", func() error { _, err := tup.MapFunc(ap, binary); return err }, ErrArgument},
		{"map nil applier", func() error { _, err := tup.MapFunc(nil, unary); return err }, ErrNullReference},
		{"filter binary", func() error { _, err := tup.FilterFunc(ap, binary); return err }, ErrArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTupleMethodsWithClosures(t *testing.T) {
	// [1, 2, 3].map((x) -> x * 10).reduce(0, (a, b) -> a + b)
	b := NewBuilder()
	tup := b.Const(nums(1, 2, 3))
	times := b.Lambda([]string{"x"}, b.Send("*", b.Var("x"), b.Const(Num(10))))
	mapped := b.Send("map", tup, times)
	plus := b.Lambda([]string{"a", "b"}, b.Send("+", b.Var("a"), b.Var("b")))
	prog, err := b.Build(b.Send("reduce", mapped, b.Const(Num(0)), plus))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := NewSimpleContext("d")
	if got := evalRoot(t, prog, ctx); !Equal(got, Num(60)) {
		t.Errorf("result = %v, want 60", got)
	}
	if v, _ := prog.AnnotationOf(mapped); !Equal(v, nums(10, 20, 30)) {
		t.Errorf("mapped = %v, want [10, 20, 30]", v)
	}
	if ctx.Depth() != 1 {
		t.Errorf("scope depth = %d, want 1", ctx.Depth())
	}
}

func TestReduceNullDefaultInProgram(t *testing.T) {
	// [].reduce(null, (a, b) -> a + b)
	b := NewBuilder()
	plus := b.Lambda([]string{"a", "b"}, b.Send("+", b.Var("a"), b.Var("b")))
	prog, err := b.Build(b.Send("reduce", b.Const(NewTuple()), b.Const(Null{}), plus))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	err = prog.Eval(NewSimpleContext("d"))
	if !errors.Is(err, ErrNullReference) {
		t.Errorf("Eval error = %v, want ErrNullReference", err)
	}
	if _, ok := prog.Annotation(); ok {
		t.Error("failed round must not commit a result")
	}
}
