package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewProgramValidation(t *testing.T) {
	c := &Constant{Value: Num(1)}

	tests := []struct {
		name  string
		nodes []Node
		root  NodeID
	}{
		{"root out of range", []Node{c}, 1},
		{"negative root", []Node{c}, -1},
		{"nil node", []Node{&Block{Body: []NodeID{1}}, nil}, 0},
		{"branch out of range", []Node{&Nbr{Value: 4}}, 0},
		{"shared child", []Node{c, &Block{Body: []NodeID{0, 0}}}, 1},
		{"unreachable node", []Node{c, &Constant{Value: Num(2)}}, 0},
		{"cycle", []Node{&Nbr{Value: 0}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProgram(tt.nodes, tt.root); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := NewProgram([]Node{c}, 0); err != nil {
		t.Errorf("single constant: %v", err)
	}
}

func TestProgramAnnotationsStartEmpty(t *testing.T) {
	b := NewBuilder()
	prog, err := b.Build(b.Const(Num(1)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := prog.Annotation(); ok {
		t.Error("fresh program should have no annotation")
	}
	if _, ok := prog.AnnotationOf(42); ok {
		t.Error("AnnotationOf out of range should report false")
	}
}

// ---------------------------------------------------------------------------
// Copy
// ---------------------------------------------------------------------------

func TestProgramCopyIndependence(t *testing.T) {
	b := NewBuilder()
	prog, err := b.Build(b.Self())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	a, c := prog.Copy(), prog.Copy()
	if !a.Equal(c) || !a.Equal(prog) {
		t.Fatal("copies should be structurally equal")
	}

	evalRoot(t, a, NewSimpleContext("alpha"))
	evalRoot(t, c, NewSimpleContext("gamma"))

	if v, _ := a.Annotation(); !Equal(v, Str("alpha")) {
		t.Errorf("copy a = %v, want alpha", v)
	}
	if v, _ := c.Annotation(); !Equal(v, Str("gamma")) {
		t.Errorf("copy c = %v, want gamma", v)
	}
	if _, ok := prog.Annotation(); ok {
		t.Error("evaluating a copy changed the original")
	}

	again := a.Copy()
	if v, _ := again.Annotation(); !Equal(v, Str("alpha")) {
		t.Errorf("copy of an evaluated program = %v, want alpha", v)
	}
}

func TestProgramEqual(t *testing.T) {
	build := func(n float64) *Program {
		b := NewBuilder()
		prog, err := b.Build(b.Send("+", b.Const(Num(1)), b.Const(Num(n))))
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return prog
	}
	if !build(2).Equal(build(2)) {
		t.Error("independently built identical programs should be equal")
	}
	if build(2).Equal(build(3)) {
		t.Error("programs with different constants should differ")
	}
	if build(2).Equal(nil) {
		t.Error("program should not equal nil")
	}
}

// ---------------------------------------------------------------------------
// Rounds
// ---------------------------------------------------------------------------

func TestProgramFailedRoundKeepsAnnotations(t *testing.T) {
	// let seen = "yes"; if (flag) { 1 } else { undefinedName }
	b := NewBuilder()
	first := b.Let("seen", b.Const(Str("yes")))
	cond := b.Var("flag")
	iff := b.If(cond, b.Const(Num(1)), b.Var("undefinedName"))
	prog, err := b.Build(b.Block(first, iff))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ok := NewSimpleContext("d", WithGlobals(map[string]Value{"flag": Bool(true)}))
	if got := evalRoot(t, prog, ok); !Equal(got, Num(1)) {
		t.Fatalf("first round = %v, want 1", got)
	}

	bad := NewSimpleContext("d", WithGlobals(map[string]Value{"flag": Bool(false)}))
	err = prog.Eval(bad)
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("second round error = %v, want ErrUndefinedVariable", err)
	}
	var ee *EvalError
	if !errors.As(err, &ee) || ee.Op != "var" {
		t.Errorf("error should name the failing variable node, got %v", err)
	}

	if v, _ := prog.Annotation(); !Equal(v, Num(1)) {
		t.Errorf("root after failed round = %v, want 1 from the last good round", v)
	}
	if v, _ := prog.AnnotationOf(cond); !Equal(v, Bool(true)) {
		t.Errorf("condition after failed round = %v, want true", v)
	}
	if bad.Depth() != 1 {
		t.Errorf("scope depth after failure = %d, want 1", bad.Depth())
	}
}

func TestIfKeepsUnselectedBranch(t *testing.T) {
	b := NewBuilder()
	then := b.Const(Str("then"))
	els := b.Const(Str("else"))
	prog, err := b.Build(b.If(b.Var("c"), then, els))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	evalRoot(t, prog, NewSimpleContext("d", WithGlobals(map[string]Value{"c": Bool(true)})))
	if _, ok := prog.AnnotationOf(els); ok {
		t.Error("unselected branch should not be evaluated")
	}
	evalRoot(t, prog, NewSimpleContext("d", WithGlobals(map[string]Value{"c": Bool(false)})))
	if v, _ := prog.AnnotationOf(then); !Equal(v, Str("then")) {
		t.Errorf("then branch annotation = %v, want the value of the earlier round", v)
	}

	err = prog.Eval(NewSimpleContext("d", WithGlobals(map[string]Value{"c": Num(1)})))
	if !errors.Is(err, ErrType) {
		t.Errorf("non-boolean condition error = %v, want ErrType", err)
	}
}

func TestProgramNilContext(t *testing.T) {
	b := NewBuilder()
	prog, _ := b.Build(b.Const(Num(1)))
	if err := prog.Eval(nil); !errors.Is(err, ErrNullReference) {
		t.Errorf("Eval(nil) error = %v, want ErrNullReference", err)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestLambdaCall(t *testing.T) {
	// def sq(x) -> x * x; sq.apply(7)
	b := NewBuilder()
	def := b.Let("sq", b.Def("sq", []string{"x"}, b.Send("*", b.Var("x"), b.Var("x"))))
	call := b.Call(b.Var("sq"), b.Const(Num(7)))
	prog, err := b.Build(b.Block(def, call))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx := NewSimpleContext("d")
	if got := evalRoot(t, prog, ctx); !Equal(got, Num(49)) {
		t.Errorf("sq(7) = %v, want 49", got)
	}
	if ctx.Depth() != 1 {
		t.Errorf("scope depth after call = %d, want 1", ctx.Depth())
	}
}

func TestCallErrors(t *testing.T) {
	t.Run("not a function", func(t *testing.T) {
		b := NewBuilder()
		prog, _ := b.Build(b.Call(b.Const(Num(1))))
		if err := prog.Eval(NewSimpleContext("d")); !errors.Is(err, ErrType) {
			t.Errorf("error = %v, want ErrType", err)
		}
	})
	t.Run("arity", func(t *testing.T) {
		b := NewBuilder()
		prog, _ := b.Build(b.Call(b.Lambda([]string{"a", "b"}, b.Var("a")), b.Const(Num(1))))
		if err := prog.Eval(NewSimpleContext("d")); !errors.Is(err, ErrArgument) {
			t.Errorf("error = %v, want ErrArgument", err)
		}
	})
	t.Run("native", func(t *testing.T) {
		double := NativeFunction("double", 1, func(args []Value) (Value, error) {
			return args[0].(Num) * 2, nil
		})
		b := NewBuilder()
		prog, _ := b.Build(b.Call(b.Var("double"), b.Const(Num(4))))
		ctx := NewSimpleContext("d", WithGlobals(map[string]Value{"double": double}))
		if got := evalRoot(t, prog, ctx); !Equal(got, Num(8)) {
			t.Errorf("double(4) = %v, want 8", got)
		}
	})
}

func TestRecursionLimit(t *testing.T) {
	// def loop(n) -> loop.apply(n); loop.apply(0)
	b := NewBuilder()
	body := b.Call(b.Var("loop"), b.Var("n"))
	def := b.Let("loop", b.Def("loop", []string{"n"}, body))
	prog, err := b.Build(b.Block(def, b.Call(b.Var("loop"), b.Const(Num(0)))))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ctx := NewSimpleContext("d")
	if err := prog.Eval(ctx); !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("error = %v, want ErrRecursionLimit", err)
	}
	if ctx.Depth() != 1 {
		t.Errorf("scope depth after unwinding = %d, want 1", ctx.Depth())
	}
}

func TestFunctionFromOtherProgram(t *testing.T) {
	b := NewBuilder()
	src, _ := b.Build(b.Lambda([]string{"x"}, b.Var("x")))
	fn := evalRoot(t, src, NewSimpleContext("d"))

	b = NewBuilder()
	prog, _ := b.Build(b.Call(b.Var("f"), b.Const(Num(1))))
	err := prog.Eval(NewSimpleContext("d", WithGlobals(map[string]Value{"f": fn})))
	if !errors.Is(err, ErrArgument) {
		t.Errorf("error = %v, want ErrArgument", err)
	}
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func TestProgramString(t *testing.T) {
	max, _ := DefaultOperators().Lookup("max")
	b := NewBuilder()
	let := b.Let("d", b.Hood(max, b.Nbr(b.Self()), false))
	cond := b.If(b.Send(">", b.Var("d"), b.Const(Num(0))), b.Var("d"), b.Const(Num(0)))
	prog, err := b.Build(b.Block(let, cond))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := strings.Join([]string{
		"{",
		"  let d =",
		"    maxHood(",
		"      nbr(",
		"        self.getDeviceUID()));",
		"  if ((d > 0)) {",
		"    d",
		"  } else {",
		"    0",
		"  }",
		"}",
	}, "\n")
	if got := prog.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}
