package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (output string, err error) {
	t.Helper()
	var buf bytes.Buffer
	v := New(WithOutput(&buf))
	err = v.Interpret(source)
	return buf.String(), err
}

func TestEndToEndArithmeticPrecedence(t *testing.T) {
	out, err := run(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestEndToEndStringConcatenation(t *testing.T) {
	out, err := run(t, `var a = "foo"; var b = "bar"; print a + b;`)
	require.NoError(t, err)
	assert.Equal(t, "foobar\n", out)
}

func TestEndToEndForLoopAccumulator(t *testing.T) {
	out, err := run(t, `var n = 0; for (var i = 0; i < 5; i = i + 1) { n = n + i; } print n;`)
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)
}

func TestEndToEndNestedScopesShadow(t *testing.T) {
	out, err := run(t, `{ var x = 1; { var x = 2; print x; } print x; }`)
	require.NoError(t, err)
	assert.Equal(t, "2\n1\n", out)
}

func TestEndToEndRecursiveFunction(t *testing.T) {
	out, err := run(t, `fun fact(n) { if (n <= 1) return 1; return n * fact(n - 1); } print fact(5);`)
	require.NoError(t, err)
	assert.Equal(t, "120\n", out)
}

func TestEndToEndEqualityAcrossKinds(t *testing.T) {
	out, err := run(t, `print "a" == "a"; print nil == false;`)
	require.NoError(t, err)
	assert.Equal(t, "true\nfalse\n", out)
}

func TestRuntimeErrorAddNumberAndString(t *testing.T) {
	_, err := run(t, `print 1 + "x";`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "Operands must be numbers.", rerr.Message)
}

func TestRuntimeErrorUndefinedGlobal(t *testing.T) {
	_, err := run(t, `undefined_var;`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "Undefined variable 'undefined_var'.", rerr.Message)
}

func TestCompileErrorLocalSelfReference(t *testing.T) {
	_, err := run(t, `{ var x = x; }`)
	require.Error(t, err)
	_, ok := err.(*CompileError)
	assert.True(t, ok)
}

func TestRuntimeErrorFormat(t *testing.T) {
	_, err := run(t, "\n\nundefined_var;")
	require.Error(t, err)
	assert.Equal(t, "Undefined variable 'undefined_var'.\n[line 3] in script\n", err.Error())
}

func TestSetGlobalOnUndefinedNameLeavesTableUntouched(t *testing.T) {
	// Assigning to a name that was never declared is a runtime error, and
	// must not leave a phantom entry behind in the same VM's globals.
	var buf bytes.Buffer
	v := New(WithOutput(&buf))
	require.Error(t, v.Interpret(`undefined_var = 1;`))

	err := v.Interpret(`print undefined_var;`)
	require.Error(t, err, "the failed assignment must not have defined the name")

	err = v.Interpret(`var undefined_var = 1; print undefined_var;`)
	require.NoError(t, err)
	assert.Equal(t, "1\n", buf.String())
}

func TestDivisionByZeroProducesInf(t *testing.T) {
	out, err := run(t, `print 1 / 0;`)
	require.NoError(t, err)
	assert.Equal(t, "+Inf\n", out)
}

func TestCallArityMismatchIsRuntimeError(t *testing.T) {
	_, err := run(t, `fun f(a, b) { return a + b; } f(1);`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Contains(t, rerr.Message, "Expected 2 arguments but got 1")
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	_, err := run(t, `fun rec(n) { return rec(n + 1); } print rec(0);`)
	require.Error(t, err)
	rerr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "Stack overflow.", rerr.Message)
}

func TestAndOrShortCircuitLeaveOperandValue(t *testing.T) {
	out, err := run(t, `print false and 1; print 2 or 3;`)
	require.NoError(t, err)
	assert.Equal(t, "false\n2\n", out)
}

func TestStringInterningIdentity(t *testing.T) {
	v := New()
	a := v.InternString("same")
	b := v.InternString("same")
	assert.Same(t, a, b, "equal-content strings must intern to the same object")

	c := v.InternString("different")
	assert.NotSame(t, a, c)
}

func TestConcatenationReusesInternedResult(t *testing.T) {
	v := New()
	pre := v.InternString("foobar")
	require.NoError(t, v.Interpret(`var a = "foo"; var b = "bar"; a + b;`))
	post := v.InternString("foobar")
	assert.Same(t, pre, post)
}

func TestLongConstantIndicesRoundTrip(t *testing.T) {
	// Push the constant pool past the 1-byte threshold so the tail of the
	// program executes through OpConstantLong's 3-byte index.
	var src strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&src, "%d.5;\n", i)
	}
	src.WriteString("print 9999.25;\n")

	out, err := run(t, src.String())
	require.NoError(t, err)
	assert.Equal(t, "9999.25\n", out)
}

func TestSwitchStatementDispatchesToMatchingCase(t *testing.T) {
	out, err := run(t, `
		var day = 3;
		switch (day) {
		case 1:
			print "mon";
		case 3:
			print "wed";
		default:
			print "other";
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "wed\n", out)
}

func TestSwitchStatementFallsToDefault(t *testing.T) {
	out, err := run(t, `
		switch (99) {
		case 1:
			print "mon";
		default:
			print "other";
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "other\n", out)
}

func TestREPLStyleSequentialCallsShareGlobals(t *testing.T) {
	var buf bytes.Buffer
	v := New(WithOutput(&buf))

	require.NoError(t, v.Interpret(`var counter = 0;`))
	require.NoError(t, v.Interpret(`counter = counter + 1;`))
	require.NoError(t, v.Interpret(`print counter;`))
	assert.Equal(t, "1\n", buf.String())
}

func TestMultipleCompileErrorsAreAllReported(t *testing.T) {
	_, err := run(t, `var ; var ;`)
	require.Error(t, err)
	_, ok := err.(*CompileError)
	assert.True(t, ok)
}

func TestPrintFormatsFunctionsAndNil(t *testing.T) {
	out, err := run(t, `fun greet() {} print greet; print nil;`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<fn greet>\n"))
	assert.True(t, strings.HasSuffix(out, "nil\n"))
}
