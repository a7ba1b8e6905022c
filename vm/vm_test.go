package vm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

// Helper to build a program from instructions
func programOf(code ...Instruction) *Program {
	p := NewProgram()
	for _, in := range code {
		p.Append(in.Op, in.Arg)
	}
	return p
}

func ins(op Opcode, arg int) Instruction {
	return Instruction{Op: op, Arg: arg}
}

// runProgram runs p on a fresh tape and returns the VM and the output.
func runProgram(t *testing.T, p *Program, input string, opts Options) (*VM, string, error) {
	t.Helper()
	var out bytes.Buffer
	opts.Input = strings.NewReader(input)
	opts.Output = &out
	m := New(p, opts)
	err := m.Run()
	return m, out.String(), err
}

// ============ Tape Tests ============

func TestNewTapeStartsInTheMiddle(t *testing.T) {
	tape := NewTape(0)
	if tape.Len() != DefaultTapeSize {
		t.Errorf("tape length = %d, want %d", tape.Len(), DefaultTapeSize)
	}
	if tape.Head != DefaultTapeSize/2 {
		t.Errorf("head = %d, want %d", tape.Head, DefaultTapeSize/2)
	}
	for i, c := range tape.Cells[:16] {
		if c != 0 {
			t.Fatalf("cell %d = %d, want 0", i, c)
		}
	}
}

// ============ Data Operation Tests ============

func TestRunIncrementThenClearLoop(t *testing.T) {
	p := programOf(ins(OpInc, 4), ins(OpRepNZ, 1), ins(OpDec, 1))
	m, _, err := runProgram(t, p, "", Options{TapeSize: 16})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.Tape().Current(); got != 0 {
		t.Errorf("current cell = %d, want 0", got)
	}
	if m.Tape().Head != 8 {
		t.Errorf("head = %d, want 8", m.Tape().Head)
	}
}

func TestRunEchoesInput(t *testing.T) {
	p := programOf(ins(OpIn, 1), ins(OpOut, 1))
	_, out, err := runProgram(t, p, "A", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "A" {
		t.Errorf("output = %q, want %q", out, "A")
	}
}

func TestRunOutRepeatsCount(t *testing.T) {
	p := programOf(ins(OpInc, 'x'), ins(OpOut, 3))
	_, out, err := runProgram(t, p, "", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "xxx" {
		t.Errorf("output = %q, want %q", out, "xxx")
	}
}

func TestRunInCountKeepsLastByte(t *testing.T) {
	p := programOf(ins(OpIn, 2), ins(OpOut, 1))
	_, out, err := runProgram(t, p, "ab", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "b" {
		t.Errorf("output = %q, want %q", out, "b")
	}
}

func TestRunEOFBehavior(t *testing.T) {
	tests := []struct {
		eof  EOFBehavior
		want int32
	}{
		{EOFMinusOne, -1},
		{EOFZero, 0},
		{EOFUnchanged, 5},
	}
	for _, tt := range tests {
		t.Run(tt.eof.String(), func(t *testing.T) {
			p := programOf(ins(OpInc, 5), ins(OpIn, 1))
			m, _, err := runProgram(t, p, "", Options{EOF: tt.eof})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := m.Tape().Current(); got != tt.want {
				t.Errorf("cell after EOF = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseEOFBehavior(t *testing.T) {
	for _, b := range []EOFBehavior{EOFMinusOne, EOFZero, EOFUnchanged} {
		got, err := ParseEOFBehavior(b.String())
		if err != nil {
			t.Errorf("ParseEOFBehavior(%q): %v", b.String(), err)
		}
		if got != b {
			t.Errorf("ParseEOFBehavior(%q) = %v, want %v", b.String(), got, b)
		}
	}
	if got, err := ParseEOFBehavior(""); err != nil || got != EOFMinusOne {
		t.Errorf("ParseEOFBehavior(\"\") = %v, %v; want minus-one", got, err)
	}
	if _, err := ParseEOFBehavior("sometimes"); err == nil {
		t.Error("expected error for unknown behaviour")
	}
}

// ============ Bounds and Overflow Tests ============

func TestRunLeftBounds(t *testing.T) {
	// Tape of 16 cells starts with the head at 8.
	m, _, err := runProgram(t, programOf(ins(OpLeft, 8)), "", Options{TapeSize: 16})
	if err != nil {
		t.Fatalf("left 8: %v", err)
	}
	if m.Tape().Head != 0 {
		t.Errorf("head = %d, want 0", m.Tape().Head)
	}

	_, _, err = runProgram(t, programOf(ins(OpLeft, 9)), "", Options{TapeSize: 16})
	if !errors.Is(err, ErrTapeLeft) {
		t.Errorf("left 9: err = %v, want ErrTapeLeft", err)
	}
}

func TestRunRightBounds(t *testing.T) {
	m, _, err := runProgram(t, programOf(ins(OpRight, 7)), "", Options{TapeSize: 16})
	if err != nil {
		t.Fatalf("right 7: %v", err)
	}
	if m.Tape().Head != 15 {
		t.Errorf("head = %d, want 15", m.Tape().Head)
	}

	_, _, err = runProgram(t, programOf(ins(OpRight, 8)), "", Options{TapeSize: 16})
	if !errors.Is(err, ErrTapeRight) {
		t.Errorf("right 8: err = %v, want ErrTapeRight", err)
	}

	// An operand larger than the whole tape must not wrap around.
	_, _, err = runProgram(t, programOf(ins(OpRight, math.MaxInt)), "", Options{TapeSize: 16})
	if !errors.Is(err, ErrTapeRight) {
		t.Errorf("right MaxInt: err = %v, want ErrTapeRight", err)
	}
}

func TestRunOverflow(t *testing.T) {
	tape := NewTape(4)
	tape.Cells[tape.Head] = math.MaxInt32 - 1

	m := New(programOf(ins(OpInc, 1)), Options{})
	if err := m.RunTape(tape); err != nil {
		t.Fatalf("inc to MaxInt32: %v", err)
	}
	if tape.Current() != math.MaxInt32 {
		t.Errorf("cell = %d, want %d", tape.Current(), int32(math.MaxInt32))
	}

	m = New(programOf(ins(OpInc, 1)), Options{})
	err := m.RunTape(tape)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("err = %v, want ErrOverflow", err)
	}
	if tape.Current() != math.MaxInt32 {
		t.Errorf("cell changed on overflow: %d", tape.Current())
	}
}

func TestRunUnderflow(t *testing.T) {
	tape := NewTape(4)
	tape.Cells[tape.Head] = math.MinInt32 + 1

	m := New(programOf(ins(OpDec, 1)), Options{})
	if err := m.RunTape(tape); err != nil {
		t.Fatalf("dec to MinInt32: %v", err)
	}

	m = New(programOf(ins(OpDec, 1)), Options{})
	if err := m.RunTape(tape); !errors.Is(err, ErrUnderflow) {
		t.Errorf("err = %v, want ErrUnderflow", err)
	}
}

// ============ Control Flow Tests ============

func TestRunRetInsideLoop(t *testing.T) {
	p := programOf(ins(OpInc, 1), ins(OpRepNZ, 1), ins(OpRet, 0))
	_, _, err := runProgram(t, p, "", Options{})
	if !errors.Is(err, ErrRetInLoop) {
		t.Fatalf("err = %v, want ErrRetInLoop", err)
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("err is %T, want *RuntimeError", err)
	}
	if rerr.IP != 2 || rerr.Op != OpRet {
		t.Errorf("error at %d (%s), want 2 (ret)", rerr.IP, rerr.Op)
	}
}

func TestRunZeroCellSkipsLoopBody(t *testing.T) {
	p := programOf(ins(OpRepNZ, 2), ins(OpInc, 1), ins(OpOut, 1), ins(OpInc, 'z'), ins(OpOut, 1))
	_, out, err := runProgram(t, p, "", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "z" {
		t.Errorf("output = %q, want %q", out, "z")
	}
}

func TestRunCallSharesTape(t *testing.T) {
	// main: call 4; out 1; ret
	// [3]:  ret (seals main; never reached)
	// f:    right 2; inc 65; ret
	p := programOf(
		ins(OpCall, 4),
		ins(OpOut, 1),
		ins(OpRet, 0),
		ins(OpRet, 0),
		ins(OpRight, 2),
		ins(OpInc, 65),
		ins(OpRet, 0),
	)
	m, out, err := runProgram(t, p, "", Options{TapeSize: 16})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "A" {
		t.Errorf("output = %q, want %q", out, "A")
	}
	if m.Tape().Head != 10 {
		t.Errorf("head = %d, want 10 (moved by the callee)", m.Tape().Head)
	}
}

func TestRunMainWithoutRetRunsToEnd(t *testing.T) {
	p := programOf(ins(OpInc, 3))
	m, _, err := runProgram(t, p, "", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Tape().Current() != 3 {
		t.Errorf("cell = %d, want 3", m.Tape().Current())
	}
}

func TestRunRecursionLimit(t *testing.T) {
	// main: call 2; ret. f: call 2; ret
	p := programOf(ins(OpCall, 2), ins(OpRet, 0), ins(OpCall, 2), ins(OpRet, 0))
	_, _, err := runProgram(t, p, "", Options{MaxDepth: 10})
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("err = %v, want ErrRecursionLimit", err)
	}
}

func TestRunNestedLoopsWithinLimit(t *testing.T) {
	// +++[>+++[>+<-]<-]>> leaves 9 two cells right
	p := programOf(
		ins(OpInc, 3),
		ins(OpRepNZ, 9),
		ins(OpRight, 1),
		ins(OpInc, 3),
		ins(OpRepNZ, 4),
		ins(OpRight, 1),
		ins(OpInc, 1),
		ins(OpLeft, 1),
		ins(OpDec, 1),
		ins(OpLeft, 1),
		ins(OpDec, 1),
		ins(OpRight, 2),
	)
	m, _, err := runProgram(t, p, "", Options{MaxDepth: 2, TapeSize: 16})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.Tape().Current(); got != 9 {
		t.Errorf("cell = %d, want 9", got)
	}
}

func TestRunLoopDepthCountsTowardsLimit(t *testing.T) {
	// Same program, but one level of nesting too deep for the limit.
	p := programOf(ins(OpInc, 1), ins(OpRepNZ, 3), ins(OpInc, 1), ins(OpRepNZ, 1), ins(OpDec, 1))
	_, _, err := runProgram(t, p, "", Options{MaxDepth: 1})
	if !errors.Is(err, ErrRecursionLimit) {
		t.Errorf("err = %v, want ErrRecursionLimit", err)
	}
}

// ============ Run Plumbing Tests ============

func TestRunTrace(t *testing.T) {
	var trace bytes.Buffer
	p := programOf(ins(OpInc, 2), ins(OpRight, 1))
	if _, _, err := runProgram(t, p, "", Options{Trace: &trace}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "exec inc 2\nexec right 1\n"
	if trace.String() != want {
		t.Errorf("trace = %q, want %q", trace.String(), want)
	}
}

func TestRunFlushesOutputOnFailure(t *testing.T) {
	p := programOf(ins(OpInc, 'k'), ins(OpOut, 1), ins(OpLeft, math.MaxInt32))
	_, out, err := runProgram(t, p, "", Options{TapeSize: 16})
	if !errors.Is(err, ErrTapeLeft) {
		t.Fatalf("err = %v, want ErrTapeLeft", err)
	}
	if out != "k" {
		t.Errorf("output = %q, want %q", out, "k")
	}
}

func TestRunCountsSteps(t *testing.T) {
	p := programOf(ins(OpInc, 2), ins(OpRepNZ, 1), ins(OpDec, 1))
	m, _, err := runProgram(t, p, "", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// inc, then repnz tested three times with two passes of dec
	if m.Steps() != 6 {
		t.Errorf("steps = %d, want 6", m.Steps())
	}
}

func TestRunRejectsInvalidProgram(t *testing.T) {
	p := programOf(ins(OpCall, 7))
	_, _, err := runProgram(t, p, "", Options{})
	if !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("err = %v, want ErrInvalidProgram", err)
	}
}

func TestRunTapeRejectsBadHead(t *testing.T) {
	tape := NewTape(4)
	tape.Head = 4
	if err := New(NewProgram(), Options{}).RunTape(tape); err == nil {
		t.Error("expected error for head outside tape")
	}
}

func TestRunEmptyProgram(t *testing.T) {
	_, out, err := runProgram(t, NewProgram(), "ignored", Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "" {
		t.Errorf("output = %q, want empty", out)
	}
}
