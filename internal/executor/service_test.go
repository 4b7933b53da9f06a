package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/drillbench/drillbench/internal/challenge"
)

type fakeRunner struct {
	fn func(source string) (string, string, error)
}

func (f *fakeRunner) RunSnippet(_ context.Context, source string) (string, string, error) {
	return f.fn(source)
}

func TestValidateCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		rejected bool
	}{
		{"plain function", "def add(a, b):\n    return a + b", false},
		{"math import allowed", "import math\nx = math.sqrt(4)", false},
		{"os import", "import os\nos.listdir('/')", true},
		{"from sys import", "from sys import argv", true},
		{"indented subprocess import", "def f():\n    import subprocess", true},
		{"open call", "f = open('/etc/passwd')", true},
		{"eval call", "eval('1+1')", true},
		{"exec call", "exec('x = 1')", true},
		{"dunder import", "__import__('os')", true},
		{"open as identifier suffix", "def reopen(a):\n    return a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCode(tt.code)
			if tt.rejected && !errors.Is(err, ErrCodeRejected) {
				t.Errorf("ValidateCode() = %v, want ErrCodeRejected", err)
			}
			if !tt.rejected && err != nil {
				t.Errorf("ValidateCode() = %v, want nil", err)
			}
		})
	}
}

func TestBuildProgramFunctionDispatch(t *testing.T) {
	code := "def add(a, b):\n    return a + b"
	program, err := buildProgram(code, []any{float64(1), "two", []any{float64(3)}})
	if err != nil {
		t.Fatalf("buildProgram() error = %v", err)
	}
	if !strings.Contains(program, `print(add(1, "two", [3]))`) {
		t.Errorf("synthesized call missing or wrong:\n%s", program)
	}
	if !strings.HasPrefix(program, code) {
		t.Errorf("submission not preserved at top of program")
	}
}

func TestBuildProgramBareScript(t *testing.T) {
	program, err := buildProgram("x = 40 + 2", nil)
	if err != nil {
		t.Fatalf("buildProgram() error = %v", err)
	}
	if !strings.Contains(program, "print(x)") {
		t.Errorf("bare script missing print(x):\n%s", program)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{float64(3), "3"},
		{float64(3.5), "3.5"},
		{float64(-0.25), "-0.25"},
		{true, "true"},
		{false, "false"},
		{"hello", "hello"},
		{nil, "null"},
		{42, "42"},
	}
	for _, tt := range tests {
		if got := stringify(tt.in); got != tt.want {
			t.Errorf("stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3\n", "3"},
		{"debug output\nfinal\n\n", "final"},
		{"  padded  \n", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := lastLine(tt.in); got != tt.want {
			t.Errorf("lastLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunTestsGradesEachCase(t *testing.T) {
	// The fake echoes the first synthesized argument, so cases whose
	// expectation matches their input pass and the rest fail.
	runner := &fakeRunner{fn: func(source string) (string, string, error) {
		start := strings.Index(source, "print(echo(") + len("print(echo(")
		end := strings.Index(source[start:], ")")
		return source[start:start+end] + "\n", "", nil
	}}
	svc := NewService(runner, time.Second, nil)

	cases := []challenge.TestCase{
		{Input: []any{float64(1)}, Expected: float64(1)},
		{Input: []any{float64(2)}, Expected: float64(99)},
		{Input: []any{float64(3)}, Expected: float64(3)},
	}
	report, err := svc.RunTests(context.Background(), "def echo(v):\n    return v", cases)
	if err != nil {
		t.Fatalf("RunTests() error = %v", err)
	}

	if report.Total != 3 || report.Passed != 2 || report.AllPassed {
		t.Errorf("report = %+v, want total 3 passed 2", report)
	}
	// Order matches the test case order regardless of completion order.
	if !report.Results[0].Passed || report.Results[1].Passed || !report.Results[2].Passed {
		t.Errorf("results out of order: %+v", report.Results)
	}
	if report.Results[1].Output != "2" || report.Results[1].Expected != "99" {
		t.Errorf("failing result = %+v", report.Results[1])
	}
}

func TestRunTestsCrashIsolation(t *testing.T) {
	calls := 0
	runner := &fakeRunner{fn: func(source string) (string, string, error) {
		calls++
		if strings.Contains(source, "print(f(2))") {
			return "", "Traceback (most recent call last):\nZeroDivisionError: division by zero", nil
		}
		return "ok\n", "", nil
	}}
	svc := NewService(runner, time.Second, nil)

	cases := []challenge.TestCase{
		{Input: []any{float64(1)}, Expected: "ok"},
		{Input: []any{float64(2)}, Expected: "ok"},
		{Input: []any{float64(3)}, Expected: "ok"},
	}
	report, err := svc.RunTests(context.Background(), "def f(v):\n    return 'ok'", cases)
	if err != nil {
		t.Fatal(err)
	}

	if calls != 3 {
		t.Errorf("a crashing case aborted siblings: %d calls", calls)
	}
	if report.Passed != 2 {
		t.Errorf("passed = %d, want 2", report.Passed)
	}
	if report.Results[1].Passed || !strings.Contains(report.Results[1].Error, "ZeroDivisionError") {
		t.Errorf("crash result = %+v", report.Results[1])
	}
}

func TestRunTestsTimeout(t *testing.T) {
	runner := &fakeRunner{fn: func(string) (string, string, error) {
		return "", "", ErrTimedOut
	}}
	svc := NewService(runner, 10*time.Millisecond, nil)

	report, err := svc.RunTests(context.Background(), "def loop():\n    return 1",
		[]challenge.TestCase{{Input: nil, Expected: float64(1)}})
	if err != nil {
		t.Fatal(err)
	}
	if report.Results[0].Passed || report.Results[0].Error != "execution timed out" {
		t.Errorf("timeout result = %+v", report.Results[0])
	}
}

func TestRunTestsRejectsBeforeRunning(t *testing.T) {
	runner := &fakeRunner{fn: func(string) (string, string, error) {
		t.Fatal("runner invoked for rejected code")
		return "", "", nil
	}}
	svc := NewService(runner, time.Second, nil)

	_, err := svc.RunTests(context.Background(), "import os\nprint(os.getcwd())",
		[]challenge.TestCase{{Expected: float64(1)}})
	if !errors.Is(err, ErrCodeRejected) {
		t.Errorf("RunTests() error = %v, want ErrCodeRejected", err)
	}
}

func TestRunTestsEmptyCases(t *testing.T) {
	svc := NewService(&fakeRunner{fn: func(string) (string, string, error) { return "", "", nil }}, time.Second, nil)

	report, err := svc.RunTests(context.Background(), "x = 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 0 || report.AllPassed {
		t.Errorf("empty run must not report allPassed: %+v", report)
	}
}
