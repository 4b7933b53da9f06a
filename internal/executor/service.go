package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/drillbench/drillbench/internal/challenge"
)

// ErrCodeRejected is returned when a submission trips the denylist
// before any test case runs.
var ErrCodeRejected = errors.New("code rejected")

// TestResult is the graded outcome of one hidden test case.
type TestResult struct {
	Passed   bool   `json:"passed"`
	Output   string `json:"output"`
	Expected string `json:"expected"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes a full run across all test cases.
type Report struct {
	Total     int          `json:"total"`
	Passed    int          `json:"passed"`
	AllPassed bool         `json:"allPassed"`
	Results   []TestResult `json:"testResults"`
}

var funcDefRe = regexp.MustCompile(`def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

var denylist = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?m)^\s*import\s+(os|sys|subprocess|socket|shutil)\b`), "importing system modules is not allowed"},
	{regexp.MustCompile(`(?m)^\s*from\s+(os|sys|subprocess|socket|shutil)\b`), "importing system modules is not allowed"},
	{regexp.MustCompile(`\b__import__\s*\(`), "dynamic imports are not allowed"},
	{regexp.MustCompile(`\bopen\s*\(`), "file access is not allowed"},
	{regexp.MustCompile(`\beval\s*\(`), "eval is not allowed"},
	{regexp.MustCompile(`\bexec\s*\(`), "exec is not allowed"},
}

// Service grades submissions against hidden test cases. Every case gets
// its own interpreter invocation under a wall-clock limit; a failing or
// crashing case never affects its siblings.
type Service struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(runner Runner, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, timeout: timeout, logger: logger}
}

// ValidateCode runs the denylist over a submission. Coarse by intent:
// cheap screening for an already-sandboxed interpreter, not a parser.
func ValidateCode(code string) error {
	for _, d := range denylist {
		if d.re.MatchString(code) {
			return fmt.Errorf("%w: %s", ErrCodeRejected, d.reason)
		}
	}
	return nil
}

// RunTests validates the submission, then runs every test case
// concurrently and returns results in test-case order.
func (s *Service) RunTests(ctx context.Context, code string, cases []challenge.TestCase) (*Report, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}

	results := make([]TestResult, len(cases))
	var wg sync.WaitGroup
	for i, tc := range cases {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.runCase(ctx, code, tc)
		}()
	}
	wg.Wait()

	report := &Report{Total: len(cases), Results: results}
	for _, r := range results {
		if r.Passed {
			report.Passed++
		}
	}
	report.AllPassed = report.Total > 0 && report.Passed == report.Total

	s.logger.Info("submission graded",
		"total", report.Total,
		"passed", report.Passed,
	)
	return report, nil
}

func (s *Service) runCase(ctx context.Context, code string, tc challenge.TestCase) TestResult {
	expected := stringify(tc.Expected)

	program, err := buildProgram(code, tc.Input)
	if err != nil {
		return TestResult{Expected: expected, Error: err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout, stderr, err := s.runner.RunSnippet(runCtx, program)
	if errors.Is(err, ErrTimedOut) {
		return TestResult{Expected: expected, Error: "execution timed out"}
	}
	if err != nil {
		return TestResult{Expected: expected, Error: fmt.Sprintf("execution failed: %v", err)}
	}
	if strings.TrimSpace(stderr) != "" {
		return TestResult{Expected: expected, Error: strings.TrimSpace(stderr)}
	}

	got := lastLine(stdout)
	return TestResult{
		Passed:   got == expected,
		Output:   got,
		Expected: expected,
	}
}

// buildProgram synthesizes the runnable script for one test case. A
// submission defining a function gets a printed call with the case's
// arguments; a bare script is expected to leave its answer in `x`.
func buildProgram(code string, input []any) (string, error) {
	if m := funcDefRe.FindStringSubmatch(code); m != nil {
		args := make([]string, len(input))
		for i, a := range input {
			b, err := json.Marshal(a)
			if err != nil {
				return "", fmt.Errorf("serialize argument %d: %w", i, err)
			}
			args[i] = string(b)
		}
		return code + "\n\nprint(" + m[1] + "(" + strings.Join(args, ", ") + "))\n", nil
	}
	return code + "\n\nprint(x)\n", nil
}

// lastLine returns the final line of stdout after trimming surrounding
// whitespace, which is the value graded against the expectation.
func lastLine(stdout string) string {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// stringify folds an expected value to its comparison form. Numbers
// drop insignificant fraction digits, so 3.0 compares as "3".
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", x)
	}
}
