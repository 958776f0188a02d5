package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

// Runner runs a list of tests one after the other.
type Runner struct {
	c *Context
	// Examine is run first when any hart's misa is unknown, so later tests
	// can build for the right extensions.
	Examine Definition
}

// NewRunner returns a runner for c.
func NewRunner(c *Context, examine Definition) *Runner {
	return &Runner{c: c, Examine: examine}
}

type entry struct {
	name string
	log  string
}

// Results groups test names and logs by result, in the order results were
// first seen.
type Results struct {
	order  []outcome.Result
	byKind map[outcome.Result][]entry
}

func (r *Results) add(res outcome.Result, name, log string) {
	if r.byKind == nil {
		r.byKind = make(map[outcome.Result][]entry)
	}
	if _, ok := r.byKind[res]; !ok {
		r.order = append(r.order, res)
	}
	r.byKind[res] = append(r.byKind[res], entry{name, log})
}

// Count returns how many tests ended with res.
func (r *Results) Count(res outcome.Result) int { return len(r.byKind[res]) }

// Good reports whether every test passed or was not applicable.
func (r *Results) Good() bool {
	for _, res := range r.order {
		if !res.Good() {
			return false
		}
	}
	return true
}

// Select returns the definitions whose name contains one of filters, or all
// of them when filters is empty.
func Select(defs []Definition, filters []string) []Definition {
	if len(filters) == 0 {
		return defs
	}
	var out []Definition
	for _, d := range defs {
		for _, f := range filters {
			if strings.Contains(d.Name(), f) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Run runs the selected tests and prints a summary. The returned exit code
// is 1 when any test neither passed nor was not applicable.
func (r *Runner) Run(ctx context.Context, defs []Definition, filters []string) (int, error) {
	c := r.c
	todo := Select(defs, filters)
	if c.ListTests {
		for _, d := range todo {
			fmt.Fprintln(c.Out, d.Name())
		}
		return 0, nil
	}
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return 1, fmt.Errorf("harness: %w", err)
	}

	start := time.Now()
	examine := false
	for _, h := range c.Target.Harts {
		switch {
		case h.Misa() != nil:
			fmt.Fprintf(c.Out, "Using $misa from hart definition: 0x%x\n", h.Misa())
		case c.Misa != nil:
			if err := h.SetMisa(c.Misa); err != nil {
				return 1, err
			}
			fmt.Fprintf(c.Out, "Using $misa from command line: 0x%x\n", c.Misa)
		case !examine && r.Examine != nil:
			todo = append([]Definition{r.Examine}, todo...)
			examine = true
		}
	}

	results, count := r.runTests(ctx, todo)
	Header(c.Out, fmt.Sprintf("ran %d tests in %.0fs", count, time.Since(start).Seconds()), ':')
	return r.printResults(results), nil
}

func (r *Runner) runTests(ctx context.Context, todo []Definition) (*Results, int) {
	results := &Results{}
	count := 0
	for _, def := range todo {
		if ctx.Err() != nil {
			break
		}
		res, log := r.runOne(ctx, def)
		results.add(res, def.Name(), log)
		count++
		if !res.Good() && r.c.FailFast {
			break
		}
	}
	return results, count
}

func (r *Runner) runOne(ctx context.Context, def Definition) (outcome.Result, string) {
	c := r.c
	name := def.Name()
	logName := filepath.Join(c.LogDir, fmt.Sprintf("%s-%s-%s.log",
		time.Now().Format("20060102-150405"), c.Target.Name, name))
	fmt.Fprintf(c.Out, "[%s] Starting > %s\n", name, logName)

	start := time.Now()
	f, err := os.Create(logName)
	if err != nil {
		fmt.Fprintf(c.Out, "[%s] %v\n", name, err)
		return outcome.ResultException, logName
	}
	fmt.Fprintf(f, "Test: %s\n", name)
	fmt.Fprintf(f, "Target: %s\n", c.Target.Name)

	glog.Infof("harness: running %s", name)
	res := newT(ctx, c, def, nil, f).run()
	fmt.Fprintf(f, "Result: %s\n", res)
	fmt.Fprintf(f, "Logfile: %s\n", logName)
	fmt.Fprintf(f, "Reproduce: %s %s\n", c.Reproduce, name)
	fmt.Fprintf(f, "Time elapsed: %.2fs\n", time.Since(start).Seconds())
	f.Close()

	fmt.Fprintf(c.Out, "[%s] %s in %.2fs\n", name, res, time.Since(start).Seconds())
	if !res.Good() && c.PrintFailures {
		if data, err := os.ReadFile(logName); err == nil {
			c.Out.Write(data)
		}
	}
	return res, logName
}

func (r *Runner) printResults(results *Results) int {
	code := 0
	for _, res := range results.order {
		entries := results.byKind[res]
		fmt.Fprintf(r.c.Out, "%d tests returned %s\n", len(entries), res)
		if res.Good() {
			continue
		}
		code = 1
		for _, e := range entries {
			fmt.Fprintf(r.c.Out, "   %s > %s\n", e.name, e.log)
		}
	}
	return code
}
