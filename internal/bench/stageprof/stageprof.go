// Package stageprof times the stages of repeated forward passes and tags
// the goroutines running them with pprof labels, so a CPU profile can be
// split by stage.
package stageprof

import (
	"context"
	"fmt"
	"io"
	"runtime/pprof"
	"sync"
	"time"
)

// Stage is the accumulated cost of one named stage.
type Stage struct {
	Name  string
	Total time.Duration
	Calls int
}

// Profiler implements mixer.Tracer.
type Profiler struct {
	mu     sync.Mutex
	stages map[string]*Stage
	order  []string
}

func New() *Profiler {
	return &Profiler{stages: make(map[string]*Stage)}
}

// Begin labels the calling goroutine with stage=name until the returned
// function runs. Goroutines started inside the stage inherit the label.
func (p *Profiler) Begin(name string) func() {
	ctx := pprof.WithLabels(context.Background(), pprof.Labels("stage", name))
	pprof.SetGoroutineLabels(ctx)

	start := time.Now()

	return func() {
		elapsed := time.Since(start)

		pprof.SetGoroutineLabels(context.Background())

		p.mu.Lock()
		defer p.mu.Unlock()

		st, ok := p.stages[name]
		if !ok {
			st = &Stage{Name: name}
			p.stages[name] = st
			p.order = append(p.order, name)
		}

		st.Total += elapsed
		st.Calls++
	}
}

// Stages returns the stages in first-seen order.
func (p *Profiler) Stages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stage, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, *p.stages[name])
	}

	return out
}

// Reset drops everything recorded so far, e.g. after warmup runs.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stages = make(map[string]*Stage)
	p.order = nil
}

// Report writes the average duration per call and the share of the total
// for every stage.
func (p *Profiler) Report(w io.Writer) {
	stages := p.Stages()

	var total time.Duration
	for _, st := range stages {
		total += st.Total
	}

	for _, st := range stages {
		avg := st.Total.Seconds() * 1000 / float64(max(st.Calls, 1))
		fmt.Fprintf(w, "avg_%s_ms: %.3f\n", st.Name, avg)
	}

	if total <= 0 {
		return
	}

	for _, st := range stages {
		fmt.Fprintf(w, "share_%s_pct: %.2f\n", st.Name, 100*st.Total.Seconds()/total.Seconds())
	}
}
