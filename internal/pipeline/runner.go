// Package pipeline runs simulated investigations and publishes their
// observations to a session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/procurewatch/investigator/internal/config"
	"github.com/procurewatch/investigator/internal/event"
	"github.com/procurewatch/investigator/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrInvestigationFailed is returned by Run when the simulated worker
// crashes and the session receives a final error.
var ErrInvestigationFailed = errors.New("investigation failed")

// Emitter delivers one observation to every client of a session.
type Emitter interface {
	Publish(sessionID string, ev event.Event) error
}

// Awaiter blocks until a session has at least one client.
type Awaiter interface {
	WaitForClient(ctx context.Context, sessionID string) error
}

type Options struct {
	Tasks        []config.TaskDef
	StepInterval time.Duration
	FailureRate  float64
	CrashRate    float64
	Seed         int64
	// AwaitClient bounds how long Run waits for the first channel client
	// before it starts publishing. Zero disables the wait.
	AwaitClient time.Duration
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Runner walks the configured task list for one tender at a time per
// call. Calls may run concurrently.
type Runner struct {
	emit    Emitter
	await   Awaiter
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRunner(emit Emitter, opts Options) *Runner {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Runner{
		emit:    emit,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "pipeline").Logger(),
		metrics: opts.Metrics,
		now:     now,
		rng:     rand.New(rand.NewSource(seed)),
	}
	if a, ok := emit.(Awaiter); ok {
		r.await = a
	}
	return r
}

// taskPlan is the pre-drawn outcome of one task.
type taskPlan struct {
	def      config.TaskDef
	passed   bool
	findings int
}

type runPlan struct {
	tasks   []taskPlan
	crashAt int // index of the task that crashes, -1 for none
}

func (r *Runner) plan() runPlan {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := runPlan{crashAt: -1}
	for _, def := range r.opts.Tasks {
		tp := taskPlan{def: def, passed: r.rng.Float64() >= r.opts.FailureRate}
		if !tp.passed {
			tp.findings = 1 + r.rng.Intn(4)
		}
		p.tasks = append(p.tasks, tp)
	}
	if len(p.tasks) > 0 && r.opts.CrashRate > 0 && r.rng.Float64() < r.opts.CrashRate {
		p.crashAt = r.rng.Intn(len(p.tasks))
	}
	return p
}

// Run performs one investigation, publishing narration, per-task
// outcomes and a final result or error. It returns ctx.Err() if cancelled
// before the final observation.
func (r *Runner) Run(ctx context.Context, tenderID, sessionID string) error {
	log := r.log.With().Str("session", sessionID).Str("tender", tenderID).Logger()
	r.metrics.InvestigationStarted()

	if r.await != nil && r.opts.AwaitClient > 0 {
		wctx, cancel := context.WithTimeout(ctx, r.opts.AwaitClient)
		err := r.await.WaitForClient(wctx, sessionID)
		cancel()
		if err != nil && ctx.Err() == nil {
			log.Warn().Dur("waited", r.opts.AwaitClient).Msg("no channel client yet, starting anyway")
		}
	}

	p := r.plan()
	log.Info().Int("tasks", len(p.tasks)).Bool("crash", p.crashAt >= 0).Msg("investigation started")

	steps := []string{
		fmt.Sprintf("Fetching tender data for %s...", tenderID),
		"Retrieving tender metadata from API...",
		"Fetching tender documents...",
		"Tender data processing complete",
		"Tasks loaded. Ready for ranking.",
	}
	for _, msg := range steps {
		if err := r.pause(ctx); err != nil {
			return err
		}
		r.publish(sessionID, event.Log(r.now(), msg, ""))
	}

	results := make([]event.TaskResult, 0, len(p.tasks))
	for i, tp := range p.tasks {
		if i == p.crashAt {
			return r.fail(sessionID, tp, log)
		}
		res, err := r.investigate(ctx, sessionID, i+1, tp)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if err := r.pause(ctx); err != nil {
		return err
	}
	final := event.Result(r.now(), "Investigation completed", "")
	final.Tasks = results
	final.WorkflowSummary = Summarize(tenderID, results)
	final.Status = "completed"
	r.publish(sessionID, final)

	r.metrics.InvestigationFinished("completed")
	log.Info().Msg("investigation completed")
	return nil
}

func (r *Runner) investigate(ctx context.Context, sessionID string, n int, tp taskPlan) (event.TaskResult, error) {
	def := tp.def
	narrate := func(msg string) error {
		if err := r.pause(ctx); err != nil {
			return err
		}
		r.publish(sessionID, event.Log(r.now(), msg, def.Code))
		return nil
	}

	if err := narrate(fmt.Sprintf("Investigation %d starting for Task %d (%s)...", n, def.ID, def.Code)); err != nil {
		return event.TaskResult{}, err
	}
	for _, step := range def.Steps {
		if err := narrate(fmt.Sprintf("Task %d: %s", def.ID, step)); err != nil {
			return event.TaskResult{}, err
		}
	}
	if err := narrate(fmt.Sprintf("Task %d: Agent completed. Found %d anomalies", def.ID, tp.findings)); err != nil {
		return event.TaskResult{}, err
	}
	if err := narrate(fmt.Sprintf("Task %d investigation complete. Validation passed: %s", def.ID, pyBool(tp.passed))); err != nil {
		return event.TaskResult{}, err
	}

	summary := "No irregularities found."
	if !tp.passed {
		summary = fmt.Sprintf("%d irregularities found in %s.", tp.findings, strings.ToLower(def.Name))
	}
	return event.TaskResult{
		TaskID:           def.ID,
		TaskCode:         def.Code,
		TaskName:         def.Name,
		Severity:         def.Severity,
		ValidationPassed: tp.passed,
		FindingsCount:    tp.findings,
		Summary:          summary,
	}, nil
}

func (r *Runner) fail(sessionID string, tp taskPlan, log zerolog.Logger) error {
	cause := fmt.Sprintf("worker crashed during task %s", tp.def.Code)
	r.publish(sessionID, event.Log(r.now(), "ERROR: "+cause, tp.def.Code))

	ev := event.Error(r.now(), "Investigation failed: "+cause, "")
	ev.Status = "error"
	r.publish(sessionID, ev)

	r.metrics.InvestigationFinished("error")
	log.Warn().Str("task", tp.def.Code).Msg("investigation failed")
	return fmt.Errorf("%w: %s", ErrInvestigationFailed, cause)
}

func (r *Runner) publish(sessionID string, ev event.Event) {
	if err := r.emit.Publish(sessionID, ev); err != nil {
		r.log.Warn().Err(err).Str("session", sessionID).Stringer("type", ev.Kind).Msg("publish failed")
	}
}

func (r *Runner) pause(ctx context.Context) error {
	if r.opts.StepInterval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.opts.StepInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Summarize renders the markdown workflow summary for a finished run.
func Summarize(tenderID string, results []event.TaskResult) string {
	passed := 0
	for _, r := range results {
		if r.ValidationPassed {
			passed++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Investigation summary for tender %s\n\n", tenderID)
	fmt.Fprintf(&b, "%d of %d checks passed.\n\n", passed, len(results))
	b.WriteString("| Task | Name | Severity | Result | Findings |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range results {
		verdict := "passed"
		if !r.ValidationPassed {
			verdict = "**failed**"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n", r.TaskCode, r.TaskName, r.Severity, verdict, r.FindingsCount)
	}

	var failed []string
	for _, r := range results {
		if !r.ValidationPassed {
			failed = append(failed, fmt.Sprintf("- **%s**: %s", r.TaskCode, r.Summary))
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n### Findings\n\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
