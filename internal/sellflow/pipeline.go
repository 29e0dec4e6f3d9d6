// Package sellflow implements the ordered sell decision pipeline: an
// evaluate state machine run once per open position per tick. Steps
// receive the shared SellContext, may mutate the evolving verdict and
// halt the chain by finalizing it. Each step is panic-isolated so one
// failing policy cannot block the rest; failures degrade to hold.
package sellflow

import (
	"context"
	"fmt"
	"log"
	"os"

	"solana-sniper/internal/domain"
)

// StepFunc evaluates one policy against the context. The returned note
// is recorded in the decision trace.
type StepFunc func(ctx context.Context, sc *domain.SellContext) (string, error)

// Step is one named pipeline stage.
type Step struct {
	Name string
	Run  StepFunc
}

// Pipeline runs an ordered list of steps over a SellContext.
type Pipeline struct {
	steps []Step
	log   *log.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger overrides the pipeline logger.
func WithLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline builds a pipeline from the given steps.
func NewPipeline(steps []Step, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		steps: steps,
		log:   log.New(os.Stdout, "[sellflow] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the steps in order until one finalizes the context or
// the list is exhausted. Step errors and panics are logged and the
// chain continues; the verdict is whatever the steps left behind.
func (p *Pipeline) Evaluate(ctx context.Context, sc *domain.SellContext) {
	for _, st := range p.steps {
		note, err := p.runStep(ctx, st, sc)
		if err != nil {
			p.log.Printf("step %s failed for %s: %v", st.Name, sc.Mint, err)
			if note == "" {
				note = err.Error()
			}
		}
		sc.Trace = append(sc.Trace, domain.StepTrace{
			Step:     st.Name,
			Decision: sc.Decision,
			Note:     note,
		})
		if sc.Stop {
			return
		}
	}
}

// runStep isolates a single step, converting panics into errors.
func (p *Pipeline) runStep(ctx context.Context, st Step, sc *domain.SellContext) (note string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", st.Name, r)
		}
	}()
	return st.Run(ctx, sc)
}
