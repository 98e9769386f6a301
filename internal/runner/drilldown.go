package runner

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"sparqlbench/internal/allocation"
	"sparqlbench/internal/endpoint"
	"sparqlbench/internal/query"
)

// MaxDrillDownIterations bounds the follow-up executions of one seed query.
const MaxDrillDownIterations = 5

// Generator renders the query of a kind, optionally driven by drill-down parameters.
type Generator interface {
	Generate(kind allocation.Kind, params map[string]string) (query.Query, error)
}

// Executor runs one query on a connection.
type Executor interface {
	Execute(ctx context.Context, conn endpoint.Connection, kind allocation.Kind, q query.Query) (string, error)
}

// DrillDownController chains queries derived from the previous result. Chained
// executions are never reported to the statistics registry.
type DrillDownController struct {
	chains map[string]query.DrillDown
	gen    Generator
	exec   Executor
	rng    *rand.Rand
	log    logrus.FieldLogger
	max    int
}

func NewDrillDownController(chains map[string]query.DrillDown, gen Generator, exec Executor, rng *rand.Rand, log logrus.FieldLogger) *DrillDownController {
	return &DrillDownController{
		chains: chains,
		gen:    gen,
		exec:   exec,
		rng:    rng,
		log:    log,
		max:    MaxDrillDownIterations,
	}
}

// Handles reports whether kind has a drill-down chain.
func (d *DrillDownController) Handles(kind allocation.Kind) bool {
	if kind.Role != allocation.RoleRead {
		return false
	}
	_, ok := d.chains[kind.Name]
	return ok
}

// Run executes up to MaxDrillDownIterations follow-up queries starting from
// result and returns how many were executed. An empty or unusable result ends
// the chain without error; an execution error ends it and is returned.
func (d *DrillDownController) Run(ctx context.Context, conn endpoint.Connection, kind allocation.Kind, result string) (int, error) {
	chain, ok := d.chains[kind.Name]
	if !ok || kind.Role != allocation.RoleRead {
		return 0, nil
	}
	log := d.log.WithField("kind", kind.Name)

	for i := 0; i < d.max; i++ {
		if ctx.Err() != nil {
			return i, nil
		}
		entities, err := chain.Extractor.Extract(result)
		if err != nil {
			log.WithError(err).Warn("drill-down: unreadable result, chain stopped")
			return i, nil
		}
		if len(entities) == 0 {
			return i, nil
		}

		entity := entities[d.rng.Intn(len(entities))]
		params, err := chain.Derive(entity, d.rng)
		if err != nil {
			log.WithError(err).WithField("entity", entity.URI).Warn("drill-down: cannot derive parameters, chain stopped")
			return i, nil
		}
		q, err := d.gen.Generate(kind, params)
		if err != nil {
			log.WithError(err).Warn("drill-down: cannot render query, chain stopped")
			return i, nil
		}

		result, err = d.exec.Execute(ctx, conn, kind, q)
		if err != nil {
			return i, errors.WithMessagef(err, "drill-down step %d", i+1)
		}
		log.Debugf("drill-down step %d with %v", i+1, params)
	}
	return d.max, nil
}
