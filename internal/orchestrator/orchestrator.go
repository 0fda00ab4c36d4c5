// Package orchestrator drives a scoring run end to end: load models and
// inputs, build each community, score it on each medium, and hand the
// accumulated rows to the reporter.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/api/schemas"
	"github.com/cdanielmachado/smetana/internal/community"
	"github.com/cdanielmachado/smetana/internal/config"
	"github.com/cdanielmachado/smetana/internal/environment"
	"github.com/cdanielmachado/smetana/internal/model"
	"github.com/cdanielmachado/smetana/internal/reporting"
	"github.com/cdanielmachado/smetana/internal/scores"
	"github.com/cdanielmachado/smetana/internal/solver"
)

// Orchestrator runs one scoring job as described by the configuration.
type Orchestrator struct {
	cfg      *config.Config
	log      *zap.Logger
	solver   solver.Solver
	reporter reporting.Reporter
}

// New assembles an orchestrator. The reporter may be nil, in which case a
// TSV reporter under the configured output prefix is used.
func New(cfg *config.Config, log *zap.Logger, reporter reporting.Reporter) (*Orchestrator, error) {
	s, err := backendFor(cfg)
	if err != nil {
		return nil, err
	}
	if reporter == nil {
		if reporter, err = reporting.New(cfg.Run.Format, cfg.Run.Output, log); err != nil {
			return nil, err
		}
	}
	return &Orchestrator{
		cfg:      cfg,
		log:      log.With(zap.String("component", "orchestrator")),
		solver:   s,
		reporter: reporter,
	}, nil
}

func backendFor(cfg *config.Config) (solver.Solver, error) {
	switch cfg.Solver.Backend {
	case "", "gonum":
		return solver.WithTimeout(solver.NewGonum(), cfg.Solver.SolveTimeout), nil
	default:
		return nil, fmt.Errorf("unknown solver backend %q", cfg.Solver.Backend)
	}
}

// Run executes the whole job and writes the result tables.
func (o *Orchestrator) Run(ctx context.Context) error {
	rs, err := o.Compute(ctx)
	if err != nil {
		return err
	}
	return o.reporter.Write(rs)
}

// Compute executes the job and returns the accumulated rows without
// writing them.
func (o *Orchestrator) Compute(ctx context.Context) (*schemas.ResultSet, error) {
	run := &o.cfg.Run

	cache, err := model.NewCache(run.Models)
	if err != nil {
		return nil, err
	}
	comms, err := loadCommunities(run.Communities, cache)
	if err != nil {
		return nil, err
	}
	media, db, err := o.loadMedia()
	if err != nil {
		return nil, err
	}
	var excluded map[string]bool
	if run.Exclude != "" {
		if excluded, err = environment.LoadExcluded(run.Exclude); err != nil {
			return nil, err
		}
	}

	rs := schemas.NewResultSet()
	for _, spec := range comms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := o.scoreCommunity(ctx, rs, cache, spec, media, db, excluded); err != nil {
			var berr *community.BuildError
			if errors.As(err, &berr) {
				o.log.Warn("skipping community",
					zap.String("community", spec.ID),
					zap.Error(berr))
				continue
			}
			return nil, err
		}
	}
	return rs, nil
}

func (o *Orchestrator) loadMedia() ([]string, *environment.MediaDB, error) {
	run := &o.cfg.Run
	media := run.Media
	if len(media) == 0 {
		media = []string{environment.CompleteName}
	}
	var db *environment.MediaDB
	if run.MediaDB != "" {
		var err error
		if db, err = environment.LoadMediaDB(run.MediaDB); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range media {
		if name != environment.CompleteName && name != environment.MinimalName && db == nil {
			return nil, nil, fmt.Errorf("medium %q requires a media db", name)
		}
	}
	return media, db, nil
}

func (o *Orchestrator) scoreCommunity(ctx context.Context, rs *schemas.ResultSet, cache *model.Cache, spec communitySpec, media []string, db *environment.MediaDB, excluded map[string]bool) error {
	models := make([]*model.Model, 0, len(spec.Organisms))
	for _, org := range spec.Organisms {
		m, err := cache.Get(org)
		if err != nil {
			return &community.BuildError{Organism: org, Reason: err.Error()}
		}
		models = append(models, m)
	}

	coupling := 0.0
	if o.cfg.Run.Mode == config.ModeDetailed {
		coupling = o.cfg.Detailed.CouplingFraction
	}
	com, err := community.Build(spec.ID, models, community.Options{CouplingFraction: coupling})
	if err != nil {
		return err
	}
	o.log.Info("community built",
		zap.String("community", spec.ID),
		zap.Int("size", com.Size()),
		zap.Int("variables", com.Problem().NumVariables()))

	for _, name := range media {
		env := environment.Complete()
		switch name {
		case environment.CompleteName:
		case environment.MinimalName:
			var status solver.Status
			env, status, err = scores.MinimalEnvironment(ctx, o.solver, com,
				o.cfg.Solver.MaxUptake, o.cfg.Solver.MinGrowth, excluded)
			if status != solver.StatusOptimal {
				o.log.Warn("community has no minimal environment",
					zap.String("community", spec.ID),
					zap.Stringer("status", status),
					zap.Error(err))
				continue
			}
		default:
			if env, err = db.Get(name); err != nil {
				return err
			}
		}
		if err := o.scoreMedium(ctx, rs, com, env, excluded); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) scoreMedium(ctx context.Context, rs *schemas.ResultSet, com *community.Community, env *environment.Environment, excluded map[string]bool) error {
	detailed := o.detailedCalculator(excluded)

	switch o.cfg.Run.Mode {
	case config.ModeGlobal:
		global := &scores.GlobalCalculator{
			Solver:    o.solver,
			Log:       o.log.With(zap.String("component", "global_scores")),
			MaxUptake: o.cfg.Solver.MaxUptake,
			MinGrowth: o.cfg.Solver.MinGrowth,
			Excluded:  excluded,
		}
		gres, err := global.Compute(ctx, com, env)
		if err != nil {
			return err
		}

		// The community-level cross-feeding total never requires coupling.
		detailed.IgnoreCoupling = true
		dres, err := detailed.Compute(ctx, com, env)
		if err != nil {
			return err
		}
		records := scores.Aggregate(com, dres, env.Name(), scores.AggregateOptions{
			Excluded:       excluded,
			IgnoreCoupling: true,
		})

		rs.Global = append(rs.Global, schemas.GlobalRecord{
			Community: com.ID,
			Medium:    env.Name(),
			Size:      com.Size(),
			MIP:       gres.MIP,
			MRO:       gres.MRO,
			SMETANA:   scores.Total(dres, records),
		})
		o.noteNonGrowing(rs, com.ID, gres.NonGrowing)
		o.noteNonGrowing(rs, com.ID, dres.NonGrowing)

	case config.ModeDetailed:
		detailed.IgnoreCoupling = o.cfg.Detailed.IgnoreCoupling
		dres, err := detailed.Compute(ctx, com, env)
		if err != nil {
			return err
		}
		records := scores.Aggregate(com, dres, env.Name(), scores.AggregateOptions{
			Zeros:          o.cfg.Run.Zeros,
			Excluded:       excluded,
			IgnoreCoupling: detailed.IgnoreCoupling,
		})
		rs.Detailed = append(rs.Detailed, records...)
		o.noteNonGrowing(rs, com.ID, dres.NonGrowing)

	default:
		return fmt.Errorf("unknown mode %q", o.cfg.Run.Mode)
	}
	return nil
}

func (o *Orchestrator) detailedCalculator(excluded map[string]bool) *scores.DetailedCalculator {
	seed := o.cfg.Detailed.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &scores.DetailedCalculator{
		Solver:       o.solver,
		Log:          o.log.With(zap.String("component", "detailed_scores")),
		MaxUptake:    o.cfg.Solver.MaxUptake,
		MinGrowth:    o.cfg.Solver.MinGrowth,
		AbsTol:       o.cfg.Solver.AbsTol,
		Excluded:     excluded,
		Trials:       o.cfg.Detailed.Trials,
		Perturbation: o.cfg.Detailed.Perturbation,
		Seed:         seed,
		Workers:      o.cfg.Engine.Workers,
	}
}

func (o *Orchestrator) noteNonGrowing(rs *schemas.ResultSet, communityID string, orgs []string) {
	for _, org := range orgs {
		if !contains(rs.NonGrowing[communityID], org) {
			rs.NonGrowing[communityID] = append(rs.NonGrowing[communityID], org)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
