// Package validation orchestrates the per-metric validation pipeline:
// sanity profile, level and delta intervals, permutation test, fold
// comparison of alternatives, robustness battery and decision gates.
package validation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"hoopval/domain/core"
	"hoopval/domain/stats"
	"hoopval/domain/verdict"
	"hoopval/internal"
	"hoopval/internal/crossval"
	"hoopval/internal/fairness"
	"hoopval/internal/interval"
	"hoopval/internal/montecarlo"
	"hoopval/internal/permutation"
	"hoopval/internal/resample"
	"hoopval/internal/robustness"
	"hoopval/internal/sanity"
	"hoopval/internal/telemetry"
	"hoopval/ports"
)

// Stage names recorded on issues
const (
	StageSanity      = "sanity"
	StageLevel       = "level"
	StageDelta       = "delta"
	StageTest        = "permutation"
	StageDifference  = "difference"
	StageAlternative = "cross_validation"
	StageRobustness  = "robustness"
	StageCorrelation = "correlation"
	StageFairness    = "fairness"
)

// Config holds run-wide parameters
type Config struct {
	ConfidenceLevel     float64
	BootstrapIterations int
	Shuffles            int
	FoldCount           int
	FoldStrategy        stats.FoldStrategy
	Seed                int64

	// Workers bounds Monte-Carlo chunk parallelism, MetricWorkers the
	// number of metrics evaluated at once. <= 0 means GOMAXPROCS.
	Workers       int
	MetricWorkers int

	Robustness robustness.Config
	Fairness   fairness.Config
}

// DefaultConfig returns the standard run parameters
func DefaultConfig() Config {
	return Config{
		ConfidenceLevel:     0.95,
		BootstrapIterations: 5000,
		Shuffles:            10000,
		FoldCount:           5,
		FoldStrategy:        stats.FoldContiguous,
		Seed:                42,
		Robustness:          robustness.DefaultConfig(),
		Fairness:            fairness.DefaultConfig(),
	}
}

// Validate checks the scalar parameters; the robustness battery is checked
// when the pipeline is built
func (c Config) Validate() error {
	if err := interval.ValidateLevel(c.ConfidenceLevel); err != nil {
		return err
	}
	if c.BootstrapIterations < 1 {
		return core.NewConfigurationError("bootstrap_iterations", fmt.Sprintf("must be at least 1, got %d", c.BootstrapIterations))
	}
	if c.Shuffles < 1 {
		return core.NewConfigurationError("shuffles", fmt.Sprintf("must be at least 1, got %d", c.Shuffles))
	}
	if c.FoldCount < 2 {
		return core.NewConfigurationError("fold_count", fmt.Sprintf("must be at least 2, got %d", c.FoldCount))
	}
	return nil
}

// Pipeline evaluates batches of metric inputs. It holds no per-run state and
// may be shared between concurrent runs.
type Pipeline struct {
	cfg       Config
	estimator *interval.Estimator
	tester    *permutation.Tester
	validator *crossval.Validator
	suite     *robustness.Suite
	analyzer  *sanity.Analyzer
	shares    *fairness.Analyzer
	logger    *internal.Logger
}

// NewPipeline wires the engines on a shared random port
func NewPipeline(cfg Config, rng ports.RNGPort, logger *internal.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	runner := montecarlo.NewRunner(rng, cfg.Workers)
	estimator := interval.NewEstimator(resample.NewEngine(runner), rng, cfg.BootstrapIterations, cfg.Seed)

	validator, err := crossval.NewValidator(crossval.Config{Strategy: cfg.FoldStrategy, Seed: cfg.Seed}, rng)
	if err != nil {
		return nil, err
	}

	rcfg := cfg.Robustness
	if rcfg.ConfidenceLevel == 0 {
		rcfg.ConfidenceLevel = cfg.ConfidenceLevel
	}
	suite, err := robustness.NewDefaultSuite(rcfg, estimator, validator)
	if err != nil {
		return nil, err
	}
	shares, err := fairness.NewAnalyzer(cfg.Fairness)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		estimator: estimator,
		tester:    permutation.NewTester(runner, rng, cfg.Seed),
		validator: validator,
		suite:     suite,
		analyzer:  sanity.NewAnalyzer(estimator),
		shares:    shares,
		logger:    logger,
	}, nil
}

// Config returns the run parameters
func (p *Pipeline) Config() Config { return p.cfg }

// Run validates every input, then evaluates metrics concurrently. A
// configuration error aborts before any computation; data problems are
// recorded as issues on the affected record. Records keep input order.
func (p *Pipeline) Run(ctx context.Context, inputs []MetricInput) (run verdict.Run, err error) {
	defer func() { telemetry.ObserveRun(err) }()

	if err := p.validateInputs(inputs); err != nil {
		return verdict.Run{}, err
	}

	run = verdict.Run{ID: core.NewRunID(), Seed: p.cfg.Seed, StartedAt: core.Now()}
	logger := p.logger.WithField("run", run.ID.String())
	logger.Info("validating %d metrics (seed %d)", len(inputs), p.cfg.Seed)

	records := make([]verdict.ValidationRecord, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.metricWorkers())
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			rec, err := p.evaluate(in)
			if err != nil {
				return fmt.Errorf("metric %s: %w", in.Key(), err)
			}
			rec.RunID = run.ID
			records[i] = rec

			elapsed := time.Since(started)
			telemetry.ObserveRecord(rec, elapsed)
			logger.WithField("metric", in.Key().String()).Debug("evaluated in %v with %d issues", elapsed, len(rec.Issues))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("run aborted: %v", err)
		return verdict.Run{}, err
	}

	run.Records = records
	run.FinishedAt = core.Now()
	logger.Info("run complete: %d records", len(records))
	return run, nil
}

func (p *Pipeline) metricWorkers() int {
	if p.cfg.MetricWorkers > 0 {
		return p.cfg.MetricWorkers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Pipeline) validateInputs(inputs []MetricInput) error {
	if len(inputs) == 0 {
		return core.NewConfigurationError("inputs", "no metrics to validate")
	}
	seen := make(map[core.SeriesKey]struct{}, len(inputs))
	for i, in := range inputs {
		if err := in.validate(p.cfg.FoldCount); err != nil {
			return fmt.Errorf("input %d (%s): %w", i, in.Key(), err)
		}
		if _, dup := seen[in.Key()]; dup {
			return core.NewConfigurationError("inputs", fmt.Sprintf("duplicate metric %s", in.Key()))
		}
		seen[in.Key()] = struct{}{}
	}
	return nil
}

// evaluate produces the record for one input. Only configuration errors are
// returned; everything else becomes an issue on the record.
func (p *Pipeline) evaluate(in MetricInput) (verdict.ValidationRecord, error) {
	key := in.Key()
	level := p.cfg.ConfidenceLevel
	agg, err := resample.AggregatorByName(in.AggregatorName())
	if err != nil {
		return verdict.ValidationRecord{}, err
	}

	rec := verdict.ValidationRecord{Key: key, Aggregator: agg.Name}
	stage := stageRecorder{rec: &rec}

	// Sanity and level
	rec.Sanity = p.analyzer.Profile(in.levelSeries())
	if !rec.Sanity.Defined && rec.Sanity.Total > 0 {
		stage.undefined(StageSanity, fmt.Sprintf("%s: too few valid observations for quartile fences", key))
	}

	if len(in.levelSeries()) == 0 && in.Alternatives != nil {
		rec.Level = stats.UndefinedInterval(level, "input carries alternatives only")
	} else {
		rec.Level, err = p.estimator.Estimate(stats.NewSample(key, in.levelSeries()), agg, level)
		if err := stage.check(StageLevel, err); err != nil {
			return rec, err
		}
		if err == nil && !rec.Level.Defined {
			stage.undefined(StageLevel, rec.Level.Reason)
		}
	}

	// Pre/post comparison
	if in.HasPaired() {
		if err := p.evaluatePaired(&rec, &stage, in); err != nil {
			return rec, err
		}
	}

	// Competing alternatives
	if in.Alternatives != nil {
		if err := p.evaluateAlternatives(&rec, &stage, in); err != nil {
			return rec, err
		}
	}

	// Robustness battery
	if !in.SkipRobustness {
		p.evaluateRobustness(&rec, &stage, in)
	}

	rec.Gates = gates(rec, in)

	// Volume/efficiency correlation
	if len(in.Volume) > 0 {
		check, err := p.analyzer.VolumeCorrelation(key, in.Values, in.Volume, level)
		if err := stage.check(StageCorrelation, err); err != nil {
			return rec, err
		}
		if err == nil {
			rec.Correlation = &check
			if !check.Defined {
				stage.undefined(StageCorrelation, check.Reason)
			}
		}
	}

	// Group share shifts
	if in.Shares != nil {
		report, err := p.shares.Analyze(key, *in.Shares)
		if err := stage.check(StageFairness, err); err != nil {
			return rec, err
		}
		if err == nil {
			rec.Fairness = &report
		}
	}

	rec.ComputedAt = core.Now()
	return rec, nil
}

func (p *Pipeline) evaluatePaired(rec *verdict.ValidationRecord, stage *stageRecorder, in MetricInput) error {
	key := in.Key()
	level := p.cfg.ConfidenceLevel

	paired, err := stats.NewPairedSample(key, in.Pre, in.Post)
	if err != nil {
		return err
	}

	delta, err := p.estimator.EstimatePairedDelta(paired, level)
	if err := stage.check(StageDelta, err); err != nil {
		return err
	}
	if err == nil {
		rec.Delta = &delta
		if !delta.Defined {
			stage.undefined(StageDelta, delta.Reason)
		}
	}

	post := phaseSample(key, GroupPost, paired.Post)
	pre := phaseSample(key, GroupPre, paired.Pre)
	p.runTest(rec, stage, post, pre)
	return p.runDifference(rec, stage, post, pre)
}

func (p *Pipeline) evaluateAlternatives(rec *verdict.ValidationRecord, stage *stageRecorder, in MetricInput) error {
	alt := in.Alternatives
	metric, err := crossval.MetricByName(alt.FoldMetric)
	if err != nil {
		return err
	}

	comparison, err := p.validator.Compare(in.Key(), alt.LabelA, alt.A, alt.LabelB, alt.B, alt.folds(p.cfg.FoldCount), metric)
	if err := stage.check(StageAlternative, err); err != nil {
		return err
	}
	if err == nil {
		rec.Alternative = &comparison
	}

	a := phaseSample(in.Key(), alt.LabelA, observationValues(alt.A))
	b := phaseSample(in.Key(), alt.LabelB, observationValues(alt.B))
	if rec.Test == nil {
		p.runTest(rec, stage, a, b)
	}
	if rec.Difference == nil {
		return p.runDifference(rec, stage, a, b)
	}
	return nil
}

func (p *Pipeline) runTest(rec *verdict.ValidationRecord, stage *stageRecorder, a, b stats.Sample) {
	result, err := p.tester.Test(a, b, p.cfg.Shuffles)
	if err != nil {
		stage.record(StageTest, err)
		return
	}
	rec.Test = &result
	switch {
	case !result.Defined:
		stage.undefined(StageTest, result.Reason)
	case result.Degenerate:
		stage.degenerate(StageTest, fmt.Sprintf("%s vs %s: pooled standard deviation is zero, effect size undefined", a.Key, b.Key))
	}
}

func (p *Pipeline) runDifference(rec *verdict.ValidationRecord, stage *stageRecorder, a, b stats.Sample) error {
	diff, err := p.estimator.EstimateDifference(a, b, p.cfg.ConfidenceLevel)
	if err := stage.check(StageDifference, err); err != nil {
		return err
	}
	if err == nil {
		rec.Difference = &diff
		if !diff.Defined {
			stage.undefined(StageDifference, diff.Reason)
		}
	}
	return nil
}

func (p *Pipeline) evaluateRobustness(rec *verdict.ValidationRecord, stage *stageRecorder, in MetricInput) {
	obs := in.observations()
	spec := in.effectSpec(obs)

	effect, err := spec.Compute(obs)
	if err != nil {
		stage.record(StageRobustness, err)
		return
	}

	baseline := robustness.Baseline{Effect: effect}
	switch {
	case spec.Kind == robustness.EffectLevel && spec.Basis == stats.BasisPerGame && rec.Level.Defined:
		baseline.Interval = &rec.Level
	case spec.Kind == robustness.EffectContrast && rec.Difference != nil && rec.Difference.Defined:
		baseline.Interval = rec.Difference
	}

	ds := robustness.Dataset{Key: in.Key(), Observations: obs, Effect: spec}
	if alt := in.Alternatives; alt != nil {
		metric, _ := crossval.MetricByName(alt.FoldMetric)
		ds.Alternatives = &robustness.Alternatives{
			LabelA:    alt.LabelA,
			LabelB:    alt.LabelB,
			A:         alt.A,
			B:         alt.B,
			FoldCount: alt.folds(p.cfg.FoldCount),
			Metric:    metric,
		}
	}

	result := p.suite.Evaluate(baseline, ds)
	rec.Robustness = &result
	if result.Insufficient {
		stage.undefined(StageRobustness, fmt.Sprintf("%s: only %d of %d robustness checks apply, %d passes required",
			in.Key(), result.ApplicableCount, len(result.Checks), result.RequiredPassCount))
	}
	if !stats.IsFinite(effect) || effect == 0 {
		stage.degenerate(StageRobustness, fmt.Sprintf("%s: baseline effect is zero, no direction to preserve", in.Key()))
	}
}

// gates evaluates the statistical and practical criteria on the delta
// interval, or the difference interval when there is no pre/post delta
func gates(rec verdict.ValidationRecord, in MetricInput) verdict.DecisionGates {
	g := verdict.DecisionGates{DesiredDecrease: in.DesiredDecrease}
	ci := rec.Delta
	if ci == nil || !ci.Defined {
		ci = rec.Difference
	}
	if ci == nil || !ci.Defined {
		return g
	}

	statistical := ci.ExcludesZero()
	g.Statistical = &statistical

	if in.MinimumEffect != nil {
		g.MinimumEffect = *in.MinimumEffect
		effect := ci.PointEstimate
		if in.DesiredDecrease {
			effect = -effect
		}
		practical := effect >= *in.MinimumEffect
		g.Practical = &practical
	}
	return g
}

// phaseSample keys one side of a comparison as metric#phase/entity
func phaseSample(key core.SeriesKey, phase string, values []float64) stats.Sample {
	key.Metric = core.MetricKey(string(key.Metric) + "#" + phase)
	return stats.NewSample(key, values)
}

// stageRecorder turns per-stage errors into issues on a record
type stageRecorder struct {
	rec *verdict.ValidationRecord
}

// check records err as an issue unless it is a configuration error, which is
// returned to abort the run
func (s *stageRecorder) check(stage string, err error) error {
	if err == nil {
		return nil
	}
	if core.IsConfigurationError(err) {
		return err
	}
	s.record(stage, err)
	return nil
}

func (s *stageRecorder) record(stage string, err error) {
	code := verdict.IssueInternal
	switch {
	case core.IsInsufficientData(err):
		code = verdict.IssueInsufficientData
	case core.IsDegenerate(err):
		code = verdict.IssueDegenerate
	}
	s.add(stage, code, err.Error())
}

func (s *stageRecorder) undefined(stage, reason string) {
	s.add(stage, verdict.IssueInsufficientData, reason)
}

func (s *stageRecorder) degenerate(stage, reason string) {
	s.add(stage, verdict.IssueDegenerate, reason)
}

func (s *stageRecorder) add(stage string, code verdict.IssueCode, message string) {
	s.rec.Issues = append(s.rec.Issues, verdict.Issue{Stage: stage, Code: code, Message: message})
}
