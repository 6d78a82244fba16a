package scan

import (
	"context"
	"math/rand"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"scan/internal/atomicfloat"
	"scan/internal/numset"
	"scan/internal/tsys"
)

// RunFunc executes one independent run of the system under check to
// completion, given an independently-seeded RNG, and returns its outcome.
// Callers typically close over a fresh Clone of the model and a fresh
// pmtl.Oracle per call, then delegate to tsys.Experiment.
type RunFunc func(rng *rand.Rand) tsys.RunOutcome

// Config holds the scheduler's stopping criteria and concurrency.
//
// MaxSteps and MaxDuration are per-run caps, not thresholds ParAdaptive
// itself enforces: callers bake them into a tsys.Limits passed to
// tsys.Experiment inside their RunFunc, so a system that never deadlocks
// and never violates a guarantee still terminates Incomplete instead of
// running forever.
type Config struct {
	Confidence  float64
	Precision   float64
	Workers     int
	Seed        int64
	MaxSteps    uint64
	MaxDuration numset.Time
}

// Counters tallies run outcomes as they arrive at the estimator goroutine.
// Only the estimator goroutine ever writes or reads these fields, including
// SuccessRate's atomic cell (read by the stopping check and by snapshot);
// the dashboard sees only the copies carried in each Snapshot.
type Counters struct {
	Total               uint64
	Success             uint64
	Incomplete          uint64
	FailuresByGuarantee map[int]uint64
	FailureNames        map[int]string
	SuccessRate         *atomicfloat.Float64
}

func newCounters() *Counters {
	return &Counters{
		FailuresByGuarantee: make(map[int]uint64),
		FailureNames:        make(map[int]string),
		SuccessRate:         atomicfloat.New(0),
	}
}

func (c *Counters) record(outcome tsys.RunOutcome) {
	c.Total++
	switch outcome.Kind {
	case tsys.OutcomeSuccess:
		c.Success++
	case tsys.OutcomeFail:
		c.FailuresByGuarantee[outcome.GuaranteeIndex]++
		c.FailureNames[outcome.GuaranteeIndex] = outcome.GuaranteeName
	case tsys.OutcomeIncomplete:
		c.Incomplete++
	}
	decided := c.Success + c.failures()
	if decided > 0 {
		rate := float64(c.Success) / float64(decided)
		for !c.SuccessRate.AtomicSet(rate) {
		}
	}
}

// failures returns the decided-failure count: every run that ended neither
// in Success nor in Incomplete.
func (c *Counters) failures() uint64 { return c.Total - c.Success - c.Incomplete }

func (c *Counters) snapshot(elapsed time.Duration, done bool) Snapshot {
	failuresByGuarantee := make(map[int]uint64, len(c.FailuresByGuarantee))
	for k, v := range c.FailuresByGuarantee {
		failuresByGuarantee[k] = v
	}
	failureNames := make(map[int]string, len(c.FailureNames))
	for k, v := range c.FailureNames {
		failureNames[k] = v
	}
	return Snapshot{
		Total:               c.Total,
		Success:             c.Success,
		Failures:            c.failures(),
		Incomplete:          c.Incomplete,
		FailuresByGuarantee: failuresByGuarantee,
		FailureNames:        failureNames,
		SuccessRate:         c.SuccessRate.AtomicRead(),
		Elapsed:             elapsed,
		Done:                done,
	}
}

// Snapshot is a point-in-time, read-only view of progress, safe to publish
// to the dashboard from any goroutine.
type Snapshot struct {
	Total               uint64
	Success             uint64
	Failures            uint64
	Incomplete          uint64
	FailuresByGuarantee map[int]uint64
	FailureNames        map[int]string
	SuccessRate         float64
	Elapsed             time.Duration
	Done                bool
}

// Report is the scheduler's final verdict: the last Snapshot plus the
// configuration it was run against.
type Report struct {
	Snapshot
	Confidence      float64
	PrecisionTarget float64
	AchievedBound   float64
}

// ParAdaptive runs the statistical experiment concurrently across
// cfg.Workers goroutines, fanning results into a single estimator that
// applies the adaptive stopping rule, until the adaptive bound on total
// decided runs is met or ctx is cancelled. progress, if non-nil, is called
// from the estimator goroutine after every run; it must return quickly.
//
// The concurrency shape mirrors a vanilla worker/estimator training loop:
// each worker generates independent run outcomes until told to stop; a
// single estimator goroutine consumes the fan-in, serializing every counter
// update so no locking is needed on the hot path.
func ParAdaptive(ctx context.Context, cfg Config, run RunFunc, progress func(Snapshot)) Report {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker := func(seed int64) <-chan tsys.RunOutcome {
		out := make(chan tsys.RunOutcome)
		rng := rand.New(rand.NewSource(seed))
		go func() {
			defer close(out)
			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				outcome := run(rng)
				select {
				case out <- outcome:
				case <-runCtx.Done():
					return
				}
			}
		}()
		return out
	}

	nworkers := cfg.Workers
	if nworkers < 1 {
		nworkers = 1
	}
	workers := make([]<-chan tsys.RunOutcome, nworkers)
	for i := 0; i < nworkers; i++ {
		workers[i] = worker(cfg.Seed + int64(i))
	}
	outcomes := channerics.Merge(runCtx.Done(), workers...)

	counters := newCounters()
	var bound float64
	for outcome := range outcomes {
		counters.record(outcome)
		decided := counters.Success + counters.failures()
		if decided > 0 {
			avg := counters.SuccessRate.AtomicRead()
			bound = AdaptiveBound(avg, cfg.Confidence, cfg.Precision)
			if float64(decided) >= bound {
				cancel()
			}
		}
		if progress != nil {
			progress(counters.snapshot(time.Since(start), false))
		}
	}

	final := counters.snapshot(time.Since(start), true)
	if progress != nil {
		progress(final)
	}
	return Report{
		Snapshot:        final,
		Confidence:      cfg.Confidence,
		PrecisionTarget: cfg.Precision,
		AchievedBound:   bound,
	}
}
