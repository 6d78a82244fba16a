// Command scan runs a statistical model check of a small built-in Channel
// System scenario against a past-time MTL guarantee, reporting a confidence
// interval on the guarantee's truth, and optionally serving a live progress
// dashboard while it runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"scan/internal/config"
	"scan/internal/cs"
	"scan/internal/dashboard"
	"scan/internal/expr"
	"scan/internal/numset"
	"scan/internal/pg"
	"scan/internal/pmtl"
	"scan/internal/scan"
	"scan/internal/tsys"
)

func main() {
	scenario := flag.String("scenario", "counter", "demo scenario: counter, rendezvous, queue")
	confidence := flag.Float64("confidence", 0.95, "target confidence level")
	precision := flag.Float64("precision", 0.1, "target precision (half-width)")
	workers := flag.Int("workers", 4, "number of concurrent worker goroutines")
	seed := flag.Int64("seed", time.Now().UnixNano(), "base RNG seed")
	maxSteps := flag.Uint64("max-steps", 10000, "per-run step cap before declaring it incomplete, 0 for unbounded")
	maxDuration := flag.Uint64("max-duration", 0, "per-run simulated-time cap before declaring it incomplete, 0 for unbounded")
	configPath := flag.String("config", "", "optional YAML run configuration, overrides the above")
	dashAddr := flag.String("dashboard", "", "if set, serve a live progress dashboard at this address, e.g. :8080")
	flag.Parse()

	cfg := scan.Config{
		Confidence:  *confidence,
		Precision:   *precision,
		Workers:     *workers,
		Seed:        *seed,
		MaxSteps:    *maxSteps,
		MaxDuration: numset.Time(*maxDuration),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *configPath != "" {
		runCfg, err := config.FromYaml(*configPath)
		if err != nil {
			log.Fatalf("scan: loading config: %v", err)
		}
		cfg = scan.Config{
			Confidence:  runCfg.Confidence,
			Precision:   runCfg.Precision,
			Workers:     runCfg.Workers,
			Seed:        runCfg.Seed,
			MaxSteps:    runCfg.MaxSteps,
			MaxDuration: numset.Time(runCfg.MaxDuration),
		}
		var deadlineCancel context.CancelFunc
		ctx, deadlineCancel, err = runCfg.WithDeadline(ctx)
		if err != nil {
			log.Fatalf("scan: applying deadline: %v", err)
		}
		defer deadlineCancel()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	limits := tsys.Limits{MaxSteps: cfg.MaxSteps, MaxDuration: cfg.MaxDuration}
	run, guaranteeLabel, err := buildScenario(*scenario, limits)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	var group *errgroup.Group
	runCtx := sigCtx
	updates := make(chan scan.Snapshot, 1)
	progress := func(s scan.Snapshot) {
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- s
		}
	}

	if *dashAddr != "" {
		group, runCtx = errgroup.WithContext(sigCtx)
		dashSrv := dashboard.NewServer(*dashAddr, updates)
		group.Go(func() error { return dashSrv.Serve(runCtx) })
		fmt.Printf("dashboard listening on %s\n", *dashAddr)
	} else {
		close(updates)
		progress = nil
	}

	report := scan.ParAdaptive(runCtx, cfg, run, progress)

	if group != nil {
		cancel()
		if err := group.Wait(); err != nil && ctx.Err() == nil {
			log.Printf("scan: dashboard: %v", err)
		}
	}

	fmt.Printf("scenario: %s\n", *scenario)
	fmt.Printf("guarantee: %s\n", guaranteeLabel)
	fmt.Printf("runs: %d (success=%d fail=%d incomplete=%d)\n", report.Total, report.Success, report.Failures, report.Incomplete)
	fmt.Printf("success rate: %.4f\n", report.SuccessRate)
	fmt.Printf("confidence=%.2f precision=%.3f achieved bound=%.1f elapsed=%v\n",
		report.Confidence, report.PrecisionTarget, report.AchievedBound, report.Elapsed)
	if len(report.FailuresByGuarantee) > 0 {
		fmt.Println("failures by guarantee:")
		for idx, n := range report.FailuresByGuarantee {
			fmt.Printf("  [%d] %s: %d\n", idx, report.FailureNames[idx], n)
		}
	}
}

// buildScenario wires one of the built-in demo systems and its single
// tracked guarantee into a scan.RunFunc ready for ParAdaptive. limits caps
// every run generated by the returned RunFunc (see tsys.Experiment).
func buildScenario(name string, limits tsys.Limits) (scan.RunFunc, string, error) {
	switch name {
	case "counter":
		return buildCounterScenario(limits)
	case "rendezvous":
		return buildChannelScenario(0, limits)
	case "queue":
		return buildChannelScenario(2, limits)
	default:
		return nil, "", fmt.Errorf("unknown scenario %q (want counter, rendezvous, or queue)", name)
	}
}

// buildCounterScenario is the bare single-PG counter: ten guarded self-loops
// incrementing x from 0 to 10, checked against "x never exceeds ten".
func buildCounterScenario(limits tsys.Limits) (scan.RunFunc, string, error) {
	b := pg.NewBuilder()
	x, err := b.NewVar(expr.Const[pg.Var](expr.VInt(0)))
	if err != nil {
		return nil, "", err
	}
	incr := b.NewAction()
	step := expr.Sum[pg.Var](expr.Var[pg.Var](x), expr.Const[pg.Var](expr.VInt(1)))
	if err := b.AddEffect(incr, x, step); err != nil {
		return nil, "", err
	}
	loc := b.InitialLocation()
	for i := 0; i < 10; i++ {
		guard := expr.Equal[pg.Var](expr.Var[pg.Var](x), expr.Const[pg.Var](expr.VInt(int32(i))))
		if err := b.AddTransition(loc, incr, loc, &guard); err != nil {
			return nil, "", err
		}
	}
	base, err := b.Build()
	if err != nil {
		return nil, "", err
	}

	bounded := pg.Expr(expr.LessEq[pg.Var](expr.Var[pg.Var](x), expr.Const[pg.Var](expr.VInt(10))))
	predicates := []pg.Expr{bounded}
	guarantee := pmtl.Tracked{Name: "counter never exceeds ten", Formula: pmtl.Historically(pmtl.Unbounded, pmtl.Atom(0))}

	run := func(rng *rand.Rand) tsys.RunOutcome {
		g := base.Clone()
		model := tsys.NewPgModel(g, predicates)
		oracle := pmtl.NewOracle(nil, []pmtl.Tracked{guarantee})
		running := true
		return tsys.Experiment[pg.Action](model, rng, oracle, nil, &running, limits)
	}
	return run, guarantee.Name, nil
}

// buildChannelScenario wires a two-PG sender/receiver system over a channel
// of the given capacity (0 == rendezvous), checked against "the receiver
// only ever holds its initial value or the sent value".
func buildChannelScenario(capacity int, limits tsys.Limits) (scan.RunFunc, string, error) {
	b := cs.NewBuilder()

	senderB := pg.NewBuilder()
	senderPre := senderB.InitialLocation()
	senderPost := senderB.NewLocation()
	sendAction, err := senderB.NewSend(expr.Const[pg.Var](expr.VInt(42)))
	if err != nil {
		return nil, "", err
	}
	if err := senderB.AddTransition(senderPre, sendAction, senderPost, nil); err != nil {
		return nil, "", err
	}
	senderID := b.AddPg(senderB)

	receiverB := pg.NewBuilder()
	receiverPre := receiverB.InitialLocation()
	receiverPost := receiverB.NewLocation()
	y, err := receiverB.NewVar(expr.Const[pg.Var](expr.VInt(0)))
	if err != nil {
		return nil, "", err
	}
	recvAction, err := receiverB.NewReceive(y)
	if err != nil {
		return nil, "", err
	}
	if err := receiverB.AddTransition(receiverPre, recvAction, receiverPost, nil); err != nil {
		return nil, "", err
	}
	receiverID := b.AddPg(receiverB)

	channel := b.NewChannel(capacity, expr.Int())
	if err := b.BindSend(senderID, sendAction, channel); err != nil {
		return nil, "", err
	}
	if err := b.BindReceive(receiverID, recvAction, channel); err != nil {
		return nil, "", err
	}

	base, err := b.Build()
	if err != nil {
		return nil, "", err
	}

	// A past-time oracle can only look backward, so the guarantee worth
	// checking at every tick is a safety invariant ("y is never anything
	// but its initial value or the sent one"), not an eventuality. "The
	// receiver eventually holds 42" would read as violated at every tick
	// before the message arrives, since Once only ever looks at the past.
	untampered := cs.Predicate{Pg: receiverID, Expr: expr.Or[pg.Var](
		expr.Equal[pg.Var](expr.Var[pg.Var](y), expr.Const[pg.Var](expr.VInt(0))),
		expr.Equal[pg.Var](expr.Var[pg.Var](y), expr.Const[pg.Var](expr.VInt(42))),
	)}
	predicates := []cs.Predicate{untampered}
	guarantee := pmtl.Tracked{Name: "receiver only ever holds its initial value or the sent value", Formula: pmtl.Historically(pmtl.Unbounded, pmtl.Atom(0))}

	run := func(rng *rand.Rand) tsys.RunOutcome {
		system := base.Clone()
		model := tsys.NewCsModel(system, predicates)
		oracle := pmtl.NewOracle(nil, []pmtl.Tracked{guarantee})
		running := true
		return tsys.Experiment[*cs.Event](model, rng, oracle, nil, &running, limits)
	}
	return run, guarantee.Name, nil
}
