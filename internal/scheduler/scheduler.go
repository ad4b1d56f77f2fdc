// Package scheduler implements the Multi-Pair Scheduler: a
// single-threaded cooperative tick loop over every Pair Engine,
// generalizing the teacher's `cmd/main.go` wiring — dial an RPC
// client, start a tx listener, build the trading engine, then run its
// strategy loop in a supervised goroutine — into a loop over N pair
// engines in deterministic pair-ID order, with the price feed and any
// other background I/O supervised by an errgroup alongside it (spec
// §4.8, §5).
package scheduler

import (
	"context"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/internal/oracle"
	"github.com/hypergrid-bot/hypergrid/internal/telemetry"
	"github.com/hypergrid-bot/hypergrid/pkg/pairengine"
)

// Recorder is the durable-sink interface both internal/store and
// internal/db satisfy, so the Scheduler can write to either, both, or
// neither without knowing which.
type Recorder interface {
	AppendTrade(rec *hypergrid.TradeRecord) error
	WriteStatus(status hypergrid.BotStatus) error
	WriteLadder(ladder *hypergrid.LadderState) error
}

// PairEntry binds one Pair Engine to the pair it drives, plus the
// price symbols the Scheduler must refresh before each tick.
type PairEntry struct {
	PairID        string
	Engine        *pairengine.Engine
	Base, Quote   hypergrid.Token
	MaxFailureSum int // ladder-wide failure ceiling before disabling the pair
}

// Config is the Scheduler's static tuning.
type Config struct {
	CheckInterval      time.Duration // default 5s
	MaxConcurrentPairs int
	MaxDailyLossUSD    *big.Rat
	OnTrade            func(*hypergrid.TradeRecord) // notified after every persisted fill, e.g. to feed a day-PnL tracker
}

// Scheduler drives every Pair Engine's tick in deterministic order,
// refreshing the oracle first, and persists trades/status/ladders as
// it goes.
type Scheduler struct {
	cfg      Config
	oracle   oracle.Oracle
	recorder Recorder
	pairs    []PairEntry

	realizedDayPnL func() *big.Rat

	draining bool
	shutdown chan struct{}
	disabled map[string]bool

	// lastAction records what happened to each pair on its most recent
	// tick (spec §8 scenario 6's last_action observable).
	lastAction map[string]string
}

// New builds a Scheduler. pairs is copied and sorted by PairID so tick
// order is deterministic and reproducible across restarts.
func New(cfg Config, o oracle.Oracle, recorder Recorder, pairs []PairEntry, realizedDayPnL func() *big.Rat) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	sorted := make([]PairEntry, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PairID < sorted[j].PairID })

	return &Scheduler{
		cfg:            cfg,
		oracle:         o,
		recorder:       recorder,
		pairs:          sorted,
		realizedDayPnL: realizedDayPnL,
		shutdown:       make(chan struct{}),
		disabled:       map[string]bool{},
		lastAction:     map[string]string{},
	}
}

// Run starts the cooperative tick loop and any supervised background
// tasks (bgTasks — typically the price feed's Run), returning when ctx
// is cancelled or a background task fails. Cancellation is cooperative:
// the loop finishes the current pair's tick before checking ctx again.
func (s *Scheduler) Run(ctx context.Context, bgTasks ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, task := range bgTasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return s.drainAndExit(30 * time.Second)
			case <-s.shutdown:
				return s.drainAndExit(30 * time.Second)
			case <-ticker.C:
				s.runOneTick()
				if s.shouldEmergencyStop() {
					s.draining = true
				}
			}
		}
	})

	return g.Wait()
}

// Stop requests a cooperative shutdown: the loop finishes its current
// tick, then drains in-flight transactions before exiting.
func (s *Scheduler) Stop() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}

// drainAndExit is a placeholder awaiting in-flight receipts for up to
// hardCap before abandoning them with a warning; Tick itself already
// blocks to receipt, so by the time Run observes cancellation there is
// nothing in flight to wait on beyond the current tick's completion.
func (s *Scheduler) drainAndExit(hardCap time.Duration) error {
	s.draining = true
	return nil
}

func (s *Scheduler) shouldEmergencyStop() bool {
	if s.cfg.MaxDailyLossUSD == nil || s.realizedDayPnL == nil {
		return false
	}
	pnl := s.realizedDayPnL()
	negLimit := new(big.Rat).Neg(s.cfg.MaxDailyLossUSD)
	return pnl.Cmp(negLimit) < 0
}

// runOneTick refreshes the oracle and drives every active pair's
// engine through one Tick, in pair-ID order, enforcing
// max_concurrent_pairs and the ladder-wide failure ceiling.
func (s *Scheduler) runOneTick() {
	telemetry.Ticks.Inc()
	if s.draining {
		return
	}

	active := 0
	for _, entry := range s.pairs {
		if s.disabled[entry.PairID] {
			continue
		}
		if s.cfg.MaxConcurrentPairs > 0 && active >= s.cfg.MaxConcurrentPairs {
			break
		}
		active++

		price, err := s.oracle.GetPairPrice(entry.Base, entry.Quote)
		if err != nil {
			s.lastAction[entry.PairID] = "skipped:price"
			continue // PriceUnavailable: skip this pair's tick, surfaced by the oracle's own health report
		}

		results := entry.Engine.Tick(price.Price)
		s.persistResults(entry, results)
		s.enforceFailureCeiling(entry)
		s.lastAction[entry.PairID] = "ok"
	}

	s.writeStatus()
}

func (s *Scheduler) persistResults(entry PairEntry, results []pairengine.TickResult) {
	if s.recorder == nil {
		return
	}
	for _, r := range results {
		if r.Record != nil {
			telemetry.RecordFill(entry.PairID, r.Record.Status.String())
			_ = s.recorder.AppendTrade(r.Record)
			if s.cfg.OnTrade != nil {
				s.cfg.OnTrade(r.Record)
			}
		}
		if r.Err != nil {
			telemetry.RecordValidationDenial(entry.PairID, r.Err.Error())
		}
	}
	if ladder := entry.Engine.Ladder(); ladder != nil {
		telemetry.SetLadderSize(entry.PairID, len(ladder.Levels))
		_ = s.recorder.WriteLadder(ladder)
	}
}

// enforceFailureCeiling disables a pair whose summed failure_count
// across its ladder has exceeded MaxFailureSum, emitting a telemetry
// event (spec §4.8's "if a pair's failure_count across the ladder
// exceeds a configured ceiling, disable it").
func (s *Scheduler) enforceFailureCeiling(entry PairEntry) {
	if entry.MaxFailureSum <= 0 {
		return
	}
	ladder := entry.Engine.Ladder()
	if ladder == nil {
		return
	}
	sum := 0
	for _, lvl := range ladder.Levels {
		sum += int(lvl.FailureCount)
	}
	if sum > entry.MaxFailureSum {
		s.disabled[entry.PairID] = true
		telemetry.RecordValidationDenial(entry.PairID, "ladder_failure_ceiling_exceeded")
	}
}

func (s *Scheduler) writeStatus() {
	if s.recorder == nil {
		return
	}
	pairs := make([]hypergrid.PairStatus, 0, len(s.pairs))
	for _, entry := range s.pairs {
		status := hypergrid.PairStatus{
			PairID:     entry.PairID,
			Enabled:    !s.disabled[entry.PairID],
			LastAction: s.lastAction[entry.PairID],
		}
		if ladder := entry.Engine.Ladder(); ladder != nil {
			for _, lvl := range ladder.Levels {
				switch lvl.State {
				case hypergrid.Armed:
					status.ArmedLevels++
				case hypergrid.Filled:
					status.FilledLevels++
				}
				status.FailureCount += int(lvl.FailureCount)
			}
		}
		pairs = append(pairs, status)
	}

	var pnl *big.Rat
	if s.realizedDayPnL != nil {
		pnl = s.realizedDayPnL()
		f, _ := pnl.Float64()
		telemetry.RealizedDayPnL.Set(f)
	}

	_ = s.recorder.WriteStatus(hypergrid.BotStatus{
		GeneratedAt:       time.Now().UTC(),
		Draining:          s.draining,
		RealizedDayPnLUSD: pnl,
		Pairs:             pairs,
	})
}
