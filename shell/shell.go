// Package shell is the interactive front end: load a game file, solve
// it, inspect rotations and substitutions, and ask for division
// suggestions, all from a readline loop.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/rotaplanhq/rotaplan/automatic"
	"github.com/rotaplanhq/rotaplan/config"
	"github.com/rotaplanhq/rotaplan/divopt"
	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/milp"
	"github.com/rotaplanhq/rotaplan/orchestrator"
	"github.com/rotaplanhq/rotaplan/store"
)

var errNoGame = errors.New("please load a game first with the `load` command")

type ShellController struct {
	l       *readline.Instance
	cfg     *config.Config
	printer *message.Printer

	orch *orchestrator.Orchestrator
	opt  *divopt.Optimizer
	st   *store.Store

	mu          sync.Mutex
	req         *lineup.SolveRequest
	sched       *lineup.RotationSchedule
	outliers    []lineup.PlayerID
	solveCancel context.CancelFunc
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

func NewShellController(cfg *config.Config) *ShellController {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[31mrotaplan>\033[0m ",
		HistoryFile:     "/tmp/rotaplan-readline.tmp",
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}

	sc := &ShellController{
		l:       l,
		cfg:     cfg,
		printer: message.NewPrinter(language.English),
		orch:    orchestrator.New(cfg.NodeLimit, cfg.SolveTimeout),
		opt: &divopt.Optimizer{
			Solver:      &milp.Solver{NodeLimit: cfg.NodeLimit},
			Concurrency: cfg.Workers,
		},
	}
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.DBPath).Msg("could not open game store")
		} else {
			sc.st = st
		}
	}
	return sc
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.l.Stderr())
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()
	if sc.st != nil {
		defer sc.st.Close()
	}

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			}
			continue
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := sc.dispatch(line, sig); err != nil {
			log.Error().Err(err).Msg("")
			break
		}
	}
	log.Debug().Msgf("Exiting readline loop...")
}

func (sc *ShellController) dispatch(line string, sig chan os.Signal) error {
	fields, err := shellquote.Split(line)
	if err != nil {
		sc.showError(err)
		return nil
	}
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "load":
		sc.cmdCheck(args, 1, sc.cmdLoad)
	case "save":
		sc.cmdCheck(args, 1, sc.cmdSave)
	case "open":
		sc.cmdCheck(args, 1, sc.cmdOpen)
	case "games":
		sc.cmdCheck(args, 0, func([]string) error { return sc.cmdGames() })
	case "delete":
		sc.cmdCheck(args, 1, sc.cmdDelete)
	case "roster":
		sc.cmdCheck(args, 0, func([]string) error { return sc.cmdRoster() })
	case "solve":
		if len(args) == 1 && args[0] == "stop" {
			sc.stopSolve()
		} else {
			sc.cmdCheck(args, 0, func([]string) error { return sc.startSolve() })
		}
	case "show":
		sc.cmdCheck(args, 0, func([]string) error { return sc.cmdShow() })
	case "stats":
		sc.cmdCheck(args, 0, func([]string) error { return sc.cmdStats() })
	case "diff":
		sc.cmdCheck(args, 1, sc.cmdDiff)
	case "outliers":
		sc.cmdCheck(args, 0, func([]string) error { return sc.cmdOutliers() })
	case "suggest":
		sc.cmdCheck(args, 0, func([]string) error { return sc.cmdSuggest() })
	case "division":
		sc.cmdCheck(args, 2, sc.cmdDivision)
	case "smoke":
		if err := sc.cmdSmoke(args); err != nil {
			sc.showError(err)
		}
	case "help":
		usage(sc.l.Stderr())
	case "bye", "exit":
		sig <- syscall.SIGINT
		return errors.New("sending quit signal")
	default:
		sc.showMessage("unknown command " + strconv.Quote(cmd) + "; try `help`")
	}
	return nil
}

func (sc *ShellController) cmdCheck(args []string, want int, fn func([]string) error) {
	if len(args) != want {
		sc.showError(fmt.Errorf("expected %d argument(s), got %d", want, len(args)))
		return
	}
	if err := fn(args); err != nil {
		sc.showError(err)
	}
}

func (sc *ShellController) cmdLoad(args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var req lineup.SolveRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return err
	}
	sc.mu.Lock()
	sc.req = &req
	sc.sched = nil
	sc.outliers = nil
	sc.mu.Unlock()
	sc.showMessage(fmt.Sprintf("loaded game %s: %d players, %d rotations",
		req.GameID, len(req.Roster), req.TotalRotations()))
	return nil
}

func (sc *ShellController) cmdSave(args []string) error {
	sc.mu.Lock()
	req := sc.req
	sched := sc.sched
	sc.mu.Unlock()
	if req == nil {
		return errNoGame
	}
	data, err := yaml.Marshal(req)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	if sc.st != nil {
		ctx := context.Background()
		if _, err := sc.st.SaveRequest(ctx, req); err != nil {
			return err
		}
		if sched != nil {
			if err := sc.st.SaveSchedule(ctx, req.GameID, sched); err != nil {
				return err
			}
		}
		sc.showMessage("saved to " + args[0] + " and the game store")
		return nil
	}
	sc.showMessage("saved to " + args[0])
	return nil
}

func (sc *ShellController) cmdOpen(args []string) error {
	if sc.st == nil {
		return errors.New("no game store configured")
	}
	ctx := context.Background()
	req, err := sc.st.LoadRequest(ctx, args[0])
	if err != nil {
		return err
	}
	sched, err := sc.st.LoadSchedule(ctx, args[0])
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	sc.mu.Lock()
	sc.req = req
	sc.sched = sched
	sc.outliers = nil
	sc.mu.Unlock()
	msg := fmt.Sprintf("opened game %s: %d players", req.GameID, len(req.Roster))
	if sched != nil {
		msg += " (has an accepted schedule)"
	}
	sc.showMessage(msg)
	return nil
}

func (sc *ShellController) cmdGames() error {
	if sc.st == nil {
		return errors.New("no game store configured")
	}
	games, err := sc.st.ListGames(context.Background())
	if err != nil {
		return err
	}
	if len(games) == 0 {
		sc.showMessage("no stored games")
		return nil
	}
	for _, g := range games {
		marker := " "
		if g.HasSchedule {
			marker = "*"
		}
		sc.showMessage(fmt.Sprintf("%s %-36s  %2d players  updated %s",
			marker, g.ID, g.PlayerCount, g.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	return nil
}

func (sc *ShellController) cmdDelete(args []string) error {
	if sc.st == nil {
		return errors.New("no game store configured")
	}
	return sc.st.DeleteGame(context.Background(), args[0])
}

func (sc *ShellController) cmdRoster() error {
	sc.mu.Lock()
	req := sc.req
	sc.mu.Unlock()
	if req == nil {
		return errNoGame
	}
	sc.showMessage(renderRoster(req))
	return nil
}

func (sc *ShellController) startSolve() error {
	sc.mu.Lock()
	if sc.req == nil {
		sc.mu.Unlock()
		return errNoGame
	}
	if sc.solveCancel != nil {
		sc.mu.Unlock()
		return errors.New("already solving, please do a `solve stop` first")
	}
	req := sc.req
	ctx, cancel := context.WithCancel(context.Background())
	sc.solveCancel = cancel
	sc.mu.Unlock()

	solve := sc.orch.Start(ctx, req)
	go func() {
		for ev := range solve.Progress {
			if ev.Step == lineup.StepSearching {
				sc.showMessage(sc.printer.Sprintf("  searching: %d combinations (%d%%)",
					ev.Combinations, ev.Percent))
			} else {
				sc.showMessage(fmt.Sprintf("  %s (%d%%)", ev.Step, ev.Percent))
			}
		}
		res, ok := <-solve.Done

		sc.mu.Lock()
		sc.solveCancel = nil
		if ok && res.Err == nil {
			sc.sched = res.Schedule
			sc.outliers = res.Outliers
		}
		sc.mu.Unlock()

		switch {
		case !ok:
			sc.showMessage("solve cancelled")
		case res.Err != nil:
			sc.showError(res.Err)
		default:
			sc.showMessage(renderSchedule(req, res.Schedule))
			if len(res.Outliers) > 0 {
				sc.showMessage("note: uneven playing time for " + joinIDs(res.Outliers))
			}
		}
	}()
	sc.showMessage("solving...")
	return nil
}

func (sc *ShellController) stopSolve() {
	sc.mu.Lock()
	cancel := sc.solveCancel
	sc.mu.Unlock()
	if cancel == nil {
		sc.showError(errors.New("no running solve to stop"))
		return
	}
	cancel()
}

func (sc *ShellController) cmdShow() error {
	req, sched, err := sc.current()
	if err != nil {
		return err
	}
	sc.showMessage(renderSchedule(req, sched))
	return nil
}

func (sc *ShellController) cmdStats() error {
	req, sched, err := sc.current()
	if err != nil {
		return err
	}
	sc.showMessage(renderStats(req, sched))
	if hist := renderPlayHistogram(sched); hist != "" {
		sc.showMessage(hist)
	}
	return nil
}

func (sc *ShellController) cmdDiff(args []string) error {
	req, sched, err := sc.current()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("badly formatted rotation number: %w", err)
	}
	if n < 2 || n > sched.TotalRotations() {
		return fmt.Errorf("rotation must be between 2 and %d", sched.TotalRotations())
	}
	transitions := lineup.Diff(&sched.Rotations[n-2], &sched.Rotations[n-1])
	sc.showMessage(renderTransitions(req, n, transitions))
	return nil
}

func (sc *ShellController) cmdOutliers() error {
	sc.mu.Lock()
	outliers := sc.outliers
	sched := sc.sched
	sc.mu.Unlock()
	if sched == nil {
		return errors.New("no schedule; run `solve` first")
	}
	if len(outliers) == 0 {
		sc.showMessage("playing time is evenly spread")
		return nil
	}
	sc.showMessage("players with notably more playing time: " + joinIDs(outliers))
	return nil
}

func (sc *ShellController) cmdSuggest() error {
	req, sched, err := sc.current()
	if err != nil {
		return err
	}
	sug, err := sc.opt.Suggest(context.Background(), req, sched)
	if err != nil {
		return err
	}
	sc.showMessage(renderSuggestion(sug))
	return nil
}

func (sc *ShellController) cmdDivision(args []string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.req == nil {
		return errNoGame
	}
	period, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	if period < 0 || period >= sc.req.Config.Periods {
		return fmt.Errorf("period must be between 0 and %d", sc.req.Config.Periods-1)
	}
	if count < 1 || count > lineup.MaxDivisions {
		return fmt.Errorf("division count must be between 1 and %d", lineup.MaxDivisions)
	}
	if sc.req.Divisions == nil {
		sc.req.Divisions = lineup.PeriodDivisions{}
	}
	sc.req.Divisions[period] = count
	sc.sched = nil
	sc.showMessage(fmt.Sprintf("period %d now has %d rotations; re-run `solve`", period, count))
	return nil
}

func (sc *ShellController) cmdSmoke(args []string) error {
	games := 10
	seed := uint64(1)
	var err error
	if len(args) > 0 {
		if games, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		var s int
		if s, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
		seed = uint64(s)
	}
	sc.showMessage(fmt.Sprintf("running %d random games (seed %d)...", games, seed))
	err = automatic.RunGames(context.Background(), seed, games,
		&milp.Solver{NodeLimit: sc.cfg.NodeLimit})
	if err != nil {
		return err
	}
	sc.showMessage("all schedules verified")
	return nil
}

func (sc *ShellController) current() (*lineup.SolveRequest, *lineup.RotationSchedule, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.req == nil {
		return nil, nil, errNoGame
	}
	if sc.sched == nil {
		return nil, nil, errors.New("no schedule; run `solve` first")
	}
	return sc.req, sc.sched, nil
}
