// Package main is the Coup simulator: headless bot games for rules checks
// and a WebSocket load generator against a running server.
package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coup-server/internal/bot"
	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/domain/deck"
	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/platform/config"
	"github.com/MRamiBalles/coup-server/internal/platform/logger"
)

var (
	pass   = color.New(color.FgGreen, color.Bold)
	fail   = color.New(color.FgRed, color.Bold)
	header = color.New(color.FgWhite, color.Bold)
	info   = color.New(color.FgCyan)
)

var errFailed = errors.New("simulation failed")

func main() {
	root := &cobra.Command{
		Use:           "coup-sim",
		Short:         "Simulate Coup tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newAgitateCmd())
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			config.Exitf("coup-sim: %v", err)
		}
		os.Exit(1)
	}
}

type runOptions struct {
	games    int
	seats    int
	seed     uint64
	maxSteps int
	verbose  bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play headless bot games and check the table invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.seats != 0 && (opts.seats < engine.MinSeats || opts.seats > engine.MaxSeats) {
				return fmt.Errorf("--seats must be between %d and %d", engine.MinSeats, engine.MaxSeats)
			}
			if opts.games <= 0 {
				return fmt.Errorf("--games must be positive")
			}
			return runGames(opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.games, "games", 100, "number of games to play")
	f.IntVar(&opts.seats, "seats", 0, "seats per table (0 cycles through 2-6)")
	f.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "base random seed")
	f.IntVar(&opts.maxSteps, "max-steps", 20000, "steps before a game counts as stuck")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print one row per game")
	return cmd
}

type seatStats struct {
	games, turns, expiries, commands int
	maxTurns                         int
}

func runGames(opts runOptions) error {
	cat := catalog.Standard()
	info.Printf("Playing %d games from seed %d\n", opts.games, opts.seed)

	perGame := table.NewWriter()
	perGame.SetOutputMirror(os.Stdout)
	perGame.AppendHeader(table.Row{"Game", "Seed", "Seats", "Winner", "Turns", "Commands", "Expiries", "Result"})

	bySeats := map[int]*seatStats{}
	failures := 0
	for i := 0; i < opts.games; i++ {
		seed := opts.seed + uint64(i)
		seats := opts.seats
		if seats == 0 {
			seats = engine.MinSeats + i%(engine.MaxSeats-engine.MinSeats+1)
		}
		out, err := playOne(cat, seed, seats, opts.maxSteps)
		result := pass.Sprint("PASS")
		if err != nil {
			failures++
			result = fail.Sprint("FAIL ") + err.Error()
		}
		if opts.verbose || err != nil {
			perGame.AppendRow(table.Row{i + 1, seed, seats, out.Winner, out.Turns, out.Commands, out.Expiries, result})
		}
		s := bySeats[seats]
		if s == nil {
			s = &seatStats{}
			bySeats[seats] = s
		}
		s.games++
		s.turns += out.Turns
		s.expiries += out.Expiries
		s.commands += out.Commands
		s.maxTurns = max(s.maxTurns, out.Turns)
	}
	if perGame.Length() > 0 {
		perGame.SetStyle(table.StyleLight)
		perGame.Render()
	}

	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.SetTitle("Summary")
	summary.AppendHeader(table.Row{"Seats", "Games", "Avg turns", "Max turns", "Avg commands", "Expiries"})
	for n := engine.MinSeats; n <= engine.MaxSeats; n++ {
		s := bySeats[n]
		if s == nil {
			continue
		}
		summary.AppendRow(table.Row{
			n, s.games,
			fmt.Sprintf("%.1f", float64(s.turns)/float64(s.games)),
			s.maxTurns,
			fmt.Sprintf("%.1f", float64(s.commands)/float64(s.games)),
			s.expiries,
		})
	}
	summary.SetStyle(table.StyleRounded)
	summary.Style().Title.Align = text.AlignCenter
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	summary.Render()

	header.Printf("\n%d passed, %d failed\n", opts.games-failures, failures)
	if failures > 0 {
		fail.Println("Invariant violations found")
		return errFailed
	}
	pass.Println("All tables finished with a single winner")
	return nil
}

func playOne(cat *catalog.Catalog, seed uint64, seats, maxSteps int) (bot.Outcome, error) {
	ids := make([]string, seats)
	for i := range ids {
		ids[i] = fmt.Sprintf("bot%d", i+1)
	}
	m, err := engine.New(cat, engine.Config{
		Seats:    ids,
		Timeouts: engine.DefaultTimeouts(),
		Rand:     deck.NewRand(seed),
		Logger:   logger.NewNop(),
	})
	if err != nil {
		return bot.Outcome{}, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	bots := make(map[string]bot.Bot, seats)
	for _, id := range ids {
		b := bot.NewRandomBot(cat, rng)
		b.BotName = id
		bots[id] = b
	}
	return bot.Play(m, bots, rng, maxSteps, nil)
}
