package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coup-server/internal/domain/catalog"
	"github.com/MRamiBalles/coup-server/internal/engine"
	"github.com/MRamiBalles/coup-server/internal/events"
	"github.com/MRamiBalles/coup-server/internal/network"
)

type agitateOptions struct {
	server   string
	tables   int
	seats    int
	duration time.Duration
}

// loadStats tracks one load run across every connection.
type loadStats struct {
	sent       atomic.Int64
	received   atomic.Int64
	rejections atomic.Int64
	errors     atomic.Int64
	finished   atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *loadStats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func newAgitateCmd() *cobra.Command {
	opts := agitateOptions{}
	cmd := &cobra.Command{
		Use:   "agitate",
		Short: "Open tables on a running server and play them over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.seats < engine.MinSeats || opts.seats > engine.MaxSeats {
				return fmt.Errorf("--seats must be between %d and %d", engine.MinSeats, engine.MaxSeats)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.duration)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			return agitate(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	f.IntVar(&opts.tables, "tables", 10, "concurrent tables")
	f.IntVar(&opts.seats, "seats", 4, "seats per table")
	f.DurationVar(&opts.duration, "duration", 2*time.Minute, "give up after this long")
	return cmd
}

func agitate(ctx context.Context, opts agitateOptions) error {
	wsURL, err := websocketURL(opts.server)
	if err != nil {
		return err
	}
	info.Printf("Agitating %s with %d tables of %d seats\n", opts.server, opts.tables, opts.seats)

	stats := &loadStats{}
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < opts.tables; i++ {
		seats := make([]string, opts.seats)
		for j := range seats {
			seats[j] = fmt.Sprintf("t%d_s%d", i+1, j+1)
		}
		created, err := createTable(ctx, opts.server, seats)
		if err != nil {
			fail.Printf("table %d: %v\n", i+1, err)
			stats.errors.Add(1)
			continue
		}
		var done atomic.Int32
		for _, seat := range created.Seats {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c := &seatClient{seat: seat, tableID: created.ID, stats: stats, living: slices.Clone(created.Seats)}
				if c.run(ctx, wsURL, created.Tokens[seat]) && done.Add(1) == 1 {
					stats.finished.Add(1)
				}
			}()
		}
		// Stagger table starts to avoid a thundering herd.
		time.Sleep(10 * time.Millisecond)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info.Printf("progress: sent=%d recv=%d finished=%d errors=%d\n",
					stats.sent.Load(), stats.received.Load(), stats.finished.Load(), stats.errors.Load())
			}
		}
	}()

	wg.Wait()
	return report(stats, opts, time.Since(start))
}

func report(stats *loadStats, opts agitateOptions, elapsed time.Duration) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Load results")
	t.AppendRows([]table.Row{
		{"Tables finished", fmt.Sprintf("%d / %d", stats.finished.Load(), opts.tables)},
		{"Messages sent", stats.sent.Load()},
		{"Messages received", stats.received.Load()},
		{"Rejections", stats.rejections.Load()},
		{"Errors", stats.errors.Load()},
		{"Throughput", fmt.Sprintf("%.1f msg/s", float64(stats.sent.Load())/elapsed.Seconds())},
	})
	stats.mu.Lock()
	if n := len(stats.latencies); n > 0 {
		slices.Sort(stats.latencies)
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Latency p50", stats.latencies[n/2]},
			{"Latency p95", stats.latencies[n*95/100]},
			{"Latency max", stats.latencies[n-1]},
		})
	}
	stats.mu.Unlock()
	t.SetStyle(table.StyleRounded)
	t.Render()

	if stats.errors.Load() > 0 || stats.finished.Load() < int64(opts.tables) {
		fail.Println("Load run did not finish cleanly")
		return errFailed
	}
	pass.Println("Every table reached GAME_OVER")
	return nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}

func createTable(ctx context.Context, server string, seats []string) (network.CreateTableResponse, error) {
	var out network.CreateTableResponse
	body, err := json.Marshal(network.CreateTableRequest{Seats: seats})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/tables", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return out, fmt.Errorf("create table: %s", resp.Status)
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

// inbound covers both table events and transport notices.
type inbound struct {
	Type    string          `json:"type"`
	ActorID string          `json:"actor_id"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

// seatClient plays one seat with a fixed strategy: income or tax on its
// turn, coup when forced, pass on every window and lose its first card.
type seatClient struct {
	seat    string
	tableID string
	stats   *loadStats
	living  []string
	conn    *websocket.Conn
	sentAt  time.Time
}

// run plays until the table ends and reports whether GAME_OVER was seen.
func (c *seatClient) run(ctx context.Context, wsURL, token string) bool {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		fail.Printf("%s: dial: %v\n", c.seat, err)
		c.stats.errors.Add(1)
		return false
	}
	c.conn = conn
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	join := network.JoinRequest{Type: "JOIN", TableID: c.tableID, Seat: c.seat, Token: token}
	if err := conn.WriteJSON(join); err != nil {
		c.stats.errors.Add(1)
		return false
	}
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.stats.errors.Add(1)
			}
			return false
		}
		c.stats.received.Add(1)
		if !c.sentAt.IsZero() {
			c.stats.observe(time.Since(c.sentAt))
			c.sentAt = time.Time{}
		}
		over, err := c.handle(msg)
		if err != nil {
			c.stats.errors.Add(1)
			return false
		}
		if over {
			return msg.Type == string(events.EventTypeGameOver)
		}
	}
}

func (c *seatClient) handle(msg inbound) (bool, error) {
	switch msg.Type {
	case "ERROR":
		if msg.Code == "RATE_LIMITED" {
			return false, nil
		}
		return true, fmt.Errorf("%s: %s %s", c.seat, msg.Code, msg.Message)
	case string(events.EventTypeStateSnapshot):
		var v engine.View
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return true, err
		}
		c.living = c.living[:0]
		for _, s := range v.Seats {
			if !s.Eliminated {
				c.living = append(c.living, s.ID)
			}
		}
		if v.Phase == engine.PhaseAwaitingAction && v.Current == c.seat {
			return false, c.takeTurn()
		}
	case string(events.EventTypeTurnAdvanced):
		var p engine.TurnPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return true, err
		}
		if p.SeatID == c.seat {
			return false, c.takeTurn()
		}
	case string(events.EventTypeChallengeWindowOpened),
		string(events.EventTypeBlockWindowOpened),
		string(events.EventTypeBlockChallengeWindowOpened):
		if msg.ActorID != c.seat {
			return false, c.send(events.CommandPass, nil)
		}
	case string(events.EventTypeInfluenceChoiceRequested):
		if msg.ActorID == c.seat {
			return false, c.send(events.CommandChooseInfluence, engine.InfluenceChoice{CardIndex: 0})
		}
	case string(events.EventTypePlayerEliminated):
		c.living = slices.DeleteFunc(c.living, func(s string) bool { return s == msg.ActorID })
	case string(events.EventTypeActionRejected):
		c.stats.rejections.Add(1)
		var p struct {
			Code string `json:"code"`
		}
		_ = json.Unmarshal(msg.Payload, &p)
		if p.Code == "MUST_COUP" {
			return false, c.coup()
		}
	case string(events.EventTypeGameOver), string(events.EventTypeSessionAborted):
		return true, nil
	}
	return false, nil
}

func (c *seatClient) takeTurn() error {
	action := catalog.ActionIncome
	if rand.IntN(2) == 0 {
		action = catalog.ActionTax
	}
	return c.send(events.CommandProposeAction, engine.ProposeCommand{Action: string(action)})
}

func (c *seatClient) coup() error {
	for _, s := range c.living {
		if s != c.seat {
			return c.send(events.CommandProposeAction, engine.ProposeCommand{Action: string(catalog.ActionCoup), Target: s})
		}
	}
	return nil
}

func (c *seatClient) send(t events.CommandType, payload any) error {
	cmd := events.PlayerCommand{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		cmd.Payload = raw
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(cmd); err != nil {
		return err
	}
	c.stats.sent.Add(1)
	c.sentAt = time.Now()
	return nil
}
