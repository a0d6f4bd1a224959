package bot

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/EgorLis/palermobot/internal/clock"
	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/store/memstore"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var paths = game.Paths{}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	st  *memstore.Store
	clk *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:   t,
		ctx: context.Background(),
		st:  memstore.New(memstore.WithLogger(quietLog())),
		clk: clock.Fake(epoch),
	}
}

func (f *fixture) opts() []Option {
	return []Option{
		WithClock(f.clk),
		WithRand(game.NewSeededRand(7)),
		WithLogger(quietLog()),
	}
}

func (f *fixture) set(path string, v any) {
	f.t.Helper()
	if err := f.st.Set(f.ctx, path, v); err != nil {
		f.t.Fatalf("Set(%s): %v", path, err)
	}
}

func (f *fixture) get(path string) any {
	f.t.Helper()
	v, err := f.st.Get(f.ctx, path)
	if err != nil {
		f.t.Fatalf("Get(%s): %v", path, err)
	}
	return v
}

// lobby кладёт сессию в лобби с включённым флагом и переданными игроками.
func (f *fixture) lobby(id, host string, players ...game.Participant) {
	f.t.Helper()
	roster := map[string]any{}
	for _, p := range players {
		roster[p.ID] = p.Record()
	}
	f.set(paths.Session(id), map[string]any{
		game.KeyStatus:      string(game.PhaseLobby),
		game.KeyRound:       0,
		game.KeyBotsEnabled: true,
		game.KeyHostID:      host,
		game.KeyPlayers:     roster,
	})
}

// enter переводит сессию в фазу: сначала раунд, потом статус, чтобы не
// было промежуточной пары (новая фаза, старый раунд).
func (f *fixture) enter(id string, phase game.Phase, round int) {
	f.t.Helper()
	f.set(paths.Field(id, game.KeyRound), round)
	f.set(paths.Field(id, game.KeyStatus), string(phase))
}

func (f *fixture) setRole(id, pid string, role game.Role) {
	f.t.Helper()
	f.set(paths.Player(id, pid)+"/role", string(role))
}

func player(id, name string) game.Participant {
	return game.Participant{ID: id, Name: name, Alive: true}
}

// waitState ждёт, пока контроллер обработает переход в (phase, round).
func waitState(t *testing.T, c *SessionController, phase game.Phase, round int) {
	t.Helper()
	eventually(t, func() bool {
		p, r := c.State()
		return p == phase && r == round
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// fixedRand — Intn берёт значения по кругу, Float64 всегда одно.
type fixedRand struct {
	ints []int
	i    int
	f    float64
}

func (r *fixedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[r.i%len(r.ints)]
	r.i++
	return v % n
}

func (r *fixedRand) Float64() float64 { return r.f }
