package bot

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/store"
)

// playBurst прокручивает часы так, чтобы походили n ботов. Каждый
// следующий ход ставится колбэком предыдущего и отсчитывается от уже
// сдвинутого времени, поэтому сдвигаем по шагу на ход.
func (f *fixture) playBurst(n int) {
	f.t.Helper()
	f.clk.Advance(DefaultTiming().Settle)
	for i := 1; i < n; i++ {
		f.clk.Advance(DefaultTiming().JitterMax)
	}
}

func actions(f *fixture, id string, scope game.ActionScope, round int) map[string]any {
	f.t.Helper()
	m, _ := store.AsMap(f.get(store.Join(paths.Session(id), game.KeyActions, string(scope), strconv.Itoa(round))))
	return m
}

// startWithBots запускает контроллер над g1 с нашими ботами ids.
func startWithBots(f *fixture, ids ...string) *SessionController {
	f.t.Helper()
	c := NewSessionController(f.st, "g1", f.opts()...)
	for i, id := range ids {
		name := namePool[i]
		f.set(paths.Player("g1", id), player(id, name).Record())
		c.AddBot(id, name, true)
	}
	if err := c.Start(f.ctx); err != nil {
		f.t.Fatalf("Start: %v", err)
	}
	f.t.Cleanup(func() {
		c.Stop()
		f.clk.Advance(time.Second)
	})
	return c
}

func TestNightActionsOnlyForOurBots(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"), player("guest_900000", "Stranger"))
	ours := []string{"guest_100001", "guest_100002", "guest_100003"}
	c := startWithBots(f, ours...)

	f.setRole("g1", "user_1", game.RolePaesano)
	f.setRole("g1", "guest_900000", game.RoleIlPrete)
	f.setRole("g1", "guest_100001", game.RoleMafioso)
	f.setRole("g1", "guest_100002", game.RoleIspettore)
	f.setRole("g1", "guest_100003", game.RoleSgarrista)
	f.enter("g1", game.PhaseNight, 1)

	f.clk.WaitForTimers(1)
	f.playBurst(len(ours))

	acts := actions(f, "g1", game.ScopeNight, 1)
	if len(acts) != len(ours) {
		t.Fatalf("night/1 has %d records, want %d: %v", len(acts), len(ours), acts)
	}
	want := map[string]game.ActionKind{
		"guest_100001": game.ActionKill,
		"guest_100002": game.ActionInvestigate,
		"guest_100003": game.ActionProtect,
	}
	for id, kind := range want {
		rec, ok := store.AsMap(acts[id])
		if !ok {
			t.Fatalf("no record for %s", id)
		}
		if rec["actionType"] != string(kind) || rec["sourcePlayerId"] != id {
			t.Fatalf("record for %s = %v", id, rec)
		}
		if _, ok := rec["timestamp"].(float64); !ok {
			t.Fatalf("record for %s has no timestamp: %v", id, rec)
		}
	}
	if target := acts["guest_100001"].(map[string]any)["targetPlayerId"]; target == "guest_100001" {
		t.Fatal("mafioso targeted itself")
	}
	if _, ok := acts["guest_900000"]; ok {
		t.Fatal("bot not created by us acted")
	}

	// найденный в roster бот отслеживается, но своим не становится
	tracked := c.Tracked()
	if len(tracked) != 4 || tracked[3] != "guest_900000" {
		t.Fatalf("Tracked() = %v", tracked)
	}
	if got := c.Ours(); len(got) != 3 {
		t.Fatalf("Ours() = %v", got)
	}
}

func TestRepeatedStateTriggersActionsOnce(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	c := startWithBots(f, "guest_100001")
	f.setRole("g1", "guest_100001", game.RoleMafioso)

	f.enter("g1", game.PhaseNight, 1)
	f.clk.WaitForTimers(1)

	// те же (night, 1) ещё несколько раз
	f.set(paths.Field("g1", game.KeyStatus), string(game.PhaseNight))
	f.set(paths.Field("g1", game.KeyRound), 1)
	f.set(paths.Field("g1", game.KeyHostID), "user_1")
	f.set(paths.Field("g1", game.KeyStatus), string(game.PhaseNightResults))
	waitState(t, c, game.PhaseNightResults, 1)

	if n := f.clk.PendingCount(); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
	f.playBurst(1)
	if acts := actions(f, "g1", game.ScopeNight, 1); len(acts) != 1 {
		t.Fatalf("night/1 = %v, want one record", acts)
	}

	// запоздавшее (night, 1) после результатов не обрабатывается заново
	f.set(paths.Field("g1", game.KeyStatus), string(game.PhaseNight))
	f.set(paths.Field("g1", game.KeyStatus), string(game.PhaseDayDiscussion))
	waitState(t, c, game.PhaseDayDiscussion, 1)
	if n := f.clk.PendingCount(); n != 0 {
		t.Fatalf("pending timers after stale state = %d, want 0", n)
	}
}

func TestVotingWritesDayRecords(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	c := startWithBots(f, "guest_100001", "guest_100002")
	f.setRole("g1", "user_1", game.RolePaesano)
	f.setRole("g1", "guest_100001", game.RoleMafioso)
	f.setRole("g1", "guest_100002", game.RolePaesano)

	f.enter("g1", game.PhaseDayVoting, 2)
	f.clk.WaitForTimers(1)
	f.playBurst(2)

	acts := actions(f, "g1", game.ScopeDay, 2)
	if len(acts) != 2 {
		t.Fatalf("day/2 = %v, want 2 votes", acts)
	}
	for id, raw := range acts {
		rec := raw.(map[string]any)
		if rec["actionType"] != string(game.ActionVote) || rec["targetPlayerId"] == id {
			t.Fatalf("vote of %s = %v", id, rec)
		}
	}
	if p, r := c.State(); p != game.PhaseDayVoting || r != 2 {
		t.Fatalf("State() = %s/%d", p, r)
	}
}

func TestDeadAndUnassignedBotsDoNotAct(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	startWithBots(f, "guest_100001", "guest_100002", "guest_100003")
	f.setRole("g1", "guest_100001", game.RoleMafioso)
	f.setRole("g1", "guest_100002", game.RoleSgarrista)
	f.set(paths.Player("g1", "guest_100002")+"/isAlive", false)

	f.enter("g1", game.PhaseNight, 1)
	f.clk.WaitForTimers(1)
	f.playBurst(3)

	acts := actions(f, "g1", game.ScopeNight, 1)
	if len(acts) != 1 || acts["guest_100001"] == nil {
		t.Fatalf("night/1 = %v, want only guest_100001", acts)
	}
}

func TestFlagDisabledRemovesOurBots(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"), player("guest_900000", "Stranger"))
	ours := []string{"guest_100001", "guest_100002", "guest_100003"}
	c := startWithBots(f, ours...)

	f.set(paths.Field("g1", game.KeyBotsEnabled), false)
	f.clk.WaitForTimers(2)
	if c.Active() {
		t.Fatal("controller still active right after flag off")
	}
	f.clk.Advance(500 * time.Millisecond)

	for _, id := range ours {
		if v := f.get(paths.Player("g1", id)); v != nil {
			t.Fatalf("%s not removed: %v", id, v)
		}
	}
	if f.get(paths.Player("g1", "user_1")) == nil || f.get(paths.Player("g1", "guest_900000")) == nil {
		t.Fatal("removed a participant we did not create")
	}
	if got := c.Ours(); len(got) != 0 {
		t.Fatalf("Ours() after removal = %v", got)
	}
	if !closed(c.Done()) {
		t.Fatal("subscriptions not released")
	}
	if n := f.st.SubscriberCount(); n != 0 {
		t.Fatalf("store still has %d subscriptions", n)
	}

	// дальше контроллер ни на что не реагирует
	f.enter("g1", game.PhaseNight, 1)
	if n := f.clk.PendingCount(); n != 0 {
		t.Fatalf("pending timers after release = %d", n)
	}
	if p, r := c.State(); p != game.PhaseLobby || r != 0 {
		t.Fatalf("State() = %s/%d, want lobby/0", p, r)
	}
}

func TestFlagDisabledNeverRemovesHost(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "guest_100001")
	c := startWithBots(f, "guest_100001", "guest_100002")

	f.set(paths.Field("g1", game.KeyBotsEnabled), nil)
	f.clk.WaitForTimers(2)
	f.clk.Advance(500 * time.Millisecond)

	if f.get(paths.Player("g1", "guest_100001")) == nil {
		t.Fatal("host removed")
	}
	if f.get(paths.Player("g1", "guest_100002")) != nil {
		t.Fatal("guest_100002 not removed")
	}
	ours, tracked := c.Ours(), c.Tracked()
	if len(ours) != 1 || ours[0] != "guest_100001" {
		t.Fatalf("Ours() = %v", ours)
	}
	if len(tracked) != 1 || tracked[0] != "guest_100001" {
		t.Fatalf("Tracked() = %v, must contain every bot of Ours()", tracked)
	}
}

func TestFinishedStopsWithoutRemovingBots(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	c := startWithBots(f, "guest_100001")

	f.enter("g1", game.PhaseFinished, 4)
	f.clk.WaitForTimers(1)
	if c.Active() {
		t.Fatal("controller active after game over")
	}
	f.clk.Advance(100 * time.Millisecond)

	if !closed(c.Done()) {
		t.Fatal("subscriptions not released")
	}
	if f.get(paths.Player("g1", "guest_100001")) == nil {
		t.Fatal("bot removed on game over")
	}
}

func TestRosterRefreshOnTransition(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	c := startWithBots(f, "guest_100001", "guest_100002")

	f.set(paths.Player("g1", "guest_100002"), nil)
	f.set(paths.Player("g1", "guest_300003"), player("guest_300003", "Late").Record())
	f.set(paths.Player("g1", "guest_400004"), map[string]any{"id": "guest_400004", "isAlive": true})
	f.enter("g1", game.PhaseDayDiscussion, 1)
	waitState(t, c, game.PhaseDayDiscussion, 1)

	tracked, ours := c.Tracked(), c.Ours()
	if len(tracked) != 2 || tracked[0] != "guest_100001" || tracked[1] != "guest_300003" {
		t.Fatalf("Tracked() = %v", tracked)
	}
	if len(ours) != 1 || ours[0] != "guest_100001" {
		t.Fatalf("Ours() = %v", ours)
	}
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1")
	c := startWithBots(f)
	if err := c.Start(f.ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v", err)
	}
}

func TestStartAfterStopRefused(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1")
	c := NewSessionController(f.st, "g1", f.opts()...)

	c.Stop()
	if err := c.Start(f.ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Stop err = %v, want ErrStopped", err)
	}
	if c.Active() {
		t.Fatal("stopped controller reports active")
	}
	f.clk.Advance(time.Second)
	if !closed(c.Done()) {
		t.Fatal("subscriptions not released")
	}
	if n := f.st.SubscriberCount(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}

func TestBurstSpacesEveryBotByJitter(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	ours := []string{"guest_100001", "guest_100002", "guest_100003"}
	startWithBots(f, ours...)
	f.setRole("g1", "user_1", game.RolePaesano)
	for _, id := range ours {
		f.setRole("g1", id, game.RoleIspettore)
	}
	f.enter("g1", game.PhaseNight, 1)
	f.clk.WaitForTimers(1)

	// после settle ходит только первый, остальные ждут своей паузы
	f.clk.Advance(DefaultTiming().Settle)
	if acts := actions(f, "g1", game.ScopeNight, 1); len(acts) != 1 || acts[ours[0]] == nil {
		t.Fatalf("night/1 after settle = %v, want only %s", acts, ours[0])
	}
	for i := 1; i < len(ours); i++ {
		f.clk.Advance(DefaultTiming().JitterMax)
		if acts := actions(f, "g1", game.ScopeNight, 1); len(acts) != i+1 {
			t.Fatalf("night/1 after %d gaps has %d records, want %d", i, len(acts), i+1)
		}
	}
	if n := f.clk.PendingCount(); n != 0 {
		t.Fatalf("pending timers after burst = %d, want 0", n)
	}
}

func TestPhaseRelevant(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"status", true},
		{"currentPhase", true},
		{"players/guest_1/role", false},
		{"actions/night/1/guest_1", false},
	}
	for _, tt := range tests {
		if got := phaseRelevant(tt.path); got != tt.want {
			t.Errorf("phaseRelevant(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
