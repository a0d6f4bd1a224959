package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/store"
)

func agentFixture(t *testing.T, self game.Participant, others ...game.Participant) (*fixture, *Agent) {
	t.Helper()
	f := newFixture(t)
	f.lobby("g1", "user_1", append(others, self)...)
	c := NewSessionController(f.st, "g1", f.opts()...)
	return f, c.AddBot(self.ID, self.Name, true)
}

func TestAgentActsOncePerRound(t *testing.T) {
	self := game.Participant{ID: "guest_100001", Name: "Alex", Role: game.RoleMafioso, Alive: true}
	f, a := agentFixture(t, self,
		game.Participant{ID: "user_1", Name: "Host", Role: game.RolePaesano, Alive: true})

	ok, err := a.Refresh(f.ctx)
	if err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	for range 2 {
		wrote, err := a.ActNight(f.ctx, 1)
		if err != nil || !wrote {
			t.Fatalf("ActNight = %v, %v", wrote, err)
		}
	}

	acts := actions(f, "g1", game.ScopeNight, 1)
	if len(acts) != 1 {
		t.Fatalf("night/1 = %v, want exactly one record", acts)
	}
	rec := acts["guest_100001"].(map[string]any)
	if rec["targetPlayerId"] != "user_1" || rec["actionType"] != "KILL" {
		t.Fatalf("record = %v", rec)
	}
	if rec["timestamp"] != float64(epoch.UnixMilli()) {
		t.Fatalf("timestamp = %v, want %d", rec["timestamp"], epoch.UnixMilli())
	}
}

func TestAgentSkipsWithoutRole(t *testing.T) {
	f, a := agentFixture(t, player("guest_100001", "Alex"), player("user_1", "Host"))

	ok, err := a.Refresh(f.ctx)
	if err != nil || ok {
		t.Fatalf("Refresh = %v, %v, want not eligible", ok, err)
	}
	if wrote, err := a.ActNight(f.ctx, 1); err != nil || wrote {
		t.Fatalf("ActNight = %v, %v", wrote, err)
	}
	if wrote, err := a.ActVote(f.ctx, 1); err != nil || wrote {
		t.Fatalf("ActVote = %v, %v", wrote, err)
	}
	if acts := f.get(paths.Session("g1") + "/actions"); acts != nil {
		t.Fatalf("actions written: %v", acts)
	}
}

func TestAgentRefreshVanishedParticipant(t *testing.T) {
	self := game.Participant{ID: "guest_100001", Name: "Alex", Role: game.RoleIspettore, Alive: true}
	f, a := agentFixture(t, self)
	f.set(paths.Player("g1", self.ID), nil)

	ok, err := a.Refresh(f.ctx)
	if err != nil || ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	if a.Alive() {
		t.Fatal("vanished participant still alive in cache")
	}
}

func TestAgentWithoutTargetsWritesNothing(t *testing.T) {
	self := game.Participant{ID: "guest_100001", Name: "Alex", Role: game.RoleIspettore, Alive: true}
	f, a := agentFixture(t, self,
		game.Participant{ID: "user_1", Name: "Host", Role: game.RolePaesano})

	if _, err := a.Refresh(f.ctx); err != nil {
		t.Fatal(err)
	}
	if wrote, err := a.ActNight(f.ctx, 1); err != nil || wrote {
		t.Fatalf("ActNight = %v, %v", wrote, err)
	}
	if wrote, err := a.ActVote(f.ctx, 1); err != nil || wrote {
		t.Fatalf("ActVote = %v, %v", wrote, err)
	}
}

func TestAgentMafiosoFallsBackToFaction(t *testing.T) {
	self := game.Participant{ID: "guest_100001", Name: "Alex", Role: game.RoleMafioso, Alive: true}
	f, a := agentFixture(t, self,
		game.Participant{ID: "guest_100002", Name: "Blair", Role: game.RoleMafioso, Alive: true},
		game.Participant{ID: "guest_100003", Name: "Casey", Role: game.RoleMafioso, Alive: true})

	if _, err := a.Refresh(f.ctx); err != nil {
		t.Fatal(err)
	}
	wrote, err := a.ActNight(f.ctx, 2)
	if err != nil || !wrote {
		t.Fatalf("ActNight = %v, %v", wrote, err)
	}
	rec := actions(f, "g1", game.ScopeNight, 2)["guest_100001"].(map[string]any)
	if target := rec["targetPlayerId"]; target != "guest_100002" && target != "guest_100003" {
		t.Fatalf("target = %v, want a faction member", target)
	}
}

// rosterReads считает чтения ветки players.
type rosterReads struct {
	store.Store
	n int
}

func (s *rosterReads) Get(ctx context.Context, path string) (any, error) {
	if strings.HasSuffix(path, "/"+game.KeyPlayers) {
		s.n++
	}
	return s.Store.Get(ctx, path)
}

func TestAgentWithoutNightRoleSkipsRosterRead(t *testing.T) {
	f := newFixture(t)
	f.lobby("g1", "user_1", player("user_1", "Host"))
	st := &rosterReads{Store: f.st}
	c := NewSessionController(st, "g1", f.opts()...)
	a := c.AddBot("guest_100001", "Alex", true)
	f.set(paths.Player("g1", "guest_100001"), player("guest_100001", "Alex").Record())
	f.setRole("g1", "guest_100001", game.RolePaesano)

	if ok, err := a.Refresh(f.ctx); err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	if wrote, err := a.ActNight(f.ctx, 1); err != nil || wrote {
		t.Fatalf("ActNight = %v, %v, want no action", wrote, err)
	}
	if st.n != 0 {
		t.Fatalf("roster read %d times for a role without night action", st.n)
	}

	// голосует та же роль как обычно
	if wrote, err := a.ActVote(f.ctx, 1); err != nil || !wrote {
		t.Fatalf("ActVote = %v, %v", wrote, err)
	}
}
