package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/EgorLis/palermobot/internal/clock"
	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/store"
)

// Agent — один виртуальный участник сессии. Держит закэшированные роль и
// «жив ли» и пишет в хранилище не больше одного действия за вызов.
type Agent struct {
	st        store.Store
	paths     game.Paths
	sessionID string
	id        string
	name      string
	strategy  *game.Strategy
	clock     clock.Clock
	log       *slog.Logger

	mu    sync.Mutex
	role  game.Role
	alive bool
}

func newAgent(c *SessionController, id, name string, role game.Role) *Agent {
	return &Agent{
		st:        c.st,
		paths:     c.paths,
		sessionID: c.sessionID,
		id:        id,
		name:      name,
		strategy:  c.strategy,
		clock:     c.clock,
		log:       c.log.With("player", id),
		role:      role,
		alive:     true,
	}
}

func (a *Agent) ID() string   { return a.id }
func (a *Agent) Name() string { return a.name }

func (a *Agent) Role() game.Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

func (a *Agent) Alive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alive
}

// Eligible — жив и с ролью (по кэшу).
func (a *Agent) Eligible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alive && a.role != game.RoleNone
}

// Refresh перечитывает свою запись и обновляет кэш. Возвращает Eligible.
// Пропавшая запись — участник считается выбывшим.
func (a *Agent) Refresh(ctx context.Context) (bool, error) {
	v, err := a.st.Get(ctx, a.paths.Player(a.sessionID, a.id))
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", a.id, err)
	}
	p, ok := game.DecodeParticipant(a.id, v)
	a.apply(p, ok)
	return a.Eligible(), nil
}

// apply — обновить кэш из уже прочитанной записи.
func (a *Agent) apply(p game.Participant, present bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !present {
		a.alive = false
		return
	}
	a.role = p.Role
	a.alive = p.Alive
	if p.HasName() {
		a.name = p.Name
	}
}

// ActNight — ночной ход по роли. true — запись сделана.
// Роли без ночного действия даже не читают roster.
func (a *Agent) ActNight(ctx context.Context, round int) (bool, error) {
	if !a.Eligible() || !a.Role().ActsAtNight() {
		return false, nil
	}
	roster, err := a.roster(ctx)
	if err != nil {
		return false, err
	}
	act, ok := a.strategy.ChooseNightAction(a.Role(), a.id, roster)
	if !ok {
		a.log.Debug("no night action", "role", a.Role(), "round", round)
		return false, nil
	}
	if err := a.write(ctx, game.ScopeNight, round, act); err != nil {
		return false, err
	}
	a.log.Info("night action", "name", a.name, "role", a.Role(), "action", act.Kind, "target", act.TargetID, "round", round)
	return true, nil
}

// ActVote — голос в дневном голосовании. true — запись сделана.
func (a *Agent) ActVote(ctx context.Context, round int) (bool, error) {
	if !a.Eligible() {
		return false, nil
	}
	roster, err := a.roster(ctx)
	if err != nil {
		return false, err
	}
	target, ok := a.strategy.ChooseVoteTarget(a.Role(), a.id, roster)
	if !ok {
		a.log.Debug("no vote target", "round", round)
		return false, nil
	}
	act := game.Action{Kind: game.ActionVote, TargetID: target}
	if err := a.write(ctx, game.ScopeDay, round, act); err != nil {
		return false, err
	}
	a.log.Info("vote", "name", a.name, "target", target, "round", round)
	return true, nil
}

func (a *Agent) roster(ctx context.Context) ([]game.Participant, error) {
	v, err := a.st.Get(ctx, a.paths.Players(a.sessionID))
	if err != nil {
		return nil, fmt.Errorf("read players: %w", err)
	}
	return game.SortedRoster(game.DecodePlayers(v)), nil
}

// write — одна запись на (фаза, раунд, игрок); повтор перезаписывает.
func (a *Agent) write(ctx context.Context, scope game.ActionScope, round int, act game.Action) error {
	rec := map[string]any{
		"actionType":     string(act.Kind),
		"sourcePlayerId": a.id,
		"targetPlayerId": act.TargetID,
		"timestamp":      a.clock.Now().UnixMilli(),
	}
	path := a.paths.Action(a.sessionID, scope, round, a.id)
	if err := a.st.Set(ctx, path, rec); err != nil {
		return fmt.Errorf("write %s action: %w", scope, err)
	}
	return nil
}
