package bot

import (
	"context"
	"fmt"
	"sort"

	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/store"
)

// Candidate — сессия, куда можно добавить ботов.
type Candidate struct {
	ID      string
	Players int
}

// Discovery ищет сессии в лобби с включённым флагом ботов и добивает их
// roster до нужного размера.
type Discovery struct {
	settings
	st   store.Store
	opts []Option
}

func NewDiscovery(st store.Store, opts ...Option) *Discovery {
	d := &Discovery{settings: newSettings(opts), st: st}
	// контроллеры делят с Discovery один источник случайности
	d.opts = append(append([]Option(nil), opts...), WithRand(d.rnd), WithStrategy(d.strategy))
	return d
}

// FindEligibleSessions — сессии в лобби с включённым флагом, по порядку id.
func (d *Discovery) FindEligibleSessions(ctx context.Context) ([]Candidate, error) {
	v, err := d.st.Get(ctx, d.paths.Sessions())
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	all, _ := store.AsMap(v)

	var out []Candidate
	for id, raw := range all {
		if c, ok := eligible(id, raw); ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CheckSession — подходит ли одна сессия под те же условия, что и скан.
func (d *Discovery) CheckSession(ctx context.Context, sessionID string) (Candidate, bool, error) {
	v, err := d.st.Get(ctx, d.paths.Session(sessionID))
	if err != nil {
		return Candidate{}, false, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	c, ok := eligible(sessionID, v)
	return c, ok, nil
}

func eligible(id string, raw any) (Candidate, bool) {
	s, ok := game.DecodeSession(id, raw)
	if !ok || s.Phase != game.PhaseLobby || !s.BotsEnabled {
		return Candidate{}, false
	}
	return Candidate{ID: id, Players: len(s.Players)}, true
}

// Populate добавляет в сессию ботов до desiredTotal участников и
// возвращает запущенный контроллер. nil без ошибки — флаг ботов выключен
// (проверяется заново, прошлому скану не верим).
func (d *Discovery) Populate(ctx context.Context, sessionID string, desiredTotal int) (*SessionController, error) {
	ok, err := d.enabled(ctx, sessionID)
	if err != nil || !ok {
		return nil, err
	}

	ctrl := NewSessionController(d.st, sessionID, d.opts...)
	created, err := d.fill(ctx, ctrl, desiredTotal)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Start(ctx); err != nil {
		d.rollback(sessionID, created)
		return nil, err
	}
	return ctrl, nil
}

// TopUp добирает ботов в сессию, которую уже ведёт ctrl: если из лобби
// кто-то ушёл, roster снова доводится до desiredTotal. Новые боты
// считаются созданными этим контроллером. Возвращает число добавленных.
func (d *Discovery) TopUp(ctx context.Context, ctrl *SessionController, desiredTotal int) (int, error) {
	if !ctrl.Active() {
		return 0, nil
	}
	ok, err := d.enabled(ctx, ctrl.SessionID())
	if err != nil || !ok {
		return 0, err
	}
	created, err := d.fill(ctx, ctrl, desiredTotal)
	return len(created), err
}

func (d *Discovery) enabled(ctx context.Context, sessionID string) (bool, error) {
	flag, err := d.st.Get(ctx, d.paths.Field(sessionID, game.KeyBotsEnabled))
	if err != nil {
		return false, fmt.Errorf("read flag %s: %w", sessionID, err)
	}
	if !store.Truthy(flag) {
		d.log.Info("virtual players are not enabled, skipping", "game", sessionID)
		return false, nil
	}
	return true, nil
}

// fill пишет недостающих ботов и регистрирует их в ctrl как своих. При
// ошибке записи уже добавленные в этом вызове боты убираются.
func (d *Discovery) fill(ctx context.Context, ctrl *SessionController, desiredTotal int) ([]string, error) {
	sessionID := ctrl.SessionID()
	log := d.log.With("game", sessionID)

	pv, err := d.st.Get(ctx, d.paths.Players(sessionID))
	if err != nil {
		return nil, fmt.Errorf("read players %s: %w", sessionID, err)
	}
	players := game.DecodePlayers(pv)
	takenIDs := make(map[string]struct{}, len(players))
	takenNames := make(map[string]struct{}, len(players))
	for id, p := range players {
		takenIDs[id] = struct{}{}
		if p.HasName() {
			takenNames[p.Name] = struct{}{}
		}
	}
	toAdd := max(0, desiredTotal-len(players))
	log.Debug("existing players found", "count", len(players), "to_add", toAdd)

	var created []string
	for range toAdd {
		p := game.Participant{
			ID:    newGuestID(d.rnd, takenIDs),
			Name:  pickName(d.rnd, takenNames),
			Alive: true,
		}
		takenIDs[p.ID] = struct{}{}
		takenNames[p.Name] = struct{}{}

		if err := d.st.Set(ctx, d.paths.Player(sessionID, p.ID), p.Record()); err != nil {
			d.rollback(sessionID, created)
			ctrl.forget(created)
			return nil, fmt.Errorf("add bot to %s: %w", sessionID, err)
		}
		created = append(created, p.ID)
		ctrl.AddBot(p.ID, p.Name, true)
		log.Info("added virtual player", "player", p.ID, "name", p.Name)
	}
	if toAdd > 0 {
		log.Info("game filled", "total", len(players)+toAdd)
	}
	return created, nil
}

// rollback убирает ботов, добавленных неудавшимся заполнением: без
// контроллера их никто не удалит.
func (d *Discovery) rollback(sessionID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timing.IOTimeout)
	defer cancel()
	for _, id := range ids {
		if err := d.st.Set(ctx, d.paths.Player(sessionID, id), nil); err != nil {
			d.log.Error("rollback bot failed", "game", sessionID, "player", id, "err", err)
		}
	}
}
