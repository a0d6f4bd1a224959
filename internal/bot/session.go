package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/EgorLis/palermobot/internal/game"
	"github.com/EgorLis/palermobot/internal/store"
)

var (
	ErrAlreadyStarted = errors.New("bot: controller already started")
	ErrStopped        = errors.New("bot: controller stopped")
)

type stateKey struct {
	phase game.Phase
	round int
}

// SessionController ведёт одну сессию: следит за сменой фазы и флагом
// ботов, по входу в ночь и голосование запускает ходы своих ботов, при
// выключении флага убирает созданных им ботов.
//
// Обработчики уведомлений только фиксируют переход и ставят отложенные
// задачи; всё долгое (ходы с паузами, удаление, снятие подписок)
// выполняется в задачах clock.AfterFunc.
type SessionController struct {
	settings
	st        store.Store
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	stopped atomic.Bool // Stop или выключенный флаг; повторно не запускается
	active  atomic.Bool

	mu     sync.Mutex
	agents map[string]*Agent   // все отслеживаемые боты
	ours   map[string]struct{} // созданные этим контроллером, ⊆ agents
	last   stateKey
	seen   map[stateKey]struct{}

	// ходы ботов одного контроллера не пересекаются
	actMu sync.Mutex

	subMu    sync.Mutex
	subs     []store.Subscription
	released bool
	done     chan struct{}
}

func NewSessionController(st store.Store, sessionID string, opts ...Option) *SessionController {
	s := newSettings(opts)
	s.log = s.log.With("game", sessionID)
	initial := stateKey{phase: game.PhaseLobby}
	return &SessionController{
		settings:  s,
		st:        st,
		sessionID: sessionID,
		ctx:       context.Background(),
		cancel:    func() {},
		agents:    make(map[string]*Agent),
		ours:      make(map[string]struct{}),
		last:      initial,
		seen:      map[stateKey]struct{}{initial: {}},
		done:      make(chan struct{}),
	}
}

func (c *SessionController) SessionID() string { return c.sessionID }

// Active — контроллер ещё реагирует на уведомления.
func (c *SessionController) Active() bool { return c.active.Load() }

// Done закрывается, когда подписки сняты.
func (c *SessionController) Done() <-chan struct{} { return c.done }

// State — последняя обработанная пара (фаза, раунд).
func (c *SessionController) State() (game.Phase, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.phase, c.last.round
}

// AddBot начинает отслеживать участника. createdByUs — бот создан нами и
// будет удалён при выключении флага.
func (c *SessionController) AddBot(id, name string, createdByUs bool) *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.agents[id]
	if !ok {
		a = newAgent(c, id, name, game.RoleNone)
		c.agents[id] = a
	}
	if createdByUs {
		c.ours[id] = struct{}{}
		c.log.Info("tracking bot as created by us", "player", id, "name", name)
	}
	return a
}

// forget перестаёт отслеживать ботов ids.
func (c *SessionController) forget(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.agents, id)
		delete(c.ours, id)
	}
}

// Tracked — id всех отслеживаемых ботов по порядку.
func (c *SessionController) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.agents)
}

// Ours — id ботов, созданных этим контроллером.
func (c *SessionController) Ours() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.ours)
}

// Start подписывается на документ сессии и на флаг ботов. Остановленный
// контроллер (даже не запускавшийся) не стартует: ErrStopped.
func (c *SessionController) Start(ctx context.Context) error {
	if c.stopped.Load() {
		return ErrStopped
	}
	if c.started.Swap(true) {
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.active.Store(true)

	sessionSub, err := c.st.Subscribe(ctx, c.paths.Session(c.sessionID), c.onSessionEvent)
	if err != nil {
		c.active.Store(false)
		c.release()
		return fmt.Errorf("subscribe session %s: %w", c.sessionID, err)
	}
	if !c.addSub(sessionSub) {
		c.active.Store(false)
		return ErrStopped
	}

	flagSub, err := c.st.Subscribe(ctx, c.paths.Field(c.sessionID, game.KeyBotsEnabled), c.onFlagEvent)
	if err != nil {
		c.active.Store(false)
		c.release()
		return fmt.Errorf("subscribe flag %s: %w", c.sessionID, err)
	}
	if !c.addSub(flagSub) {
		c.active.Store(false)
		return ErrStopped
	}

	c.log.Info("monitoring game", "bots", len(c.Tracked()))
	return nil
}

// Stop — перестать реагировать и снять подписки. Ботов не удаляет.
func (c *SessionController) Stop() {
	c.stopped.Store(true)
	if c.active.Swap(false) {
		c.log.Info("monitoring stopped")
	}
	c.clock.AfterFunc(c.timing.StopDelay, c.release)
}

func (c *SessionController) onSessionEvent(ev store.Event) {
	c.safely("session event", func() { c.handleSessionChange(ev) })
}

func (c *SessionController) onFlagEvent(ev store.Event) {
	c.safely("flag event", func() { c.handleFlagChange(ev) })
}

// handleSessionChange не верит форме уведомления (это может быть весь
// документ или скаляр под ним) и перечитывает сессию целиком.
func (c *SessionController) handleSessionChange(ev store.Event) {
	if !c.active.Load() || !phaseRelevant(ev.Path) {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.timing.IOTimeout)
	v, err := c.st.Get(ctx, c.paths.Session(c.sessionID))
	cancel()
	if err != nil {
		c.log.Warn("read session failed", "err", err)
		return
	}

	sess, ok := game.DecodeSession(c.sessionID, v)
	if !ok {
		// документа больше нет — игра для нас закончена
		sess = game.Session{ID: c.sessionID, Phase: game.PhaseFinished}
	}

	key := stateKey{phase: sess.Phase, round: sess.Round}
	c.mu.Lock()
	if _, dup := c.seen[key]; dup || key == c.last {
		c.mu.Unlock()
		return
	}
	prev := c.last
	c.last = key
	c.seen[key] = struct{}{}
	c.mu.Unlock()

	c.log.Info("state changed", "from", prev.phase, "to", key.phase, "round", key.round)

	switch key.phase {
	case game.PhaseFinished:
		c.log.Info("game over")
		c.Stop()
		return
	case game.PhaseNight:
		c.refreshRoster(sess.Players)
		c.scheduleBurst(game.ScopeNight, key.round)
	case game.PhaseDayVoting:
		c.refreshRoster(sess.Players)
		c.scheduleBurst(game.ScopeDay, key.round)
	default:
		c.refreshRoster(sess.Players)
	}
}

// phaseRelevant — может ли изменение по этому пути сменить фазу или раунд.
// Записи действий и игроков не могут.
func phaseRelevant(path string) bool {
	segs := store.Split(path)
	if len(segs) == 0 {
		return true
	}
	return segs[0] != game.KeyActions && segs[0] != game.KeyPlayers
}

func (c *SessionController) handleFlagChange(ev store.Event) {
	if !c.active.Load() {
		return
	}
	v := ev.Data
	if m, ok := store.AsMap(v); ok {
		v = m[game.KeyBotsEnabled]
	}
	if store.Truthy(v) {
		return
	}
	if !c.active.CompareAndSwap(true, false) {
		return
	}
	c.stopped.Store(true)
	c.log.Info("virtual players disabled, removing our bots")
	c.clock.AfterFunc(c.timing.RemoveDelay, func() {
		c.safely("remove bots", c.removeOurs)
	})
	c.clock.AfterFunc(c.timing.ReleaseDelay, c.release)
}

// refreshRoster сверяет отслеживаемых ботов с roster: пропавших забывает,
// новых ботов с именем начинает отслеживать (но не считает своими).
func (c *SessionController) refreshRoster(players map[string]game.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, a := range c.agents {
		p, ok := players[id]
		if !ok {
			delete(c.agents, id)
			delete(c.ours, id)
			c.log.Info("bot left the game", "player", id)
			continue
		}
		a.apply(p, true)
	}
	for id, p := range players {
		if _, ok := c.agents[id]; ok || !game.IsBotID(id) || !p.HasName() {
			continue
		}
		a := newAgent(c, id, p.Name, p.Role)
		a.apply(p, true)
		c.agents[id] = a
		c.log.Info("now tracking bot", "player", id, "name", p.Name)
	}
}

// scheduleBurst — через Settle по очереди ходят наши живые боты,
// между ходами случайная пауза.
func (c *SessionController) scheduleBurst(scope game.ActionScope, round int) {
	if !c.active.Load() {
		return
	}
	c.clock.AfterFunc(c.timing.Settle, func() {
		c.safely("actions", func() {
			if !c.active.Load() {
				return
			}
			agents := c.actors()
			c.log.Info("performing actions", "scope", scope, "round", round, "bots", len(agents))
			c.burstStep(scope, round, agents, 0)
		})
	})
}

func (c *SessionController) burstStep(scope game.ActionScope, round int, agents []*Agent, i int) {
	if i >= len(agents) || !c.active.Load() {
		return
	}
	c.act(scope, round, agents[i])

	if i+1 < len(agents) {
		c.clock.AfterFunc(c.jitter(), func() {
			c.safely("actions", func() { c.burstStep(scope, round, agents, i+1) })
		})
	}
}

func (c *SessionController) act(scope game.ActionScope, round int, a *Agent) {
	c.actMu.Lock()
	defer c.actMu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.timing.IOTimeout)
	defer cancel()

	// роли раздаются при входе в ночь, кэш мог отстать
	ok, err := a.Refresh(ctx)
	if err != nil {
		c.log.Warn("refresh failed", "player", a.ID(), "err", err)
		return
	}
	if !ok {
		return
	}

	if scope == game.ScopeNight {
		_, err = a.ActNight(ctx, round)
	} else {
		_, err = a.ActVote(ctx, round)
	}
	if err != nil {
		c.log.Warn("action failed", "player", a.ID(), "scope", scope, "round", round, "err", err)
	}
}

// actors — наши живые боты, по порядку id.
func (c *SessionController) actors() []*Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Agent, 0, len(c.ours))
	for id := range c.ours {
		if a, ok := c.agents[id]; ok && a.Alive() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// removeOurs пишет надгробия созданным нами ботам. Хоста не трогает.
// Работает и после деактивации, поэтому контекст свой.
func (c *SessionController) removeOurs() {
	ids := c.Ours()
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timing.IOTimeout)
	defer cancel()

	hostV, err := c.st.Get(ctx, c.paths.Field(c.sessionID, game.KeyHostID))
	if err != nil {
		c.log.Error("read host failed, bots not removed", "err", err)
		return
	}
	host, _ := store.AsString(hostV)

	c.log.Info("removing bots created by us", "count", len(ids))
	for _, id := range ids {
		if id == host {
			c.log.Warn("bot is the host, not removing", "player", id)
			continue
		}
		if err := c.st.Set(ctx, c.paths.Player(c.sessionID, id), nil); err != nil {
			c.log.Error("remove bot failed", "player", id, "err", err)
			continue
		}
		c.mu.Lock()
		delete(c.ours, id)
		delete(c.agents, id)
		c.mu.Unlock()
		c.log.Info("removed bot", "player", id)
	}
}

// addSub запоминает подписку. false — подписки уже сняты, эта отменена сразу.
func (c *SessionController) addSub(sub store.Subscription) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.released {
		_ = sub.Cancel()
		return false
	}
	c.subs = append(c.subs, sub)
	return true
}

// release снимает подписки. Повторный вызов ничего не делает.
func (c *SessionController) release() {
	c.subMu.Lock()
	if c.released {
		c.subMu.Unlock()
		return
	}
	c.released = true
	subs := c.subs
	c.subs = nil
	c.subMu.Unlock()

	for _, sub := range subs {
		if err := sub.Cancel(); err != nil {
			c.log.Warn("cancel subscription failed", "err", err)
		}
	}
	c.cancel()
	close(c.done)
	c.log.Debug("subscriptions released")
}

func (c *SessionController) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", "in", what, "panic", r)
		}
	}()
	fn()
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
