package game

import (
	"sort"
	"strconv"
	"strings"

	"github.com/EgorLis/palermobot/internal/store"
)

// Ключи документа сессии.
const (
	KeyStatus      = "status"
	KeyRound       = "currentPhase"
	KeyBotsEnabled = "virtualPlayersEnabled"
	KeyHostID      = "hostId"
	KeyPlayers     = "players"
	KeyActions     = "actions"
)

// BotIDPrefix — так выглядят id гостевых участников; среди них ищутся боты.
const BotIDPrefix = "guest_"

// DefaultRoot — корень, под которым лежат все сессии.
const DefaultRoot = "games"

// Participant — запись игрока в roster.
type Participant struct {
	ID    string
	Name  string
	Role  Role
	Alive bool
}

// Record — запись для хранилища. Роль не пишется, пока её нет.
func (p Participant) Record() map[string]any {
	rec := map[string]any{
		"id":      p.ID,
		"name":    p.Name,
		"isAlive": p.Alive,
	}
	if p.Role != RoleNone {
		rec["role"] = string(p.Role)
	}
	return rec
}

// Session — разобранный снимок документа сессии.
type Session struct {
	ID          string
	Phase       Phase
	Round       int
	BotsEnabled bool
	HostID      string
	Players     map[string]Participant
}

// IsBotID — подходит ли id под шаблон бота.
func IsBotID(id string) bool { return strings.HasPrefix(id, BotIDPrefix) }

// DecodeSession разбирает документ сессии. false — документа нет или это
// не объект. Отсутствующий status трактуется как лобби, round — как 0.
func DecodeSession(id string, v any) (Session, bool) {
	doc, ok := store.AsMap(v)
	if !ok {
		return Session{}, false
	}
	s := Session{
		ID:          id,
		Phase:       PhaseLobby,
		BotsEnabled: store.Truthy(doc[KeyBotsEnabled]),
		Players:     DecodePlayers(doc[KeyPlayers]),
	}
	if st, ok := store.AsString(doc[KeyStatus]); ok && st != "" {
		s.Phase = Phase(st)
	}
	if r, ok := store.AsInt(doc[KeyRound]); ok {
		s.Round = r
	}
	if h, ok := store.AsString(doc[KeyHostID]); ok {
		s.HostID = h
	}
	return s, true
}

// DecodePlayers разбирает ветку players. Записи без объекта пропускаются.
func DecodePlayers(v any) map[string]Participant {
	out := map[string]Participant{}
	m, ok := store.AsMap(v)
	if !ok {
		return out
	}
	for id, raw := range m {
		if p, ok := DecodeParticipant(id, raw); ok {
			out[id] = p
		}
	}
	return out
}

// DecodeParticipant разбирает одну запись игрока. isAlive по умолчанию true.
func DecodeParticipant(id string, v any) (Participant, bool) {
	rec, ok := store.AsMap(v)
	if !ok {
		return Participant{}, false
	}
	p := Participant{ID: id, Alive: true}
	p.Name, _ = store.AsString(rec["name"])
	if r, ok := store.AsString(rec["role"]); ok {
		p.Role = Role(r)
	}
	if alive, ok := rec["isAlive"].(bool); ok {
		p.Alive = alive
	}
	return p, true
}

// HasName — есть ли у записи имя (только такие считаются ботами при поиске).
func (p Participant) HasName() bool { return p.Name != "" }

// Roster — участники, упорядоченные по id.
func (s Session) Roster() []Participant {
	return SortedRoster(s.Players)
}

func SortedRoster(players map[string]Participant) []Participant {
	out := make([]Participant, 0, len(players))
	for _, p := range players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Paths строит пути документа сессий под общим корнем.
type Paths struct {
	Root string
}

func (p Paths) root() string {
	if p.Root == "" {
		return DefaultRoot
	}
	return p.Root
}

// Sessions — ветка со всеми сессиями.
func (p Paths) Sessions() string { return p.root() }

func (p Paths) Session(sessionID string) string {
	return store.Join(p.root(), sessionID)
}

func (p Paths) Field(sessionID, key string) string {
	return store.Join(p.root(), sessionID, key)
}

func (p Paths) Players(sessionID string) string {
	return store.Join(p.root(), sessionID, KeyPlayers)
}

func (p Paths) Player(sessionID, playerID string) string {
	return store.Join(p.root(), sessionID, KeyPlayers, playerID)
}

// Action — путь записи действия: одна запись на (фаза, раунд, игрок).
func (p Paths) Action(sessionID string, scope ActionScope, round int, actorID string) string {
	return store.Join(p.root(), sessionID, KeyActions, string(scope), strconv.Itoa(round), actorID)
}
