package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sort"
	"sync"
)

// SelfTargetChance — с такой вероятностью защитник и священник выбирают себя.
const SelfTargetChance = 0.3

// Rand — источник случайности стратегии. Один Rand делят Discovery и все
// её контроллеры, а ходы идут на горутинах таймеров, поэтому реализация
// должна быть потокобезопасной. Голый *rand.Rand не подходит, его
// оборачивает NewSeededRand.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// NewRand — потокобезопасный генератор, засеянный из crypto/rand.
// Один экземпляр можно делить между контроллерами разных игр.
func NewRand() Rand {
	var b [8]byte
	seed := int64(1)
	if _, err := crand.Read(b[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(b[:]))
	}
	return NewSeededRand(seed)
}

// NewSeededRand — потокобезопасный генератор с заданным seed.
func NewSeededRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Strategy — чистая функция выбора хода: роль + roster -> действие.
// Никакого I/O, только случайность через Rand.
type Strategy struct {
	rnd Rand
}

func NewStrategy(rnd Rand) *Strategy {
	if rnd == nil {
		rnd = NewRand()
	}
	return &Strategy{rnd: rnd}
}

// ChooseNightAction — ночной ход роли. false — хода нет (роль без ночного
// действия или не в кого целиться); в этом случае писать ничего нельзя.
func (s *Strategy) ChooseNightAction(role Role, selfID string, roster []Participant) (Action, bool) {
	pool := candidates(selfID, roster)

	switch role {
	case RoleMafioso:
		target, ok := s.pick(outsiders(pool, TeamMafia))
		if !ok {
			// своих не трогаем, пока есть кто-то ещё
			target, ok = s.pick(pool)
		}
		if !ok {
			return Action{}, false
		}
		return Action{Kind: ActionKill, TargetID: target}, true

	case RoleIspettore:
		target, ok := s.pick(pool)
		if !ok {
			return Action{}, false
		}
		return Action{Kind: ActionInvestigate, TargetID: target}, true

	case RoleSgarrista:
		return Action{Kind: ActionProtect, TargetID: s.pickOrSelf(selfID, pool)}, true

	case RoleIlPrete:
		return Action{Kind: ActionBless, TargetID: s.pickOrSelf(selfID, pool)}, true
	}
	return Action{}, false
}

// ChooseVoteTarget — за кого голосовать днём. Мафия не голосует против
// своих, если есть кто-то другой.
func (s *Strategy) ChooseVoteTarget(role Role, selfID string, roster []Participant) (string, bool) {
	pool := candidates(selfID, roster)
	if role.Team() == TeamMafia {
		if target, ok := s.pick(outsiders(pool, TeamMafia)); ok {
			return target, true
		}
	}
	return s.pick(pool)
}

// pickOrSelf — себя с вероятностью SelfTargetChance, иначе случайного
// живого. Сам бот всегда допустимая цель, так что без других — тоже себя.
func (s *Strategy) pickOrSelf(selfID string, pool []Participant) string {
	if s.rnd.Float64() < SelfTargetChance {
		return selfID
	}
	if target, ok := s.pick(pool); ok {
		return target
	}
	return selfID
}

func (s *Strategy) pick(pool []Participant) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}
	return pool[s.rnd.Intn(len(pool))].ID, true
}

// candidates — живые участники кроме самого бота, по возрастанию id,
// чтобы фиксированный Rand давал воспроизводимый выбор.
func candidates(selfID string, roster []Participant) []Participant {
	out := make([]Participant, 0, len(roster))
	for _, p := range roster {
		if p.ID == selfID || !p.Alive {
			continue
		}
		out = append(out, p)
	}
	sortByID(out)
	return out
}

func outsiders(pool []Participant, team Team) []Participant {
	var out []Participant
	for _, p := range pool {
		if p.Role.Team() != team {
			out = append(out, p)
		}
	}
	return out
}

func sortByID(ps []Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
