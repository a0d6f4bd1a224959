// Package game — модель сессии Palermo Justice в том виде, в каком её
// хранит общий документ: фазы, роли, участники, действия, пути ключей.
// Правила игры (подсчёт голосов, победа) здесь не живут — ими владеет
// движок игры, который пишет в тот же документ.
package game

// Phase — значение поля status сессии.
type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhaseNight            Phase = "night"
	PhaseNightResults     Phase = "night_results"
	PhaseDayDiscussion    Phase = "day"
	PhaseDayVoting        Phase = "voting"
	PhaseExecutionResults Phase = "execution_results"
	PhaseFinished         Phase = "finished"
)

// Role — роль участника. Пустая строка — роль ещё не раздана.
type Role string

const (
	RoleNone      Role = ""
	RoleMafioso   Role = "MAFIOSO"
	RolePaesano   Role = "PAESANO"
	RoleIspettore Role = "ISPETTORE"
	RoleSgarrista Role = "SGARRISTA"
	RoleIlPrete   Role = "IL_PRETE"
)

type Team string

const (
	TeamMafia    Team = "MAFIA"
	TeamCitizens Team = "CITIZENS"
)

// Team — к какой команде относится роль. Нераспределённые и неизвестные
// роли считаются горожанами: мафии они не свои.
func (r Role) Team() Team {
	if r == RoleMafioso {
		return TeamMafia
	}
	return TeamCitizens
}

// ActsAtNight — есть ли у роли ночное действие.
func (r Role) ActsAtNight() bool {
	switch r {
	case RoleMafioso, RoleIspettore, RoleSgarrista, RoleIlPrete:
		return true
	}
	return false
}

type ActionKind string

const (
	ActionKill        ActionKind = "KILL"
	ActionInvestigate ActionKind = "INVESTIGATE"
	ActionProtect     ActionKind = "PROTECT"
	ActionBless       ActionKind = "BLESS"
	ActionVote        ActionKind = "VOTE"
)

// Action — решение бота: что сделать и с кем.
type Action struct {
	Kind     ActionKind
	TargetID string
}

// ActionScope — ветка actions/, в которую пишутся действия фазы.
type ActionScope string

const (
	ScopeNight ActionScope = "night"
	ScopeDay   ActionScope = "day"
)
