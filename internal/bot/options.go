package bot

import (
	"log/slog"
	"time"

	"github.com/EgorLis/palermobot/internal/clock"
	"github.com/EgorLis/palermobot/internal/game"
)

// Timing — задержки контроллера. Все отложенные задачи ставятся через
// clock.AfterFunc, обработчик уведомления никогда не ждёт сам.
type Timing struct {
	Settle       time.Duration // пауза после входа в фазу до первого хода
	JitterMin    time.Duration // разброс между ходами соседних ботов
	JitterMax    time.Duration
	RemoveDelay  time.Duration // флаг выключен -> удаление наших ботов
	ReleaseDelay time.Duration // флаг выключен -> снятие подписок
	StopDelay    time.Duration // Stop() -> снятие подписок
	IOTimeout    time.Duration // на одно обращение к хранилищу из фоновых задач
}

func DefaultTiming() Timing {
	return Timing{
		Settle:       3 * time.Second,
		JitterMin:    500 * time.Millisecond,
		JitterMax:    1500 * time.Millisecond,
		RemoveDelay:  100 * time.Millisecond,
		ReleaseDelay: 500 * time.Millisecond,
		StopDelay:    100 * time.Millisecond,
		IOTimeout:    10 * time.Second,
	}
}

type settings struct {
	clock    clock.Clock
	rnd      game.Rand
	strategy *game.Strategy
	log      *slog.Logger
	timing   Timing
	paths    game.Paths
}

// Option настраивает SessionController и Discovery.
type Option func(*settings)

func WithClock(c clock.Clock) Option { return func(s *settings) { s.clock = c } }

// WithRand — источник случайности для стратегии, разброса задержек,
// имён и id. Должен быть потокобезопасным (game.NewSeededRand).
func WithRand(r game.Rand) Option { return func(s *settings) { s.rnd = r } }

func WithStrategy(st *game.Strategy) Option { return func(s *settings) { s.strategy = st } }

func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.log = l } }

func WithTiming(t Timing) Option { return func(s *settings) { s.timing = t } }

// WithPaths — другой корень документа сессий (по умолчанию "games").
func WithPaths(p game.Paths) Option { return func(s *settings) { s.paths = p } }

func newSettings(opts []Option) settings {
	s := settings{
		clock:  clock.Real(),
		log:    slog.Default(),
		timing: DefaultTiming(),
	}
	for _, o := range opts {
		o(&s)
	}
	if s.rnd == nil {
		s.rnd = game.NewRand()
	}
	if s.strategy == nil {
		s.strategy = game.NewStrategy(s.rnd)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// jitter — случайная пауза в [JitterMin, JitterMax].
func (s *settings) jitter() time.Duration {
	span := s.timing.JitterMax - s.timing.JitterMin
	if span <= 0 {
		return s.timing.JitterMin
	}
	return s.timing.JitterMin + time.Duration(s.rnd.Float64()*float64(span))
}
