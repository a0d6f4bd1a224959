package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type SupervisorConfig struct {
	Total    int           // сколько участников должно быть в сессии
	GameID   string        // только эта сессия; пусто — все подходящие
	Interval time.Duration // пауза между циклами
}

// Supervisor периодически ищет сессии, заполняет их ботами и держит по
// одному контроллеру на сессию. Ошибка или паника в цикле не
// останавливает опрос.
type Supervisor struct {
	disc *Discovery
	cfg  SupervisorConfig
	log  *slog.Logger

	mu          sync.Mutex
	controllers map[string]*SessionController
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup

	// OnCycle вызывается после каждого цикла с числом активных сессий.
	OnCycle func(active int)
}

func NewSupervisor(disc *Discovery, cfg SupervisorConfig) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Supervisor{
		disc:        disc,
		cfg:         cfg,
		log:         disc.log,
		controllers: make(map[string]*SessionController),
	}
}

// Start запускает первый цикл сразу и дальше по тикеру.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.log.Info("monitoring games", "interval", s.cfg.Interval, "total", s.cfg.Total, "game", s.cfg.GameID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()

		for {
			if err := s.RunCycle(ctx); err != nil {
				s.log.Error("monitoring cycle failed", "err", err)
			}
			select {
			case <-t.C:
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop останавливает опрос и все контроллеры. Ботов в сессиях не трогает.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	ctrls := s.controllers
	s.controllers = make(map[string]*SessionController)
	s.mu.Unlock()
	for _, c := range ctrls {
		c.Stop()
	}
}

// RunCycle — один проход: убрать отработавшие контроллеры, найти сессии,
// заполнить новые и добрать ботов в уже отслеживаемые лобби. Ошибки отдельных сессий логируются, цикл идёт дальше.
func (s *Supervisor) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	s.prune()

	ids, err := s.targets(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		s.log.Info("no available games with virtual players enabled, will check again later")
	}

	for _, id := range ids {
		if ctrl := s.controller(id); ctrl != nil {
			// лобби уже ведём, но из него могли уйти игроки
			if _, err := s.disc.TopUp(ctx, ctrl, s.cfg.Total); err != nil {
				s.log.Error("top up failed", "game", id, "err", err)
			}
			continue
		}
		s.log.Info("processing game", "game", id)
		ctrl, err := s.disc.Populate(ctx, id, s.cfg.Total)
		if err != nil {
			s.log.Error("populate failed", "game", id, "err", err)
			continue
		}
		if ctrl == nil {
			continue
		}
		s.mu.Lock()
		s.controllers[id] = ctrl
		s.mu.Unlock()
	}

	active := s.Active()
	s.log.Info("currently monitoring active games", "count", active)
	if s.OnCycle != nil {
		s.OnCycle(active)
	}
	return nil
}

// Active — число активных контроллеров.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.controllers {
		if c.Active() {
			n++
		}
	}
	return n
}

// Sessions — id сессий под контролем, по порядку.
func (s *Supervisor) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.controllers)
}

func (s *Supervisor) targets(ctx context.Context) ([]string, error) {
	if s.cfg.GameID != "" {
		_, ok, err := s.disc.CheckSession(ctx, s.cfg.GameID)
		if err != nil || !ok {
			return nil, err
		}
		return []string{s.cfg.GameID}, nil
	}
	cands, err := s.disc.FindEligibleSessions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *Supervisor) controller(id string) *SessionController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controllers[id]
}

// prune забывает контроллеры, которые перестали реагировать (игра
// закончилась или ботов выключили).
func (s *Supervisor) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.controllers {
		if !c.Active() {
			delete(s.controllers, id)
			s.log.Debug("game dropped", "game", id)
		}
	}
}
