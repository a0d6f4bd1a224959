// Package clock — подменяемое время. Весь код, которому нужны задержки
// (settle-пауза перед ходами ботов, разброс между ходами, отложенная
// очистка подписок), получает Clock параметром вместо прямых вызовов
// time.AfterFunc / time.After. В проде — Real(), в тестах — Fake(),
// где время двигается только через Advance.
//
// Пример для теста:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	ctrl := bot.NewSessionController(..., bot.WithClock(c))
//	// ... уведомление о смене фазы ...
//	c.WaitForTimers(1)         // дождаться, пока контроллер поставит таймер
//	c.Advance(3 * time.Second) // детерминированно сработать
package clock

import "time"

type Clock interface {
	Now() time.Time

	// After — аналог time.After. При d <= 0 канал готов сразу.
	After(d time.Duration) <-chan time.Time

	// AfterFunc — аналог time.AfterFunc. Возвращённый Timer можно
	// остановить через Stop.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer — отложенный вызов, созданный AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop отменяет вызов. true — если вызов ещё не случился.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real возвращает Clock поверх пакета time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
