// Package store описывает общее удалённое хранилище состояния игры — дерево
// JSON-подобных значений с иерархическими путями ("games/abc/players/guest_1").
//
// Значения в дереве: map[string]any, []any, string, float64, bool, nil.
// Запись nil — «надгробие»: узел удаляется, пустые родители исчезают.
//
// Реализации:
//   - memstore — в памяти процесса (тесты, сервер rthub);
//   - rtclient — клиент rthub по WebSocket.
//
// Подписка получает первое событие с полным значением по пути, дальше —
// по событию на каждое изменение на этом пути, под ним или над ним.
// События одной подписки приходят строго по порядку в своей горутине;
// обработчик не должен блокироваться надолго.
package store

import "context"

type Store interface {
	// Get возвращает копию значения по пути; nil — если узла нет.
	Get(ctx context.Context, path string) (any, error)
	// Set пишет значение (last-write-wins). value == nil удаляет узел.
	Set(ctx context.Context, path string, value any) error
	// Subscribe регистрирует fn на изменения по пути.
	Subscribe(ctx context.Context, path string, fn func(Event)) (Subscription, error)
}

// Subscription — хендл подписки. Cancel идемпотентен и безопасен
// для вызова из обработчика этой же подписки.
type Subscription interface {
	Cancel() error
}

// Event — уведомление об изменении.
// Path — путь изменения относительно подписки ("/" — сам узел подписки),
// Data — новое значение изменённого узла. Форма Data зависит от того, что
// поменялось: это может быть весь документ, а может быть скаляр.
type Event struct {
	Path string
	Data any
}
