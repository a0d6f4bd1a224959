// Package rtclient реализует WebSocket-клиент общего хранилища состояния
// (сервер rthub). Клиент реализует store.Store: Get/Set/Subscribe ходят на
// сервер кадрами wire (protobuf Struct), ответы сопоставляются запросам по
// seq, события подписок раздаются по локальным очередям — у каждой
// подписки своя горутина доставки, так что обработчик может спокойно
// звать Get/Set того же клиента.
//
// События (колбэки поля структуры):
//   - OnConnecting, OnConnected, OnDisconnected, OnError.
//
// Устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - ping/pong раз в 10s, read-deadline 30s.
//   - При обрыве — экспоненциальный реконнект (1s..30s), ожидающие запросы
//     завершаются ошибкой, активные подписки переоформляются заново
//     (сервер пришлёт по ним начальные события).
//
// Пример:
//
//	c := rtclient.New("ws://127.0.0.1:8090/ws")
//	c.OnConnected = func() { fmt.Println("connected") }
//	if err := c.Connect(ctx); err != nil { log.Fatal(err) }
//	defer c.Close()
//
//	_ = c.Set(ctx, "games/g1/status", "lobby")
//	sub, _ := c.Subscribe(ctx, "games/g1", func(ev store.Event) {
//	    fmt.Println(ev.Path, ev.Data)
//	})
//	defer sub.Cancel()
package rtclient
