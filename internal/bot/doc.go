// Package bot — виртуальные игроки Palermo Justice поверх общего
// хранилища (store.Store). Пакет:
//   - находит сессии в лобби с включённым флагом virtualPlayersEnabled
//     и добавляет в них ботов до нужного числа участников (Discovery);
//   - на каждую сессию держит SessionController, который следит за
//     фазой и раундом и в ночь/голосование даёт своим ботам походить;
//   - при выключении флага удаляет только тех ботов, которых создал сам
//     (хоста не трогает никогда);
//   - периодически повторяет поиск (Supervisor).
//
// Жизненный цикл:
//   - Создать Discovery через NewDiscovery(store, опции...).
//   - Создать Supervisor через NewSupervisor(discovery, SupervisorConfig{...}).
//   - Запустить Start(ctx) и остановить Stop().
//
// Пример:
//
//	d := bot.NewDiscovery(client, bot.WithLogger(log))
//	s := bot.NewSupervisor(d, bot.SupervisorConfig{Total: 4, Interval: 5 * time.Second})
//	s.OnCycle = func(n int) { fmt.Println("active games:", n) }
//	if err := s.Start(ctx); err != nil { log.Fatal(err) }
//	defer s.Stop()
//	<-ctx.Done()
//
// Тайминги (Timing): 3s на «осмотреться» после входа в фазу, 0.5–1.5s между
// ходами ботов, удаление ботов через 100ms и снятие подписок через 500ms
// после выключения флага. Все задержки идут через clock.Clock, в тестах —
// clock.Fake.
package bot
