// Package rthub — сервер общего хранилища: принимает WebSocket-клиентов
// (rtclient) и обслуживает их кадры wire поверх store.Store (обычно
// memstore). На каждое соединение — своя карта подписок; при разрыве все
// они снимаются.
//
// Снапшоты: состояние memstore периодически сохраняется в SQLite
// (одна строка с JSON-документом) и поднимается при старте.
package rthub
