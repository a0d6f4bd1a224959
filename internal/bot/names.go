package bot

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/EgorLis/palermobot/internal/game"
)

var namePool = []string{
	"Alex", "Blair", "Casey", "Dana", "Elliot", "Fran", "Glenn",
	"Harper", "Indigo", "Jordan", "Kyle", "Logan", "Morgan",
	"Nico", "Parker", "Quinn", "Riley", "Sage", "Taylor", "Val",
	"Avery", "Bailey", "Cameron", "Devin", "Eden", "Finley", "Gray",
	"Hayden", "Ivy", "Jamie", "Kendall", "Lee", "Madison", "Noah",
	"Oakley", "Peyton", "Reese", "Skyler", "Tristan", "Winter",
}

// pickName — свободное имя из пула; если весь пул занят — имя с числом 1..99.
func pickName(rnd game.Rand, taken map[string]struct{}) string {
	free := make([]string, 0, len(namePool))
	for _, n := range namePool {
		if _, ok := taken[n]; !ok {
			free = append(free, n)
		}
	}
	if len(free) > 0 {
		return free[rnd.Intn(len(free))]
	}
	for range 1000 {
		name := fmt.Sprintf("%s%d", namePool[rnd.Intn(len(namePool))], 1+rnd.Intn(99))
		if _, ok := taken[name]; !ok {
			return name
		}
	}
	return namePool[rnd.Intn(len(namePool))] + "-" + uuid.NewString()[:8]
}

// newGuestID — guest_NNNNNN, не совпадающий с уже занятыми.
func newGuestID(rnd game.Rand, taken map[string]struct{}) string {
	for {
		id := fmt.Sprintf("%s%06d", game.BotIDPrefix, 100000+rnd.Intn(900000))
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}
