package bot

import (
	"strings"
	"testing"
)

func TestPickNameAvoidsTaken(t *testing.T) {
	taken := map[string]struct{}{}
	for _, n := range namePool {
		if n != "Winter" {
			taken[n] = struct{}{}
		}
	}
	if got := pickName(&fixedRand{ints: []int{5}}, taken); got != "Winter" {
		t.Fatalf("pickName = %q, want the only free name", got)
	}
}

func TestPickNameAddsSuffixWhenPoolExhausted(t *testing.T) {
	taken := map[string]struct{}{}
	for _, n := range namePool {
		taken[n] = struct{}{}
	}
	taken["Alex42"] = struct{}{}

	// первая попытка даёт занятое Alex42, вторая — Blair8
	got := pickName(&fixedRand{ints: []int{0, 41, 1, 7}}, taken)
	if got != "Blair8" {
		t.Fatalf("pickName = %q, want Blair8", got)
	}
}

func TestNewGuestIDSkipsTaken(t *testing.T) {
	taken := map[string]struct{}{"guest_100000": {}}
	got := newGuestID(&fixedRand{ints: []int{0, 1}}, taken)
	if got != "guest_100001" {
		t.Fatalf("newGuestID = %q", got)
	}
	if !strings.HasPrefix(newGuestID(&fixedRand{ints: []int{899999}}, nil), "guest_999999") {
		t.Fatal("upper bound id out of range")
	}
}
