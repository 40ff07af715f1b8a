package plf

import (
	"regexp"
	"testing"
	"time"
)

func TestBoundedFindAllReturnsAllMatchesWithinTimeout(t *testing.T) {
	re := regexp.MustCompile(`ab`)
	matches, ok := boundedFindAll(re, []byte("ababab"), time.Second)
	if !ok {
		t.Fatal("expected ok=true within timeout")
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
}

func TestBoundedFindAllZeroTimeoutRunsUnbounded(t *testing.T) {
	re := regexp.MustCompile(`x`)
	matches, ok := boundedFindAll(re, []byte("xxx"), 0)
	if !ok || len(matches) != 3 {
		t.Fatalf("matches = %v, ok = %v, want 3 matches, ok=true", matches, ok)
	}
}

func TestBoundedFindAllSubmatchIndexCapturesGroups(t *testing.T) {
	re := regexp.MustCompile(`(a)(b)`)
	matches, ok := boundedFindAllSubmatchIndex(re, []byte("ab"), time.Second)
	if !ok {
		t.Fatal("expected ok=true within timeout")
	}
	if len(matches) != 1 || len(matches[0]) != 6 {
		t.Fatalf("unexpected submatch index result: %v", matches)
	}
}

func TestBoundedFindAllTimesOutOnSlowMatch(t *testing.T) {
	// A pathologically large input keeps FindAllIndex busy long enough for a
	// 1ns timeout to fire first, exercising the timeout branch; the test skips
	// if the match happens to finish before the timer.
	re := regexp.MustCompile(`(a*)*b`)
	buf := make([]byte, 200000)
	for i := range buf {
		buf[i] = 'a'
	}

	_, ok := boundedFindAll(re, buf, time.Nanosecond)
	if ok {
		t.Skip("regexp finished before the timeout fired on this machine")
	}
}
