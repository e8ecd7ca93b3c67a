package main

import (
	"errors"
	"testing"
	"time"
)

func TestRetryDelayFromError(t *testing.T) {
	cases := []struct {
		err  error
		want time.Duration
	}{
		{nil, 0},
		{errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{errors.New("too many requests"), 3 * time.Second},
		{errors.New("bad gateway"), time.Second},
	}
	for _, c := range cases {
		if got := retryDelayFromError(c.err); got != c.want {
			t.Fatalf("retryDelayFromError(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestShortHashStable(t *testing.T) {
	a, b := shortHash("123:abc"), shortHash("123:abc")
	if a != b || len(a) != 16 {
		t.Fatalf("shortHash = %q / %q", a, b)
	}
	if shortHash("123:abd") == a {
		t.Fatal("different tokens hashed equal")
	}
}
