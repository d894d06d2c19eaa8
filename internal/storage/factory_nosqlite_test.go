//go:build !sqlite

package storage

import "testing"

func TestNewStoreSQLiteUnavailableWithoutTag(t *testing.T) {
	if _, err := NewStore("sqlite", "runs.db"); err == nil {
		t.Fatal("expected sqlite backend to be unavailable without the sqlite build tag")
	}
}
