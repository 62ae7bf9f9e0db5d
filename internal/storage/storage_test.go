package storage

import (
	"errors"
	"strings"
	"testing"
)

func TestStorageErrorWrapsOp(t *testing.T) {
	err := &StorageError{Op: "put-object:bucket/key", Err: errors.New("boom")}

	if !strings.Contains(err.Error(), "put-object:bucket/key") {
		t.Fatalf("expected op in message, got %q", err.Error())
	}
	if !errors.Is(err, err) {
		t.Fatal("expected StorageError to compare equal to itself")
	}
	if errors.Unwrap(err).Error() != "boom" {
		t.Fatalf("expected Unwrap to reach underlying error, got %v", errors.Unwrap(err))
	}
}
