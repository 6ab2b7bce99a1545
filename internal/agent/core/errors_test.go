package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatal(t *testing.T) {
	t.Parallel()

	if !IsFatal(Fatalf("writer", "no draft")) {
		t.Fatalf("Fatalf should be fatal")
	}
	if IsFatal(Recoverablef("planner", "bad parse")) {
		t.Fatalf("Recoverablef should not be fatal")
	}
	// Errors that carry no node classification are treated as fatal.
	if !IsFatal(errors.New("plain")) {
		t.Fatalf("unclassified errors should default to fatal")
	}
	if IsFatal(nil) {
		t.Fatalf("nil is not an error")
	}
}

func TestNodeErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := WrapFatal("writer", fmt.Errorf("draft generation: %w", cause))

	if !errors.Is(err, cause) {
		t.Fatalf("cause should be reachable through the chain")
	}
	var node *NodeError
	if !errors.As(err, &node) || node.Agent != "writer" {
		t.Fatalf("node identity lost: %v", err)
	}
}
