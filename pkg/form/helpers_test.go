package form_test

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// sequentialKeys returns a deterministic key generator. The engine only calls
// it under its lock.
func sequentialKeys() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("k%d", n)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
