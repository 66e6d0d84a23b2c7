package entail

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies the engine spawns no goroutines: the scheduler is
// single-threaded cooperative by design.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
