package testutil

import "testing"

// UseTestEnvironment sets GO_ENV=test for the duration of the test so config
// and database helpers never pick up development settings
func UseTestEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("GO_ENV", "test")
}
