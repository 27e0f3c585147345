package license

import (
	"fmt"
	"testing"
)

// TestBuiltInTests tests the built-in check definitions
func TestBuiltInTests(t *testing.T) {
	builtIns := []*LicenseTest{
		TestSigned, TestSignature, TestPrior, TestExpired, TestBlacklist, TestHardware,
	}

	seen := make(map[string]bool)
	for _, lt := range builtIns {
		if lt.ID == "" || lt.Name == "" {
			t.Errorf("Built-in test %q should have an ID and a name", lt.Name)
		}
		if lt.PassedMessage == "" || lt.FailedMessage == "" {
			t.Errorf("Built-in test %s should have both messages", lt.ID)
		}
		if seen[lt.ID] {
			t.Errorf("Duplicate built-in test ID: %s", lt.ID)
		}
		seen[lt.ID] = true
	}

	fmt.Printf("  %d built-in tests verified\n", len(builtIns))
}

// TestLicenseTestEquality tests identity comparison by ID
func TestLicenseTestEquality(t *testing.T) {
	a := NewLicenseTest("custom.check", "Check A", "ok", "bad")
	b := NewLicenseTest("custom.check", "Check B", "fine", "broken")
	c := NewLicenseTest("custom.other", "Check A", "ok", "bad")

	if !a.Equal(b) {
		t.Error("Tests with the same ID should be equal")
	}
	if a.Equal(c) {
		t.Error("Tests with different IDs should not be equal")
	}
	if a.Equal(nil) {
		t.Error("Comparison against nil should be false")
	}

	fmt.Printf("  Test identity comparison working correctly\n")
}

// TestTestResultDescription tests result message selection
func TestTestResultDescription(t *testing.T) {
	passed := NewTestResult(TestSigned, true)
	failed := NewTestResult(TestSigned, false)

	if passed.Description() != TestSigned.PassedMessage {
		t.Errorf("Expected passed message, got %q", passed.Description())
	}
	if failed.Description() != TestSigned.FailedMessage {
		t.Errorf("Expected failed message, got %q", failed.Description())
	}
	if passed.Test() != TestSigned {
		t.Error("Result should carry its test")
	}

	fmt.Printf("  Result descriptions working correctly\n")
}

// TestNewTestResultNilTest tests that a nil test is rejected
func TestNewTestResultNilTest(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewTestResult with nil test should panic")
		}
	}()
	NewTestResult(nil, true)
}

// TestLicenseStateValidity tests overall validity aggregation
func TestLicenseStateValidity(t *testing.T) {
	allPassed := NewLicenseState([]*TestResult{
		NewTestResult(TestSigned, true),
		NewTestResult(TestSignature, true),
		NewTestResult(TestExpired, true),
	})
	if !allPassed.Valid() {
		t.Error("State with all tests passed should be valid")
	}
	if len(allPassed.FailedTests()) != 0 {
		t.Error("Valid state should have no failed tests")
	}

	oneFailed := NewLicenseState([]*TestResult{
		NewTestResult(TestSigned, true),
		NewTestResult(TestSignature, true),
		NewTestResult(TestExpired, false),
		NewTestResult(TestPrior, true),
	})
	if oneFailed.Valid() {
		t.Error("State with a failed test should be invalid")
	}

	failed := oneFailed.FailedTests()
	if len(failed) != 1 || !failed[0].Test().Equal(TestExpired) {
		t.Error("Failed sublist should contain exactly the expired test")
	}
	if len(oneFailed.PassedTests()) != 3 {
		t.Error("Passed sublist should contain three results")
	}

	// Order must be preserved.
	results := oneFailed.Results()
	if len(results) != 4 || !results[2].Test().Equal(TestExpired) {
		t.Error("Results should preserve execution order")
	}

	empty := NewLicenseState(nil)
	if !empty.Valid() {
		t.Error("Empty state should be valid")
	}

	fmt.Printf("  License state aggregation working correctly\n")
}
