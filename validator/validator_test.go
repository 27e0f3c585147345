package validator

import (
	"crypto/dsa"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"license-kit/keys"
	"license-kit/license"
	"license-kit/validator/history"
)

var (
	dsaKeyOnce sync.Once
	dsaKey     *dsa.PrivateKey
	dsaKeyErr  error

	altKeyOnce sync.Once
	altKey     *dsa.PrivateKey
	altKeyErr  error
)

// testDSAKey returns a DSA key pair shared across the package tests.
// Parameter generation is slow, so it runs once per test binary.
func testDSAKey(t *testing.T) *dsa.PrivateKey {
	t.Helper()
	dsaKeyOnce.Do(func() {
		dsaKey, dsaKeyErr = keys.GenerateKeyPair()
	})
	if dsaKeyErr != nil {
		t.Fatalf("GenerateKeyPair failed: %v", dsaKeyErr)
	}
	return dsaKey
}

// testAltDSAKey returns a second key pair for mismatched-key scenarios.
func testAltDSAKey(t *testing.T) *dsa.PrivateKey {
	t.Helper()
	altKeyOnce.Do(func() {
		altKey, altKeyErr = keys.GenerateKeyPair()
	})
	if altKeyErr != nil {
		t.Fatalf("GenerateKeyPair failed: %v", altKeyErr)
	}
	return altKey
}

// signTestLicense signs the license and returns the matching public key hex.
func signTestLicense(t *testing.T, lic *license.License, demo bool) string {
	t.Helper()
	key := testDSAKey(t)
	signer, err := license.NewSigner(key, license.WithDemoMode(demo))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	if err := signer.Sign(lic); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	publicHex, err := keys.PublicKeyHex(&key.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyHex failed: %v", err)
	}
	return publicHex
}

func findResult(state *license.LicenseState, test *license.LicenseTest) *license.TestResult {
	for _, r := range state.Results() {
		if r.Test().Equal(test) {
			return r
		}
	}
	return nil
}

func TestValidateSignedLicense(t *testing.T) {
	lic := license.NewLicense()
	if err := lic.SetProperty("name", "Joe Developer"); err != nil {
		t.Fatalf("SetProperty failed: %v", err)
	}
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	state, err := v.Validate()
	if err != nil {
		t.Fatalf("expected a valid license, got %v", err)
	}
	if !state.Valid() {
		t.Fatal("expected a valid state")
	}
	if len(state.Results()) != 6 {
		t.Errorf("expected 6 results from the built-in pipeline, got %d", len(state.Results()))
	}

	fmt.Printf("  Validation passed %d tests\n", len(state.PassedTests()))
}

func TestValidateUnsignedLicense(t *testing.T) {
	publicHex, err := keys.PublicKeyHex(&testDSAKey(t).PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyHex failed: %v", err)
	}

	v, err := New(license.NewLicense(), publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	state, err := v.Validate()

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if vErr.State != state {
		t.Error("expected the error to carry the returned state")
	}
	if len(state.Results()) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(state.Results()))
	}
	if r := state.Results()[0]; !r.Test().Equal(license.TestSigned) || r.Passed() {
		t.Error("expected a failed signed test as the only result")
	}
}

func TestValidateTamperedLicense(t *testing.T) {
	lic := license.NewLicense()
	if err := lic.SetProperty("seats", "5"); err != nil {
		t.Fatalf("SetProperty failed: %v", err)
	}
	publicHex := signTestLicense(t, lic, false)

	tampered := strings.Replace(license.ExportString(lic), "property_seats=5", "property_seats=500", 1)
	evil, err := license.ImportString(tampered)
	if err != nil {
		t.Fatalf("ImportString failed: %v", err)
	}

	v, err := New(evil, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	state, err := v.Validate()

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if len(state.Results()) != 2 {
		t.Fatalf("expected validation to stop after the signature check, got %d results", len(state.Results()))
	}
	if r := findResult(state, license.TestSignature); r == nil || r.Passed() {
		t.Error("expected a failed signature test")
	}
}

func TestValidateWrongKey(t *testing.T) {
	lic := license.NewLicense()
	signTestLicense(t, lic, false)

	publicHex, err := keys.PublicKeyHex(&testAltDSAKey(t).PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyHex failed: %v", err)
	}
	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state, err := v.Validate()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if r := findResult(state, license.TestSignature); r == nil || r.Passed() {
		t.Error("expected the signature test to fail under a mismatched key")
	}
}

func TestValidateBlacklistedLicense(t *testing.T) {
	lic := license.NewLicense()
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	v.AddBlacklistedLicense(lic.SignatureString())

	state, err := v.Validate()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if r := findResult(state, license.TestBlacklist); r == nil || r.Passed() {
		t.Error("expected a failed blacklist test")
	}

	v.RemoveBlacklistedLicense(lic.SignatureString())
	if _, err := v.Validate(); err != nil {
		t.Errorf("expected the license to validate after removal, got %v", err)
	}
}

func TestValidatePriorToStartDate(t *testing.T) {
	lic := license.NewLicenseStarting(time.Now().Add(20 * time.Second))
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	v.SetCheckClockTurnback(false)

	state, err := v.Validate()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if r := findResult(state, license.TestPrior); r == nil || r.Passed() {
		t.Error("expected a failed prior test before the start date")
	}
}

func TestValidateExpiredLicense(t *testing.T) {
	lic := license.NewLicenseStarting(time.UnixMilli(100))
	publicHex := signTestLicense(t, lic, true)
	if lic.ExpirationDate() == nil {
		t.Fatal("expected the demo signer to set an expiration date")
	}

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	state, err := v.Validate()

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	if r := findResult(state, license.TestExpired); r == nil || r.Passed() {
		t.Error("expected a failed expired test")
	}
}

func TestValidateFloatingExpiration(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	lic := license.NewLicense()
	if err := lic.SetFloatingExpirationPeriod(time.Millisecond); err != nil {
		t.Fatalf("SetFloatingExpirationPeriod failed: %v", err)
	}
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	v.SetCheckClockTurnback(false)

	if _, err := v.Validate(); err != nil {
		t.Fatalf("expected the first validation to pass: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	state, err := v.Validate()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatal("expected the floating window to close")
	}
	if r := findResult(state, license.TestExpired); r == nil || r.Passed() {
		t.Error("expected a failed expired test once the float window closed")
	}

	if _, ok := history.NewFileStore().EarliestRun(lic.SignatureString()); !ok {
		t.Error("expected the earliest run anchor to be persisted")
	}

	fmt.Printf("  Floating window closed after the 1ms period elapsed\n")
}

func TestTimeRemaining(t *testing.T) {
	start := time.UnixMilli(1303218429081)
	lic := license.NewLicenseStarting(start)
	if err := lic.SetExpirationDate(start.Add(48 * time.Hour)); err != nil {
		t.Fatalf("SetExpirationDate failed: %v", err)
	}
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	remaining := v.TimeRemaining(start.Add(24 * time.Hour))
	if remaining == nil || *remaining != 24*time.Hour {
		t.Errorf("expected 24h remaining, got %v", remaining)
	}
	remaining = v.TimeRemaining(start.Add(49 * time.Hour))
	if remaining == nil || *remaining != -time.Hour {
		t.Errorf("expected -1h remaining past expiration, got %v", remaining)
	}
}

func TestTimeRemainingUnlimited(t *testing.T) {
	lic := license.NewLicense()
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if remaining := v.TimeRemaining(time.Now()); remaining != nil {
		t.Errorf("expected no remaining limit, got %v", remaining)
	}
}

func TestNewValidatorErrors(t *testing.T) {
	if _, err := New(nil, "abcd"); !errors.Is(err, ErrNilLicense) {
		t.Errorf("expected ErrNilLicense, got %v", err)
	}
	if _, err := New(license.NewLicense(), "not-hex"); err == nil {
		t.Error("expected an error for a malformed public key")
	}
}

type rejectAllPlugin struct{}

func (rejectAllPlugin) Validate(lic *license.License, params Params) *license.TestResult {
	test := license.NewLicenseTest("test.reject", "Reject Test", "allowed", "rejected")
	return license.NewTestResult(test, false)
}

func TestCustomPlugin(t *testing.T) {
	lic := license.NewLicense()
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	plugin := rejectAllPlugin{}
	v.AddPlugin(plugin)
	if _, err := v.Validate(); err == nil {
		t.Error("expected the custom plugin to fail validation")
	}

	v.RemovePlugin(plugin)
	if _, err := v.Validate(); err != nil {
		t.Errorf("expected validation to pass after removing the plugin, got %v", err)
	}
}

func TestConcurrentValidation(t *testing.T) {
	lic := license.NewLicense()
	publicHex := signTestLicense(t, lic, false)

	v, err := New(lic, publicHex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				v.AddBlacklistedLicense(fmt.Sprintf("unrelated-signature-%d", n))
			}
			if _, err := v.Validate(); err != nil {
				t.Errorf("concurrent validation failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
