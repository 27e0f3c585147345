package keys

import (
	"crypto/dsa"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Hex-encoded X.509 DSA public key produced by an earlier release toolchain,
// kept as a fixed vector for cross-version compatibility.
const knownDSAPublicHex = "308201b73082012c06072a8648ce3804013082011f02818100fd7f53811d75122952df4a9c2eece4e7f611b7523cef4400c31e3f80b6512669455d402251fb593d8d58fabfc5f5ba30f6cb9b556cd7813b801d346ff26660b76b9950a5a49f9fe8047b1022c24fbba9d7feb7c61bf83b57e7c6a8a6150f04fb83f6d3c51ec3023554135a169132f675f3ae2b61d72aeff22203199dd14801c70215009760508f15230bccb292b982a2eb840bf0581cf502818100f7e1a085d69b3ddecbbcab5c36b857b97994afbbfa3aea82f9574c0b3d0782675159578ebad4594fe67107108180b449167123e84c281613b7cf09328cc8a6e13c167a8b547c8d28e0a3ae1e2bb3a675916ea37f0bfa213562f1fb627a01243bcca4f1bea8519089a883dfe15ae59f06928b665e807b552564014c3bfecf492a038184000281801324955992c6d648cc750935dfc867e2c59eba301ab21f35ca372d476abeac1acd67fc150018df9792b5fd9a3486fe164bae04a83758f0bd01706f4499de7031fab6ff2c14497f48bcc25e99750849db348b3b79de96f91f93869ac36e7afc573d9ea5ce864872972eb6830858ff6bc2510cb9fc4de3f2943fa25b91a3b80799"

var (
	testKeyOnce sync.Once
	testKey     *dsa.PrivateKey
	testKeyErr  error
)

// testKeyPair generates one shared DSA key pair for the whole test run.
// Parameter generation is slow, so the tests reuse it.
func testKeyPair(t *testing.T) *dsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = GenerateKeyPair()
	})
	if testKeyErr != nil {
		t.Fatalf("GenerateKeyPair failed: %v", testKeyErr)
	}
	return testKey
}

// TestGenerateKeyPair tests DSA key pair generation
func TestGenerateKeyPair(t *testing.T) {
	priv := testKeyPair(t)

	if priv.P == nil || priv.Q == nil || priv.G == nil {
		t.Fatal("Key parameters should not be nil")
	}
	if priv.X == nil || priv.Y == nil {
		t.Fatal("Key values should not be nil")
	}
	if priv.P.BitLen() != 1024 {
		t.Errorf("Expected 1024-bit P, got %d", priv.P.BitLen())
	}
	if priv.Q.BitLen() != 160 {
		t.Errorf("Expected 160-bit Q, got %d", priv.Q.BitLen())
	}

	fmt.Printf("  Key pair generated successfully\n")
	fmt.Printf("  P bits: %d, Q bits: %d\n", priv.P.BitLen(), priv.Q.BitLen())
}

// TestPublicKeyHexRoundTrip tests public key encode and decode
func TestPublicKeyHexRoundTrip(t *testing.T) {
	priv := testKeyPair(t)

	pubHex, err := PublicKeyHex(&priv.PublicKey)
	if err != nil {
		t.Fatalf("PublicKeyHex failed: %v", err)
	}
	if pubHex == "" {
		t.Fatal("Public key hex should not be empty")
	}

	parsed, err := ParsePublicKeyHex(pubHex)
	if err != nil {
		t.Fatalf("ParsePublicKeyHex failed: %v", err)
	}
	pub, ok := parsed.(*dsa.PublicKey)
	if !ok {
		t.Fatalf("Expected DSA public key, got %T", parsed)
	}

	if pub.P.Cmp(priv.P) != 0 || pub.Q.Cmp(priv.Q) != 0 || pub.G.Cmp(priv.G) != 0 {
		t.Error("Parameters should survive the round trip")
	}
	if pub.Y.Cmp(priv.Y) != 0 {
		t.Error("Public value should survive the round trip")
	}

	fmt.Printf("  Public key round trip successful\n")
	fmt.Printf("  Encoded length: %d hex chars\n", len(pubHex))
}

// TestPrivateKeyHexRoundTrip tests private key encode and decode
func TestPrivateKeyHexRoundTrip(t *testing.T) {
	priv := testKeyPair(t)

	privHex, err := PrivateKeyHex(priv)
	if err != nil {
		t.Fatalf("PrivateKeyHex failed: %v", err)
	}

	parsed, err := ParsePrivateKeyHex(privHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex failed: %v", err)
	}

	if parsed.X.Cmp(priv.X) != 0 {
		t.Error("Private value should survive the round trip")
	}
	if parsed.Y.Cmp(priv.Y) != 0 {
		t.Error("Rebuilt public value should match the original")
	}
	if parsed.P.Cmp(priv.P) != 0 || parsed.Q.Cmp(priv.Q) != 0 || parsed.G.Cmp(priv.G) != 0 {
		t.Error("Parameters should survive the round trip")
	}

	fmt.Printf("  Private key round trip successful\n")
}

// TestParseKnownPublicKey tests parsing a key from the fixed vector
func TestParseKnownPublicKey(t *testing.T) {
	parsed, err := ParsePublicKeyHex(knownDSAPublicHex)
	if err != nil {
		t.Fatalf("ParsePublicKeyHex failed: %v", err)
	}
	pub, ok := parsed.(*dsa.PublicKey)
	if !ok {
		t.Fatalf("Expected DSA public key, got %T", parsed)
	}

	// Re-encoding must reproduce the vector byte for byte.
	reHex, err := PublicKeyHex(pub)
	if err != nil {
		t.Fatalf("PublicKeyHex failed: %v", err)
	}
	if reHex != knownDSAPublicHex {
		t.Error("Re-encoded key should match the fixed vector")
	}

	fmt.Printf("  Known public key parsed and re-encoded correctly\n")
}

// TestSignatureRoundTrip tests DER signature encode and decode
func TestSignatureRoundTrip(t *testing.T) {
	priv := testKeyPair(t)

	digest := sha1.Sum([]byte("signature round trip payload"))
	r, s, err := dsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("dsa.Sign failed: %v", err)
	}

	der, err := EncodeSignature(r, s)
	if err != nil {
		t.Fatalf("EncodeSignature failed: %v", err)
	}

	r2, s2, err := ParseSignature(der)
	if err != nil {
		t.Fatalf("ParseSignature failed: %v", err)
	}
	if r.Cmp(r2) != 0 || s.Cmp(s2) != 0 {
		t.Error("Signature values should survive the round trip")
	}

	if !dsa.Verify(&priv.PublicKey, digest[:], r2, s2) {
		t.Error("Decoded signature should verify")
	}

	fmt.Printf("  Signature round trip successful\n")
	fmt.Printf("  DER length: %d bytes\n", len(der))
}

// TestExportImportKeyPair tests key pair file export and import
func TestExportImportKeyPair(t *testing.T) {
	priv := testKeyPair(t)

	path := filepath.Join(t.TempDir(), "keypair.properties")
	if err := ExportKeyPair(priv, path); err != nil {
		t.Fatalf("ExportKeyPair failed: %v", err)
	}

	imported, err := ImportKeyPair(path)
	if err != nil {
		t.Fatalf("ImportKeyPair failed: %v", err)
	}

	if imported.X.Cmp(priv.X) != 0 {
		t.Error("Imported private value should match")
	}
	if imported.Y.Cmp(priv.Y) != 0 {
		t.Error("Imported public value should match")
	}
	if imported.P.Cmp(priv.P) != 0 || imported.Q.Cmp(priv.Q) != 0 || imported.G.Cmp(priv.G) != 0 {
		t.Error("Imported parameters should match")
	}

	fmt.Printf("  Key pair file round trip successful\n")
}

// TestImportKeyPairMissingPrivate tests import with a missing private entry
func TestImportKeyPairMissingPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keypair.properties")
	if err := os.WriteFile(path, []byte("public=abcdef\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := ImportKeyPair(path)
	if !errors.Is(err, ErrKeyPairFile) {
		t.Errorf("Expected ErrKeyPairFile, got %v", err)
	}

	fmt.Printf("  Missing private entry rejected correctly\n")
}

// TestParsePublicKeyHexInvalid tests rejection of malformed public keys
func TestParsePublicKeyHexInvalid(t *testing.T) {
	cases := []string{"", "zz", "abcd"}
	for _, input := range cases {
		if _, err := ParsePublicKeyHex(input); !errors.Is(err, ErrInvalidPublicKey) {
			t.Errorf("Expected ErrInvalidPublicKey for %q, got %v", input, err)
		}
	}

	fmt.Printf("  Malformed public keys rejected correctly\n")
}
