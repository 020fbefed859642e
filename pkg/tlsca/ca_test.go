package tlsca

import (
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Dir:           t.TempDir(),
		KeySize:       2048,
		CAValidity:    time.Hour,
		LeafValidity:  time.Hour,
		LeafCacheSize: 2,
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m
}

func TestNewManager_GeneratesCA(t *testing.T) {
	m := testManager(t)
	if m.caCert == nil || m.caKey == nil {
		t.Fatal("expected CA cert and key to be generated")
	}
	if !m.caCert.IsCA {
		t.Error("generated certificate must be a CA")
	}
}

func TestNewManager_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(Config{Dir: dir, CAValidity: time.Hour, LeafValidity: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	m2, err := NewManager(Config{Dir: dir, CAValidity: time.Hour, LeafValidity: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	if m1.caCert.SerialNumber.Cmp(m2.caCert.SerialNumber) != 0 {
		t.Error("expected second Manager to reload the persisted CA, got a freshly generated one")
	}
}

func TestLeafFor_SignsAndCaches(t *testing.T) {
	m := testManager(t)

	cert1, err := m.LeafFor("example.com")
	if err != nil {
		t.Fatalf("LeafFor() error: %v", err)
	}
	if cert1.Leaf.Subject.CommonName != "example.com" {
		t.Errorf("leaf CommonName = %q, want example.com", cert1.Leaf.Subject.CommonName)
	}

	cert2, err := m.LeafFor("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if cert1 != cert2 {
		t.Error("expected cached leaf to be returned on second call")
	}
}

func TestLeafFor_EvictsOldestOverCapacity(t *testing.T) {
	m := testManager(t) // cache size 2

	if _, err := m.LeafFor("a.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LeafFor("b.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LeafFor("c.com"); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	_, hasA := m.cache["a.com"]
	_, hasC := m.cache["c.com"]
	m.mu.Unlock()

	if hasA {
		t.Error("expected oldest cached leaf to be evicted")
	}
	if !hasC {
		t.Error("expected most recent leaf to remain cached")
	}
}

func TestLeafFor_IPHost(t *testing.T) {
	m := testManager(t)

	cert, err := m.LeafFor("127.0.0.1")
	if err != nil {
		t.Fatalf("LeafFor() error: %v", err)
	}
	if len(cert.Leaf.IPAddresses) != 1 {
		t.Errorf("expected leaf to carry an IP SAN, got %v", cert.Leaf.IPAddresses)
	}
}
