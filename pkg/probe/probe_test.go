package probe

import (
	"net"
	"testing"
	"time"
)

func TestIsBoundFreePort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not reserve a port for the test: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	if IsBound(port, 2*time.Second) {
		t.Errorf("IsBound(%d) = true for a freshly closed port, want false", port)
	}
}

func TestIsBoundOccupiedPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not reserve a port for the test: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	if !IsBound(port, 2*time.Second) {
		t.Errorf("IsBound(%d) = false while held by another listener, want true", port)
	}
}

func TestIsReachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not start listener: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	if !IsReachable("127.0.0.1", port, 2*time.Second) {
		t.Errorf("IsReachable(127.0.0.1, %d) = false, want true", port)
	}
}

func TestIsReachableUnreachable(t *testing.T) {
	// Port 1 is a reserved low port almost never bound in test environments.
	if IsReachable("127.0.0.1", 1, 200*time.Millisecond) {
		t.Skip("port 1 unexpectedly reachable in this environment")
	}
}

func TestIsReachableUnresolvableHost(t *testing.T) {
	if IsReachable("this-host-should-not-resolve.invalid", 80, 200*time.Millisecond) {
		t.Error("IsReachable on an unresolvable host = true, want false")
	}
}
