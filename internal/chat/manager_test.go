package chat

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	closed []websocket.StatusCode
}

func (c *fakeConn) Close(code websocket.StatusCode, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, code)
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.closed)
}

func TestConnManager_Register(t *testing.T) {
	m := NewConnManager()
	conn := &fakeConn{}
	m.Register("s1", conn)

	if m.GetActive("s1") != conn {
		t.Fatal("expected registered connection")
	}
}

func TestConnManager_ReplaceClosesPrevious(t *testing.T) {
	m := NewConnManager()
	first, second := &fakeConn{}, &fakeConn{}
	m.Register("s1", first)
	m.Register("s1", second)

	if first.closeCount() != 1 || first.closed[0] != websocket.StatusPolicyViolation {
		t.Fatalf("expected previous connection to be closed, got %v", first.closed)
	}
	if m.GetActive("s1") != second {
		t.Fatal("expected newest connection to be active")
	}

	// A stale unregister from the replaced connection keeps the new one.
	m.Unregister("s1", first)
	if m.GetActive("s1") != second {
		t.Fatal("stale unregister removed the active connection")
	}
	m.Unregister("s1", second)
	if m.GetActive("s1") != nil || m.Len() != 0 {
		t.Fatal("expected connection to be removed")
	}
}

func TestConnManager_CloseSession(t *testing.T) {
	m := NewConnManager()
	conn := &fakeConn{}
	m.Register("s1", conn)
	m.CloseSession("s1")
	m.CloseSession("missing")

	if conn.closeCount() != 1 || conn.closed[0] != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", conn.closed)
	}
	if m.GetActive("s1") != nil {
		t.Fatal("closed session should be forgotten")
	}
}

func TestConnManager_ConcurrentAccess(t *testing.T) {
	m := NewConnManager()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.Register("s"+strconv.Itoa(i), &fakeConn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.GetActive("s" + strconv.Itoa(i))
		}
	}()
	wg.Wait()

	if m.Len() != 1000 {
		t.Fatalf("expected 1000 connections, got %d", m.Len())
	}
}
