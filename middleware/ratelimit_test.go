package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testLimiter(dupTTL time.Duration, conc int) *Limiter {
	return NewLimiter(10*time.Second, 5, conc, dupTTL)
}

func TestDuplicateGuard(t *testing.T) {
	l := testLimiter(50*time.Millisecond, 2)
	uid := "user-123"
	text := "Hello"

	// First call should allow
	if ok := l.DuplicateGuard(uid, text); !ok {
		t.Fatalf("expected first call to pass duplicate guard")
	}
	// Immediate repeat should block
	if ok := l.DuplicateGuard(uid, text); ok {
		t.Fatalf("expected immediate duplicate to be blocked")
	}
	// Different text should pass even within TTL
	if ok := l.DuplicateGuard(uid, text+"!"); !ok {
		t.Fatalf("expected different text to pass within TTL")
	}
	// After TTL, same text should pass
	time.Sleep(70 * time.Millisecond)
	if ok := l.DuplicateGuard(uid, text); !ok {
		t.Fatalf("expected same text to pass after TTL")
	}
}

func TestForgetDuplicateAllowsRetryAfterFailedTurn(t *testing.T) {
	l := testLimiter(time.Minute, 2)
	uid := "user-retry"
	text := "Hello"

	if ok := l.DuplicateGuard(uid, text); !ok {
		t.Fatalf("expected first call to pass duplicate guard")
	}
	if ok := l.DuplicateGuard(uid, text); ok {
		t.Fatalf("expected immediate duplicate to be blocked")
	}

	// the turn failed; the resend must go through
	l.ForgetDuplicate(uid, text)
	if ok := l.DuplicateGuard(uid, text); !ok {
		t.Fatalf("expected resend after forget to pass duplicate guard")
	}
}

func TestForgetDuplicateLeavesNewerEntryAlone(t *testing.T) {
	l := testLimiter(time.Minute, 2)
	uid := "user-newer"

	l.DuplicateGuard(uid, "first")
	l.DuplicateGuard(uid, "second")

	// forgetting the stale text must not clear the newer entry
	l.ForgetDuplicate(uid, "first")
	if ok := l.DuplicateGuard(uid, "second"); ok {
		t.Fatalf("newer entry was cleared by forgetting an older text")
	}
}

func TestAcquireUserSlotBoundsConcurrency(t *testing.T) {
	l := testLimiter(45*time.Second, 1)
	uid := "user-slots"

	release := l.AcquireUserSlot(uid)
	acquired := make(chan struct{})
	go func() {
		r := l.AcquireUserSlot(uid)
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatalf("second slot acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("slot not released to the waiter")
	}
}

func TestRateLimitExhaustsBucket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(time.Minute, 2, 2, 45*time.Second)

	r := gin.New()
	r.GET("/limited", l.RateLimit(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d; want 200", i+1, w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429 once the bucket is empty", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry Retry-After")
	}
}
