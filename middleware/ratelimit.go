package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"OmniChat/pkg/config"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

type dupEntry struct {
	text string
	ts   time.Time
}

// Limiter bundles the per-user throttles applied to turn-initiating
// endpoints: a token bucket per user@ip, a duplicate-message guard, and a
// per-user concurrency bound.
type Limiter struct {
	rlMu     sync.Mutex
	window   time.Duration
	capacity int
	buckets  map[string]*bucket

	dupMu   sync.Mutex
	dupTTL  time.Duration
	lastMsg map[string]dupEntry

	cgMu    sync.Mutex
	conc    int
	userSem map[string]chan struct{}
}

func NewLimiter(window time.Duration, capacity, concurrency int, dupTTL time.Duration) *Limiter {
	return &Limiter{
		window:   window,
		capacity: capacity,
		buckets:  map[string]*bucket{},
		dupTTL:   dupTTL,
		lastMsg:  map[string]dupEntry{},
		conc:     concurrency,
		userSem:  map[string]chan struct{}{},
	}
}

// std backs the package-level wrappers; tunables are bound from pkg/config
// once, at construction.
var std = NewLimiter(
	time.Duration(config.RateLimitWindowSeconds)*time.Second,
	config.RateLimitCapacity,
	config.UserConcurrencyLimit,
	time.Duration(config.DuplicateWindowSeconds)*time.Second,
)

func RateLimit() gin.HandlerFunc { return std.RateLimit() }

func DuplicateGuard(uid, text string) bool { return std.DuplicateGuard(uid, text) }

func ForgetDuplicate(uid, text string) { std.ForgetDuplicate(uid, text) }

func AcquireUserSlot(uid string) (release func()) { return std.AcquireUserSlot(uid) }

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

func userKey(c *gin.Context) string {
	uidRaw, _ := c.Get(ContextUserIDKey)
	uid, _ := uidRaw.(string)
	return uid + "@" + clientIP(c)
}

// RateLimit is a token bucket per user@ip, applied to turn-initiating
// endpoints.
func (l *Limiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := userKey(c)
		now := time.Now()

		l.rlMu.Lock()
		b := l.buckets[key]
		if b == nil {
			b = &bucket{tokens: l.capacity, lastRefill: now}
			l.buckets[key] = b
		}
		elapsed := now.Sub(b.lastRefill)
		if elapsed > 0 {
			add := int(float64(l.capacity) * (float64(elapsed) / float64(l.window)))
			if add > 0 {
				b.tokens += add
				if b.tokens > l.capacity {
					b.tokens = l.capacity
				}
				b.lastRefill = now
			}
		}
		if b.tokens <= 0 {
			l.rlMu.Unlock()
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many requests"})
			return
		}
		b.tokens--
		l.rlMu.Unlock()

		c.Next()
	}
}

// DuplicateGuard reports whether a user may send this text now; an identical
// message within the TTL is refused. The message is recorded up front, so a
// caller whose turn then fails must ForgetDuplicate or the resend is refused
// too.
func (l *Limiter) DuplicateGuard(uid string, text string) bool {
	now := time.Now()
	t := strings.TrimSpace(text)
	l.dupMu.Lock()
	entry, ok := l.lastMsg[uid]
	if ok && entry.text == t && now.Sub(entry.ts) < l.dupTTL {
		l.dupMu.Unlock()
		return false
	}
	l.lastMsg[uid] = dupEntry{text: t, ts: now}
	l.dupMu.Unlock()
	return true
}

// ForgetDuplicate clears the guard entry for text so a retry after a failed
// turn goes through. A newer, different entry is left alone.
func (l *Limiter) ForgetDuplicate(uid string, text string) {
	t := strings.TrimSpace(text)
	l.dupMu.Lock()
	if entry, ok := l.lastMsg[uid]; ok && entry.text == t {
		delete(l.lastMsg, uid)
	}
	l.dupMu.Unlock()
}

// AcquireUserSlot bounds concurrent streaming turns per user; the returned
// func releases the slot.
func (l *Limiter) AcquireUserSlot(uid string) (release func()) {
	l.cgMu.Lock()
	sem := l.userSem[uid]
	if sem == nil {
		sem = make(chan struct{}, l.conc)
		l.userSem[uid] = sem
	}
	l.cgMu.Unlock()
	sem <- struct{}{}
	return func() { <-sem }
}
