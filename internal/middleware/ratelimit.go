package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor хранит лимитер адреса и время его последнего обращения.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter ограничивает частоту попыток входа с одного IP-адреса.
// Записи простаивающих адресов вычищаются, чтобы карта не росла бесконечно.
type LoginLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLoginLimiter создаёт ограничитель: burst попыток на окно window с одного IP.
func NewLoginLimiter(window time.Duration, burst int) *LoginLimiter {
	return &LoginLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(burst)),
		burst:    burst,
		window:   window,
		now:      time.Now,
	}
}

func (l *LoginLimiter) visitor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep удаляет адреса, не обращавшиеся дольше трёх окон.
// Вызывается под мьютексом, не чаще раза за окно.
func (l *LoginLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	idle := 3 * l.window
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, ip)
		}
	}
}

// Middleware отвечает 429, когда лимит попыток с адреса исчерпан.
func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !l.visitor(ip).Allow() {
			http.Error(w,
				"Too many login attempts from this IP, please try again after a 60 second pause",
				http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
