package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyKeyHeader is the request header carrying the client's idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

const (
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"

	idemPending = "pending"
)

// Idem provides an Idempotency-Key middleware backed by Redis. The first response for a
// key is stored and replayed for later requests with the same key and body. Keys are
// scoped per method and path so one key cannot block unrelated writes.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
	// ReplayHeaders lists response headers stored alongside the body.
	ReplayHeaders []string
}

type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status"`
	Header      map[string]string `json:"header,omitempty"`
	Body        []byte            `json:"body"`
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func idemKey(r *http.Request, header string) string {
	return "idem:" + sha256Hex([]byte(r.Method+" "+r.URL.Path+" "+header))
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyKeyHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			WriteError(w, BadRequest("unable to read request body", err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := sha256Hex(body)

		ctx := r.Context()
		key := idemKey(r, header)
		ok, err := i.R.SetNX(ctx, key, idemPending, i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
			return
		}
		if !ok {
			i.replay(ctx, w, key, fingerprint)
			return
		}

		rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			// A failed or panicking request releases the key so the client can retry.
			if !completed || rec.status >= http.StatusInternalServerError {
				_ = i.R.Del(context.Background(), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
		completed = true
		if rec.status >= http.StatusInternalServerError {
			return
		}

		stored := storedResponse{Fingerprint: fingerprint, Status: rec.status, Body: rec.body.Bytes()}
		for _, name := range append([]string{"Content-Type"}, i.ReplayHeaders...) {
			if v := w.Header().Get(name); v != "" {
				if stored.Header == nil {
					stored.Header = map[string]string{}
				}
				stored.Header[name] = v
			}
		}
		if data, err := json.Marshal(stored); err == nil {
			_ = i.R.Set(context.Background(), key, data, i.ttl()).Err()
		}
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key, fingerprint string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	if err != nil && err != redis.Nil {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
		return
	}
	if err == redis.Nil || string(raw) == idemPending {
		JSONError(w, http.StatusConflict, CodeIdempotencyInProgress, "a request with this idempotency key is in progress", nil)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
		return
	}
	if stored.Fingerprint != fingerprint {
		JSONError(w, http.StatusUnprocessableEntity, CodeIdempotencyKeyReused, "idempotency key was used with a different payload", nil)
		return
	}
	for name, v := range stored.Header {
		w.Header().Set(name, v)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
