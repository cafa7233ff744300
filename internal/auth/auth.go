package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ChainScope-Agent/pkg/logger"
)

// Authenticator 以静态 API Key 校验请求。未配置任何 Key 时放行所有请求。
type Authenticator struct {
	keys [][sha256.Size]byte
}

// NewAPIKeys 创建认证器，空白 Key 会被忽略。
func NewAPIKeys(keys ...string) *Authenticator {
	a := &Authenticator{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		a.keys = append(a.keys, sha256.Sum256([]byte(key)))
	}
	return a
}

// Enabled 表示是否需要认证。
func (a *Authenticator) Enabled() bool { return a != nil && len(a.keys) > 0 }

// Verify 判断 key 是否有效。比较的是摘要，耗时与 key 内容无关。
func (a *Authenticator) Verify(key string) bool {
	if !a.Enabled() {
		return true
	}
	sum := sha256.Sum256([]byte(key))
	ok := 0
	for i := range a.keys {
		ok |= subtle.ConstantTimeCompare(sum[:], a.keys[i][:])
	}
	return ok == 1
}

type subjectKey struct{}

// Subject 返回请求所用 Key 的短指纹，未认证时为空。
func Subject(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey{}).(string)
	return v
}

// credential 依次读取 Authorization: Bearer 与 X-API-Key。
func credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// Middleware 拒绝缺少或携带无效 Key 的请求，并写入审计日志。
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		key := credential(r)
		if key == "" || !a.Verify(key) {
			logger.Audit().Warn("access_denied",
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method),
				slog.Bool("credential_present", key != ""),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="chainscope"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success":   false,
				"error":     "Unauthorized",
				"timestamp": time.Now().UTC(),
			})
			return
		}
		sum := sha256.Sum256([]byte(key))
		ctx := context.WithValue(r.Context(), subjectKey{}, hex.EncodeToString(sum[:4]))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
