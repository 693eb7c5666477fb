package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"traffic-quiz-service/internal/domain"
)

const callerKey = "caller"

// Claims is the session token issued after Telegram init data verifies.
type Claims struct {
	UserID  int64 `json:"uid"`
	IsAdmin bool  `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies Telegram WebApp init data and issues HS256 session tokens.
type Auth struct {
	botToken    string
	secret      []byte
	tokenTTL    time.Duration
	initDataTTL time.Duration
	isAdmin     func(int64) bool
	now         func() time.Time
}

func NewAuth(botToken, jwtSecret string, tokenTTL, initDataTTL time.Duration, isAdmin func(int64) bool) *Auth {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Auth{
		botToken:    botToken,
		secret:      []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		initDataTTL: initDataTTL,
		isAdmin:     isAdmin,
		now:         time.Now,
	}
}

// VerifyInitData checks the WebApp signature and returns the caller it names.
func (a *Auth) VerifyInitData(initData string) (domain.Caller, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("%w: malformed init data", domain.ErrUnauthorized)
	}
	hash := values.Get("hash")
	if hash == "" {
		return domain.Caller{}, fmt.Errorf("%w: missing hash", domain.ErrUnauthorized)
	}
	if !hmac.Equal([]byte(hash), []byte(SignInitData(a.botToken, values))) {
		return domain.Caller{}, fmt.Errorf("%w: bad signature", domain.ErrUnauthorized)
	}

	if a.initDataTTL > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || a.now().Sub(time.Unix(authDate, 0)) > a.initDataTTL {
			return domain.Caller{}, fmt.Errorf("%w: init data expired", domain.ErrUnauthorized)
		}
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return domain.Caller{}, fmt.Errorf("%w: missing user", domain.ErrUnauthorized)
	}
	return domain.Caller{UserID: user.ID, IsAdmin: a.isAdmin(user.ID)}, nil
}

// SignInitData computes the hex hash Telegram attaches to init data.
func SignInitData(botToken string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Auth) Issue(caller domain.Caller) (string, error) {
	now := a.now()
	claims := Claims{
		UserID:  caller.UserID,
		IsAdmin: caller.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(caller.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) Parse(token string) (domain.Caller, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return domain.Caller{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	return domain.Caller{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, nil
}

// RequireAuth rejects requests without a valid bearer token. Websocket
// clients may pass the token as ?token= since browsers cannot set headers.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == c.GetHeader("Authorization") {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		caller, err := a.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !callerFrom(c).IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) domain.Caller {
	v, _ := c.Get(callerKey)
	caller, _ := v.(domain.Caller)
	return caller
}
