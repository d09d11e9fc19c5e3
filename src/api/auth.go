package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	RoleAdmin = "admin"

	jwksTTL = time.Hour
	// unknown key ids trigger a refetch at most this often
	jwksMinRefetch = time.Minute
)

var ErrUnauthorized = errors.New("unauthorized")

// Claims of the bearer token. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Admin  bool
}

// KeySet caches the RS256 verification keys published as JWKS
type KeySet struct {
	URL     string
	client  *resty.Client
	mu      sync.Mutex
	keys    jose.JSONWebKeySet
	fetched time.Time
}

func NewKeySet(url string) *KeySet {
	return &KeySet{
		URL:    url,
		client: resty.New().SetTimeout(10 * time.Second).SetRetryCount(2),
	}
}

func (k *KeySet) fetch(ctx context.Context) error {
	var set jose.JSONWebKeySet
	resp, err := k.client.R().SetContext(ctx).SetResult(&set).Get(k.URL)
	if err != nil {
		return errors.Wrap(err, "fetch jwks")
	}
	if resp.IsError() {
		return errors.Errorf("fetch jwks: status %d", resp.StatusCode())
	}
	if len(set.Keys) == 0 {
		return errors.New("jwks without keys")
	}
	k.keys = set
	k.fetched = time.Now()
	zap.L().Info("jwks loaded", zap.String("url", k.URL), zap.Int("keys", len(set.Keys)))
	return nil
}

// Key returns the public key with the given id. An empty id is accepted
// if the set holds a single key.
func (k *KeySet) Key(ctx context.Context, kid string) (interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	age := time.Since(k.fetched)
	if k.fetched.IsZero() || age > jwksTTL {
		if err := k.fetch(ctx); err != nil {
			return nil, err
		}
	}
	key, ok := k.lookup(kid)
	if !ok && age > jwksMinRefetch {
		if err := k.fetch(ctx); err != nil {
			return nil, err
		}
		key, ok = k.lookup(kid)
	}
	if !ok {
		return nil, errors.Errorf("unknown key id %q", kid)
	}
	return key.Key, nil
}

func (k *KeySet) lookup(kid string) (jose.JSONWebKey, bool) {
	if kid == "" {
		if len(k.keys.Keys) == 1 {
			return k.keys.Keys[0], true
		}
		return jose.JSONWebKey{}, false
	}
	found := k.keys.Key(kid)
	if len(found) == 0 {
		return jose.JSONWebKey{}, false
	}
	return found[0], true
}

// Verifier checks bearer tokens, HS256 against Secret and RS256 against
// the key set
type Verifier struct {
	Secret   []byte
	Keys     *KeySet
	Audience string
}

func (v *Verifier) methods() []string {
	var m []string
	if len(v.Secret) > 0 {
		m = append(m, jwt.SigningMethodHS256.Alg())
	}
	if v.Keys != nil {
		m = append(m, jwt.SigningMethodRS256.Alg())
	}
	return m
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.Secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.Secret, nil
	case *jwt.SigningMethodRSA:
		if v.Keys == nil {
			return nil, errors.New("rsa tokens not accepted")
		}
		kid, _ := token.Header["kid"].(string)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return v.Keys.Key(ctx, kid)
	}
	return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
}

// Verify parses and validates the token and returns the caller
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, jwt.WithValidMethods(v.methods()))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return Identity{}, errors.Wrap(ErrUnauthorized, "token expired")
		}
		return Identity{}, errors.Wrap(ErrUnauthorized, "invalid token")
	}
	if v.Audience != "" && !claims.VerifyAudience(v.Audience, true) {
		return Identity{}, errors.Wrap(ErrUnauthorized, "wrong audience")
	}
	if claims.Subject == "" {
		return Identity{}, errors.Wrap(ErrUnauthorized, "token without subject")
	}
	return Identity{UserID: claims.Subject, Admin: claims.Role == RoleAdmin}, nil
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// Authenticate rejects requests without a valid bearer token
func (v *Verifier) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		id, err := v.Verify(tokenString)
		if err != nil {
			zap.L().Debug("token rejected", zap.Error(err))
			writeError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// RequireAdmin must run after Authenticate
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r.Context()).Admin {
			writeError(w, "admin only", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
