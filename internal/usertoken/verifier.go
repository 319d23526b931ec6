package usertoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer          = "namecard-auth"
	defaultAudience        = "namecard-api"
	defaultLeeway          = 30 * time.Second
	defaultJWKSCacheTTL    = 5 * time.Minute
	defaultRefreshInterval = 10 * time.Second
)

var (
	errUnknownKey = errors.New("unknown token key")

	ErrEmailMissing    = errors.New("token email missing")
	ErrEmailUnverified = errors.New("token email not verified")
)

// Config configures ID-token verification against the identity provider.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
	Leeway   time.Duration
	// MinRefreshInterval throttles JWKS refetches triggered by unknown key ids.
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

// Identity is the verified caller.
type Identity struct {
	Subject string
	Email   string
}

type idClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
}

// Verifier validates RS256 ID tokens using the provider's JWKS.
type Verifier struct {
	issuer          string
	audience        string
	leeway          time.Duration
	refreshInterval time.Duration
	jwksURL         string
	httpClient      *http.Client

	mu  sync.RWMutex
	set keySet
}

type keySet struct {
	keys    map[string]*rsa.PublicKey
	expires time.Time
	fetched time.Time
}

// NewVerifier creates a token verifier and loads the initial key set.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	v := &Verifier{
		issuer:          firstNonEmpty(cfg.Issuer, defaultIssuer),
		audience:        firstNonEmpty(cfg.Audience, defaultAudience),
		leeway:          cfg.Leeway,
		refreshInterval: cfg.MinRefreshInterval,
		jwksURL:         jwksURL,
		httpClient:      cfg.HTTPClient,
	}
	if v.leeway <= 0 {
		v.leeway = defaultLeeway
	}
	if v.refreshInterval <= 0 {
		v.refreshInterval = defaultRefreshInterval
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if err := v.refreshJWKS(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

// Verify validates the token and returns the caller identity. Tokens without
// an email, or with email_verified=false, are rejected.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := v.verifyJWKS(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, errors.New("token subject missing")
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return Identity{}, ErrEmailMissing
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return Identity{}, ErrEmailUnverified
	}
	return Identity{Subject: subject, Email: email}, nil
}

func (v *Verifier) verifyJWKS(ctx context.Context, token string) (idClaims, error) {
	set := v.snapshot()
	claims, err := parseWithKeys(token, set.keys, v.parserOptions())
	if err == nil {
		return claims, nil
	}
	// A rotated signing key or a stale cache earns one refetch per interval.
	stale := errors.Is(err, errUnknownKey) || time.Now().After(set.expires)
	if !stale || time.Since(set.fetched) < v.refreshInterval {
		return claims, err
	}
	if refreshErr := v.refreshJWKS(ctx); refreshErr != nil {
		return claims, refreshErr
	}
	return parseWithKeys(token, v.snapshot().keys, v.parserOptions())
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
}

func parseWithKeys(token string, keys map[string]*rsa.PublicKey, opts []jwt.ParserOption) (idClaims, error) {
	var claims idClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	}, opts...)
	return claims, err
}

// snapshot returns the current key set. The map is replaced wholesale on
// refresh and never mutated, so callers may read it without the lock.
func (v *Verifier) snapshot() keySet {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.set
}

func (v *Verifier) refreshJWKS(ctx context.Context) error {
	v.mu.Lock()
	v.set.fetched = time.Now()
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if strings.ToUpper(strings.TrimSpace(k.Kty)) != "RSA" {
			continue
		}
		kid := strings.TrimSpace(k.Kid)
		if kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	ttl := parseCacheMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}

	now := time.Now()
	v.mu.Lock()
	v.set = keySet{keys: keys, expires: now.Add(ttl), fetched: now}
	v.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	eBig := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !eBig.IsInt64() {
		return nil, errors.New("invalid rsa key")
	}
	e := int(eBig.Int64())
	if e <= 0 {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

func parseCacheMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := time.ParseDuration(strings.TrimSpace(raw) + "s")
		if err != nil {
			return 0
		}
		return secs
	}
	return 0
}
