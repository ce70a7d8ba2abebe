package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/blsq/iaso/internal/routing"
	"github.com/blsq/iaso/modules/orgunit/domain/ports"
)

var (
	ErrTokenInvalid  = errors.New("token_invalid")
	ErrTokenSubject  = errors.New("token_subject_invalid")
	errSecretMissing = errors.New("server: jwt secret is required")
)

// TokenVerifier checks HS256 bearer tokens whose subject is a user id.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenVerifier(secret string, issuer string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errSecretMissing
	}
	return &TokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}, nil
}

func (v *TokenVerifier) Issue(userID int64, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatInt(userID, 10),
		Issuer:   v.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *TokenVerifier) Verify(raw string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, errors.Join(ErrTokenInvalid, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenSubject
	}
	return id, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

// withAuthentication attaches the request principal. Requests without an Authorization header
// are anonymous; a header that does not carry a valid token for a known profile is rejected.
func withAuthentication(classifier *routing.Classifier, tokens *TokenVerifier, access ports.AccessStore, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := classifier.Classify(r.URL.Path)

		raw, present := bearerToken(r)
		if !present {
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), anonymousPrincipal())))
			return
		}
		if raw == "" || tokens == nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
			return
		}

		userID, err := tokens.Verify(raw)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
			return
		}
		user, err := access.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ports.ErrProfileNotFound) {
				routing.WriteError(w, r, rc, http.StatusUnauthorized, "profile_not_found", "profile not found")
				return
			}
			logger.Error("load user", zap.Int64("user_id", userID), zap.Error(err))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principalForUser(user))))
	})
}
