package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-gateway/internal/auth"
)

const testSecret = "test-secret-key-for-unit-tests"

func sign(secret string, method jwt.SigningMethod, claims auth.Claims) string {
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	return token
}

var _ = Describe("JWT", func() {
	var authenticator *auth.JWT

	BeforeEach(func() {
		var err error
		authenticator, err = auth.NewJWT(auth.Options{Secret: testSecret})
		Expect(err).NotTo(HaveOccurred())
	})

	withBearer := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	Describe("NewJWT", func() {
		It("should require a secret", func() {
			_, err := auth.NewJWT(auth.Options{})
			Expect(err).To(MatchError(auth.ErrMissingSecret))
		})
	})

	Describe("Issue", func() {
		It("should carry the user and the configured issuer", func() {
			token, err := authenticator.Issue("user-123", "test@example.com")
			Expect(err).NotTo(HaveOccurred())

			claims, err := authenticator.Parse(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal("user-123"))
			Expect(claims.Email).To(Equal("test@example.com"))
			Expect(claims.Issuer).To(Equal(auth.DefaultIssuer))
			Expect(claims.ExpiresAt.Time).To(BeTemporally("~", time.Now().Add(auth.DefaultTokenTTL), time.Minute))
		})
	})

	Describe("Authenticate", func() {
		It("should accept a bearer token", func() {
			token, _ := authenticator.Issue("user-123", "test@example.com")

			identity, ok := authenticator.Authenticate(withBearer(token))
			Expect(ok).To(BeTrue())
			Expect(identity).To(Equal(auth.Identity{ID: "user-123", Email: "test@example.com"}))
		})

		It("should accept the session cookie", func() {
			token, _ := authenticator.Issue("user-456", "")
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: token})

			identity, ok := authenticator.Authenticate(req)
			Expect(ok).To(BeTrue())
			Expect(identity.ID).To(Equal("user-456"))
		})

		It("should reject a request without credentials", func() {
			_, ok := authenticator.Authenticate(httptest.NewRequest(http.MethodGet, "/api/users", nil))
			Expect(ok).To(BeFalse())
		})

		It("should reject a non-bearer authorization header", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			_, ok := authenticator.Authenticate(req)
			Expect(ok).To(BeFalse())
		})

		DescribeTable("should reject invalid tokens",
			func(token func() string) {
				_, ok := authenticator.Authenticate(withBearer(token()))
				Expect(ok).To(BeFalse())
			},
			Entry("garbage", func() string { return "not-a-token" }),
			Entry("wrong secret", func() string {
				return sign("other-secret", jwt.SigningMethodHS256, auth.Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    auth.DefaultIssuer,
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
					UserID: "user-123",
				})
			}),
			Entry("expired", func() string {
				return sign(testSecret, jwt.SigningMethodHS256, auth.Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    auth.DefaultIssuer,
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
					},
					UserID: "user-123",
				})
			}),
			Entry("wrong issuer", func() string {
				return sign(testSecret, jwt.SigningMethodHS256, auth.Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    "someone-else",
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
					UserID: "user-123",
				})
			}),
			Entry("no expiry", func() string {
				return sign(testSecret, jwt.SigningMethodHS256, auth.Claims{
					RegisteredClaims: jwt.RegisteredClaims{Issuer: auth.DefaultIssuer},
					UserID:           "user-123",
				})
			}),
			Entry("other algorithm", func() string {
				return sign(testSecret, jwt.SigningMethodHS512, auth.Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    auth.DefaultIssuer,
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
					UserID: "user-123",
				})
			}),
			Entry("missing user", func() string {
				return sign(testSecret, jwt.SigningMethodHS256, auth.Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						Issuer:    auth.DefaultIssuer,
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				})
			}),
		)
	})

	Describe("Identity.Header", func() {
		It("should render the identity as JSON", func() {
			header := auth.Identity{ID: "user-123", Email: "test@example.com"}.Header()

			var decoded map[string]string
			Expect(json.Unmarshal([]byte(header), &decoded)).To(Succeed())
			Expect(decoded).To(Equal(map[string]string{"id": "user-123", "email": "test@example.com"}))
		})
	})
})
