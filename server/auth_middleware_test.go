package server_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-auth/accounts"
	fakeaccountrepo "github.com/jrsteele09/go-admin-auth/accounts/repofake"
	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/server"
	fakesessionrepo "github.com/jrsteele09/go-admin-auth/sessions/repofake"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAccess_Rejections(t *testing.T) {
	f := setupTestFixture(t, nil)
	account := f.createAccount(t, false)

	refresh, err := f.codec.Issue(token.KindRefresh, account.ID)
	require.NoError(t, err)
	ghost, err := f.codec.Issue(token.KindAccess, "no-such-account")
	require.NoError(t, err)
	expired, err := f.codec.Sign(token.KindAccess, account.ID, time.Second)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)

	tests := []struct {
		name   string
		header string
		fields map[string]any
	}{
		{name: "missing header", header: "", fields: map[string]any{"authorization": "missing Authorization header"}},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", fields: map[string]any{"authorization": "invalid Authorization header format"}},
		{name: "empty bearer", header: "Bearer ", fields: map[string]any{"authorization": "empty token"}},
		{name: "garbage", header: "Bearer not-a-token"},
		{name: "refresh kind", header: "Bearer " + refresh},
		{name: "unknown subject", header: "Bearer " + ghost},
		{name: "expired", header: "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := f.do(t, http.MethodGet, server.RouteAPIMe, nil, headers)
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			body := decode(t, rec)
			require.Equal(t, "authentication_failed", body["error"])
			if tt.fields == nil {
				require.NotContains(t, body, "fields")
			} else {
				require.Equal(t, tt.fields, body["fields"])
			}
		})
	}
}

func TestValidators_RejectForeignBinding(t *testing.T) {
	f := setupTestFixture(t, nil)
	account := f.createAccount(t, true)

	ttls := token.TTLs{Access: time.Hour, Refresh: time.Hour, SecurityReauth: time.Minute, TwoFactorChallenge: time.Minute}
	bindings := map[string]token.Binding{
		"other team":   {TeamID: "team-2", DomainID: "admin.example.com"},
		"other domain": {TeamID: "team-1", DomainID: "shop.example.com"},
	}

	for bindingName, binding := range bindings {
		foreign, err := token.NewCodec(token.NewHMACSigner(secretStr), binding, ttls, token.WithNowFunc(func() time.Time { return f.now }))
		require.NoError(t, err)
		issue := func(kind token.Kind) string {
			raw, err := foreign.Issue(kind, account.ID)
			require.NoError(t, err)
			return raw
		}

		tests := []struct {
			name    string
			path    string
			body    any
			headers map[string]string
		}{
			{name: "access", path: server.RouteAPIMe, headers: bearer(issue(token.KindAccess))},
			{name: "refresh", path: server.RouteAuthRefresh, body: map[string]string{server.BodyFieldRefreshToken: issue(token.KindRefresh)}},
			{name: "reauth", path: server.RouteAuthTwoFactorOff, body: map[string]string{"password": testUserPassword},
				headers: map[string]string{server.HeaderReauthToken: issue(token.KindSecurityReauth)}},
			{name: "challenge", path: server.RouteAuthTwoFactorVerify, body: map[string]string{"token": f.code(t, testTOTPSecret)},
				headers: map[string]string{server.HeaderSecurityChallenge: issue(token.KindTwoFactorChallenge)}},
		}
		for _, tt := range tests {
			t.Run(bindingName+"/"+tt.name, func(t *testing.T) {
				method := http.MethodPost
				if tt.path == server.RouteAPIMe {
					method = http.MethodGet
				}
				rec := f.do(t, method, tt.path, tt.body, tt.headers)
				require.Equal(t, http.StatusUnauthorized, rec.Code)
				require.Equal(t, map[string]any{"error": "authentication_failed"}, decode(t, rec))
			})
		}
	}
}

func TestRequireRefresh_CarrierFailures(t *testing.T) {
	f := setupTestFixture(t, nil)

	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "no body", body: "", reason: "missing request body"},
		{name: "malformed", body: "{refresh_token:", reason: "malformed JSON body"},
		{name: "missing field", body: `{"token":"x"}`, reason: "missing refresh_token"},
		{name: "wrong type", body: `{"refresh_token":42}`, reason: "missing refresh_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, http.NoBody)
			if tt.body != "" {
				req = httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(tt.body))
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, map[string]any{"refresh_token": tt.reason}, decode(t, rec)["fields"])
		})
	}
}

func TestRequireRefresh_BodyTooLarge(t *testing.T) {
	settings := testSettings()
	settings.MaxBodyBytes = 64
	f := setupTestFixture(t, settings)

	big := `{"refresh_token":"` + strings.Repeat("a", 128) + `"}`
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, server.RouteAuthRefresh, strings.NewReader(big)))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, map[string]any{"refresh_token": "request body too large"}, decode(t, rec)["fields"])
}

func TestRequireChallenge_RejectsOtherKinds(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.createAccount(t, true)
	challenge := f.login(t)["challenge_token"].(string)

	account, err := f.accountRepo.GetByEmail(context.Background(), testUserEmail)
	require.NoError(t, err)
	access, err := f.codec.Issue(token.KindAccess, account.ID)
	require.NoError(t, err)

	// An access token cannot stand in for a challenge
	rec := f.do(t, http.MethodPost, server.RouteAuthTwoFactorVerify, map[string]string{"token": f.code(t, testTOTPSecret)},
		map[string]string{server.HeaderSecurityChallenge: access})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A challenge cannot be used as a re-auth token
	rec = f.do(t, http.MethodPost, server.RouteAuthTwoFactorOff, map[string]string{"password": testUserPassword},
		map[string]string{server.HeaderReauthToken: challenge})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtect_PassesIdentity(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.createAccount(t, false)
	access := f.login(t)["access_token"].(string)

	f.server.RegisterRouteFunc("GET /api/products", f.server.Protect(func(w http.ResponseWriter, r *http.Request) {
		id, ok := server.IdentityFrom(r.Context())
		require.True(t, ok)
		require.Nil(t, id.Session)
		require.NotEmpty(t, id.TokenID)
		_, _ = w.Write([]byte(id.Account.Email))
	}))

	rec := f.do(t, http.MethodGet, "/api/products", nil, bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, testUserEmail, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/products", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityFrom_Empty(t *testing.T) {
	_, ok := server.IdentityFrom(context.Background())
	require.False(t, ok)
}

// stageUpload parses a multipart body the way an upload middleware would,
// spilling file parts to disk.
func stageUpload(staged *string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1); err == nil {
				if fh := r.MultipartForm.File["image"]; len(fh) > 0 {
					if file, err := fh[0].Open(); err == nil {
						if osFile, ok := file.(*os.File); ok {
							*staged = osFile.Name()
						}
						_ = file.Close()
					}
				}
			}
			next(w, r)
		}
	}
}

func multipartUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "product.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x89}, 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestValidator_RemovesStagedUploadsOnRejection(t *testing.T) {
	var cleaned atomic.Int32
	f := setupTestFixture(t, nil, server.WithUploadCleaner(server.UploadCleanerFunc(func(*http.Request) {
		cleaned.Add(1)
	})))

	var staged string
	handled := false
	f.server.RegisterRouteHandler("POST /api/products/upload", server.ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		handled = true
	}, f.server.APIMiddleware(stageUpload(&staged), f.server.RequireAccess())...))

	body, contentType := multipartUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/api/products/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, handled)
	require.NotEmpty(t, staged, "upload should have been staged on disk")
	_, err := os.Stat(staged)
	require.True(t, os.IsNotExist(err), "staged upload %s was left behind", staged)
	require.Equal(t, int32(1), cleaned.Load())
}

// failingAccountRepo simulates an unreachable account store.
type failingAccountRepo struct {
	*fakeaccountrepo.FakeAccountRepo
}

func (failingAccountRepo) GetByID(context.Context, string) (*accounts.Account, error) {
	return nil, errors.New("connection refused")
}

func TestRequireAccess_StoreFailureIsFatal(t *testing.T) {
	repos := auth.Repos{
		Accounts: failingAccountRepo{fakeaccountrepo.NewFakeAccountRepo()},
		Sessions: fakesessionrepo.NewFakeSessionRepo(),
	}
	codec, err := token.NewCodec(token.NewHMACSigner(secretStr), token.Binding{TeamID: "t", DomainID: "d"},
		token.TTLs{Access: time.Hour, Refresh: time.Hour, SecurityReauth: time.Minute, TwoFactorChallenge: time.Minute})
	require.NoError(t, err)
	svc, err := auth.NewService(repos, codec, auth.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	srv, err := server.New(testSettings(), svc, repos, codec, &recordingPublisher{}, server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	access, err := codec.Issue(token.KindAccess, "acc-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, server.RouteAPIMe, nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "authentication_fatal"}, decode(t, rec))
}
