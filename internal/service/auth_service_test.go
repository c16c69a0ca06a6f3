package service

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"modbus_console/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// mockAuthRepo is a lightweight in-test mock for repository.Authorization.
type mockAuthRepo struct {
	CreateFn         func(username, hash string) (int, error)
	GetByUsernameFn  func(username string) (*models.User, error)
	UpdatePasswordFn func(username, hash string) error

	createCalls []struct {
		username string
		hash     string
	}
	getCalls    []string
	updateCalls []string
}

func (m *mockAuthRepo) Create(username, hash string) (int, error) {
	m.createCalls = append(m.createCalls, struct {
		username string
		hash     string
	}{username: username, hash: hash})
	return m.CreateFn(username, hash)
}

func (m *mockAuthRepo) GetByUsername(username string) (*models.User, error) {
	m.getCalls = append(m.getCalls, username)
	return m.GetByUsernameFn(username)
}

func (m *mockAuthRepo) UpdatePassword(username, hash string) error {
	m.updateCalls = append(m.updateCalls, username)
	return m.UpdatePasswordFn(username, hash)
}

const testKey = "test-signing-key"

func newAuth(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, testKey, time.Hour)
}

// --- EnsureOperator tests ---

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	return h
}

func TestAuthService_EnsureOperator_CreatesMissingUser(t *testing.T) {
	hash := mustHash(t, "s3cr3t")
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) { return nil, nil },
		CreateFn:        func(string, string) (int, error) { return 42, nil },
	}
	svc := newAuth(mock)

	id, err := svc.EnsureOperator("operator", hash)
	if err != nil {
		t.Fatalf("EnsureOperator returned error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
	if len(mock.createCalls) != 1 || mock.createCalls[0].hash != hash {
		t.Fatalf("expected one Create with the configured hash, got %+v", mock.createCalls)
	}
}

func TestAuthService_EnsureOperator_UpdatesChangedHash(t *testing.T) {
	oldHash := mustHash(t, "old")
	newHash := mustHash(t, "new")
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) {
			return &models.User{ID: 3, Username: "operator", PasswordHash: oldHash}, nil
		},
		UpdatePasswordFn: func(string, string) error { return nil },
	}
	svc := newAuth(mock)

	id, err := svc.EnsureOperator("operator", newHash)
	if err != nil {
		t.Fatalf("EnsureOperator returned error: %v", err)
	}
	if id != 3 || len(mock.updateCalls) != 1 {
		t.Fatalf("expected update of user 3, got id=%d updates=%v", id, mock.updateCalls)
	}
	if len(mock.createCalls) != 0 {
		t.Fatalf("expected no Create calls, got %d", len(mock.createCalls))
	}
}

func TestAuthService_EnsureOperator_UnchangedHashIsNoop(t *testing.T) {
	hash := mustHash(t, "same")
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) {
			return &models.User{ID: 1, Username: "operator", PasswordHash: hash}, nil
		},
	}
	svc := newAuth(mock)

	if _, err := svc.EnsureOperator("operator", hash); err != nil {
		t.Fatalf("EnsureOperator returned error: %v", err)
	}
	if len(mock.updateCalls) != 0 || len(mock.createCalls) != 0 {
		t.Fatalf("expected no writes, got updates=%v creates=%v", mock.updateCalls, mock.createCalls)
	}
}

func TestAuthService_EnsureOperator_RejectsPlainPassword(t *testing.T) {
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) {
			t.Fatal("repo should not be queried for an invalid hash")
			return nil, nil
		},
	}
	svc := newAuth(mock)

	if _, err := svc.EnsureOperator("operator", "plaintext"); err == nil {
		t.Fatalf("expected error for a non-bcrypt hash")
	}
}

func TestAuthService_EnsureOperator_RepoError(t *testing.T) {
	mock := &mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) { return nil, errors.New("db down") },
	}
	svc := newAuth(mock)

	if _, err := svc.EnsureOperator("operator", mustHash(t, "pw")); err == nil {
		t.Fatalf("expected repo error, got nil")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword("   "); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

// --- GenerateToken tests ---

func TestAuthService_GenerateToken_Success(t *testing.T) {
	// Prepare a user with a valid bcrypt hash for the provided password.
	hash, err := HashPassword("letmein")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	user := &models.User{ID: 7, Username: "operator", PasswordHash: hash}

	mock := &mockAuthRepo{
		GetByUsernameFn: func(username string) (*models.User, error) {
			if username != "operator" {
				t.Fatalf("expected username 'operator', got %q", username)
			}
			return user, nil
		},
	}
	svc := newAuth(mock)

	token, err := svc.GenerateToken("operator", "letmein")
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	// Validate the token parses and returns the correct user id.
	uid, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if uid != 7 {
		t.Fatalf("expected user id 7 from token, got %d", uid)
	}

	if len(mock.getCalls) != 1 {
		t.Fatalf("expected 1 GetByUsername call, got %d", len(mock.getCalls))
	}
}

func TestAuthService_GenerateToken_UserNotFound(t *testing.T) {
	mock := &mockAuthRepo{
		GetByUsernameFn: func(username string) (*models.User, error) {
			return nil, nil
		},
	}
	svc := newAuth(mock)

	_, err := svc.GenerateToken("ghost", "pw")
	if err == nil {
		t.Fatalf("expected ErrUserNotFound, got nil")
	}
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestAuthService_GenerateToken_InvalidPassword(t *testing.T) {
	// Stored hash for different password.
	correctHash, err := HashPassword("correct")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	mock := &mockAuthRepo{
		GetByUsernameFn: func(username string) (*models.User, error) {
			return &models.User{ID: 1, Username: "eve", PasswordHash: correctHash}, nil
		},
	}
	svc := newAuth(mock)

	_, err = svc.GenerateToken("eve", "wrong")
	if err == nil {
		t.Fatalf("expected ErrInvalidPassword, got nil")
	}
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got: %v", err)
	}
}

func TestAuthService_GenerateToken_RepoError(t *testing.T) {
	mock := &mockAuthRepo{
		GetByUsernameFn: func(username string) (*models.User, error) {
			return nil, errors.New("query failed")
		},
	}
	svc := newAuth(mock)

	_, err := svc.GenerateToken("john", "pw")
	if err == nil {
		t.Fatalf("expected repo error, got nil")
	}
}

// --- ParseToken tests ---

func TestAuthService_ParseToken_Success(t *testing.T) {
	svc := newAuth(&mockAuthRepo{})
	token, err := svc.issueToken(99, "operator")
	if err != nil {
		t.Fatalf("issueToken failed: %v", err)
	}

	uid, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if uid != 99 {
		t.Fatalf("expected user id 99, got %d", uid)
	}
}

func TestAuthService_ParseToken_Malformed(t *testing.T) {
	svc := newAuth(&mockAuthRepo{})
	_, err := svc.ParseToken("not-a-jwt")
	if err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestAuthService_ParseToken_InvalidSignature(t *testing.T) {
	svc := newAuth(&mockAuthRepo{})

	// Create a token signed with a different key.
	now := time.Now()
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: 5,
	})
	otherKey := []byte("different-key")
	badToken, err := tk.SignedString(otherKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	_, err = svc.ParseToken(badToken)
	if err == nil {
		t.Fatalf("expected signature verification error")
	}
}

func TestAuthService_ParseToken_Expired(t *testing.T) {
	svc := newAuth(&mockAuthRepo{})

	// Issue an already expired token using same signing key.
	past := time.Now().Add(-2 * time.Hour)
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past),
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Minute)),
		},
		UserID: 11,
	})
	expiredToken, err := tk.SignedString([]byte(testKey))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	_, err = svc.ParseToken(expiredToken)
	if err == nil {
		t.Fatalf("expected error for expired token")
	}
}

func TestAuthService_ParseToken_UnexpectedAlg(t *testing.T) {
	svc := newAuth(&mockAuthRepo{})

	now := time.Now()

	// Generate RSA key for RS256 signing
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}

	tk := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: 12,
	})

	// Sanity check: ensure the algorithm is RS256 (non-HMAC)
	if tk.Method.Alg() != jwt.SigningMethodRS256.Alg() {
		t.Fatalf("expected RS256 alg, got %s", tk.Method.Alg())
	}

	tokenStr, err := tk.SignedString(privateKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	_, err = svc.ParseToken(tokenStr)
	if err == nil {
		t.Fatalf("expected error due to unexpected signing method")
	}
}

func TestAuthService_ParseToken_WrapsInvalidToken(t *testing.T) {
	svc := newAuth(&mockAuthRepo{})
	_, err := svc.ParseToken("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_NoSigningKey(t *testing.T) {
	hash := mustHash(t, "pw")
	svc := NewAuthService(&mockAuthRepo{
		GetByUsernameFn: func(string) (*models.User, error) {
			return &models.User{ID: 1, Username: "operator", PasswordHash: hash}, nil
		},
	}, "", 0)

	if _, err := svc.GenerateToken("operator", "pw"); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
	if _, err := svc.ParseToken("x.y.z"); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}
