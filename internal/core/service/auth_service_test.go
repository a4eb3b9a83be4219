package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

func tokenFromMail(t *testing.T, msg ports.MailMessage) string {
	t.Helper()
	_, raw, ok := strings.Cut(msg.Body, "token=")
	if !ok {
		t.Fatalf("no token in mail body: %q", msg.Body)
	}
	tok, err := url.QueryUnescape(raw)
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	return tok
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestAuthService_Register_Success(t *testing.T) {
	f := newAuthFixture(true)

	user, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "pass123",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("expected default role user, got %q", user.Role)
	}
	if !user.Active || user.Verified {
		t.Fatalf("expected active unverified user, got active=%v verified=%v", user.Active, user.Verified)
	}
	if user.PasswordHash != "hashed:pass123" {
		t.Fatalf("expected password to be hashed, got %q", user.PasswordHash)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newAuthFixture(true)
	ctx := context.Background()

	cases := []ports.RegisterInput{
		{Username: "", Email: "a@example.com", Password: "x"},
		{Username: "a", Email: "", Password: "x"},
		{Username: "a", Email: "a@example.com", Password: ""},
		{Username: "a", Email: "a@example.com", Password: "x", Role: "client"},
	}
	for _, in := range cases {
		if _, err := f.svc.Register(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("input %+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(true)
	f.seedAlice(false, true)

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "x",
	})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestAuthService_Login_ByUsernameAndEmail(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)

	for identifier, lookup := range map[string]string{
		"alice":             "username",
		"alice@example.com": "email",
	} {
		res, err := f.svc.Login(context.Background(), identifier, "correct-horse")
		if err != nil {
			t.Fatalf("login with %q: %v", identifier, err)
		}
		if f.store.lastLookup != lookup {
			t.Fatalf("login with %q looked up by %s, want %s", identifier, f.store.lastLookup, lookup)
		}
		if res.TokenType != "bearer" || res.User.ID != alice.ID {
			t.Fatalf("unexpected result: %+v", res)
		}

		claims, err := f.tokens.Verify(res.AccessToken)
		if err != nil {
			t.Fatalf("issued token does not verify: %v", err)
		}
		if claims.Subject != "alice" || claims.UserID != alice.ID || claims.Role != domain.RoleUser {
			t.Fatalf("unexpected claims: %+v", claims)
		}
		if claims.Purpose != domain.PurposeAccess {
			t.Fatalf("expected access purpose, got %q", claims.Purpose)
		}
		if !claims.ExpiresAt.Equal(f.clock.Now().Add(15 * time.Minute)) {
			t.Fatalf("unexpected expiry: %v", claims.ExpiresAt)
		}
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(true)
	f.seedAlice(false, true)
	f.store.seed(domain.User{
		ID: "u-bob", Username: "bob", Email: "bob@example.com",
		PasswordHash: "hashed:pw", Role: domain.RoleUser, Active: false,
	})

	cases := map[string][2]string{
		"unknown user":   {"mallory", "whatever"},
		"unknown email":  {"mallory@example.com", "whatever"},
		"wrong password": {"alice", "wrong"},
		"inactive":       {"bob", "pw"},
		"empty":          {"", ""},
	}
	for name, c := range cases {
		_, err := f.svc.Login(context.Background(), c[0], c[1])
		if err != domain.ErrInvalidCredentials {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
}

func TestAuthService_Login_StoreUnavailable(t *testing.T) {
	f := newAuthFixture(true)
	f.store.err = errors.New("connection refused")

	_, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("store failure must not look like bad credentials")
	}
}

func TestAuthService_Login_UnknownUserStillHashes(t *testing.T) {
	f := newAuthFixture(true)
	f.seedAlice(true, true)

	for _, identifier := range []string{"mallory", "mallory@example.com"} {
		f.hasher.verifies = nil
		if _, err := f.svc.Login(context.Background(), identifier, "whatever"); err != domain.ErrInvalidCredentials {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", identifier, err)
		}
		if len(f.hasher.verifies) != 1 {
			t.Fatalf("%s: expected one password check, got %d", identifier, len(f.hasher.verifies))
		}
		if f.hasher.verifies[0] == "" {
			t.Fatalf("%s: password checked against an empty hash", identifier)
		}
	}
}

// ---------------------------------------------------------------------------
// Email verification
// ---------------------------------------------------------------------------

func TestAuthService_SendVerification(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	id := domain.Identity{UserID: alice.ID, Role: alice.Role, Subject: "alice"}

	to, err := f.svc.SendVerification(context.Background(), id, "alice")
	if err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	if to != "alice@example.com" {
		t.Fatalf("unexpected recipient: %s", to)
	}
	if len(f.queue.msgs) != 1 {
		t.Fatalf("expected one queued mail, got %d", len(f.queue.msgs))
	}
	msg := f.queue.msgs[0]
	if msg.To != "alice@example.com" {
		t.Fatalf("mail sent to %s", msg.To)
	}
	if !strings.Contains(msg.Body, "http://localhost:8080/auth/verify?token=") {
		t.Fatalf("unexpected link: %s", msg.Body)
	}

	claims, err := f.tokens.Verify(tokenFromMail(t, msg))
	if err != nil {
		t.Fatalf("mailed token does not verify: %v", err)
	}
	if claims.Purpose != domain.PurposeEmailVerify || claims.Subject != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(f.clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", claims.ExpiresAt)
	}
}

func TestAuthService_SendVerification_OtherUser(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	id := domain.Identity{UserID: alice.ID, Subject: "alice"}

	if _, err := f.svc.SendVerification(context.Background(), id, "bob"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(f.queue.msgs) != 0 {
		t.Fatalf("no mail expected")
	}
}

func TestAuthService_SendVerification_AlreadyVerified(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)
	id := domain.Identity{UserID: alice.ID, Subject: "alice"}

	if _, err := f.svc.SendVerification(context.Background(), id, "alice"); !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestAuthService_SendVerification_QueueFull(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	f.queue.err = errors.New("mail queue full")

	_, err := f.svc.SendVerification(context.Background(), domain.Identity{UserID: alice.ID, Subject: "alice"}, "alice")
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestAuthService_VerifyEmail_SingleUse(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	if _, err := f.svc.SendVerification(context.Background(), domain.Identity{UserID: alice.ID, Subject: "alice"}, "alice"); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	tok := tokenFromMail(t, f.queue.msgs[0])

	f.clock.Advance(10 * time.Minute)
	user, err := f.svc.VerifyEmail(context.Background(), tok)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !user.Verified || !f.store.users[alice.ID].Verified {
		t.Fatalf("user not marked verified")
	}

	entry, ok := f.denylist.entries[domain.TokenKey(tok)]
	if !ok || entry.marker != domain.MarkerConsumed {
		t.Fatalf("expected consumed marker, got %+v", entry)
	}
	if entry.ttl != 50*time.Minute {
		t.Fatalf("expected ttl of remaining lifetime, got %s", entry.ttl)
	}

	_, err = f.svc.VerifyEmail(context.Background(), tok)
	if !errors.Is(err, domain.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed on replay, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("consumed token should be an authentication failure")
	}
}

func TestAuthService_VerifyEmail_ReplayAllowedWhenSingleUseOff(t *testing.T) {
	f := newAuthFixture(false)
	alice := f.seedAlice(false, true)
	tok, _ := f.tokens.Issue(domain.PurposeEmailVerify, alice.Email, alice.ID, alice.Role, time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := f.svc.VerifyEmail(context.Background(), tok); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if len(f.denylist.entries) != 0 {
		t.Fatalf("no denylist writes expected")
	}
}

func TestAuthService_VerifyEmail_RejectsOtherPurposes(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)

	for _, p := range []domain.Purpose{domain.PurposeAccess, domain.PurposePasswordReset} {
		tok, _ := f.tokens.Issue(p, alice.Email, alice.ID, alice.Role, time.Hour)
		if _, err := f.svc.VerifyEmail(context.Background(), tok); !errors.Is(err, domain.ErrTokenWrongPurpose) {
			t.Fatalf("purpose %s: expected ErrTokenWrongPurpose, got %v", p, err)
		}
	}
	if f.store.users[alice.ID].Verified {
		t.Fatalf("user must stay unverified")
	}
}

func TestAuthService_VerifyEmail_Expired(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	tok, _ := f.tokens.Issue(domain.PurposeEmailVerify, alice.Email, alice.ID, alice.Role, time.Hour)

	f.clock.Advance(time.Hour)
	if _, err := f.svc.VerifyEmail(context.Background(), tok); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAuthService_VerifyEmail_DenylistUnavailable(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	tok, _ := f.tokens.Issue(domain.PurposeEmailVerify, alice.Email, alice.ID, alice.Role, time.Hour)
	f.denylist.err = errors.New("i/o timeout")

	if _, err := f.svc.VerifyEmail(context.Background(), tok); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if f.store.users[alice.ID].Verified {
		t.Fatalf("user must stay unverified when the claim cannot be recorded")
	}
}

func TestAuthService_VerifyEmail_RetryAfterStoreFailure(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(false, true)
	tok, _ := f.tokens.Issue(domain.PurposeEmailVerify, alice.Email, alice.ID, alice.Role, time.Hour)

	f.store.err = errors.New("mongo down")
	if _, err := f.svc.VerifyEmail(context.Background(), tok); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if _, ok := f.denylist.entries[domain.TokenKey(tok)]; ok {
		t.Fatalf("token must not be consumed when the update failed")
	}

	f.store.err = nil
	user, err := f.svc.VerifyEmail(context.Background(), tok)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !user.Verified || !f.store.users[alice.ID].Verified {
		t.Fatalf("user not marked verified on retry")
	}
	if entry := f.denylist.entries[domain.TokenKey(tok)]; entry.marker != domain.MarkerConsumed {
		t.Fatalf("expected consumed marker after success, got %+v", entry)
	}
	if _, err := f.svc.VerifyEmail(context.Background(), tok); !errors.Is(err, domain.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed after success, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Password recovery
// ---------------------------------------------------------------------------

func TestAuthService_ForgotPassword_UnknownEmail(t *testing.T) {
	f := newAuthFixture(true)

	if _, err := f.svc.ForgotPassword(context.Background(), "ghost@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(f.queue.msgs) != 0 {
		t.Fatalf("no mail expected")
	}
}

func TestAuthService_ResetPassword_Flow(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)

	if _, err := f.svc.ForgotPassword(context.Background(), alice.Email); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	msg := f.queue.msgs[0]
	if !strings.Contains(msg.Body, "/auth/forgot-password?token=") {
		t.Fatalf("unexpected link: %s", msg.Body)
	}
	tok := tokenFromMail(t, msg)

	if _, err := f.svc.VerifyEmail(context.Background(), tok); !errors.Is(err, domain.ErrTokenWrongPurpose) {
		t.Fatalf("reset token must not verify email, got %v", err)
	}

	user, err := f.svc.ResetPassword(context.Background(), tok, "new-secret")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if user.ID != alice.ID || f.store.users[alice.ID].PasswordHash != "hashed:new-secret" {
		t.Fatalf("password not updated")
	}

	if _, err := f.svc.ResetPassword(context.Background(), tok, "another"); !errors.Is(err, domain.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed on replay, got %v", err)
	}
	if f.store.users[alice.ID].PasswordHash != "hashed:new-secret" {
		t.Fatalf("replay must not change the password")
	}
}

func TestAuthService_ResetPassword_EmptyPasswordKeepsToken(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)
	tok, _ := f.tokens.Issue(domain.PurposePasswordReset, alice.Email, alice.ID, alice.Role, time.Hour)

	if _, err := f.svc.ResetPassword(context.Background(), tok, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.ResetPassword(context.Background(), tok, "valid"); err != nil {
		t.Fatalf("token should still be redeemable: %v", err)
	}
}

func TestAuthService_ResetPassword_RetryAfterStoreFailure(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)
	tok, _ := f.tokens.Issue(domain.PurposePasswordReset, alice.Email, alice.ID, alice.Role, time.Hour)

	f.store.err = errors.New("mongo down")
	if _, err := f.svc.ResetPassword(context.Background(), tok, "new-secret"); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}

	f.store.err = nil
	if _, err := f.svc.ResetPassword(context.Background(), tok, "new-secret"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.store.users[alice.ID].PasswordHash != "hashed:new-secret" {
		t.Fatalf("password not updated on retry")
	}
	if _, err := f.svc.ResetPassword(context.Background(), tok, "another"); !errors.Is(err, domain.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed after success, got %v", err)
	}
}

func TestAuthService_ResetPassword_AccessTokenRejected(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)

	if _, err := f.svc.ResetPassword(context.Background(), f.accessToken(alice), "x"); !errors.Is(err, domain.ErrTokenWrongPurpose) {
		t.Fatalf("expected ErrTokenWrongPurpose, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Logout
// ---------------------------------------------------------------------------

func TestAuthService_Logout_RevokesForRemainingLifetime(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)
	tok := f.accessToken(alice)

	f.clock.Advance(5 * time.Minute)
	if err := f.svc.Logout(context.Background(), tok); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	entry, ok := f.denylist.entries[domain.TokenKey(tok)]
	if !ok {
		t.Fatalf("token not denylisted")
	}
	if entry.marker != domain.MarkerRevoked || entry.ttl != 10*time.Minute {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestAuthService_Logout_DeadTokensAreNoOps(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)
	expired := f.accessToken(alice)
	f.clock.Advance(16 * time.Minute)

	for name, tok := range map[string]string{
		"expired": expired,
		"garbage": "not-a-token",
		"empty":   "",
	} {
		if err := f.svc.Logout(context.Background(), tok); err != nil {
			t.Fatalf("%s: expected success, got %v", name, err)
		}
	}
	if len(f.denylist.entries) != 0 {
		t.Fatalf("expected no denylist writes, got %d", len(f.denylist.entries))
	}
}

func TestAuthService_Logout_StoreUnavailable(t *testing.T) {
	f := newAuthFixture(true)
	alice := f.seedAlice(true, true)
	f.denylist.err = errors.New("connection reset")

	if err := f.svc.Logout(context.Background(), f.accessToken(alice)); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}
