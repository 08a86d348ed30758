package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

type stubUserRepo struct {
	users  map[string]*domain.User
	nextID int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	copy := cloneUser(user)
	if copy.ID == "" {
		r.nextID++
		copy.ID = fmt.Sprintf("user_%d", r.nextID)
	}
	r.users[copy.ID] = cloneUser(copy)
	return cloneUser(copy), nil
}

func (r *stubUserRepo) SetActive(_ context.Context, id string, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Active = active
	return nil
}

func (r *stubUserRepo) SetRole(_ context.Context, id string, role domain.Role) error {
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (r *stubUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type stubRequestRepo struct {
	requests map[string]*domain.RegistrationRequest
}

func newStubRequestRepo() *stubRequestRepo {
	return &stubRequestRepo{requests: make(map[string]*domain.RegistrationRequest)}
}

func cloneRequest(r *domain.RegistrationRequest) *domain.RegistrationRequest {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

func (r *stubRequestRepo) FindByEmail(_ context.Context, email string) (*domain.RegistrationRequest, error) {
	for _, req := range r.requests {
		if req.Email == email {
			return cloneRequest(req), nil
		}
	}
	return nil, domain.ErrRequestNotFound
}

func (r *stubRequestRepo) FindByID(_ context.Context, id string) (*domain.RegistrationRequest, error) {
	if req, ok := r.requests[id]; ok {
		return cloneRequest(req), nil
	}
	return nil, domain.ErrRequestNotFound
}

func (r *stubRequestRepo) Insert(_ context.Context, req *domain.RegistrationRequest) (*domain.RegistrationRequest, error) {
	for _, existing := range r.requests {
		if existing.Email == req.Email {
			return nil, domain.ErrRequestConflict
		}
	}
	r.requests[req.ID] = cloneRequest(req)
	return cloneRequest(req), nil
}

func (r *stubRequestRepo) Transition(_ context.Context, id string, from []domain.RegistrationStatus, patch ports.RequestPatch) (*domain.RegistrationRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	allowed := false
	for _, s := range from {
		if req.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, domain.ErrInvalidState
	}

	if patch.Status != nil {
		req.Status = *patch.Status
	}
	if patch.VerificationCode != nil {
		req.VerificationCode = *patch.VerificationCode
	}
	if patch.CodeExpiresAt != nil {
		req.CodeExpiresAt = timePtrOrNil(*patch.CodeExpiresAt)
	}
	if patch.CompletionToken != nil {
		req.CompletionToken = *patch.CompletionToken
	}
	if patch.TokenExpiresAt != nil {
		req.TokenExpiresAt = timePtrOrNil(*patch.TokenExpiresAt)
	}
	if patch.ApprovedBy != nil {
		req.ApprovedBy = *patch.ApprovedBy
	}
	if patch.ApprovedAt != nil {
		req.ApprovedAt = timePtrOrNil(*patch.ApprovedAt)
	}
	if patch.AdminNotes != nil {
		req.AdminNotes = *patch.AdminNotes
	}
	if patch.RejectionReason != nil {
		req.RejectionReason = *patch.RejectionReason
	}
	req.UpdatedAt = time.Now().UTC()

	return cloneRequest(req), nil
}

func (r *stubRequestRepo) List(_ context.Context, filter ports.ListRequestsFilter) ([]*domain.RegistrationRequest, int64, error) {
	var out []*domain.RegistrationRequest
	for _, req := range r.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	return out, int64(len(out)), nil
}

func timePtrOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type stubDispatcher struct {
	sent []ports.Notification
}

func (d *stubDispatcher) Enqueue(n ports.Notification) {
	d.sent = append(d.sent, n)
}

func (d *stubDispatcher) last() ports.Notification {
	if len(d.sent) == 0 {
		return ports.Notification{}
	}
	return d.sent[len(d.sent)-1]
}

type stubLimiter struct {
	allow bool
	err   error
	calls int
}

func (l *stubLimiter) Allow(_ context.Context, _, _ string) (bool, error) {
	l.calls++
	return l.allow, l.err
}

type regFixture struct {
	svc        *RegistrationService
	requests   *stubRequestRepo
	users      *stubUserRepo
	issuer     *TokenIssuer
	dispatcher *stubDispatcher
}

func newRegFixture(limiter ports.AttemptLimiter) *regFixture {
	requests := newStubRequestRepo()
	users := newStubUserRepo()
	issuer := NewTokenIssuer("session-secret", "refresh-secret", time.Hour, time.Hour)
	dispatcher := &stubDispatcher{}
	svc := NewRegistrationService(requests, users, issuer, dispatcher, limiter, bcrypt.MinCost, zerolog.Nop())
	return &regFixture{svc: svc, requests: requests, users: users, issuer: issuer, dispatcher: dispatcher}
}

func requestInput(email string, role domain.Role) ports.RequestRegistrationInput {
	return ports.RequestRegistrationInput{
		Email:     email,
		FirstName: "Ana",
		LastName:  "Torres",
		Role:      role,
	}
}

func TestRegistrationService_Request_Success(t *testing.T) {
	f := newRegFixture(nil)

	result, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if result.RequestID == "" {
		t.Fatalf("expected request id")
	}
	if result.Status != domain.StatusPendingVerification {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.AlreadyPending {
		t.Fatalf("fresh request reported as already pending")
	}

	stored, err := f.requests.FindByID(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("stored request missing: %v", err)
	}
	if len(stored.VerificationCode) != 6 {
		t.Fatalf("expected 6-digit code, got %q", stored.VerificationCode)
	}
	if stored.CodeExpiresAt == nil || !stored.CodeExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("code expiry not set in the future")
	}

	if len(f.dispatcher.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.dispatcher.sent))
	}
	n := f.dispatcher.last()
	if n.Kind != ports.NotifyVerification || n.Email != "ana@clinic.test" || n.Code != stored.VerificationCode {
		t.Fatalf("unexpected notification: %+v", n)
	}
}

func TestRegistrationService_Request_NormalizesEmail(t *testing.T) {
	f := newRegFixture(nil)

	result, err := f.svc.Request(context.Background(), requestInput("  Ana@Clinic.Test ", domain.RoleBiller))
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}

	stored, _ := f.requests.FindByID(context.Background(), result.RequestID)
	if stored.Email != "ana@clinic.test" {
		t.Fatalf("email not normalized: %q", stored.Email)
	}
}

func TestRegistrationService_Request_AdminRoleRejected(t *testing.T) {
	f := newRegFixture(nil)

	if _, err := f.svc.Request(context.Background(), requestInput("boss@clinic.test", domain.RoleAdmin)); !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected ErrRoleNotPermitted for admin, got %v", err)
	}
	if _, err := f.svc.Request(context.Background(), requestInput("x@clinic.test", "janitor")); !errors.Is(err, domain.ErrRoleNotPermitted) {
		t.Fatalf("expected ErrRoleNotPermitted for unknown role, got %v", err)
	}
	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("no notification should be sent on rejection")
	}
}

func TestRegistrationService_Request_ExistingUser(t *testing.T) {
	f := newRegFixture(nil)
	_, _ = f.users.Create(context.Background(), &domain.User{Email: "ana@clinic.test", Role: domain.RoleClinician, Active: true})

	if _, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician)); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegistrationService_Request_RepeatWhileUnverified(t *testing.T) {
	f := newRegFixture(nil)

	first, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	second, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.RequestID != first.RequestID {
		t.Fatalf("repeat produced a new request: %s vs %s", second.RequestID, first.RequestID)
	}
	if !second.AlreadyPending {
		t.Fatalf("repeat should report already pending")
	}

	// A fresh code is issued and matches the stored one.
	if len(f.dispatcher.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(f.dispatcher.sent))
	}
	stored, _ := f.requests.FindByID(context.Background(), first.RequestID)
	if f.dispatcher.last().Code != stored.VerificationCode {
		t.Fatalf("notified code does not match stored code")
	}
}

func TestRegistrationService_Request_RepeatWhileAwaitingApproval(t *testing.T) {
	f := newRegFixture(nil)

	first := mustAdvanceToPendingApproval(t, f, "ana@clinic.test")
	sentBefore := len(f.dispatcher.sent)

	second, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	if err != nil {
		t.Fatalf("repeat request: %v", err)
	}
	if second.RequestID != first || !second.AlreadyPending || second.Status != domain.StatusPendingApproval {
		t.Fatalf("unexpected result: %+v", second)
	}
	if len(f.dispatcher.sent) != sentBefore {
		t.Fatalf("no notification expected while awaiting approval")
	}
}

func TestRegistrationService_Request_AfterRejection(t *testing.T) {
	f := newRegFixture(nil)

	id := mustAdvanceToPendingApproval(t, f, "ana@clinic.test")
	if _, err := f.svc.Reject(context.Background(), id, "admin_1", "credentials unverifiable", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician)); !errors.Is(err, domain.ErrRequestConflict) {
		t.Fatalf("expected ErrRequestConflict after rejection, got %v", err)
	}
}

func TestRegistrationService_Verify_Success(t *testing.T) {
	f := newRegFixture(nil)

	result, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	code := f.dispatcher.last().Code

	if err := f.svc.Verify(context.Background(), "ana@clinic.test", code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	stored, _ := f.requests.FindByID(context.Background(), result.RequestID)
	if stored.Status != domain.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", stored.Status)
	}
	if stored.VerificationCode != "" || stored.CodeExpiresAt != nil {
		t.Fatalf("verification code not cleared after use")
	}
}

func TestRegistrationService_Verify_WrongCode(t *testing.T) {
	f := newRegFixture(nil)

	result, _ := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	code := f.dispatcher.last().Code

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if err := f.svc.Verify(context.Background(), "ana@clinic.test", wrong); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	stored, _ := f.requests.FindByID(context.Background(), result.RequestID)
	if stored.Status != domain.StatusPendingVerification {
		t.Fatalf("status changed on failed verify: %s", stored.Status)
	}
}

func TestRegistrationService_Verify_CodeSingleUse(t *testing.T) {
	f := newRegFixture(nil)

	_, _ = f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	code := f.dispatcher.last().Code

	if err := f.svc.Verify(context.Background(), "ana@clinic.test", code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := f.svc.Verify(context.Background(), "ana@clinic.test", code); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on replay, got %v", err)
	}
}

func TestRegistrationService_Verify_ExpiredCode(t *testing.T) {
	f := newRegFixture(nil)

	result, _ := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	code := f.dispatcher.last().Code

	// Age the code past its window.
	past := time.Now().UTC().Add(-time.Minute)
	f.requests.requests[result.RequestID].CodeExpiresAt = &past

	if err := f.svc.Verify(context.Background(), "ana@clinic.test", code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestRegistrationService_Verify_TooManyAttempts(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	f := newRegFixture(limiter)

	_, _ = f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))

	if err := f.svc.Verify(context.Background(), "ana@clinic.test", "123456"); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("limiter not consulted")
	}
}

func TestRegistrationService_Verify_LimiterFailsOpen(t *testing.T) {
	limiter := &stubLimiter{allow: false, err: errors.New("redis down")}
	f := newRegFixture(limiter)

	_, _ = f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))
	code := f.dispatcher.last().Code

	if err := f.svc.Verify(context.Background(), "ana@clinic.test", code); err != nil {
		t.Fatalf("verify should proceed when the limiter backend fails: %v", err)
	}
}

func TestRegistrationService_Approve_Success(t *testing.T) {
	f := newRegFixture(nil)

	id := mustAdvanceToPendingApproval(t, f, "ana@clinic.test")

	updated, err := f.svc.Approve(context.Background(), id, "admin_1", "verified against the state registry")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if updated.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
	if updated.ApprovedBy != "admin_1" || updated.ApprovedAt == nil {
		t.Fatalf("approval audit fields not set: %+v", updated)
	}

	stored, _ := f.requests.FindByID(context.Background(), id)
	if stored.CompletionToken == "" || stored.TokenExpiresAt == nil {
		t.Fatalf("completion token not issued")
	}

	n := f.dispatcher.last()
	if n.Kind != ports.NotifyApproval || n.Token != stored.CompletionToken {
		t.Fatalf("unexpected approval notification: %+v", n)
	}
}

func TestRegistrationService_Approve_BeforeVerification(t *testing.T) {
	f := newRegFixture(nil)

	result, _ := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician))

	updated, err := f.svc.Approve(context.Background(), result.RequestID, "admin_1", "")
	if err != nil {
		t.Fatalf("approve of unverified request: %v", err)
	}
	if updated.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", updated.Status)
	}
}

func TestRegistrationService_ApproveReject_MutuallyExclusive(t *testing.T) {
	f := newRegFixture(nil)

	id := mustAdvanceToPendingApproval(t, f, "ana@clinic.test")

	if _, err := f.svc.Approve(context.Background(), id, "admin_1", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Approve(context.Background(), id, "admin_2", ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second approve should fail with ErrInvalidState, got %v", err)
	}
	if _, err := f.svc.Reject(context.Background(), id, "admin_2", "late", ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("reject after approve should fail with ErrInvalidState, got %v", err)
	}
}

func TestRegistrationService_Reject_Success(t *testing.T) {
	f := newRegFixture(nil)

	id := mustAdvanceToPendingApproval(t, f, "ana@clinic.test")

	updated, err := f.svc.Reject(context.Background(), id, "admin_1", "license lapsed", "see ticket 8841")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if updated.Status != domain.StatusRejected || updated.RejectionReason != "license lapsed" {
		t.Fatalf("unexpected rejection result: %+v", updated)
	}

	n := f.dispatcher.last()
	if n.Kind != ports.NotifyRejection || n.Reason != "license lapsed" {
		t.Fatalf("unexpected rejection notification: %+v", n)
	}

	if _, err := f.svc.Approve(context.Background(), id, "admin_2", ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("approve after reject should fail with ErrInvalidState, got %v", err)
	}
}

func TestRegistrationService_Approve_UnknownRequest(t *testing.T) {
	f := newRegFixture(nil)

	if _, err := f.svc.Approve(context.Background(), "missing", "admin_1", ""); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestRegistrationService_Complete_Success(t *testing.T) {
	f := newRegFixture(nil)

	id, token := mustApprove(t, f, "ana@clinic.test")

	result, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", token)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.User == nil || result.User.Email != "ana@clinic.test" {
		t.Fatalf("unexpected user: %+v", result.User)
	}
	if result.User.Role != domain.RoleClinician {
		t.Fatalf("role not carried from the request: %s", result.User.Role)
	}
	if !result.User.Active {
		t.Fatalf("new account should be active")
	}
	if result.SessionToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected a first session to be issued")
	}

	claims, err := f.issuer.VerifySession(result.SessionToken)
	if err != nil {
		t.Fatalf("issued session does not verify: %v", err)
	}
	if claims.Role != domain.RoleClinician || claims.Email != "ana@clinic.test" {
		t.Fatalf("unexpected session claims: %+v", claims)
	}

	stored, err := f.users.FindByEmail(context.Background(), "ana@clinic.test")
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if stored.PasswordHash == "correct-horse-battery" {
		t.Fatalf("password stored in the clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse-battery")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	req, _ := f.requests.FindByID(context.Background(), id)
	if req.Status != domain.StatusCompleted {
		t.Fatalf("request not retired: %s", req.Status)
	}
	if req.CompletionToken != "" || req.TokenExpiresAt != nil {
		t.Fatalf("completion token not cleared")
	}
}

func TestRegistrationService_Complete_TokenSingleUse(t *testing.T) {
	f := newRegFixture(nil)

	_, token := mustApprove(t, f, "ana@clinic.test")

	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", token); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "another-password-x", token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("token replay should fail with ErrInvalidToken, got %v", err)
	}
}

func TestRegistrationService_Complete_WrongToken(t *testing.T) {
	f := newRegFixture(nil)

	mustApprove(t, f, "ana@clinic.test")

	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", "deadbeef"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", ""); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestRegistrationService_Complete_ExpiredToken(t *testing.T) {
	f := newRegFixture(nil)

	id, token := mustApprove(t, f, "ana@clinic.test")

	past := time.Now().UTC().Add(-time.Minute)
	f.requests.requests[id].TokenExpiresAt = &past

	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRegistrationService_Complete_BeforeApproval(t *testing.T) {
	f := newRegFixture(nil)

	mustAdvanceToPendingApproval(t, f, "ana@clinic.test")

	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", "whatever"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRegistrationService_Complete_AfterRejection(t *testing.T) {
	f := newRegFixture(nil)

	id := mustAdvanceToPendingApproval(t, f, "ana@clinic.test")
	if _, err := f.svc.Reject(context.Background(), id, "admin_1", "no", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", "whatever"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRegistrationService_Status_PublicView(t *testing.T) {
	f := newRegFixture(nil)

	result, _ := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleQAReviewer))

	view, err := f.svc.Status(context.Background(), "Ana@Clinic.Test")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.RequestID != result.RequestID || view.Status != domain.StatusPendingVerification {
		t.Fatalf("unexpected view: %+v", view)
	}

	if _, err := f.svc.Status(context.Background(), "ghost@clinic.test"); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestRegistrationService_List_ClampsPagination(t *testing.T) {
	f := newRegFixture(nil)

	_, _ = f.svc.Request(context.Background(), requestInput("a@clinic.test", domain.RoleClinician))
	_, _ = f.svc.Request(context.Background(), requestInput("b@clinic.test", domain.RoleBiller))

	result, err := f.svc.List(context.Background(), ports.ListRequestsFilter{Page: 0, Limit: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Page != 1 || result.Limit != 100 {
		t.Fatalf("pagination not clamped: page=%d limit=%d", result.Page, result.Limit)
	}
	if result.Total != 2 || result.TotalPages != 1 {
		t.Fatalf("unexpected totals: %+v", result)
	}

	filtered, err := f.svc.List(context.Background(), ports.ListRequestsFilter{Status: domain.StatusApproved})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if filtered.Total != 0 {
		t.Fatalf("expected no approved requests, got %d", filtered.Total)
	}
}

func TestRegistrationService_FullLifecycle(t *testing.T) {
	f := newRegFixture(nil)
	auth := NewAuthService(f.users, f.issuer, nil, zerolog.Nop())

	if _, err := f.svc.Request(context.Background(), requestInput("ana@clinic.test", domain.RoleClinician)); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := f.dispatcher.last().Code

	if err := f.svc.Verify(context.Background(), "ana@clinic.test", code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	view, _ := f.svc.Status(context.Background(), "ana@clinic.test")
	id := view.RequestID
	if _, err := f.svc.Approve(context.Background(), id, "admin_1", "ok"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	token := f.dispatcher.last().Token

	if _, err := f.svc.Complete(context.Background(), "ana@clinic.test", "correct-horse-battery", token); err != nil {
		t.Fatalf("complete: %v", err)
	}

	login, err := auth.Login(context.Background(), "ana@clinic.test", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login after registration: %v", err)
	}
	claims, err := f.issuer.VerifySession(login.SessionToken)
	if err != nil {
		t.Fatalf("session verify: %v", err)
	}
	if claims.Role != domain.RoleClinician {
		t.Fatalf("expected clinician role in claims, got %s", claims.Role)
	}
}

// mustAdvanceToPendingApproval runs request + verify and returns the request id.
func mustAdvanceToPendingApproval(t *testing.T, f *regFixture, email string) string {
	t.Helper()
	result, err := f.svc.Request(context.Background(), requestInput(email, domain.RoleClinician))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := f.svc.Verify(context.Background(), email, f.dispatcher.last().Code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return result.RequestID
}

// mustApprove advances through approval and returns the request id and the
// completion token from the approval notification.
func mustApprove(t *testing.T, f *regFixture, email string) (string, string) {
	t.Helper()
	id := mustAdvanceToPendingApproval(t, f, email)
	if _, err := f.svc.Approve(context.Background(), id, "admin_1", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return id, f.dispatcher.last().Token
}
