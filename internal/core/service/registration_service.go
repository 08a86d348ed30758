package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

const (
	codeTTL  = 24 * time.Hour
	tokenTTL = 12 * time.Hour

	limiterScopeVerify = "verify"

	maxListLimit     = 100
	defaultListLimit = 20
)

// RegistrationService is the workflow engine driving a registration request
// from self-service submission to account creation. Every transition is a
// single conditional write against the store; notifications ride on committed
// transitions and never roll them back.
type RegistrationService struct {
	requests   ports.RegistrationRepository
	users      ports.UserRepository
	issuer     ports.TokenIssuer
	dispatcher ports.NotificationDispatcher
	limiter    ports.AttemptLimiter
	bcryptCost int
	log        zerolog.Logger
}

func NewRegistrationService(
	requests ports.RegistrationRepository,
	users ports.UserRepository,
	issuer ports.TokenIssuer,
	dispatcher ports.NotificationDispatcher,
	limiter ports.AttemptLimiter,
	bcryptCost int,
	log zerolog.Logger,
) *RegistrationService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &RegistrationService{
		requests:   requests,
		users:      users,
		issuer:     issuer,
		dispatcher: dispatcher,
		limiter:    limiter,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

// Request opens (or refreshes) a registration request. Repeated calls while a
// request is pending return the same in-flight request instead of creating
// churn; a fresh verification code is issued only while the email is still
// unverified.
func (s *RegistrationService) Request(ctx context.Context, in ports.RequestRegistrationInput) (*ports.RequestRegistrationResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if !domain.SelfServiceRole(in.Role) {
		// Covers both unknown roles and the deliberate admin exclusion.
		return nil, domain.ErrRoleNotPermitted
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	existing, err := s.requests.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return s.rerequest(ctx, existing)
	case errors.Is(err, domain.ErrRequestNotFound):
		// fall through to create
	default:
		return nil, err
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	codeExp := now.Add(codeTTL)
	req := &domain.RegistrationRequest{
		ID:               uuid.NewString(),
		Email:            email,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Role:             in.Role,
		Status:           domain.StatusPendingVerification,
		VerificationCode: code,
		CodeExpiresAt:    &codeExp,
		RequestedAt:      now,
		UpdatedAt:        now,
	}

	created, err := s.requests.Insert(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrRequestConflict) {
			// Lost a race with a concurrent identical request: adopt the winner.
			if winner, ferr := s.requests.FindByEmail(ctx, email); ferr == nil {
				return s.rerequest(ctx, winner)
			}
			return nil, domain.ErrRequestConflict
		}
		return nil, err
	}

	s.notify(ports.Notification{
		Kind:      ports.NotifyVerification,
		Email:     created.Email,
		FirstName: created.FirstName,
		Code:      code,
	})

	s.log.Info().Str("request_id", created.ID).Str("role", string(created.Role)).Msg("registration requested")

	return &ports.RequestRegistrationResult{RequestID: created.ID, Status: created.Status}, nil
}

// rerequest resolves a Request call that found an existing request for the email.
func (s *RegistrationService) rerequest(ctx context.Context, existing *domain.RegistrationRequest) (*ports.RequestRegistrationResult, error) {
	switch existing.Status {
	case domain.StatusPendingVerification:
		code, err := generateVerificationCode()
		if err != nil {
			return nil, err
		}
		codeExp := time.Now().UTC().Add(codeTTL)
		updated, err := s.requests.Transition(ctx, existing.ID,
			[]domain.RegistrationStatus{domain.StatusPendingVerification},
			ports.RequestPatch{VerificationCode: &code, CodeExpiresAt: &codeExp},
		)
		if err != nil {
			// The request advanced underneath us; report the in-flight state.
			if errors.Is(err, domain.ErrInvalidState) {
				return &ports.RequestRegistrationResult{RequestID: existing.ID, Status: existing.Status, AlreadyPending: true}, nil
			}
			return nil, err
		}
		s.notify(ports.Notification{
			Kind:      ports.NotifyVerification,
			Email:     updated.Email,
			FirstName: updated.FirstName,
			Code:      code,
		})
		return &ports.RequestRegistrationResult{RequestID: updated.ID, Status: updated.Status, AlreadyPending: true}, nil

	case domain.StatusPendingApproval:
		// Verified and waiting on an admin; nothing to refresh.
		return &ports.RequestRegistrationResult{RequestID: existing.ID, Status: existing.Status, AlreadyPending: true}, nil

	default:
		// approved, rejected, completed: the lifecycle has moved past
		// self-service; a new request cannot bypass it.
		return nil, domain.ErrRequestConflict
	}
}

// Verify proves control of the email address. On success the code is cleared
// and the request moves to pending_approval; a second verify with the same
// code therefore fails with ErrInvalidState.
func (s *RegistrationService) Verify(ctx context.Context, email, code string) error {
	email = domain.NormalizeEmail(email)

	if !s.allowAttempt(ctx, limiterScopeVerify, email) {
		return domain.ErrTooManyAttempts
	}

	req, err := s.requests.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if req.Status != domain.StatusPendingVerification {
		return domain.ErrInvalidState
	}
	if req.VerificationCode == "" ||
		subtle.ConstantTimeCompare([]byte(req.VerificationCode), []byte(code)) != 1 {
		return domain.ErrInvalidCode
	}
	if req.CodeExpiresAt == nil || time.Now().UTC().After(*req.CodeExpiresAt) {
		return domain.ErrCodeExpired
	}

	empty := ""
	_, err = s.requests.Transition(ctx, req.ID,
		[]domain.RegistrationStatus{domain.StatusPendingVerification},
		ports.RequestPatch{
			Status:           statusPtr(domain.StatusPendingApproval),
			VerificationCode: &empty,
			CodeExpiresAt:    &time.Time{},
		},
	)
	if err != nil {
		return err
	}

	s.log.Info().Str("request_id", req.ID).Msg("registration email verified")
	return nil
}

// Approve issues a single-use completion token and notifies the applicant.
// The whole guard-and-update runs as one conditional write: of two concurrent
// admin decisions, exactly one wins and the other observes ErrInvalidState.
func (s *RegistrationService) Approve(ctx context.Context, requestID, adminID, notes string) (*domain.RegistrationRequest, error) {
	token, err := generateCompletionToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	tokenExp := now.Add(tokenTTL)

	updated, err := s.requests.Transition(ctx, requestID,
		[]domain.RegistrationStatus{domain.StatusPendingVerification, domain.StatusPendingApproval},
		ports.RequestPatch{
			Status:          statusPtr(domain.StatusApproved),
			CompletionToken: &token,
			TokenExpiresAt:  &tokenExp,
			ApprovedBy:      &adminID,
			ApprovedAt:      &now,
			AdminNotes:      &notes,
		},
	)
	if err != nil {
		return nil, err
	}

	s.notify(ports.Notification{
		Kind:      ports.NotifyApproval,
		Email:     updated.Email,
		FirstName: updated.FirstName,
		Token:     token,
	})

	s.log.Info().Str("request_id", requestID).Str("admin_id", adminID).Msg("registration approved")
	return updated, nil
}

// Reject is the mutually exclusive counterpart to Approve.
func (s *RegistrationService) Reject(ctx context.Context, requestID, adminID, reason, notes string) (*domain.RegistrationRequest, error) {
	now := time.Now().UTC()

	updated, err := s.requests.Transition(ctx, requestID,
		[]domain.RegistrationStatus{domain.StatusPendingVerification, domain.StatusPendingApproval},
		ports.RequestPatch{
			Status:          statusPtr(domain.StatusRejected),
			ApprovedBy:      &adminID,
			ApprovedAt:      &now,
			AdminNotes:      &notes,
			RejectionReason: &reason,
		},
	)
	if err != nil {
		return nil, err
	}

	s.notify(ports.Notification{
		Kind:      ports.NotifyRejection,
		Email:     updated.Email,
		FirstName: updated.FirstName,
		Reason:    reason,
	})

	s.log.Info().Str("request_id", requestID).Str("admin_id", adminID).Msg("registration rejected")
	return updated, nil
}

// Complete consumes the completion token, creates the account, and signs the
// new user in. The user insert's unique email index is the race guard: of two
// concurrent completes, one creates the account and the other gets
// ErrUserExists.
func (s *RegistrationService) Complete(ctx context.Context, email, password, token string) (*ports.CompleteRegistrationResult, error) {
	email = domain.NormalizeEmail(email)

	req, err := s.requests.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case domain.StatusApproved:
		// proceed
	case domain.StatusCompleted:
		// The token was consumed when the account was created; a replay is a
		// token failure, not a lifecycle one.
		return nil, domain.ErrInvalidToken
	default:
		return nil, domain.ErrInvalidState
	}

	if token == "" || req.CompletionToken == "" ||
		subtle.ConstantTimeCompare([]byte(req.CompletionToken), []byte(token)) != 1 {
		return nil, domain.ErrInvalidToken
	}
	if req.TokenExpiresAt == nil || time.Now().UTC().After(*req.TokenExpiresAt) {
		return nil, domain.ErrTokenExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user, err := s.users.Create(ctx, &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	empty := ""
	if _, err := s.requests.Transition(ctx, req.ID,
		[]domain.RegistrationStatus{domain.StatusApproved},
		ports.RequestPatch{
			Status:          statusPtr(domain.StatusCompleted),
			CompletionToken: &empty,
			TokenExpiresAt:  &time.Time{},
		},
	); err != nil {
		// The account exists; the request record is only audit trail now.
		s.log.Warn().Err(err).Str("request_id", req.ID).Msg("failed to retire completed request")
	}

	sessionToken, sessionExp, err := s.issuer.IssueSession(user)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := s.issuer.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("request_id", req.ID).Str("user_id", user.ID).Str("role", string(user.Role)).Msg("registration completed")

	return &ports.CompleteRegistrationResult{
		User:             user,
		SessionToken:     sessionToken,
		SessionExpiresAt: sessionExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Status returns the public lifecycle view for an email.
func (s *RegistrationService) Status(ctx context.Context, email string) (*ports.RegistrationStatusView, error) {
	req, err := s.requests.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return &ports.RegistrationStatusView{
		RequestID:   req.ID,
		Status:      req.Status,
		RequestedAt: req.RequestedAt,
		ApprovedAt:  req.ApprovedAt,
		AdminNotes:  req.AdminNotes,
	}, nil
}

// List returns a page of requests for the admin review queue.
func (s *RegistrationService) List(ctx context.Context, filter ports.ListRequestsFilter) (*ports.ListRequestsResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return &ports.ListRequestsResult{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

func (s *RegistrationService) notify(n ports.Notification) {
	if s.dispatcher != nil {
		s.dispatcher.Enqueue(n)
	}
}

func (s *RegistrationService) allowAttempt(ctx context.Context, scope, key string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, scope, key)
	if err != nil {
		s.log.Warn().Err(err).Str("scope", scope).Msg("attempt limiter unavailable, allowing")
		return true
	}
	return ok
}

// generateVerificationCode returns a 6-digit numeric code with leading zeros
// preserved.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// generateCompletionToken returns 32 random bytes hex-encoded.
func generateCompletionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate completion token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func statusPtr(s domain.RegistrationStatus) *domain.RegistrationStatus { return &s }
