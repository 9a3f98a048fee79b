package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const notifyTimeout = 10 * time.Second

// OutcomeRecorder receives one observation per session operation.
type OutcomeRecorder interface {
	RecordAuthOutcome(operation, outcome string)
}

// SessionConfig holds the lifetimes and hardening switches of the session service.
type SessionConfig struct {
	RefreshTokenTTL     time.Duration
	PasswordResetTTL    time.Duration
	ResetSingleUse      bool
	RevokeFamilyOnReuse bool
}

// SessionConfigFrom extracts session settings from the auth configuration.
func SessionConfigFrom(cfg config.AuthConfig) SessionConfig {
	return SessionConfig{
		RefreshTokenTTL:     cfg.RefreshTokenTTL,
		PasswordResetTTL:    cfg.PasswordResetTTL,
		ResetSingleUse:      cfg.ResetSingleUse,
		RevokeFamilyOnReuse: cfg.RevokeFamilyOnReuse,
	}
}

// SessionDependencies encapsulates collaborators of the session service.
type SessionDependencies struct {
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	PasswordReset repository.PasswordResetRepository
	// Tx binds Users, RefreshTokens and PasswordReset to one unit of work for password rewrites.
	Tx            repository.Transactor
	Hasher        auth.PasswordHasher
	Tokens        *auth.TokenManager
	Dispatcher    events.Dispatcher
	Metrics       OutcomeRecorder
	Logger        *zap.Logger
	Clock         func() time.Time
}

// SessionService implements the credential and session lifecycle.
type SessionService struct {
	users      repository.UserRepository
	refresh    repository.RefreshTokenRepository
	resets     repository.PasswordResetRepository
	tx         repository.Transactor
	hasher     auth.PasswordHasher
	tokens     *auth.TokenManager
	dispatcher events.Dispatcher
	metrics    OutcomeRecorder
	logger     *zap.Logger
	now        func() time.Time
	cfg        SessionConfig

	// dummyHash is verified against when the email is unknown so that login costs the same either way.
	dummyHash string
	pending   sync.WaitGroup
}

// RegisterInput carries the attributes of a new account.
type RegisterInput struct {
	OrganizationID string
	Email          string
	Password       string
	Name           string
	Title          *string
	Phone          *string
	Timezone       *string
	Role           domain.Role
	Permissions    []domain.Permission
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User   *domain.UserProfile `json:"user"`
	Tokens domain.TokenPair    `json:"tokens"`
}

// NewSessionService builds the service.
func NewSessionService(cfg SessionConfig, deps SessionDependencies) (*SessionService, error) {
	if deps.Users == nil || deps.RefreshTokens == nil || deps.Tx == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("session service: users, refresh tokens, transactor, hasher and tokens are required")
	}
	if cfg.ResetSingleUse && deps.PasswordReset == nil {
		return nil, errors.New("session service: single-use reset requires a password reset repository")
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = time.Hour
	}

	s := &SessionService{
		users:      deps.Users,
		refresh:    deps.RefreshTokens,
		resets:     deps.PasswordReset,
		tx:         deps.Tx,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Clock,
		cfg:        cfg,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	dummy, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("session service: prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates an active account and announces it.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (profile *domain.UserProfile, err error) {
	defer func() { s.record("register", err) }()

	if !in.Role.Valid() {
		return nil, errorutil.NewValidationError("invalid role", map[string]any{"role": in.Role})
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateEmail.WithDetails(map[string]any{"email": in.Email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	perms, err := domain.PermissionSet(in.Permissions)
	if err != nil {
		return nil, errorutil.NewValidationError("invalid permission", map[string]any{"permissions": err.Error()})
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, errorutil.NewValidationError("invalid password", map[string]any{"password": err.Error()})
	}

	user := &domain.User{
		OrganizationID: in.OrganizationID,
		Email:          in.Email,
		PasswordHash:   hash,
		Name:           in.Name,
		Title:          in.Title,
		Phone:          in.Phone,
		Timezone:       in.Timezone,
		Role:           in.Role,
		Permissions:    perms,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail.WithDetails(map[string]any{"email": in.Email})
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("email", user.Email))
	s.notify(ctx, events.NewEvent(events.EventUserCreated, user.ID, events.UserCreatedPayload{
		Email:          user.Email,
		Name:           user.Name,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	}))
	return user.Profile(), nil
}

// Login authenticates by email and password and issues a fresh token pair.
func (s *SessionService) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	defer func() { s.record("login", err) }()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	loginAt := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, loginAt); err != nil {
		return nil, fmt.Errorf("login: stamp last login: %w", err)
	}
	user.LastLogin = &loginAt

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return &LoginResult{User: user.Profile(), Tokens: pair}, nil
}

// RefreshToken rotates a live refresh token into a brand-new pair.
func (s *SessionService) RefreshToken(ctx context.Context, value string) (pair *domain.TokenPair, err error) {
	defer func() { s.record("refresh", err) }()

	stored, err := s.refresh.GetByToken(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !stored.Live(s.now()) {
		if stored.RevokedAt != nil {
			s.onReuse(ctx, stored)
		}
		return nil, ErrRefreshTokenExpiredOrRevoked
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	// Revoke before issuing: only the caller that flips revoked_at may continue.
	revoked, err := s.refresh.RevokeByID(ctx, stored.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh: revoke presented token: %w", err)
	}
	if !revoked {
		s.onReuse(ctx, stored)
		return nil, ErrRefreshTokenExpiredOrRevoked
	}

	next, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return &next, nil
}

// Logout revokes the refresh token if it exists. Unknown tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, value string) (err error) {
	defer func() { s.record("logout", err) }()

	stored, err := s.refresh.GetByToken(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}
	if _, err := s.refresh.RevokeByID(ctx, stored.ID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// LogoutAll revokes every live refresh token of the user.
func (s *SessionService) LogoutAll(ctx context.Context, userID string) (err error) {
	defer func() { s.record("logout_all", err) }()

	n, err := s.refresh.RevokeByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("logout all: %w", err)
	}
	s.logger.Info("revoked user sessions", zap.String("user_id", userID), zap.Int64("count", n))
	return nil
}

// ChangePassword rewrites the hash after checking the current password and ends every other session.
func (s *SessionService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (err error) {
	defer func() { s.record("change_password", err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("change password: %w", err)
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrIncorrectCurrentPassword
	}
	hash, err := s.hashNewPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		// A concurrent change may have landed since the current password was checked.
		current, err := st.Users.GetByID(ctx, user.ID)
		if err != nil {
			return err
		}
		if current.PasswordHash != user.PasswordHash {
			return ErrIncorrectCurrentPassword
		}
		return rewritePassword(ctx, st, user.ID, hash)
	})
	if err != nil {
		if errors.Is(err, ErrIncorrectCurrentPassword) {
			return err
		}
		return fmt.Errorf("change password: %w", err)
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID))
	s.notify(ctx, events.NewEvent(events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{
		Email:  user.Email,
		Name:   user.Name,
		Reason: "change",
	}))
	return nil
}

// ResetPassword starts the reset flow. It reports success whether or not the email exists.
func (s *SessionService) ResetPassword(ctx context.Context, email string) (err error) {
	defer func() { s.record("reset_password", err) }()

	user, err := s.users.GetByEmail(ctx, email)
	found := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("reset password: %w", err)
	}

	// Mint an envelope on both paths so an unknown email costs the same signing work.
	subject := uuid.NewString()
	if found {
		subject = user.ID
	}
	token, jti, expiresAt, err := s.tokens.IssueResetToken(subject, s.cfg.PasswordResetTTL)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if !found {
		return nil
	}

	// Ticket persistence and delivery happen off the response path.
	event := events.NewEvent(events.EventPasswordResetRequested, user.ID, events.PasswordResetRequestedPayload{
		Email:      user.Email,
		Name:       user.Name,
		ResetToken: token,
		ExpiresAt:  expiresAt,
	})
	s.background(ctx, event.Type, func(bgCtx context.Context) {
		if s.cfg.ResetSingleUse {
			ticket := &domain.PasswordResetTicket{ID: jti, UserID: user.ID, ExpiresAt: expiresAt}
			if err := s.resets.Create(bgCtx, ticket); err != nil {
				s.logger.Error("persisting reset ticket failed", zap.String("user_id", user.ID), zap.Error(err))
				return
			}
		}
		s.logger.Info("password reset requested", zap.String("user_id", user.ID))
		s.publish(bgCtx, event)
	})
	return nil
}

// ConfirmResetPassword sets a new password using a reset envelope and ends every session of the user.
func (s *SessionService) ConfirmResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.record("confirm_reset_password", err) }()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Debug("reset token rejected", zap.Error(err))
		return ErrInvalidOrExpiredToken
	}
	if claims.Type != auth.TokenTypePasswordReset {
		return ErrWrongTokenType
	}

	hash, err := s.hashNewPassword(newPassword)
	if err != nil {
		return err
	}

	// Consuming the ticket and rewriting the password commit or roll back together.
	var user *domain.User
	err = s.tx.WithinTx(ctx, func(st repository.Stores) error {
		if s.cfg.ResetSingleUse {
			consumed, err := st.PasswordResets.MarkUsed(ctx, claims.ID)
			if err != nil {
				return err
			}
			if !consumed {
				s.logger.Warn("reset token replayed or unknown", zap.String("user_id", claims.Subject))
				return ErrInvalidOrExpiredToken
			}
		}
		found, err := st.Users.GetByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		user = found
		return rewritePassword(ctx, st, user.ID, hash)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) || errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("confirm reset: %w", err)
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	s.notify(ctx, events.NewEvent(events.EventPasswordChanged, user.ID, events.PasswordChangedPayload{
		Email:  user.Email,
		Name:   user.Name,
		Reason: "reset",
	}))
	return nil
}

// VerifyToken authorizes an access token against the current account state.
func (s *SessionService) VerifyToken(ctx context.Context, accessToken string) (profile *domain.UserProfile, err error) {
	defer func() { s.record("verify", err) }()

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		return nil, ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user.Profile(), nil
}

// ListSessions returns the live refresh tokens of the user without their values.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.SessionInfo, error) {
	tokens, err := s.refresh.ListLiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]domain.SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, domain.SessionInfo{ID: t.ID, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}
	return sessions, nil
}

// SweepExpired revokes refresh tokens whose expiry has passed.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.refresh.RevokeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}
	return n, nil
}

// Wait blocks until in-flight notifications have been handed to the dispatcher.
func (s *SessionService) Wait() {
	s.pending.Wait()
}

func (s *SessionService) issuePair(ctx context.Context, user *domain.User) (domain.TokenPair, error) {
	access, expiresIn, err := s.tokens.IssueAccessToken(user.ID, user.OrganizationID, user.Role, user.Permissions)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh := &domain.RefreshToken{
		UserID:    user.ID,
		Token:     auth.NewRefreshTokenValue(),
		ExpiresAt: s.now().Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.refresh.Create(ctx, refresh); err != nil {
		return domain.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh.Token, ExpiresIn: expiresIn}, nil
}

func (s *SessionService) hashNewPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", errorutil.NewValidationError("invalid password", map[string]any{"password": err.Error()})
	}
	return hash, nil
}

// rewritePassword ends every session and outstanding reset ticket of the user, then stores the hash.
// It must run inside a transaction so none of it survives a failure.
func rewritePassword(ctx context.Context, st repository.Stores, userID, hash string) error {
	if _, err := st.RefreshTokens.RevokeByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if st.PasswordResets != nil {
		if _, err := st.PasswordResets.InvalidateByUser(ctx, userID); err != nil {
			return fmt.Errorf("invalidate reset tickets: %w", err)
		}
	}
	if _, err := st.Users.Update(ctx, userID, domain.UserUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// onReuse handles a refresh attempt with a token that was already rotated or revoked.
func (s *SessionService) onReuse(ctx context.Context, stored *domain.RefreshToken) {
	s.logger.Warn("revoked refresh token presented",
		zap.String("user_id", stored.UserID),
		zap.String("token_id", stored.ID),
		zap.Bool("revoke_family", s.cfg.RevokeFamilyOnReuse))
	if s.metrics != nil {
		s.metrics.RecordAuthOutcome("refresh_reuse", "detected")
	}
	if !s.cfg.RevokeFamilyOnReuse {
		return
	}
	n, err := s.refresh.RevokeByUser(ctx, stored.UserID)
	if err != nil {
		s.logger.Error("revoking token family failed", zap.String("user_id", stored.UserID), zap.Error(err))
		return
	}
	s.logger.Warn("revoked token family", zap.String("user_id", stored.UserID), zap.Int64("count", n))
}

// notify hands the event to the dispatcher in the background. Failures are logged only.
func (s *SessionService) notify(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	s.background(ctx, event.Type, func(bgCtx context.Context) {
		s.publish(bgCtx, event)
	})
}

// background runs fn detached from the request, bounded by notifyTimeout. Wait blocks on it.
func (s *SessionService) background(ctx context.Context, eventType events.EventType, fn func(context.Context)) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background notification work panicked",
					zap.String("event_type", string(eventType)), zap.Any("panic", r))
			}
		}()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		fn(bgCtx)
	}()
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

func (s *SessionService) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordAuthOutcome(operation, strings.ToLower(outcome(err)))
}
