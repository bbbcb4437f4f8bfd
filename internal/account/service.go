// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("taskcrusher/account")

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Credentials *CredentialStore
	Tokens      *SessionTokenManager
	Deletion    *CascadeDeletionCoordinator
	Avatars     *AvatarPipeline
	Notifier    Notifier
	Logger      *slog.Logger
}

// Service is the entry point a request handler calls. Every user-bearing
// result is a PublicUser.
type Service struct {
	credentials *CredentialStore
	tokens      *SessionTokenManager
	deletion    *CascadeDeletionCoordinator
	avatars     *AvatarPipeline
	notifier    Notifier
	logger      *slog.Logger
}

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // G117: request field, never persisted
	Age      int    `json:"age"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  PublicUser `json:"user"`
	Token string     `json:"token"`
}

// NewService creates a Service. The notifier and logger are optional.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Credentials == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Errorf("token manager is required")
	}
	if cfg.Deletion == nil {
		return nil, oops.Errorf("deletion coordinator is required")
	}
	if cfg.Avatars == nil {
		return nil, oops.Errorf("avatar pipeline is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		credentials: cfg.Credentials,
		tokens:      cfg.Tokens,
		deletion:    cfg.Deletion,
		avatars:     cfg.Avatars,
		notifier:    cfg.Notifier,
		logger:      logger,
	}, nil
}

// Register creates an account holding its first session token, then queues
// the welcome notification. The user and the token are written together, so
// a failed registration leaves nothing behind.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (result AuthResult, err error) {
	ctx, done := s.observe(ctx, "register")
	defer func() { done(err) }()

	var token string
	user, err := s.credentials.register(ctx, req.Name, req.Email, req.Password, req.Age, func(u *User) error {
		var err error
		token, err = s.tokens.attach(u)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}

	notifyWelcome(ctx, s.notifier, user.Public())
	s.logger.InfoContext(ctx, "account registered", slog.String("user_id", user.ID.String()))
	return AuthResult{User: user.Public(), Token: token}, nil
}

// Login checks credentials and issues a new session token.
func (s *Service) Login(ctx context.Context, email, password string) (result AuthResult, err error) {
	ctx, done := s.observe(ctx, "login")
	defer func() { done(err) }()

	user, err := s.credentials.FindByCredentials(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user.Public(), Token: token}, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (pub PublicUser, err error) {
	ctx, done := s.observe(ctx, "authenticate")
	defer func() { done(err) }()

	user, err := s.tokens.Authenticate(ctx, token)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

// Logout revokes the token the caller authenticated with.
func (s *Service) Logout(ctx context.Context, userID ulid.ULID, token string) (err error) {
	ctx, done := s.observe(ctx, "logout", attribute.String("user.id", userID.String()))
	defer func() { done(err) }()

	return s.tokens.Revoke(ctx, userID, token)
}

// LogoutAll revokes every token of the user.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, done := s.observe(ctx, "logout_all", attribute.String("user.id", userID.String()))
	defer func() { done(err) }()

	return s.tokens.RevokeAll(ctx, userID)
}

// Profile returns the user's public view.
func (s *Service) Profile(ctx context.Context, userID ulid.ULID) (pub PublicUser, err error) {
	ctx, done := s.observe(ctx, "profile", attribute.String("user.id", userID.String()))
	defer func() { done(err) }()

	user, err := s.credentials.Get(ctx, userID)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

// UpdateProfile applies allow-listed profile changes.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, changes ProfileChanges) (pub PublicUser, err error) {
	ctx, done := s.observe(ctx, "update_profile",
		attribute.String("user.id", userID.String()),
		attribute.StringSlice("user.fields", changes.Fields()))
	defer func() { done(err) }()

	user, err := s.credentials.UpdateProfile(ctx, userID, changes)
	if err != nil {
		return PublicUser{}, err
	}
	return user.Public(), nil
}

// DeleteAccount removes the user and every task the user owns.
func (s *Service) DeleteAccount(ctx context.Context, userID ulid.ULID) (pub PublicUser, err error) {
	ctx, done := s.observe(ctx, "delete_account", attribute.String("user.id", userID.String()))
	defer func() { done(err) }()

	return s.deletion.DeleteAccount(ctx, userID)
}

// UploadAvatar normalizes and stores an avatar image.
func (s *Service) UploadAvatar(ctx context.Context, userID ulid.ULID, raw []byte, filename string) (err error) {
	ctx, done := s.observe(ctx, "upload_avatar",
		attribute.String("user.id", userID.String()),
		attribute.Int("avatar.bytes", len(raw)))
	defer func() { done(err) }()

	return s.avatars.Upload(ctx, userID, raw, filename)
}

// ClearAvatar removes the user's avatar.
func (s *Service) ClearAvatar(ctx context.Context, userID ulid.ULID) (err error) {
	ctx, done := s.observe(ctx, "clear_avatar", attribute.String("user.id", userID.String()))
	defer func() { done(err) }()

	return s.avatars.Clear(ctx, userID)
}

// FetchAvatar returns any user's stored avatar PNG.
func (s *Service) FetchAvatar(ctx context.Context, userID ulid.ULID) (avatar []byte, err error) {
	ctx, done := s.observe(ctx, "fetch_avatar", attribute.String("user.id", userID.String()))
	defer func() { done(err) }()

	return s.avatars.Fetch(ctx, userID)
}

// observe starts a span for operation and returns a completion func that
// records the error on the span and in the operation metrics.
func (s *Service) observe(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "account."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			kind := KindOf(err)
			span.SetAttributes(attribute.String("error.kind", string(kind)))
			if kind == KindInternal {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		RecordOperation(operation, err, time.Since(start))
	}
}
