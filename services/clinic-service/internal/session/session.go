// Package session signs users up, logs them in and tracks the resulting
// sessions. A session is a stored record plus an HS256 token whose jti is
// the record id; deleting the record revokes the token.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/auth"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLen = 6
	DefaultTTL     = 12 * time.Hour
	issuer         = "clinic-service"
)

var (
	ErrInvalidInput       = errors.New("invalid signup")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSession          = errors.New("no active session")
	ErrUnavailable        = errors.New("user store unavailable")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// InputError names the signup field that was rejected. It matches
// ErrInvalidInput under errors.Is.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Config struct {
	Secret     string
	TTL        time.Duration
	BcryptCost int
	Now        func() time.Time
}

type Manager struct {
	users  storage.UserStore
	store  Store
	logger *slog.Logger
	cfg    Config
}

func NewManager(users storage.UserStore, store Store, logger *slog.Logger, cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{users: users, store: store, logger: logger, cfg: cfg}, nil
}

// Signup registers a user and logs them in.
func (m *Manager) Signup(ctx context.Context, name, email, password string) (Session, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	switch {
	case name == "":
		return Session{}, "", &InputError{Field: "name", Reason: "is required"}
	case email == "":
		return Session{}, "", &InputError{Field: "email", Reason: "is required"}
	case !emailPattern.MatchString(email):
		return Session{}, "", &InputError{Field: "email", Reason: "is not a valid address"}
	case len(password) < MinPasswordLen:
		return Session{}, "", &InputError{Field: "password", Reason: fmt.Sprintf("must have at least %d characters", MinPasswordLen)}
	}

	_, err := m.users.FindUserByEmail(ctx, email)
	if err == nil {
		return Session{}, "", ErrEmailTaken
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Session{}, "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cfg.BcryptCost)
	if err != nil {
		return Session{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    m.cfg.Now().UTC(),
	}
	if err := m.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return Session{}, "", ErrEmailTaken
		}
		return Session{}, "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.logger.Info("user signed up", "user_id", user.ID)
	return m.start(ctx, user)
}

func (m *Manager) Login(ctx context.Context, email, password string) (Session, string, error) {
	user, err := m.users.FindUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, "", ErrInvalidCredentials
	}
	return m.start(ctx, user)
}

// Current resolves a bearer token to its live session.
func (m *Manager) Current(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseAndVerifyHS256(token, m.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	sess, err := m.store.Load(ctx, claims.SessionID())
	if err != nil {
		return Session{}, err
	}
	if sess.UserID != claims.UserID {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Logout deletes the session behind token. Logging out twice succeeds.
func (m *Manager) Logout(ctx context.Context, token string) error {
	claims, err := auth.ParseAndVerifyHS256(token, m.cfg.Secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if err := m.store.Delete(ctx, claims.SessionID()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.logger.Info("user logged out", "user_id", claims.UserID)
	return nil
}

func (m *Manager) start(ctx context.Context, user model.User) (Session, string, error) {
	now := m.cfg.Now()
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		IssuedAt:  now.UTC(),
		ExpiresAt: now.Add(m.cfg.TTL).UTC(),
	}
	token, err := auth.SignHS256(auth.NewClaims(user.ID, user.Email, user.Name, sess.ID, issuer, now, m.cfg.TTL), m.cfg.Secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign token: %w", err)
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return Session{}, "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return sess, token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type ctxKey struct{}

func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
