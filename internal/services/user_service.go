package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"quota-platform/internal/db"
	"quota-platform/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type UserService struct {
	store  *db.Store
	logger zerolog.Logger
}

func NewUserService(store *db.Store, logger zerolog.Logger) *UserService {
	return &UserService{
		store:  store,
		logger: logger,
	}
}

// Register creates a pending agent or child account. Children must name an
// existing agent as parent.
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, validationError("username, email, and password are required")
	}
	if req.Role == "" {
		req.Role = models.RoleAgent
	}
	if req.Role != models.RoleAgent && req.Role != models.RoleChild {
		return nil, validationError("role must be agent or child")
	}
	if req.Role == models.RoleChild && req.ParentID == nil {
		return nil, validationError("child accounts require a parent")
	}
	if req.Role == models.RoleAgent {
		req.ParentID = nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		Role:         req.Role,
		Status:       models.StatusPending,
		ParentID:     req.ParentID,
	}

	err = s.store.WithTx(ctx, func(tx *db.Tx) error {
		exists, err := tx.UserExists(ctx, req.Email, req.Username)
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if exists {
			return validationError("user with this email or username already exists")
		}

		if user.ParentID != nil {
			parent, err := tx.GetUser(ctx, *user.ParentID)
			if err != nil {
				return lookupError(err, "parent", *user.ParentID)
			}
			if parent.Role != models.RoleAgent {
				return validationError("parent must be an agent")
			}
		}

		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", user.ID).Str("email", user.Email).Str("role", string(user.Role)).Msg("User registered successfully")
	return user, nil
}

// EnsureAdmin creates an active superadmin with the given credentials unless
// the email is already registered.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	created := false
	err = s.store.WithTx(ctx, func(tx *db.Tx) error {
		exists, err := tx.UserExists(ctx, email, email)
		if err != nil || exists {
			return err
		}
		created = true
		return tx.InsertUser(ctx, &models.User{
			Username:     email,
			Email:        email,
			PasswordHash: string(hashedPassword),
			Role:         models.RoleSuperadmin,
			Status:       models.StatusActive,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	if created {
		s.logger.Info().Str("email", email).Msg("Bootstrap administrator created")
	}
	return nil
}

// Authenticate checks credentials. Only active accounts may sign in.
func (s *UserService) Authenticate(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, validationError("email and password are required")
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		user, err = tx.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(req.Email)))
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Error querying user")
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn().Str("email", req.Email).Msg("Failed authentication attempt")
		return nil, ErrInvalidCredentials
	}

	if user.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: account is %s", ErrForbidden, user.Status)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("User authenticated successfully")
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	var user *models.User
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		if err != nil {
			return lookupError(err, "user", userID)
		}
		return nil
	})
	return user, err
}

func (s *UserService) ListChildren(ctx context.Context, parentID int64) ([]*models.User, error) {
	var children []*models.User
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		children, err = tx.ListChildren(ctx, parentID)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("parent_id", parentID).Msg("Error fetching children")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return children, nil
}

// Activate moves a pending (or disabled) account to active.
func (s *UserService) Activate(ctx context.Context, userID, adminID int64) (*models.User, error) {
	return s.setStatus(ctx, userID, adminID, models.StatusActive)
}

func (s *UserService) Disable(ctx context.Context, userID, adminID int64) (*models.User, error) {
	return s.setStatus(ctx, userID, adminID, models.StatusDisabled)
}

func (s *UserService) setStatus(ctx context.Context, userID, adminID int64, to models.UserStatus) (*models.User, error) {
	var user *models.User
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := requireSuperadmin(ctx, tx, adminID); err != nil {
			return err
		}
		if userID == adminID {
			return validationError("administrators cannot change their own status")
		}

		var err error
		user, err = tx.GetUser(ctx, userID)
		if err != nil {
			return lookupError(err, "user", userID)
		}
		if user.Status == to {
			return invalidState("user %d is already %s", userID, to)
		}

		ok, err := tx.SetUserStatus(ctx, userID, user.Status, to)
		if err != nil {
			return fmt.Errorf("failed to update user status: %w", err)
		}
		if !ok {
			return conflict("user %d status changed concurrently", userID)
		}
		user.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Str("status", string(to)).Int64("admin_id", adminID).Msg("User status updated")
	return user, nil
}

// ResetDailyPurchases zeroes every user's daily purchase counter. Safe to run
// more than once per day.
func (s *UserService) ResetDailyPurchases(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		n, err = tx.ResetTodayPurchased(ctx)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Error resetting daily purchases")
		return 0, fmt.Errorf("failed to reset daily purchases: %w", err)
	}

	s.logger.Info().Int64("users_reset", n).Msg("Daily purchase counters reset")
	return n, nil
}
