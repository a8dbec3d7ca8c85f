package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"pocusai/internal/config"
	"pocusai/internal/models"
	"pocusai/internal/storage"
)

const (
	adminOccupation   = "Administrator"
	adminIntroduction = "System Admin"
	defaultAdminEmail = "admin@pocus-ai.com"
)

// Service owns user accounts and the signed-in identity of the local profile.
// It does not enforce who may call the administrative operations.
type Service struct {
	records *storage.Records
	admin   config.AdminConfig
	cost    int
	now     func() time.Time

	mu sync.Mutex
	// signedIn is the id of the user signed in by this process, if any.
	signedIn string
}

// NewService constructs the credential store over records. A non-positive cost
// selects bcrypt.DefaultCost.
func NewService(records *storage.Records, admin config.AdminConfig, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if admin.Email == "" {
		admin.Email = defaultAdminEmail
	}
	s := &Service{
		records: records,
		admin:   admin,
		cost:    cost,
		now:     time.Now,
	}
	s.registerMigrations()
	return s
}

// Bootstrap provisions the configured administrator when no account holds its username.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	if findByUsername(users, s.admin.Username) != nil {
		// rewrite so legacy values end up in the current envelope
		return s.saveUsers(ctx, users)
	}
	admin, err := s.newAdmin()
	if err != nil {
		return err
	}
	log.WithField("username", admin.Username).Info("auth: provisioning administrator account")
	return s.saveUsers(ctx, append(users, admin))
}

// Signup registers a pending account and returns the confirmation message.
func (s *Service) Signup(ctx context.Context, username, email, secret string, profile models.Profile) (string, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" || secret == "" {
		return "", ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Username == username {
			return "", ErrDuplicateUsername
		}
	}
	for _, u := range users {
		if u.Email == email {
			return "", ErrDuplicateEmail
		}
	}
	hash, err := s.hash(secret)
	if err != nil {
		return "", err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Status:       models.StatusPending,
		CreatedAt:    s.now().UTC(),
		Profile:      profile,
	}
	if err := s.saveUsers(ctx, append(users, user)); err != nil {
		return "", err
	}
	return SignupMessage, nil
}

// Login authenticates an approved account, updates the remembered flags and
// snapshots the identity.
func (s *Service) Login(ctx context.Context, username, secret string, rememberUsername, staySignedIn bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	user := findByUsername(users, username)
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)) != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != models.StatusApproved {
		return nil, ErrPendingApproval
	}

	if rememberUsername {
		err = s.records.Save(ctx, storage.KeySavedUsername, user.Username)
	} else {
		err = s.records.Delete(ctx, storage.KeySavedUsername)
	}
	if err != nil {
		return nil, err
	}
	if staySignedIn {
		err = s.records.Save(ctx, storage.KeyStayLoggedIn, true)
	} else {
		err = s.records.Delete(ctx, storage.KeyStayLoggedIn)
	}
	if err != nil {
		return nil, err
	}

	snapshot := user.Public()
	if err := s.records.Save(ctx, storage.KeyCurrentUser, snapshot); err != nil {
		return nil, err
	}
	s.signedIn = user.ID
	return snapshot, nil
}

// Logout clears the identity snapshot and the stay-signed-in flag. The
// remembered username is kept.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signedIn = ""
	if err := s.records.Delete(ctx, storage.KeyCurrentUser); err != nil {
		return err
	}
	return s.records.Delete(ctx, storage.KeyStayLoggedIn)
}

// CurrentIdentity returns the signed-in user, or nil when nobody is signed in
// or the account has since been removed or unapproved.
func (s *Service) CurrentIdentity(ctx context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snapshot models.User
	ok, err := s.records.Load(ctx, storage.KeyCurrentUser, &snapshot)
	if err != nil || !ok {
		return nil, err
	}
	stay, err := s.staySignedIn(ctx)
	if err != nil {
		return nil, err
	}
	if !stay && s.signedIn != snapshot.ID {
		return nil, nil
	}

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	user := findByID(users, snapshot.ID)
	if user == nil || user.Status != models.StatusApproved {
		return nil, nil
	}
	return user.Public(), nil
}

// SavedUsername returns the remembered username or "".
func (s *Service) SavedUsername(ctx context.Context) (string, error) {
	var name string
	if _, err := s.records.Load(ctx, storage.KeySavedUsername, &name); err != nil {
		return "", err
	}
	return name, nil
}

// StaySignedIn reports whether the stay-signed-in flag is set.
func (s *Service) StaySignedIn(ctx context.Context) (bool, error) {
	return s.staySignedIn(ctx)
}

func (s *Service) staySignedIn(ctx context.Context) (bool, error) {
	var stay bool
	if _, err := s.records.Load(ctx, storage.KeyStayLoggedIn, &stay); err != nil {
		return false, err
	}
	return stay, nil
}

// ListUsers returns every account without credential hashes, in stored order.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// GetUser returns a single account by id.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	user := findByID(users, id)
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user.Public(), nil
}

// SetStatus changes the approval status of an account.
func (s *Service) SetStatus(ctx context.Context, id string, status models.UserStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	user := findByID(users, id)
	if user == nil {
		return ErrUserNotFound
	}
	user.Status = status
	users, err = s.ensureAdmin(users)
	if err != nil {
		return err
	}
	return s.saveUsers(ctx, users)
}

// DeleteUser removes an account. Sessions are not user-keyed and are left untouched.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	kept := users[:0]
	found := false
	for _, u := range users {
		if u.ID == id {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		return ErrUserNotFound
	}
	kept, err = s.ensureAdmin(kept)
	if err != nil {
		return err
	}
	return s.saveUsers(ctx, kept)
}

// IsAdministrator re-reads identity from the store and reports whether it is an
// approved administrator.
func (s *Service) IsAdministrator(ctx context.Context, identity *models.User) (bool, error) {
	if identity == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return false, err
	}
	user := findByID(users, identity.ID)
	return user != nil && user.IsAdmin && user.Status == models.StatusApproved, nil
}

// ensureAdmin keeps at least one approved administrator in users, restoring or
// re-creating the configured account when the last one was removed.
func (s *Service) ensureAdmin(users []*models.User) ([]*models.User, error) {
	for _, u := range users {
		if u.IsAdmin && u.Status == models.StatusApproved {
			return users, nil
		}
	}
	if u := findByUsername(users, s.admin.Username); u != nil {
		log.WithField("username", u.Username).Warn("auth: restoring last administrator account")
		u.IsAdmin = true
		u.Status = models.StatusApproved
		return users, nil
	}
	admin, err := s.newAdmin()
	if err != nil {
		return nil, err
	}
	log.WithField("username", admin.Username).Warn("auth: re-provisioning administrator account")
	return append(users, admin), nil
}

func (s *Service) newAdmin() (*models.User, error) {
	if s.admin.Username == "" || s.admin.Password == "" {
		return nil, errors.New("administrator credentials not configured")
	}
	hash, err := s.hash(s.admin.Password)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:           uuid.NewString(),
		Username:     s.admin.Username,
		Email:        s.admin.Email,
		PasswordHash: hash,
		Status:       models.StatusApproved,
		IsAdmin:      true,
		CreatedAt:    s.now().UTC(),
		Profile: models.Profile{
			Occupation:   adminOccupation,
			Introduction: adminIntroduction,
		},
	}, nil
}

func (s *Service) hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) loadUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if _, err := s.records.Load(ctx, storage.KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Service) saveUsers(ctx context.Context, users []*models.User) error {
	if users == nil {
		users = []*models.User{}
	}
	return s.records.Save(ctx, storage.KeyUsers, users)
}

func findByUsername(users []*models.User, username string) *models.User {
	for _, u := range users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func findByID(users []*models.User, id string) *models.User {
	for _, u := range users {
		if u.ID == id {
			return u
		}
	}
	return nil
}
