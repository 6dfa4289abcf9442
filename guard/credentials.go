package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Credential store errors
var (
	ErrUserExists  = errors.New("user already exists")
	ErrUnknownUser = errors.New("unknown user")
)

// UserRecord is the facade's view of a principal. Password material never
// appears here; verification yields only a boolean.
type UserRecord struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// CredentialStore is the external collaborator that verifies passwords and
// resolves users. Implementations are expected to hash and persist
// credentials; this subsystem only consumes the boolean outcome.
type CredentialStore interface {
	// Verify reports whether password is correct for username. An unknown
	// user reports false without error, keeping the result uniform.
	Verify(ctx context.Context, username, password string) (bool, error)

	// User resolves a username to its record, or nil when absent.
	User(ctx context.Context, username string) (*UserRecord, error)
}

// PasswordChanger is optionally implemented by credential stores that
// support in-place password updates. The guard's ChangePassword requires it.
type PasswordChanger interface {
	SetPassword(ctx context.Context, username, password string) error
}

// memoryUser pairs a bcrypt hash with its record.
type memoryUser struct {
	passwordHash []byte
	record       UserRecord
}

// MemoryCredentialStore is an in-memory CredentialStore with bcrypt-hashed
// passwords. Suitable for development, testing, and single-instance
// deployments; production systems plug in their own store.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	users map[string]memoryUser
}

// Compile-time interface checks
var (
	_ CredentialStore = (*MemoryCredentialStore)(nil)
	_ PasswordChanger = (*MemoryCredentialStore)(nil)
)

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		users: make(map[string]memoryUser),
	}
}

// Register adds a user with a bcrypt-hashed password.
func (s *MemoryCredentialStore) Register(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = memoryUser{
		passwordHash: hash,
		record: UserRecord{
			Username:  username,
			CreatedAt: time.Now().UTC(),
		},
	}
	return nil
}

// Verify reports whether password matches the stored hash for username.
func (s *MemoryCredentialStore) Verify(_ context.Context, username, password string) (bool, error) {
	s.mu.RLock()
	user, exists := s.users[username]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)) == nil, nil
}

// User resolves username to its record, or nil when absent.
func (s *MemoryCredentialStore) User(_ context.Context, username string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return nil, nil
	}
	record := user.record
	return &record, nil
}

// SetPassword replaces the stored hash for username.
func (s *MemoryCredentialStore) SetPassword(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return ErrUnknownUser
	}
	user.passwordHash = hash
	s.users[username] = user
	return nil
}
