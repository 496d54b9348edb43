package db

import (
	"fmt"
	"time"

	"devopsdb/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost matches the $2a$10$ hashes the application expects.
const BcryptCost = 10

// DefaultIndexes returns the index set of the users collection.
func DefaultIndexes() []model.IndexSpec {
	return []model.IndexSpec{
		{Name: "username_1", Field: "username", Order: model.Ascending, Unique: true},
		{Name: "email_1", Field: "email", Order: model.Ascending, Unique: true},
		{Name: "createdAt_1", Field: "createdAt", Order: model.Ascending},
		{Name: "active_1", Field: "active", Order: model.Ascending},
	}
}

// DefaultSeedUsers returns the two fixture accounts. They are test
// fixtures, not production defaults.
func DefaultSeedUsers() []model.SeedUser {
	return []model.SeedUser{
		{
			Username:  "admin",
			Email:     "admin@company.com",
			FirstName: "System",
			LastName:  "Administrator",
			Active:    true,
		},
		{
			Username:  "testuser",
			Email:     "test@company.com",
			FirstName: "Test",
			LastName:  "User",
			Active:    true,
		},
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// BuildUsers turns seeds into users sharing one hash of password, stamped
// with now. An empty password is replaced by a random one nobody knows,
// which leaves the accounts present but locked.
func BuildUsers(seeds []model.SeedUser, password string, now time.Time) ([]model.User, error) {
	if password == "" {
		password = uuid.NewString()
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(seeds))
	for _, s := range seeds {
		users = append(users, model.User{
			Username:  s.Username,
			Email:     s.Email,
			Password:  hash,
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Active:    s.Active,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return users, nil
}

// Usernames lists the usernames of seeds, in order.
func Usernames(seeds []model.SeedUser) []string {
	names := make([]string, 0, len(seeds))
	for _, s := range seeds {
		names = append(names, s.Username)
	}
	return names
}
