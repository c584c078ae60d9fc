package config

import (
	"fmt"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/infra/confloader"
)

// Seed lists records created at startup when absent.
type Seed struct {
	Users   []SeedUser   `koanf:"users"`
	Prompts []SeedPrompt `koanf:"prompts"`
}

// SeedUser is a bootstrap account. Set either Password (hashed on load)
// or PasswordHash (an encoded Argon2id string).
type SeedUser struct {
	ID           string `koanf:"id"`
	Email        string `koanf:"email"`
	Name         string `koanf:"name"`
	Role         string `koanf:"role"`
	Password     string `koanf:"password"`
	PasswordHash string `koanf:"password_hash"`
}

// SeedPrompt is a bootstrap protected resource.
type SeedPrompt struct {
	ID          string   `koanf:"id"`
	Title       string   `koanf:"title"`
	Description string   `koanf:"description"`
	Content     string   `koanf:"content"`
	Category    string   `koanf:"category"`
	Tags        []string `koanf:"tags"`
	Version     int      `koanf:"version"`
}

// LoadSeed reads a seed document from a YAML file.
func LoadSeed(path string) (*Seed, error) {
	l := confloader.NewLoader()
	if err := l.LoadFile(path); err != nil {
		return nil, err
	}
	var s Seed
	if err := l.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	for i, u := range s.Users {
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("users[%d]: id and email are required", i)
		}
		if (u.Password == "") == (u.PasswordHash == "") {
			return nil, fmt.Errorf("users[%d]: set exactly one of password and password_hash", i)
		}
	}
	for i, p := range s.Prompts {
		if p.ID == "" {
			return nil, fmt.Errorf("prompts[%d]: id is required", i)
		}
	}
	return &s, nil
}

// User returns the account and the secret to store with it.
func (u SeedUser) User() (*domain.User, string) {
	secret := u.Password
	if u.PasswordHash != "" {
		secret = u.PasswordHash
	}
	return &domain.User{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		Status: domain.UserActive,
	}, secret
}

// Prompt converts the entry to a domain prompt.
func (p SeedPrompt) Prompt() *domain.Prompt {
	v := p.Version
	if v == 0 {
		v = 1
	}
	return &domain.Prompt{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Category:    p.Category,
		Tags:        append([]string(nil), p.Tags...),
		Version:     v,
	}
}
