// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package users provides the resource-owner repository consulted by the
// password grant, prompt=none Basic authentication and the UserInfo endpoint.
package users

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks -source=users.go Repository

var (
	// ErrInvalidCredentials is returned when a username/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid resource owner credentials")
	// ErrNotFound is returned when no user has the requested subject.
	ErrNotFound = errors.New("user not found")
)

// User is a resource owner.
type User struct {
	// Subject is the stable identifier used as the sub claim.
	Subject string
	// Username is the login name.
	Username string
	// Claims are the user's OpenID claims keyed by claim name.
	Claims map[string]any
}

// Repository looks up and authenticates resource owners.
type Repository interface {
	// Authenticate checks a username and password.
	// Returns ErrInvalidCredentials on mismatch or unknown user.
	Authenticate(ctx context.Context, username, password string) (*User, error)

	// GetBySubject returns the user with the given subject.
	GetBySubject(ctx context.Context, subject string) (*User, error)
}

// StaticUser configures one user of a StaticRepository.
type StaticUser struct {
	Subject  string `json:"subject" yaml:"subject"`
	Username string `json:"username" yaml:"username"`
	// Password is either a bcrypt hash or a plaintext password that is
	// hashed when the repository is built.
	Password string         `json:"password" yaml:"password"`
	Claims   map[string]any `json:"claims,omitempty" yaml:"claims,omitempty"`
}

type staticEntry struct {
	user *User
	hash []byte
}

// StaticRepository serves a fixed set of users from configuration.
type StaticRepository struct {
	byUsername map[string]*staticEntry
	bySubject  map[string]*staticEntry
	dummyHash  []byte
}

// NewStaticRepository builds a repository, hashing plaintext passwords with cost.
// A cost of 0 selects bcrypt.DefaultCost.
func NewStaticRepository(entries []StaticUser, cost int) (*StaticRepository, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	r := &StaticRepository{
		byUsername: make(map[string]*staticEntry, len(entries)),
		bySubject:  make(map[string]*staticEntry, len(entries)),
		dummyHash:  dummy,
	}
	for _, e := range entries {
		if e.Subject == "" || e.Username == "" {
			return nil, errors.New("static user requires subject and username")
		}
		if _, dup := r.byUsername[e.Username]; dup {
			return nil, fmt.Errorf("duplicate static username %q", e.Username)
		}

		hash := []byte(e.Password)
		if !isBcryptHash(e.Password) {
			hash, err = bcrypt.GenerateFromPassword([]byte(e.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for %q: %w", e.Username, err)
			}
		}

		entry := &staticEntry{
			user: &User{Subject: e.Subject, Username: e.Username, Claims: maps.Clone(e.Claims)},
			hash: hash,
		}
		r.byUsername[e.Username] = entry
		r.bySubject[e.Subject] = entry
	}
	return r, nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Authenticate implements Repository.
func (r *StaticRepository) Authenticate(_ context.Context, username, password string) (*User, error) {
	entry, ok := r.byUsername[username]
	if !ok {
		// Spend the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(r.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return entry.user.clone(), nil
}

// GetBySubject implements Repository.
func (r *StaticRepository) GetBySubject(_ context.Context, subject string) (*User, error) {
	entry, ok := r.bySubject[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, subject)
	}
	return entry.user.clone(), nil
}

func (u *User) clone() *User {
	return &User{Subject: u.Subject, Username: u.Username, Claims: maps.Clone(u.Claims)}
}

var _ Repository = (*StaticRepository)(nil)
