package store

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"quickchat/internal/app/user"
)

// SeedPassword is the password of every seeded demo account.
const SeedPassword = "quickchat123"

var seedUsers = []NewUser{
	{DisplayName: "Caroline Gray", Email: "caroline@quickchat.dev", AvatarKey: "profile_alison"},
	{DisplayName: "Alexander Wilson", Email: "alexander@quickchat.dev", AvatarKey: "profile_marco"},
}

// Seed creates the demo accounts, or refreshes their name and avatar when they already exist.
func Seed(ctx context.Context, users UserStore) ([]user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	seeded := make([]user.User, 0, len(seedUsers))
	for _, in := range seedUsers {
		in.Bio = user.DefaultBio
		in.PasswordHash = string(hash)

		u, err := users.UpsertUser(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", in.Email, err)
		}
		seeded = append(seeded, u)
	}

	return seeded, nil
}
