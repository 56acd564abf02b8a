package testutil

import "github.com/AnshRaj112/mystery-message-backend/pkg/utils"

// NewHasher returns an argon2id hasher cheap enough for tests.
func NewHasher() *utils.PasswordHasher {
	return utils.NewPasswordHasher(utils.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1})
}
