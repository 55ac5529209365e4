package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は登録時のハッシュコストです。
const DefaultBcryptCost = 8

// Hasher はパスワードのハッシュ化と検証を行います。
type Hasher interface {
	Hash(plain string) (string, error)
	// Verify は定数時間で比較します。
	Verify(plain, digest string) bool
}

// BcryptHasher は bcrypt による Hasher です。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は BcryptHasher を作成します。範囲外のコストは既定値に丸めます。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
