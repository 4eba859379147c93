package utils

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

var (
	dummyMu     sync.Mutex
	dummyHashes = map[int][]byte{}
)

// dummyHash returns a throwaway hash generated at cost, built on first
// use and reused after that.  An out-of-range cost falls back to
// bcrypt.DefaultCost.
func dummyHash(cost int) []byte {
	dummyMu.Lock()
	defer dummyMu.Unlock()
	if h, ok := dummyHashes[cost]; ok {
		return h
	}
	h, err := bcrypt.GenerateFromPassword([]byte("complaint-desk-dummy"), cost)
	if err != nil {
		h, _ = bcrypt.GenerateFromPassword([]byte("complaint-desk-dummy"), bcrypt.DefaultCost)
	}
	dummyHashes[cost] = h
	return h
}

// BurnPasswordCheck performs a throwaway bcrypt comparison at the cost
// real password hashes use, so an unknown user costs as much as a wrong
// password.
func BurnPasswordCheck(plain string, cost int) {
	_ = bcrypt.CompareHashAndPassword(dummyHash(cost), []byte(plain))
}
