package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// NewFolio returns a complaint folio of the form QJ-YYYYMMDD-XXXXXX where
// the suffix is 3 random bytes in upper case hex.  Uniqueness is only
// statistical; the complaints.folio unique key is the real guarantee.
func NewFolio(now time.Time) (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("QJ-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(fmt.Sprintf("%x", buf))), nil
}
