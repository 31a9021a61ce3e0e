// internal/service/referral/codegen.go
package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	xerrors "isp-billing-service/internal/pkg/errors"
)

const (
	codePrefix      = "REF"
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 5
	maxCodeAttempts = 10
)

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// GenerateReferralCode returns an unused code of the form REFXXXXX.
func (s *ReferralService) GenerateReferralCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := randomCode(s.random)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}

		exists, err := s.codes.ExistsByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no unique referral code after %d attempts", xerrors.ErrExhaustedRetries, maxCodeAttempts)
}

func randomCode(r io.Reader) (string, error) {
	var b strings.Builder
	b.Grow(len(codePrefix) + codeLength)
	b.WriteString(codePrefix)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(r, alphabetSize)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
