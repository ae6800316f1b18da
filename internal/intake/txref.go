package intake

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
)

const (
	txRefSuffixLen         = 6
	txRefSuffixAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultTxRefMaxAttempt = 10
)

// RefExistsFunc probes the store for a previously issued reference.
type RefExistsFunc func(ctx context.Context, ref string) (bool, error)

// TxRefGenerator issues globally unique transaction references composed of a
// date prefix and a random suffix. Collisions are rare but the generator never
// assumes first success. One generator is shared by concurrent syncs, so
// suffixes come from the lock-free top-level rand functions.
type TxRefGenerator struct {
	maxAttempts int
	now         func() time.Time
}

// NewTxRefGenerator builds a generator bounded to maxAttempts probes.
func NewTxRefGenerator(maxAttempts int) *TxRefGenerator {
	if maxAttempts <= 0 {
		maxAttempts = defaultTxRefMaxAttempt
	}
	return &TxRefGenerator{
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Generate returns a reference that exists neither in the store nor in the
// taken set (references staged earlier in the same batch).
func (g *TxRefGenerator) Generate(ctx context.Context, exists RefExistsFunc, taken map[string]struct{}) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		ref := g.candidate()
		if _, dup := taken[ref]; dup {
			continue
		}
		found, err := exists(ctx, ref)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "probing transaction reference")
		}
		if !found {
			return ref, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no unique transaction reference after %d attempts", g.maxAttempts))
}

func (g *TxRefGenerator) candidate() string {
	var suffix strings.Builder
	for i := 0; i < txRefSuffixLen; i++ {
		suffix.WriteByte(txRefSuffixAlphabet[rand.IntN(len(txRefSuffixAlphabet))])
	}
	return fmt.Sprintf("RD%s-%s", g.now().UTC().Format("20060102"), suffix.String())
}
