package intake

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
)

var txRefPattern = regexp.MustCompile(`^RD\d{8}-[A-HJ-NP-Z2-9]{6}$`)

func neverExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestTxRefGeneratorGenerate_format(t *testing.T) {
	gen := NewTxRefGenerator(0)

	ref, err := gen.Generate(context.Background(), neverExists, nil)
	require.NoError(t, err)
	assert.Regexp(t, txRefPattern, ref)
}

func TestTxRefGeneratorGenerate_skipsStoreCollisions(t *testing.T) {
	gen := NewTxRefGenerator(5)

	probes := 0
	exists := func(context.Context, string) (bool, error) {
		probes++
		return probes < 3, nil
	}

	ref, err := gen.Generate(context.Background(), exists, nil)
	require.NoError(t, err)
	assert.Regexp(t, txRefPattern, ref)
	assert.Equal(t, 3, probes)
}

func TestTxRefGeneratorGenerate_skipsBatchCollisions(t *testing.T) {
	gen := NewTxRefGenerator(20)

	first, err := gen.Generate(context.Background(), neverExists, nil)
	require.NoError(t, err)

	taken := map[string]struct{}{first: {}}
	second, err := gen.Generate(context.Background(), neverExists, taken)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestTxRefGeneratorGenerate_concurrent(t *testing.T) {
	gen := NewTxRefGenerator(0)

	// One generator serves every sync; concurrent HTTP-triggered syncs hit it
	// at once. Run under -race.
	const goroutines = 8
	refs := make(chan string, goroutines*50)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ref, err := gen.Generate(context.Background(), neverExists, nil)
				if err != nil {
					t.Error(err)
					return
				}
				refs <- ref
			}
		}()
	}
	wg.Wait()
	close(refs)

	for ref := range refs {
		assert.Regexp(t, txRefPattern, ref)
	}
}

func TestTxRefGeneratorGenerate_exhaustsAttempts(t *testing.T) {
	gen := NewTxRefGenerator(3)

	probes := 0
	alwaysExists := func(context.Context, string) (bool, error) {
		probes++
		return true, nil
	}

	_, err := gen.Generate(context.Background(), alwaysExists, nil)
	require.Error(t, err)
	assert.Equal(t, 3, probes)

	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeInternal, coded.Code())
}
