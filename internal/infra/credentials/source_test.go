package credentials

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/generation"
)

func TestEnvSource(t *testing.T) {
	t.Setenv("CLIPFORGE_TEST_KEY", "  env-key ")
	cred, err := EnvSource{Var: "CLIPFORGE_TEST_KEY"}.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-key", cred.Key())
}

func TestStoreSourceNoRowsIsEmpty(t *testing.T) {
	src := StoreSource{Store: NewStore(&stubExecutor{err: pgx.ErrNoRows})}
	cred, err := src.Credential(context.Background())
	require.NoError(t, err)
	assert.True(t, cred.Empty())
}

func TestStoreSourceRequestReloads(t *testing.T) {
	src := StoreSource{Store: NewStore(&stubExecutor{token: "db-key"})}
	cred, err := src.RequestCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "db-key", cred.Key())
}

func TestStoreSourceWithoutStore(t *testing.T) {
	_, err := StoreSource{}.Credential(context.Background())
	assert.Error(t, err)
}

func TestChainSourceFirstNonEmptyWins(t *testing.T) {
	failing := generation.CredentialSourceFunc(func(context.Context) (generation.Credential, error) {
		return generation.Credential{}, errors.New("db down")
	})
	empty := generation.CredentialSourceFunc(func(context.Context) (generation.Credential, error) {
		return generation.Credential{}, nil
	})
	found := generation.CredentialSourceFunc(func(context.Context) (generation.Credential, error) {
		return generation.NewCredential("k"), nil
	})

	cred, err := ChainSource{failing, empty, found}.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", cred.Key())

	cred, err = ChainSource{failing, empty}.Credential(context.Background())
	assert.Error(t, err)
	assert.True(t, cred.Empty())

	cred, err = ChainSource{empty, nil}.Credential(context.Background())
	assert.NoError(t, err)
	assert.True(t, cred.Empty())
}

func TestTerminalPrompterReadsPipedLine(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.WriteString("  piped-key \n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var persisted string
	prompter := TerminalPrompter{
		In:  r,
		Out: io.Discard,
		Persist: func(ctx context.Context, key string) error {
			persisted = key
			return nil
		},
	}
	cred, err := prompter.RequestCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "piped-key", cred.Key())
	assert.Equal(t, "piped-key", persisted)
}

func TestTerminalPrompterEmptyInput(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, w.Close())

	called := false
	prompter := TerminalPrompter{In: r, Out: io.Discard, Persist: func(context.Context, string) error {
		called = true
		return nil
	}}
	cred, err := prompter.RequestCredential(context.Background())
	require.NoError(t, err)
	assert.True(t, cred.Empty())
	assert.False(t, called)
}
