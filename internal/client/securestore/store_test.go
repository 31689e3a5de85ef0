package securestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the contract every adapter must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "tokens")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "tokens", []byte(`{"a":1}`)))
	v, err := s.Get(ctx, "tokens")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(v))

	require.NoError(t, s.Set(ctx, "tokens", []byte(`{"a":2}`)))
	v, err = s.Get(ctx, "tokens")
	require.NoError(t, err)
	require.Equal(t, `{"a":2}`, string(v))

	require.NoError(t, s.Delete(ctx, "tokens"))
	require.NoError(t, s.Delete(ctx, "tokens"))
	_, err = s.Get(ctx, "tokens")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'x'

	out, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(out))
	out[0] = 'y'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(again))
}

func TestFile_Contract(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "store.bin"), []byte("pass"))
	require.NoError(t, err)
	exerciseStore(t, f)
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.bin")

	first, err := NewFile(path, []byte("pass"))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("v1")))
	require.NoError(t, first.Set(ctx, "other", []byte("v2")))

	second, err := NewFile(path, []byte("pass"))
	require.NoError(t, err)
	v, err := second.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "v1")
}

func TestFile_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.bin")

	f, err := NewFile(path, []byte("right"))
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "k", []byte("v")))

	wrong, err := NewFile(path, []byte("wrong"))
	require.NoError(t, err)
	_, err = wrong.Get(ctx, "k")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestNewFile_Validation(t *testing.T) {
	_, err := NewFile("", []byte("p"))
	require.Error(t, err)
	_, err = NewFile("/tmp/x", nil)
	require.Error(t, err)
}

func TestRedis_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedis(client, "kiosk-1")
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	require.Equal(t, "v", mr.HGet("securestore:kiosk-1", "k"))
}
