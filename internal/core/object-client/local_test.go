package objectclient

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	url, err := s.Put(ctx, "u/s/abcd1234.pdf", []byte("raw bytes"), "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "file://")

	data, err := s.Get(ctx, "u/s/abcd1234.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw bytes"), data)

	r, err := s.GetReader(ctx, "u/s/abcd1234.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, []byte("raw bytes"), body)

	require.NoError(t, s.Delete(ctx, "u/s/abcd1234.pdf"))
	_, err = s.Get(ctx, "u/s/abcd1234.pdf")
	assert.Error(t, err)

	// deleting a missing key is not an error
	assert.NoError(t, s.Delete(ctx, "u/s/abcd1234.pdf"))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../outside", []byte("x"), "text/plain")
	assert.Error(t, err)

	_, err = s.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}
