package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, Entry{
			Symbol:    fmt.Sprintf("SYM%d", i),
			Side:      "BUY",
			Params:    json.RawMessage(`{"balance":1000}`),
			Result:    json.RawMessage(`{"volume":0.1}`),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	failed, err := s.Append(ctx, Entry{Symbol: "BAD", Side: "SELL", Status: StatusFailed, Error: "connection refused"})
	require.NoError(t, err)
	assert.NotEmpty(t, failed.ID)

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BAD", got[0].Symbol)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, "connection refused", got[0].Error)
	assert.JSONEq(t, `{}`, string(got[0].Params))
	assert.Equal(t, "SYM2", got[1].Symbol)
	assert.Equal(t, StatusOK, got[1].Status)
	assert.JSONEq(t, `{"volume":0.1}`, string(got[1].Result))

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.Append(context.Background(), Entry{})
	assert.Error(t, err)
	_, err = s.Recent(context.Background(), 1)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
