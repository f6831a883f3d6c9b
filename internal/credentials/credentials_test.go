package credentials

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"icp-wizard/internal/integrations/paramstore"
)

type fakeGetter struct {
	val   string
	err   error
	calls int
	name  string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	f.name = name
	return f.val, f.err
}

type staticSource struct {
	key   string
	err   error
	calls int
}

func (s *staticSource) APIKey(_ context.Context) (string, error) {
	s.calls++
	return s.key, s.err
}

func envWith(vals map[string]string) *Env {
	return &Env{Name: "OPENAI_API_KEY", lookup: func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}}
}

func TestEnv(t *testing.T) {
	key, err := envWith(map[string]string{"OPENAI_API_KEY": " sk-env "}).APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-env", key)

	_, err = envWith(nil).APIKey(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	_, err = envWith(map[string]string{"OPENAI_API_KEY": "   "}).APIKey(context.Background())
	require.ErrorIs(t, err, ErrMissing)
}

func TestNewEnv_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("ICP_TEST_KEY", "sk-process")
	key, err := NewEnv("ICP_TEST_KEY").APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-process", key)
}

func TestNewParamStore_Validates(t *testing.T) {
	_, err := NewParamStore(nil, "/icp")
	require.Error(t, err)
	_, err = NewParamStore(&fakeGetter{}, " / ")
	require.Error(t, err)
}

func TestParamStore_Formats(t *testing.T) {
	cases := []struct {
		name    string
		val     string
		want    string
		missing bool
		errText string
	}{
		{name: "json token", val: `{"token":"sk-json"}`, want: "sk-json"},
		{name: "raw key", val: "sk-raw\n", want: "sk-raw"},
		{name: "json without token", val: `{"other":"x"}`, missing: true},
		{name: "empty", val: "  ", missing: true},
		{name: "malformed json", val: `{"broken`, errText: "unmarshal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &fakeGetter{val: tc.val}
			src, err := NewParamStore(g, "/icp/")
			require.NoError(t, err)

			key, err := src.APIKey(context.Background())
			require.Equal(t, "/icp/open-ai-token", g.name)
			switch {
			case tc.missing:
				require.ErrorIs(t, err, ErrMissing)
			case tc.errText != "":
				require.ErrorContains(t, err, tc.errText)
				require.NotErrorIs(t, err, ErrMissing)
			default:
				require.NoError(t, err)
				require.Equal(t, tc.want, key)
			}
		})
	}
}

func TestParamStore_NotFoundIsMissing(t *testing.T) {
	src, err := NewParamStore(&fakeGetter{err: fmt.Errorf("%w: %q", paramstore.ErrNotFound, "/icp/open-ai-token")}, "/icp")
	require.NoError(t, err)
	_, err = src.APIKey(context.Background())
	require.ErrorIs(t, err, ErrMissing)
}

func TestParamStore_OutageIsNotMissing(t *testing.T) {
	src, err := NewParamStore(&fakeGetter{err: errors.New("ssm unavailable")}, "/icp")
	require.NoError(t, err)
	_, err = src.APIKey(context.Background())
	require.ErrorContains(t, err, "ssm unavailable")
	require.NotErrorIs(t, err, ErrMissing)
}

func TestChain(t *testing.T) {
	missing := &staticSource{err: ErrMissing}
	found := &staticSource{key: "sk-2"}
	key, err := Chain{nil, missing, found}.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-2", key)

	_, err = Chain{missing}.APIKey(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	broken := &staticSource{err: errors.New("boom")}
	untouched := &staticSource{key: "sk-3"}
	_, err = Chain{broken, untouched}.APIKey(context.Background())
	require.ErrorContains(t, err, "boom")
	require.Zero(t, untouched.calls)
}

func TestCached_OnlyCachesSuccess(t *testing.T) {
	src := &staticSource{err: ErrMissing}
	c := NewCached(src, 0)

	_, err := c.APIKey(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	src.err = nil
	src.key = "sk-late"
	key, err := c.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-late", key)

	_, _ = c.APIKey(context.Background())
	_, _ = c.APIKey(context.Background())
	require.Equal(t, 2, src.calls)
}

func TestCached_NilSource(t *testing.T) {
	_, err := NewCached(nil, 0).APIKey(context.Background())
	require.ErrorIs(t, err, ErrMissing)
}

func TestCached_ExpiresAfterTTL(t *testing.T) {
	src := &staticSource{key: "sk-old"}
	c := NewCached(src, 5*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key, err := c.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-old", key)

	src.key = "sk-rotated"
	now = now.Add(4 * time.Minute)
	key, err = c.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-old", key)
	require.Equal(t, 1, src.calls)

	now = now.Add(time.Minute)
	key, err = c.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-rotated", key)
	require.Equal(t, 2, src.calls)
}

func TestCached_Invalidate(t *testing.T) {
	src := &staticSource{key: "sk-old"}
	c := NewCached(src, 0)

	_, err := c.APIKey(context.Background())
	require.NoError(t, err)

	src.key = "sk-rotated"
	c.Invalidate()
	key, err := c.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-rotated", key)
	require.Equal(t, 2, src.calls)
}
