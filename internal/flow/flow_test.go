package flow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSocialHandle(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"https://x.com/abc", true},
		{"  https://x.com/a_b_1 ", true},
		{"@abc", false},
		{"https://twitter.com/abc", false},
		{"http://x.com/abc", false},
		{"https://x.com/abcdefghijklmnop", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ValidateSocialHandle(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
			}
		})
	}
}

func TestValidateChatHandle(t *testing.T) {
	for input, ok := range map[string]bool{
		"@abcde":            true,
		"@user_name_1":      true,
		"abcdef":            false,
		"@abc":              false,
		"@has space":        false,
		"https://x.com/abc": false,
	} {
		_, err := ValidateChatHandle(input)
		assert.Equal(t, ok, err == nil, input)
	}
}

func TestParseAge(t *testing.T) {
	for input, want := range map[string]int{"15": 15, " 99 ": 99, "11": 11} {
		age, err := ParseAge(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, age)
	}

	for _, input := range []string{"5", "10", "100", "150", "abc", "15.5", ""} {
		_, err := ParseAge(input)
		assert.Error(t, err, input)
	}
}

func TestAdvanceFullForm(t *testing.T) {
	s := StartRegistration()

	steps := []struct {
		input string
		want  Step
	}{
		{"@abc", StepSocialHandle},
		{"https://x.com/abc", StepChatHandle},
		{"abcdef", StepChatHandle},
		{"@abcdef", StepAge},
		{"150", StepAge},
		{"abc", StepAge},
		{"15", StepCity},
		{"   ", StepCity},
		{"Isfahan", StepGender},
		{"female", StepPurpose},
	}

	for _, st := range steps {
		done, _ := Advance(s, st.input)
		assert.False(t, done)
		assert.Equal(t, st.want, s.Step, "after %q", st.input)
	}

	done, err := Advance(s, "meet people")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, StepIdle, s.Step)
	assert.Equal(t, Form{
		SocialHandle: "https://x.com/abc",
		ChatHandle:   "@abcdef",
		Age:          15,
		City:         "Isfahan",
		Gender:       "female",
		Purpose:      "meet people",
	}, s.Form)
}

func TestAdvanceOutsideRegistration(t *testing.T) {
	_, err := Advance(&Session{Step: StepPaymentProof}, "hash")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, m.Set(ctx, 1, &Session{
		Step:    StepPaymentProof,
		Upgrade: &PendingUpgrade{Level: 2, Price: decimal.RequireFromString("5")},
	}))

	s, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepPaymentProof, s.Step)
	assert.Equal(t, 2, s.Upgrade.Level)

	// mutating the copy does not touch the stored session
	s.Step = StepAge
	s.Upgrade.Level = 3
	again, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepPaymentProof, again.Step)
	assert.Equal(t, 2, again.Upgrade.Level)

	// nor does mutating what was passed to Set
	in := &Session{Step: StepPaymentProof, Upgrade: &PendingUpgrade{Level: 2}}
	require.NoError(t, m.Set(ctx, 3, in))
	in.Upgrade.Level = 9
	stored, err := m.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Upgrade.Level)

	require.NoError(t, m.Set(ctx, 1, &Session{Step: StepIdle}))
	_, err = m.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, m.Set(ctx, 2, StartRegistration()))
	require.NoError(t, m.Clear(ctx, 2))
	_, err = m.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrNoSession)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisStore(t, 30*time.Minute)

	_, err := r.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)

	in := &Session{
		Step:          StepCity,
		Form:          Form{SocialHandle: "https://x.com/abc", ChatHandle: "@abcdef", Age: 20},
		Upgrade:       &PendingUpgrade{Level: 3, Price: decimal.RequireFromString("12.50")},
		PromoteTarget: 77,
	}
	require.NoError(t, r.Set(ctx, 1, in))
	assert.True(t, mr.Exists(sessionKey(1)))
	assert.Equal(t, 30*time.Minute, mr.TTL(sessionKey(1)))

	s, err := r.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepCity, s.Step)
	assert.Equal(t, in.Form, s.Form)
	assert.Equal(t, int64(77), s.PromoteTarget)
	require.NotNil(t, s.Upgrade)
	assert.Equal(t, 3, s.Upgrade.Level)
	assert.True(t, decimal.RequireFromString("12.5").Equal(s.Upgrade.Price))

	// idle step deletes the key
	require.NoError(t, r.Set(ctx, 1, &Session{Step: StepIdle}))
	assert.False(t, mr.Exists(sessionKey(1)))
	_, err = r.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, r.Set(ctx, 2, StartRegistration()))
	require.NoError(t, r.Clear(ctx, 2))
	_, err = r.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisStore(t, time.Minute)

	require.NoError(t, r.Set(ctx, 1, StartRegistration()))
	mr.FastForward(30 * time.Second)
	_, err := r.Get(ctx, 1)
	require.NoError(t, err)

	mr.FastForward(time.Minute)
	_, err = r.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreCorrupt(t *testing.T) {
	r, mr := newRedisStore(t, time.Minute)
	require.NoError(t, mr.Set(sessionKey(1), "{not json"))

	_, err := r.Get(context.Background(), 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestStepRegistering(t *testing.T) {
	assert.True(t, StepAge.Registering())
	assert.False(t, StepPaymentProof.Registering())
	assert.False(t, StepIdle.Registering())
}
