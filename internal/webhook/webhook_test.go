package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(nil, fakePinger{}, "", discard).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := httptest.NewServer(NewServer(nil, fakePinger{err: errors.New("down")}, "", discard).Routes())
	defer down.Close()

	resp, err = http.Get(down.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpdatesRoute(t *testing.T) {
	var hits int
	updates := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(NewServer(updates, fakePinger{}, "", discard).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+Path, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, hits)

	resp, err = http.Get(srv.URL + Path)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 1, hits)

	polling := httptest.NewServer(NewServer(nil, fakePinger{}, "", discard).Routes())
	defer polling.Close()

	resp, err = http.Post(polling.URL+Path, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdatesRequireSecret(t *testing.T) {
	var hits int
	updates := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	})

	srv := httptest.NewServer(NewServer(updates, fakePinger{}, "s3cret", discard).Routes())
	defer srv.Close()

	post := func(secret string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+Path, nil)
		require.NoError(t, err)
		if secret != "" {
			req.Header.Set(SecretHeader, secret)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("wrong"))
	assert.Equal(t, 0, hits)

	assert.Equal(t, http.StatusOK, post("s3cret"))
	assert.Equal(t, 1, hits)
}

type fakeRegistrar struct {
	set     []*bot.SetWebhookParams
	deleted int
	info    models.WebhookInfo
}

func (f *fakeRegistrar) SetWebhook(_ context.Context, p *bot.SetWebhookParams) (bool, error) {
	f.set = append(f.set, p)
	f.info.URL = p.URL
	return true, nil
}

func (f *fakeRegistrar) DeleteWebhook(context.Context, *bot.DeleteWebhookParams) (bool, error) {
	f.deleted++
	f.info.URL = ""
	return true, nil
}

func (f *fakeRegistrar) GetWebhookInfo(context.Context) (*models.WebhookInfo, error) {
	info := f.info
	return &info, nil
}

func TestManagerInit(t *testing.T) {
	ctx := context.Background()

	api := &fakeRegistrar{}
	m := NewManager(api, "https://bot.example.com/", "s3cret", discard)
	require.True(t, m.Enabled())
	require.NoError(t, m.Init(ctx))
	require.Len(t, api.set, 1)
	assert.Equal(t, "https://bot.example.com"+Path, api.set[0].URL)
	assert.Equal(t, "s3cret", api.set[0].SecretToken)
	assert.Zero(t, api.deleted)

	api = &fakeRegistrar{}
	m = NewManager(api, "", "", discard)
	require.False(t, m.Enabled())
	require.NoError(t, m.Init(ctx))
	assert.Empty(t, api.set)
	assert.Equal(t, 1, api.deleted)
}

func TestManagerSync(t *testing.T) {
	ctx := context.Background()
	api := &fakeRegistrar{}
	m := NewManager(api, "https://bot.example.com", "", discard)

	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.sync(ctx))
	assert.Len(t, api.set, 1)

	api.info.URL = "https://elsewhere.example.com/hook"
	require.NoError(t, m.sync(ctx))
	require.Len(t, api.set, 2)
	assert.Equal(t, "https://bot.example.com"+Path, api.info.URL)
}
