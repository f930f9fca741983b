package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCentral is a minimal scripted central endpoint.
type fakeCentral struct {
	t            *testing.T
	validToken   string
	tokenCalls   int
	pushCalls    int
	expireFirst  bool // answer 401 to the first authed call
	authedCalls  int
	lastPushBody wire.PushRequest
}

func (f *fakeCentral) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/instances/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		var req wire.TokenRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if req.APISecret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(wire.TokenResponse{
			AccessToken: f.validToken,
			ExpiresAt:   time.Now().Add(time.Hour),
		})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.authedCalls++
			if f.expireFirst && f.authedCalls == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			got := r.Header.Get(common.AuthHeaderName)
			if !strings.HasPrefix(got, common.BearerPrefix) ||
				strings.TrimPrefix(got, common.BearerPrefix) != f.validToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/api/v1/sync/push", authed(func(w http.ResponseWriter, r *http.Request) {
		f.pushCalls++
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastPushBody))
		results := make([]wire.PushResult, 0, len(f.lastPushBody.Changes))
		for _, c := range f.lastPushBody.Changes {
			results = append(results, wire.PushResult{RecordID: c.RecordID, Status: wire.PushAccepted})
		}
		_ = json.NewEncoder(w).Encode(wire.PushResponse{Results: results})
	}))

	mux.HandleFunc("/api/v1/sync/pull", authed(func(w http.ResponseWriter, r *http.Request) {
		var req wire.PullRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(wire.PullResponse{NewCursor: req.SinceCursor})
	}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func TestHTTPClient_AuthenticatesAndPushes(t *testing.T) {
	central := &fakeCentral{t: t, validToken: "tok"}
	srv := httptest.NewServer(central.handler())
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "clinic-a", "s3cret", 5*time.Second)

	resp, err := c.Push(context.Background(), []wire.ChangeRecord{
		{RecordID: "r1", RecordType: "patient", BaseVersion: 0, NewVersion: 1, Payload: []byte(`{}`)},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, wire.PushAccepted, resp.Results[0].Status)

	assert.Equal(t, 1, central.tokenCalls)
	assert.Equal(t, "clinic-a", central.lastPushBody.InstanceID)
}

func TestHTTPClient_RefreshesExpiredToken(t *testing.T) {
	central := &fakeCentral{t: t, validToken: "tok", expireFirst: true}
	srv := httptest.NewServer(central.handler())
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "clinic-a", "s3cret", 5*time.Second)

	_, err := c.Pull(context.Background(), 0, 100)
	require.NoError(t, err)
	// one initial token, one refresh after the 401
	assert.Equal(t, 2, central.tokenCalls)
}

func TestHTTPClient_BadSecret(t *testing.T) {
	central := &fakeCentral{t: t, validToken: "tok"}
	srv := httptest.NewServer(central.handler())
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "clinic-a", "wrong", 5*time.Second)

	_, err := c.Pull(context.Background(), 0, 100)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestHTTPClient_Ping(t *testing.T) {
	central := &fakeCentral{t: t, validToken: "tok"}
	srv := httptest.NewServer(central.handler())
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "clinic-a", "s3cret", 5*time.Second)
	require.NoError(t, c.Ping(context.Background()))
}

func TestHTTPClient_NetworkError(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "clinic-a", "s3cret", 200*time.Millisecond)
	_, err := c.Push(context.Background(), nil)
	require.Error(t, err)
}
