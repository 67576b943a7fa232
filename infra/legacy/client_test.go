package legacy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFindBestEngineer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bookings/b1/best-engineer":
			_, _ = w.Write([]byte(`{"engineer_id":"e7","score":61.5}`))
		case "/bookings/b2/best-engineer":
			_, _ = w.Write([]byte(`{"engineer_id":""}`))
		case "/bookings/b3/best-engineer":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", 0, nil)
	ctx := context.Background()

	id, score, err := c.FindBestEngineer(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "e7", id)
	assert.InDelta(t, 61.5, score, 1e-9)

	_, _, err = c.FindBestEngineer(ctx, "b2")
	assert.ErrorIs(t, err, ErrNoDecision)

	_, _, err = c.FindBestEngineer(ctx, "b3")
	assert.ErrorContains(t, err, "decode")

	_, _, err = c.FindBestEngineer(ctx, "missing")
	assert.ErrorContains(t, err, "status 404")
}

func TestClientUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 0, nil)
	_, _, err := c.FindBestEngineer(context.Background(), "b1")
	assert.Error(t, err)
}

type staticAuth struct{ err error }

func (a staticAuth) SetAuthHeader(r *http.Request) error {
	if a.err != nil {
		return a.err
	}
	r.Header.Set("Authorization", "Bearer t0k")
	return nil
}

func TestClientSignsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"engineer_id":"e1","score":50}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, 0, nil)

	_, _, err := c.FindBestEngineer(context.Background(), "b1")
	assert.ErrorContains(t, err, "status 401")

	c.SetAuthorizer(staticAuth{})
	id, _, err := c.FindBestEngineer(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "e1", id)

	c.SetAuthorizer(staticAuth{err: errors.New("token endpoint down")})
	_, _, err = c.FindBestEngineer(context.Background(), "b1")
	assert.ErrorContains(t, err, "legacy: auth")
}
