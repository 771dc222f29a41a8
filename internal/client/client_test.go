package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			var body struct {
				Value string `json:"value"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			store["apple"] = body.Value
			json.NewEncoder(w).Encode(PutResponse{Key: "apple", ReplicasWritten: 3})
		case r.Method == http.MethodGet:
			v, ok := store["apple"]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(GetResponse{Key: "apple", Value: v})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	putResp, err := c.Put(context.Background(), "apple", "v1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, putResp.ReplicasWritten)

	getResp, siblings, err := c.Get(context.Background(), "apple")
	require.NoError(t, err)
	assert.Nil(t, siblings)
	assert.Equal(t, "v1", getResp.Value)
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, _, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetConflictReturnsSiblings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"siblings": []Sibling{{Value: "x"}, {Value: "y"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, siblings, err := c.Get(context.Background(), "apple")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, siblings, 2)
}

func TestJoinClusterSendsExpectedBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	require.NoError(t, c.JoinCluster(context.Background(), "b"))
	assert.Equal(t, "/cluster/join", gotPath)
	assert.Equal(t, "b", gotBody["node"])
}
