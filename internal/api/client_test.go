package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echotools/phonebook/internal/api/graph"
	"github.com/echotools/phonebook/internal/store"
)

func TestClient_RoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	srv, _ := newTestServer(t, s)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewClient(ClientConfig{BaseURL: ts.URL + "/"})

	var added struct {
		AddPerson struct{ ID, Name string }
	}
	err := client.Query(context.Background(),
		`mutation($name: String!) { addPerson(name: $name, street: "Malminkaari 10 A", city: "Helsinki") { id name } }`,
		map[string]interface{}{"name": "Matti Luukkainen"}, &added)
	require.NoError(t, err)
	assert.Equal(t, "Matti Luukkainen", added.AddPerson.Name)
	assert.NotEmpty(t, added.AddPerson.ID)

	resp, err := client.Do(context.Background(), GraphQLRequest{
		Query: `mutation { addPerson(name: "Matti Luukkainen", street: "x", city: "y") { id } }`,
	})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, graph.CodeBadUserInput, resp.Errors[0].Code())
	assert.Error(t, resp.Err())

	require.NoError(t, s.CreateUser(context.Background(), &store.User{Username: "mluukkai"}))
	client.SetUsername("mluukkai")
	assert.Equal(t, "mluukkai", client.GetUsername())

	var me struct{ Me *struct{ Username string } }
	require.NoError(t, client.Query(context.Background(), `{ me { username } }`, nil, &me))
	require.NotNil(t, me.Me)
	assert.Equal(t, "mluukkai", me.Me.Username)
}

func TestClient_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(ClientConfig{BaseURL: ts.URL})
	_, err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "Database connection failed")
}
