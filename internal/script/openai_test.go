// SPDX-License-Identifier: MIT

package script

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIHealthCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o-mini","object":"model","created":0,"owned_by":"test"}]}`)
	}))
	defer ts.Close()

	c := NewOpenAIChatter(OpenAIConfig{BaseURL: ts.URL, APIKey: "test", Model: "gpt-4o-mini"})
	require.NoError(t, c.HealthCheck(context.Background()))
}

func TestOpenAIHealthCheckRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewOpenAIChatter(OpenAIConfig{BaseURL: ts.URL, APIKey: "bad"})
	require.Error(t, c.HealthCheck(context.Background()))
}
