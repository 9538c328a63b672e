package actor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/workflow"
)

func TestSoftwarePassThroughWhenNoProgram(t *testing.T) {
	s := NewSoftware()
	out, err := s.Execute(context.Background(), workflow.Activity{Name: "Log"}, workflow.Role{}, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, 1, out["x"])
}

type fakeDoer struct {
	resp *http.Response
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) { return f.resp, nil }

func TestSoftwareSynthesizesRESTEndpointCall(t *testing.T) {
	s := &Software{Client: &fakeDoer{resp: &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(`{"ok":true}`)),
	}}}
	activity := workflow.Activity{
		Name: "Notify",
		Programs: []workflow.Program{
			{Kind: "rest-endpoint", Method: "POST", URLPattern: "https://example.com/notify/{id}", Params: []string{"id"}},
		},
	}
	out, err := s.Execute(context.Background(), activity, workflow.Role{}, map[string]any{"id": "42"})
	require.NoError(t, err)
	assert.Equal(t, 200, out["status"])
	data, ok := out["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["ok"])
}
