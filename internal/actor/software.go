package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowkernel/kernel/internal/kernelerr"
	"github.com/flowkernel/kernel/internal/workflow"
)

// HTTPDoer is the subset of *http.Client the software actor depends on,
// so tests can substitute a fake transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Software is the application actor. When the activity carries a
// rest-endpoint program, it synthesizes and issues the HTTP call from
// declared parameters; otherwise it passes inputs through unchanged.
type Software struct {
	Client HTTPDoer
}

// NewSoftware constructs a Software actor with a default HTTP client.
func NewSoftware() *Software {
	return &Software{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *Software) Execute(ctx context.Context, activity workflow.Activity, role workflow.Role, inputs map[string]any) (map[string]any, error) {
	for _, p := range activity.Programs {
		if strings.EqualFold(p.Kind, "rest-endpoint") || strings.EqualFold(p.Kind, "rest_endpoint") {
			return s.callRESTEndpoint(ctx, p, inputs)
		}
	}
	out := map[string]any{"status": "success", "message": fmt.Sprintf("activity %q completed", activity.Name)}
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

func (s *Software) callRESTEndpoint(ctx context.Context, p workflow.Program, inputs map[string]any) (map[string]any, error) {
	url := p.URLPattern
	for _, param := range p.Params {
		if v, ok := inputs[param]; ok {
			url = strings.ReplaceAll(url, "{"+param+"}", fmt.Sprintf("%v", v))
		}
	}
	method := p.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(inputs)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "marshal request body for rest-endpoint program")
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "build rest-endpoint request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "rest-endpoint call failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Integration, err, "read rest-endpoint response")
	}

	var data any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &data); err != nil {
			data = string(respBody)
		}
	}

	out := map[string]any{"status": resp.StatusCode, "data": data}
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}
