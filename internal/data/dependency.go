package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"FitTrack/internal/conf"
	"FitTrack/internal/model"
	"FitTrack/pkg/breaker"
	"FitTrack/pkg/httpclient"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// maxBodyBytes caps how much of a dependency response is read.
	maxBodyBytes = 1 << 20
	// maxDetailBytes caps the downstream body echoed in an outcome detail.
	maxDetailBytes = 256
)

var (
	errDownstreamFault    = errors.New("downstream returned a server error")
	errUnexpectedResponse = errors.New("downstream returned an unexpected status")
)

type dependency struct {
	cfg     *conf.Dependency
	client  *http.Client
	breaker *breaker.Breaker
}

// DependencyClient performs bounded, breaker-guarded GET calls against the
// configured downstream services.
type DependencyClient struct {
	deps   map[string]*dependency
	logger *pkglog.LogHelper
}

// NewDependencyClient builds one pooled HTTP client per dependency.
func NewDependencyClient(c *conf.Dependencies, registry *breaker.Registry, logger log.Logger) (*DependencyClient, error) {
	deps := make(map[string]*dependency, len(c.Services))
	for name, dc := range c.Services {
		client, err := httpclient.New(c.ProxyURL, dc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", name, err)
		}
		b, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		deps[name] = &dependency{cfg: dc, client: client, breaker: b}
	}

	return &DependencyClient{deps: deps, logger: pkglog.NewLogHelper(logger)}, nil
}

// Names returns the configured dependency names in order.
func (c *DependencyClient) Names() []string {
	names := make([]string, 0, len(c.deps))
	for name := range c.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckExists asks dependency whether entity id exists. The body is discarded.
func (c *DependencyClient) CheckExists(ctx context.Context, dependency string, id int64) model.Outcome {
	return c.call(ctx, dependency, id, false)
}

// Fetch is CheckExists that also decodes the JSON body of a 200 answer.
func (c *DependencyClient) Fetch(ctx context.Context, dependency string, id int64) model.Outcome {
	return c.call(ctx, dependency, id, true)
}

func (c *DependencyClient) call(ctx context.Context, name string, id int64, decode bool) model.Outcome {
	dep, ok := c.deps[name]
	if !ok {
		return model.Outcome{Kind: model.OutcomeError, Dependency: name, Detail: "unknown dependency"}
	}

	url := dep.cfg.BaseURL + strings.ReplaceAll(dep.cfg.Path, "{id}", strconv.FormatInt(id, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.finish(model.Outcome{Kind: model.OutcomeError, Dependency: name, Detail: fmt.Sprintf("build request: %v", err)}, url)
	}
	req.Header.Set("Accept", "application/json")
	if reqID := pkglog.GetRequestID(ctx); reqID != "unknown" {
		req.Header.Set("X-Request-ID", reqID)
	}

	if ctx.Err() != nil {
		return c.finish(unavailable(name, model.ReasonTransport, ctx.Err().Error(), 0), url)
	}

	var outcome model.Outcome
	err = dep.breaker.Execute(func() error {
		var callErr error
		outcome, callErr = c.do(ctx, dep.client, req, name, decode)
		// A caller that gave up is no evidence against the dependency.
		if callErr != nil && ctx.Err() != nil {
			return breaker.Abandoned(callErr)
		}
		return callErr
	})
	if errors.Is(err, breaker.ErrOpen) {
		outcome = unavailable(name, model.ReasonCircuitOpen, "circuit open, call not attempted", 0)
	}

	return c.finish(outcome, url)
}

// do performs the request. The returned error is what the breaker counts.
func (c *DependencyClient) do(ctx context.Context, client *http.Client, req *http.Request, name string, decode bool) (model.Outcome, error) {
	resp, err := client.Do(req)
	if err != nil {
		return unavailable(name, model.ReasonTransport, err.Error(), 0), err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	switch {
	case resp.StatusCode == http.StatusOK:
		out := model.Outcome{Kind: model.OutcomeSuccess, Dependency: name, StatusCode: resp.StatusCode}
		if !decode {
			return out, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return unavailable(name, model.ReasonTransport, readErr.Error(), resp.StatusCode), readErr
			}
			return model.Outcome{Kind: model.OutcomeError, Dependency: name, StatusCode: resp.StatusCode,
				Detail: fmt.Sprintf("read body: %v", readErr)}, nil
		}
		if err := json.Unmarshal(body, &out.Body); err != nil {
			return model.Outcome{Kind: model.OutcomeError, Dependency: name, StatusCode: resp.StatusCode,
				Detail: fmt.Sprintf("decode body: %v", err)}, nil
		}
		return out, nil

	case resp.StatusCode == http.StatusNotFound:
		return model.Outcome{Kind: model.OutcomeNotFound, Dependency: name, StatusCode: resp.StatusCode}, nil

	case resp.StatusCode >= http.StatusInternalServerError:
		return unavailable(name, model.ReasonDownstreamError, truncate(body), resp.StatusCode), errDownstreamFault

	default:
		return unavailable(name, model.ReasonUnexpectedStatus, truncate(body), resp.StatusCode), errUnexpectedResponse
	}
}

func (c *DependencyClient) finish(o model.Outcome, url string) model.Outcome {
	kvs := []interface{}{"dependency", o.Dependency, "url", url, "outcome", o.Kind.String()}
	if o.StatusCode != 0 {
		kvs = append(kvs, "status_code", o.StatusCode)
	}

	switch o.Kind {
	case model.OutcomeSuccess, model.OutcomeNotFound:
		c.logger.Dependency("dependency answered", kvs...)
	default:
		kvs = append(kvs, "reason", o.Reason, "detail", o.Detail)
		c.logger.DependencyFailure("dependency call failed", kvs...)
	}
	return o
}

func unavailable(name, reason, detail string, status int) model.Outcome {
	return model.Outcome{
		Kind:       model.OutcomeUnavailable,
		Dependency: name,
		Reason:     reason,
		Detail:     detail,
		StatusCode: status,
	}
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetailBytes {
		return s[:maxDetailBytes] + "..."
	}
	return s
}
