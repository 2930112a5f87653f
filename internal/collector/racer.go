package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"MarketRelay/internal/metrics"
	"MarketRelay/internal/model"
	"MarketRelay/internal/race"

	"github.com/google/uuid"
)

const maxBodyBytes = 16 << 20

// Racer fires one logical request through every forwarding transform at once.
// It holds no state between calls.
type Racer struct {
	Client     *http.Client
	Transforms []Transform
	UserAgent  string
}

// NewRacer creates a Racer. An empty transform list degrades to Direct.
func NewRacer(client *http.Client, transforms []Transform, userAgent string) *Racer {
	if client == nil {
		client = http.DefaultClient
	}
	if len(transforms) == 0 {
		transforms = []Transform{Direct}
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0"
	}
	return &Racer{Client: client, Transforms: transforms, UserAgent: userAgent}
}

// Request is one upstream query shape. Decode must reject bodies that lack
// the fields the caller requires.
type Request[T any] struct {
	Shape   string
	Source  string
	Target  string
	Timeout time.Duration
	Decode  func(body []byte) (T, error)
}

// Result is a decoded winning response with its provenance.
type Result[T any] struct {
	Value      T
	Provenance model.Provenance
}

// Race expands every request across every transform and returns the first
// structurally valid response. Losing attempts are cancelled.
func Race[T any](ctx context.Context, r *Racer, reqs ...Request[T]) (Result[T], error) {
	attempts := make([]race.Attempt[Result[T]], 0, len(reqs)*len(r.Transforms))
	for _, req := range reqs {
		for _, tr := range r.Transforms {
			attempts = append(attempts, func(ctx context.Context) (Result[T], error) {
				return fetch(ctx, r, tr, req)
			})
		}
	}
	res, err := race.First(ctx, attempts...)
	if err != nil {
		kind := "unknown"
		if len(reqs) > 0 {
			kind = reqs[0].Shape
		}
		metrics.RaceFailures.WithLabelValues(kind).Inc()
		return res, err
	}
	return res, nil
}

func fetch[T any](ctx context.Context, r *Racer, tr Transform, req Request[T]) (Result[T], error) {
	var res Result[T]
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	outcome := "error"
	defer func() { metrics.Attempts.WithLabelValues(tr.Name, req.Shape, outcome).Inc() }()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, tr.Apply(req.Target), nil)
	if err != nil {
		return res, err
	}
	httpReq.Header.Set("User-Agent", r.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		case errors.Is(err, context.Canceled):
			outcome = "abandoned"
		}
		return res, fmt.Errorf("%s/%s: %w", tr.Name, req.Shape, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "status"
		return res, fmt.Errorf("%s/%s: status %d", tr.Name, req.Shape, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return res, fmt.Errorf("%s/%s: read body: %w", tr.Name, req.Shape, err)
	}
	v, err := req.Decode(body)
	if err != nil {
		outcome = "malformed"
		return res, fmt.Errorf("%s/%s: %w", tr.Name, req.Shape, err)
	}

	outcome = "ok"
	res.Value = v
	res.Provenance = model.Provenance{
		Source:      req.Source,
		Endpoint:    tr.Name + "/" + req.Shape,
		RetrievedAt: time.Now().UnixMilli(),
		RequestID:   uuid.NewString(),
	}
	return res, nil
}
