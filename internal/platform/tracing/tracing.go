// Package tracing wires AWS X-Ray into task processing, outbound HTTP calls
// and the S3 client. Everything degrades to no-ops when tracing is disabled.
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
)

// Config controls X-Ray export.
type Config struct {
	Enabled     bool
	DaemonAddr  string
	ServiceName string
}

// Tracer opens a trace segment around a unit of work.
type Tracer interface {
	// Start begins a segment named name for taskID. The returned function
	// closes it, recording err when non-nil.
	Start(ctx context.Context, name, taskID string) (context.Context, func(err error))
}

// New configures the X-Ray SDK and returns a Tracer. A disabled config
// returns a Tracer that does nothing.
func New(cfg Config) (Tracer, error) {
	if !cfg.Enabled {
		return NoopTracer{}, nil
	}

	if err := xray.Configure(xray.Config{DaemonAddr: cfg.DaemonAddr}); err != nil {
		return nil, fmt.Errorf("failed to configure x-ray: %w", err)
	}
	return &XRayTracer{service: cfg.ServiceName}, nil
}

// XRayTracer emits X-Ray segments.
type XRayTracer struct {
	service string
}

// Start implements Tracer
func (t *XRayTracer) Start(ctx context.Context, name, taskID string) (context.Context, func(error)) {
	segName := name
	if t.service != "" {
		segName = t.service + "-" + name
	}

	ctx, seg := xray.BeginSegment(ctx, segName)
	if seg == nil {
		return ctx, func(error) {}
	}
	_ = seg.AddAnnotation("task_id", taskID)

	return ctx, func(err error) {
		if err != nil {
			_ = seg.AddError(err)
		}
		seg.Close(err)
	}
}

// NoopTracer discards all segments.
type NoopTracer struct{}

// Start implements Tracer
func (NoopTracer) Start(ctx context.Context, _, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// HTTPClient wraps client so outbound requests are recorded as subsegments.
func HTTPClient(enabled bool, client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	if !enabled {
		return client
	}
	return xray.Client(client)
}

// InstrumentAWS adds X-Ray subsegments to every AWS SDK call made with cfg.
func InstrumentAWS(enabled bool, cfg *aws.Config) {
	if enabled {
		awsv2.AWSV2Instrumentor(&cfg.APIOptions)
	}
}

// Middleware traces incoming HTTP requests under the given segment name.
func Middleware(enabled bool, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return xray.Handler(xray.NewFixedSegmentNamer(name), next)
	}
}
