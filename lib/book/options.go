package book

import (
	"github.com/ValentinKolb/paperKV/lib/codec"
	"github.com/ValentinKolb/paperKV/lib/pool"
	gometrics "github.com/rcrowley/go-metrics"
)

type options struct {
	codec    codec.ICodec
	workers  int
	registry gometrics.Registry
}

func defaultOptions() options {
	return options{
		codec:   codec.JSON,
		workers: pool.DefaultWorkers,
	}
}

// Option configures a Book
type Option func(*options)

// WithCodec sets the codec values are encoded with (default codec.JSON)
func WithCodec(c codec.ICodec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithWorkers sets the number of workers running asynchronous operations (default 10)
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMetricsRegistry registers the pool metrics of the book in r instead of a private registry
func WithMetricsRegistry(r gometrics.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}
