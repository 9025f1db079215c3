// Package predict hosts the three predictors of the engine: conversion
// probability, optimal contact time and comparable-based price
// estimation. The predictors are independent and share only the record
// store; none of them ever fabricates a number. Insufficient data
// degrades to explicit low-confidence results.
package predict

import (
	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/pkg/logger"
)

// Bounds on how much history a single prediction reads.
const (
	maxInboundSamples = 500
	maxComparables    = 50
)

// Predictor evaluates predictions against the record store.
type Predictor struct {
	store repository.Store
	log   logger.Logger
}

// Option applies a configuration option to the Predictor.
type Option func(*Predictor)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Predictor) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Predictor.
func New(store repository.Store, opts ...Option) *Predictor {
	p := &Predictor{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("predict")
	}
	return p
}
