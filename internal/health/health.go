// Package health contains helpers for exposing harness liveness and readiness.
package health

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrNoPass = errors.New("no complete pass yet")

// Checker tracks harness state for /live and /ready. Liveness fails for good
// once an atomicity violation was seen; readiness turns on after the first
// complete pass over the scenarios.
type Checker struct {
	handler healthcheck.Handler
	failure atomic.Pointer[error]
	passes  atomic.Int64
}

// New builds a Checker whose check results are also exported on reg under
// namespace. A nil reg disables the export.
func New(reg prometheus.Registerer, namespace string) *Checker {
	c := &Checker{}
	if reg != nil {
		c.handler = healthcheck.NewMetricsHandler(reg, namespace)
	} else {
		c.handler = healthcheck.NewHandler()
	}
	c.handler.AddLivenessCheck("atomicity", c.CheckLiveness)
	c.handler.AddReadinessCheck("first-pass", c.CheckReadiness)
	return c
}

// MarkPass records a complete pass over every scenario.
func (c *Checker) MarkPass() {
	c.passes.Add(1)
}

// MarkFailure records err. Only the first failure is kept.
func (c *Checker) MarkFailure(err error) {
	if err == nil {
		return
	}
	c.failure.CompareAndSwap(nil, &err)
}

// Passes returns the number of complete passes.
func (c *Checker) Passes() int64 {
	return c.passes.Load()
}

// Failure returns the first recorded failure, if any.
func (c *Checker) Failure() error {
	if p := c.failure.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *Checker) CheckLiveness() error {
	if err := c.Failure(); err != nil {
		return fmt.Errorf("harness failed: %w", err)
	}
	return nil
}

func (c *Checker) CheckReadiness() error {
	if err := c.CheckLiveness(); err != nil {
		return err
	}
	if c.Passes() == 0 {
		return ErrNoPass
	}
	return nil
}

// Handler serves /live and /ready.
func (c *Checker) Handler() http.Handler {
	return c.handler
}
