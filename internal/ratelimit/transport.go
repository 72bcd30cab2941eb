package ratelimit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that acquires a limiter slot immediately before
// every request it forwards, retries included.
type Transport struct {
	// Delegate sends the request. Defaults to http.DefaultTransport.
	Delegate http.RoundTripper
	Limiter  *Limiter
	// Timeout bounds each forwarded attempt, body read included. It starts once
	// the slot is granted, so time spent waiting on Limiter does not count.
	Timeout time.Duration
}

// NewTransport wraps delegate with limiter.
func NewTransport(limiter *Limiter, delegate http.RoundTripper) *Transport {
	return &Transport{Delegate: delegate, Limiter: limiter}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Acquire(r.Context()); err != nil {
			if r.Body != nil {
				_ = r.Body.Close() // Per RoundTripper contract.
			}
			return nil, &WaitError{Inner: err}
		}
	}

	delegate := t.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport
	}
	if t.Timeout <= 0 {
		return delegate.RoundTrip(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.Timeout)
	resp, err := delegate.RoundTrip(r.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the attempt timeout once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// WaitError is returned by Transport when the request context ends before a slot is granted.
type WaitError struct {
	Inner error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *WaitError) Unwrap() error {
	return e.Inner
}
