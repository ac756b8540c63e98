package service

import "time"

const (
	defaultRetryBase        = time.Second
	defaultRetryCap         = 5 * time.Second
	defaultRetryMaxAttempts = 3
)

// RetryPolicy calcula el backoff exponencial: min(Base * 2^n, Cap).
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        defaultRetryBase,
		Cap:         defaultRetryCap,
		MaxAttempts: defaultRetryMaxAttempts,
	}
}

// DelayForAttempt devuelve la espera despues del intento n (base 0).
func (p RetryPolicy) DelayForAttempt(n int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if n < 0 {
		n = 0
	}
	delay := p.Base
	for i := 0; i < n; i++ {
		if p.Cap > 0 && delay >= p.Cap {
			break
		}
		delay *= 2
	}
	if p.Cap > 0 && delay > p.Cap {
		return p.Cap
	}
	return delay
}

// Attempts devuelve MaxAttempts con un minimo de 1.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
