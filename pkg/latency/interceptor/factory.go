package interceptor

import (
	"sync"
	"time"

	"github.com/pion/interceptor"

	"github.com/Hassall/roc-toolkit/pkg/latency"
)

// FactoryOption configures the ReceiverInterceptorFactory.
type FactoryOption func(*ReceiverInterceptorFactory) error

// ReceiverInterceptorFactory creates ReceiverInterceptor instances for each
// PeerConnection. Register this factory with the interceptor registry to
// enable latency-controlled audio reception.
type ReceiverInterceptorFactory struct {
	config latency.SessionConfig

	mu      sync.Mutex
	created []*ReceiverInterceptor
}

// WithTargetLatency sets the target latency for created sessions.
// Without it, the base configuration's target is used (200ms in
// DefaultSessionConfig).
func WithTargetLatency(d time.Duration) FactoryOption {
	return func(f *ReceiverInterceptorFactory) error {
		f.config.TargetLatency = d
		return nil
	}
}

// WithProfile selects the frequency estimator profile.
// Without it, the base configuration's profile is used (gradual in
// DefaultSessionConfig).
func WithProfile(p latency.FreqEstimatorProfile) FactoryOption {
	return func(f *ReceiverInterceptorFactory) error {
		f.config.Monitor.FEProfile = p
		return nil
	}
}

// WithMonitorConfig replaces the whole latency monitor configuration.
func WithMonitorConfig(c latency.LatencyMonitorConfig) FactoryOption {
	return func(f *ReceiverInterceptorFactory) error {
		f.config.Monitor = c
		return nil
	}
}

// NewReceiverInterceptorFactory creates a factory producing interceptors
// with the given base session configuration.
func NewReceiverInterceptorFactory(config latency.SessionConfig, opts ...FactoryOption) (*ReceiverInterceptorFactory, error) {
	f := &ReceiverInterceptorFactory{config: config}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor implements interceptor.Factory.
func (f *ReceiverInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	i := NewReceiverInterceptor(f.config)

	f.mu.Lock()
	f.created = append(f.created, i)
	f.mu.Unlock()

	return i, nil
}

// Interceptors returns all interceptors created by this factory so far,
// letting the application reach the sessions behind a PeerConnection.
func (f *ReceiverInterceptorFactory) Interceptors() []*ReceiverInterceptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*ReceiverInterceptor, len(f.created))
	copy(out, f.created)
	return out
}
