package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
	"google.golang.org/grpc"

	"github.com/fluxmarket/core/agreement"
	fluxlog "github.com/fluxmarket/core/common/log"
	"github.com/fluxmarket/core/telemetry"
)

// RetryPolicy controls how many times in total the Adapter's Send* methods
// try a send and how long they wait between attempts.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy makes three attempts 200ms apart, enough to ride out
// a single dropped packet or a brief peer restart. Each attempt is bounded
// by the client's DefaultSendTimeout, so a peer that never answers holds
// the caller for up to about three times that timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}
}

// Adapter is the outbound half of the protocol component: it sends one of
// the five wire messages to a peer, retrying transient failures and
// aggregating the attempts into a single error the caller can classify.
type Adapter struct {
	client *grpcClient
	policy RetryPolicy
	log    fluxlog.Logger
}

// NewAdapter builds an Adapter dialing peers lazily and reusing connections.
func NewAdapter(l fluxlog.Logger, policy RetryPolicy, opts ...grpc.DialOption) *Adapter {
	return &Adapter{
		client: newGRPCClient(opts...),
		policy: policy,
		log:    l,
	}
}

func (a *Adapter) attempts(ctx context.Context, send func(context.Context) (*Envelope, error)) (*Envelope, error) {
	var result *multierror.Error
	for attempt := 0; attempt < a.policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.policy.Backoff):
			case <-ctx.Done():
				result = multierror.Append(result, ctx.Err())
				return nil, result.ErrorOrNil()
			}
		}
		env, err := send(ctx)
		if err == nil {
			return env, nil
		}
		result = multierror.Append(result, err)
		a.log.Debugw("send attempt failed", "attempt", attempt, "err", err)
	}
	return nil, result.ErrorOrNil()
}

// SendPropose delivers a Propose message, classifying exhausted retries as
// a ProtocolCreateError since Propose is the message that materializes a
// new Agreement on the counterpart.
func (a *Adapter) SendPropose(ctx context.Context, p Peer, msg *Propose) error {
	start := time.Now()
	env, err := a.attempts(ctx, func(ctx context.Context) (*Envelope, error) {
		return a.client.Propose(ctx, p, msg)
	})
	if err != nil {
		err = &agreement.ProtocolCreateError{Cause: err}
	} else {
		err = envelopeError(env)
	}
	telemetry.ObserveSend(string(KindPropose), time.Since(start), err)
	return err
}

// SendApprove delivers an Approve message, classifying exhausted retries
// as a ProtocolApproveError.
func (a *Adapter) SendApprove(ctx context.Context, p Peer, msg *Approve) error {
	start := time.Now()
	env, err := a.attempts(ctx, func(ctx context.Context) (*Envelope, error) {
		return a.client.Approve(ctx, p, msg)
	})
	if err != nil {
		err = &agreement.ProtocolApproveError{Cause: err}
	} else {
		err = envelopeError(env)
	}
	telemetry.ObserveSend(string(KindApprove), time.Since(start), err)
	return err
}

// SendReject delivers a Reject message.
func (a *Adapter) SendReject(ctx context.Context, p Peer, msg *Reject) error {
	start := time.Now()
	env, err := a.attempts(ctx, func(ctx context.Context) (*Envelope, error) {
		return a.client.Reject(ctx, p, msg)
	})
	if err != nil {
		err = fmt.Errorf("sending reject: %w", err)
	} else {
		err = envelopeError(env)
	}
	telemetry.ObserveSend(string(KindReject), time.Since(start), err)
	return err
}

// SendCancel delivers a Cancel message.
func (a *Adapter) SendCancel(ctx context.Context, p Peer, msg *Cancel) error {
	start := time.Now()
	env, err := a.attempts(ctx, func(ctx context.Context) (*Envelope, error) {
		return a.client.Cancel(ctx, p, msg)
	})
	if err != nil {
		err = fmt.Errorf("sending cancel: %w", err)
	} else {
		err = envelopeError(env)
	}
	telemetry.ObserveSend(string(KindCancel), time.Since(start), err)
	return err
}

// SendTerminate delivers a Terminate message.
func (a *Adapter) SendTerminate(ctx context.Context, p Peer, msg *Terminate) error {
	start := time.Now()
	env, err := a.attempts(ctx, func(ctx context.Context) (*Envelope, error) {
		return a.client.Terminate(ctx, p, msg)
	})
	if err != nil {
		err = fmt.Errorf("sending terminate: %w", err)
	} else {
		err = envelopeError(env)
	}
	telemetry.ObserveSend(string(KindTerminate), time.Since(start), err)
	return err
}

// Close releases every pooled connection.
func (a *Adapter) Close() error {
	return a.client.closeAll()
}

func envelopeError(env *Envelope) error {
	if env == nil || env.Err == nil {
		return nil
	}
	return env.Err
}

// dedupKey is the at-least-once idempotency key: a retried delivery of the
// same message kind for the same logical agreement must be a no-op on the
// receiving side rather than reapplying the transition.
type dedupKey struct {
	logical uuidKey
	kind    Kind
}

type uuidKey = [16]byte

// DedupDispatcher wraps a Dispatcher with a bounded cache of
// (logical id, message kind) pairs already applied, so a redelivered
// message short-circuits to the cached outcome instead of re-running the
// transition against a store row that has since moved on.
type DedupDispatcher struct {
	next  Dispatcher
	cache *lru.Cache
}

const dedupCacheSize = 4096

// NewDedupDispatcher wraps next with idempotent dedup.
func NewDedupDispatcher(next Dispatcher) (*DedupDispatcher, error) {
	cache, err := lru.New(dedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &DedupDispatcher{next: next, cache: cache}, nil
}

func (d *DedupDispatcher) once(key dedupKey, apply func() error) error {
	if v, ok := d.cache.Get(key); ok {
		telemetry.ObserveDedupHit(string(key.kind))
		if err, _ := v.(error); err != nil {
			return err
		}
		return nil
	}
	err := apply()
	d.cache.Add(key, err)
	return err
}

func (d *DedupDispatcher) OnPropose(ctx context.Context, msg *Propose) error {
	key := dedupKey{logical: msg.AgreementID.Logical, kind: KindPropose}
	return d.once(key, func() error { return d.next.OnPropose(ctx, msg) })
}

func (d *DedupDispatcher) OnApprove(ctx context.Context, msg *Approve) error {
	key := dedupKey{logical: msg.AgreementID.Logical, kind: KindApprove}
	return d.once(key, func() error { return d.next.OnApprove(ctx, msg) })
}

func (d *DedupDispatcher) OnReject(ctx context.Context, msg *Reject) error {
	key := dedupKey{logical: msg.AgreementID.Logical, kind: KindReject}
	return d.once(key, func() error { return d.next.OnReject(ctx, msg) })
}

func (d *DedupDispatcher) OnCancel(ctx context.Context, msg *Cancel) error {
	key := dedupKey{logical: msg.AgreementID.Logical, kind: KindCancel}
	return d.once(key, func() error { return d.next.OnCancel(ctx, msg) })
}

func (d *DedupDispatcher) OnTerminate(ctx context.Context, msg *Terminate) error {
	key := dedupKey{logical: msg.AgreementID.Logical, kind: KindTerminate}
	return d.once(key, func() error { return d.next.OnTerminate(ctx, msg) })
}
