// Package mutation orchestrates write operations against the fetch pipeline:
// optimistic cache updates, rollback or population once the transport call
// settles, key invalidation, and a uniform response shape whether or not the
// underlying call failed.
package mutation

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mshindi-labs/swrkit/pkg/apiclient"
	"github.com/mshindi-labs/swrkit/pkg/cachekey"
	"github.com/mshindi-labs/swrkit/pkg/swrcache"
)

// State is the lifecycle of one mutation instance.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Doer resolves requests through the fetch pipeline. *apiclient.Client
// satisfies it.
type Doer interface {
	Do(ctx context.Context, cfg *apiclient.RequestConfig) (*apiclient.Response, error)
}

// Revalidator is the external revalidation engine's entry point. Marking a
// key triggers a refetch for every subscriber of that key.
type Revalidator interface {
	Revalidate(ctx context.Context, key string) error
}

// Config describes one mutation: its cache identity, the base request, and
// the cache-reconciliation policy around the transport call.
type Config struct {
	// Key is the cache identity the mutation reconciles against. Its
	// extracted URL is the default request path.
	Key cachekey.Key

	// Request is the base request config; Trigger merges the variables and
	// any per-call override on top of it.
	Request *apiclient.RequestConfig

	// OptimisticData computes the speculative cache value from the current
	// one; it is written before the transport call resolves.
	OptimisticData func(current any) any

	// PopulateCache writes the transport result into the cache on success,
	// replacing any optimistic value.
	PopulateCache bool

	// Revalidate marks the mutation's own key for revalidation on success.
	Revalidate bool

	// InvalidateKeys are marked for revalidation, in order, after a
	// successful call and before OnSuccess fires.
	InvalidateKeys []cachekey.Key

	// RollbackOnError reverts the optimistic write on failure. Defaults to
	// true; set to a false pointer to keep the optimistic value.
	RollbackOnError *bool

	// ThrowOnError propagates the typed error from Trigger. Defaults to
	// true; when disabled, Trigger returns the failed response with a nil
	// error.
	ThrowOnError *bool

	OnSuccess func(data any, variables any)
	OnError   func(err error, variables any)
}

// optimisticWrite pairs a speculative cache write with what is needed to
// revert it: the version the write created and the value it displaced.
type optimisticWrite struct {
	version   int64
	previous  any
	displaced bool
}

// Controller runs one configured mutation. State transitions are
// Idle -> Pending -> Success or Failed; Reset returns to Idle, and a new
// Trigger from a terminal state re-enters Pending.
type Controller struct {
	cfg         Config
	rollback    bool
	throw       bool
	client      Doer
	store       swrcache.Store
	revalidator Revalidator
	logger      zerolog.Logger

	mu    sync.Mutex
	state State
	data  any
	err   error
}

// NewController validates the configuration against the collaborators it
// requires and returns a Controller in the Idle state.
func NewController(cfg *Config, client Doer, store swrcache.Store, revalidator Revalidator, logger zerolog.Logger) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if store == nil && (cfg.OptimisticData != nil || cfg.PopulateCache) {
		return nil, fmt.Errorf("a store is required for optimistic updates or cache population")
	}
	if revalidator == nil && (cfg.Revalidate || len(cfg.InvalidateKeys) > 0) {
		return nil, fmt.Errorf("a revalidator is required for revalidation or key invalidation")
	}
	if cfg.Key.IsNil() && (cfg.Request == nil || cfg.Request.URL == "") {
		return nil, fmt.Errorf("either a key or a request URL is required")
	}

	return &Controller{
		cfg:         *cfg,
		rollback:    boolOrDefault(cfg.RollbackOnError, true),
		throw:       boolOrDefault(cfg.ThrowOnError, true),
		client:      client,
		store:       store,
		revalidator: revalidator,
		logger:      logger.With().Str("component", "MutationController").Logger(),
		state:       StateIdle,
	}, nil
}

// Trigger executes the mutation with the given variables as the request
// body.
//
// With an override config the optimistic/cache machinery and the
// success/error callbacks are bypassed entirely: the merged request goes
// straight to the client and the response comes back as-is, extracted from
// the typed error when the call failed.
//
// Without an override, the optimistic write (if configured) brackets the
// transport call with either cache population on success or a
// compare-and-swap rollback on failure, so readers only ever observe the
// optimistic value or the final one.
func (c *Controller) Trigger(ctx context.Context, variables any, override ...*apiclient.RequestConfig) (*apiclient.Response, error) {
	c.setState(StatePending, nil, nil)

	reqCfg := c.buildRequest(variables, override...)

	for _, o := range override {
		if o != nil {
			return c.triggerDirect(ctx, reqCfg)
		}
	}

	storeKey := c.cfg.Key.Canonical()

	opt, err := c.applyOptimistic(ctx, storeKey)
	if err != nil {
		c.setState(StateFailed, nil, err)
		return nil, err
	}

	resp, err := c.client.Do(ctx, reqCfg)
	if err != nil {
		return c.settleFailure(ctx, storeKey, opt, err, variables)
	}
	return c.settleSuccess(ctx, storeKey, resp, variables)
}

// Reset returns the controller to Idle from any state, clearing the recorded
// data and error.
func (c *Controller) Reset() {
	c.setState(StateIdle, nil, nil)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Data returns the result of the last successful trigger.
func (c *Controller) Data() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Err returns the error of the last failed trigger.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// buildRequest merges, in order: the key-derived defaults, the mutation's
// base request, the variables as body, and the per-call override.
func (c *Controller) buildRequest(variables any, override ...*apiclient.RequestConfig) *apiclient.RequestConfig {
	base := &apiclient.RequestConfig{Method: "POST"}
	if url, ok := cachekey.ExtractURL(c.cfg.Key); ok {
		base.URL = url
	}

	sources := []*apiclient.RequestConfig{base, c.cfg.Request, {Data: variables}}
	sources = append(sources, override...)
	return apiclient.MergeRequestConfigs(sources...)
}

// triggerDirect is the override path: no cache machinery, no callbacks.
func (c *Controller) triggerDirect(ctx context.Context, reqCfg *apiclient.RequestConfig) (*apiclient.Response, error) {
	resp, err := c.client.Do(ctx, reqCfg)
	if err != nil {
		if typed, ok := apiclient.AsError(err); ok && typed.Response != nil {
			c.setState(StateFailed, nil, err)
			return typed.Response, nil
		}
		c.setState(StateFailed, nil, err)
		return nil, err
	}
	c.setState(StateSuccess, resp.Data, nil)
	return resp, nil
}

// applyOptimistic performs the speculative cache write, recording what is
// needed to revert it.
func (c *Controller) applyOptimistic(ctx context.Context, storeKey string) (*optimisticWrite, error) {
	if c.cfg.OptimisticData == nil {
		return nil, nil
	}

	current, existed, err := c.store.Read(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read current cache value: %w", err)
	}

	written, err := c.store.Write(ctx, storeKey, c.cfg.OptimisticData(current.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to write optimistic value: %w", err)
	}

	c.logger.Debug().Str("key", storeKey).Int64("version", written.Version).Msg("Optimistic value written.")
	return &optimisticWrite{version: written.Version, previous: current.Value, displaced: existed}, nil
}

// settleSuccess reconciles the cache after a successful call: population,
// revalidation, then every invalidation in order, all before OnSuccess.
func (c *Controller) settleSuccess(ctx context.Context, storeKey string, resp *apiclient.Response, variables any) (*apiclient.Response, error) {
	if c.cfg.PopulateCache {
		if _, err := c.store.Write(ctx, storeKey, resp.Data); err != nil {
			c.logger.Error().Err(err).Str("key", storeKey).Msg("Failed to populate cache with mutation result.")
		}
	}
	if c.cfg.Revalidate {
		if err := c.revalidator.Revalidate(ctx, storeKey); err != nil {
			c.logger.Error().Err(err).Str("key", storeKey).Msg("Failed to revalidate mutation key.")
		}
	}
	for _, key := range c.cfg.InvalidateKeys {
		if err := c.revalidator.Revalidate(ctx, key.Canonical()); err != nil {
			c.logger.Error().Err(err).Str("key", key.Canonical()).Msg("Failed to invalidate key.")
		}
	}

	if c.cfg.OnSuccess != nil {
		c.cfg.OnSuccess(resp.Data, variables)
	}
	c.setState(StateSuccess, resp.Data, nil)
	return resp, nil
}

// settleFailure reverts the optimistic write (version-checked, so a newer
// unrelated write is left alone), fires OnError, and shapes the result per
// the throw policy.
func (c *Controller) settleFailure(ctx context.Context, storeKey string, opt *optimisticWrite, callErr error, variables any) (*apiclient.Response, error) {
	if opt != nil && c.rollback {
		c.rollbackOptimistic(ctx, storeKey, opt)
	}

	if c.cfg.OnError != nil {
		c.cfg.OnError(callErr, variables)
	}
	c.setState(StateFailed, nil, callErr)

	typed, ok := apiclient.AsError(callErr)
	if !ok || typed.Response == nil {
		// Cannot happen through a Client, but guard against foreign Doers.
		return nil, callErr
	}
	if c.throw {
		return typed.Response, callErr
	}
	return typed.Response, nil
}

func (c *Controller) rollbackOptimistic(ctx context.Context, storeKey string, opt *optimisticWrite) {
	var reverted bool
	var err error
	if opt.displaced {
		reverted, err = c.store.CompareAndSwap(ctx, storeKey, opt.version, opt.previous)
	} else {
		reverted, err = c.store.CompareAndDelete(ctx, storeKey, opt.version)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("key", storeKey).Msg("Failed to roll back optimistic value.")
		return
	}
	if !reverted {
		// A newer write landed after the optimistic one; it wins.
		c.logger.Debug().Str("key", storeKey).Msg("Rollback skipped; cache entry was updated after the optimistic write.")
	}
}

func (c *Controller) setState(state State, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.data = data
	c.err = err
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
