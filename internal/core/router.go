package core

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/proto"
	"github.com/vovakirdan/wiremsg-server/internal/store"
)

// RosterSource resolves group membership. The router never mutates it.
type RosterSource interface {
	ListGroupMembers(ctx context.Context, groupID int64) ([]string, error)
}

// RouterOptions tunes the notify worker pool.
type RouterOptions struct {
	Workers       int
	Backlog       int
	LookupTimeout time.Duration
}

// Report summarises one delivery attempt.
type Report struct {
	Delivered int
	Offline   int
	Failed    int
}

// Router pushes persisted messages to the online recipients' connections.
// Delivery is best-effort: nothing here can fail the request that stored the message.
type Router struct {
	registry *Registry
	roster   RosterSource
	metrics  *Metrics
	log      *zerolog.Logger

	// shards[i] is drained by worker i only. Messages of one conversation always
	// hash to the same shard, so each recipient sees them in Notify order.
	shards        []chan *store.Message
	lookupTimeout time.Duration
}

// NewRouter creates a router. Call Run to start draining Notify.
func NewRouter(registry *Registry, roster RosterSource, opts RouterOptions, metrics *Metrics, logger *zerolog.Logger) *Router {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Backlog <= 0 {
		opts.Backlog = 1
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}

	perShard := (opts.Backlog + opts.Workers - 1) / opts.Workers
	shards := make([]chan *store.Message, opts.Workers)
	for i := range shards {
		shards[i] = make(chan *store.Message, perShard)
	}

	return &Router{
		registry:      registry,
		roster:        roster,
		metrics:       metrics,
		log:           logger,
		shards:        shards,
		lookupTimeout: opts.LookupTimeout,
	}
}

// Notify schedules live delivery of an already persisted message and returns immediately.
// It returns false when the conversation's backlog is full and the push was skipped.
func (r *Router) Notify(msg *store.Message) bool {
	shard := r.shards[xxhash.Sum64String(conversationKey(msg))%uint64(len(r.shards))]
	select {
	case shard <- msg:
		return true
	default:
		r.metrics.observeNotifyDropped()
		r.log.Warn().Int64("message_id", msg.ID).Msg("notify backlog full, skipping live delivery")
		return false
	}
}

// Run drains the notify backlog until ctx is cancelled, one worker per shard.
func (r *Router) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, shard := range r.shards {
		wg.Add(1)
		go func(jobs <-chan *store.Message) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-jobs:
					r.Deliver(ctx, msg)
				}
			}
		}(shard)
	}
	wg.Wait()
}

// conversationKey identifies the thread a message belongs to: the group, or the
// unordered sender/receiver pair.
func conversationKey(msg *store.Message) string {
	if msg.GroupID != nil {
		return "g:" + strconv.FormatInt(*msg.GroupID, 10)
	}
	if msg.Receiver == nil {
		return "d:" + msg.Sender
	}
	a, b := msg.Sender, *msg.Receiver
	if b < a {
		a, b = b, a
	}
	return "d:" + a + "\x00" + b
}

// Deliver resolves the recipients of msg and pushes it to each one that is online.
// The payload is encoded once and shared by every push.
func (r *Router) Deliver(ctx context.Context, msg *store.Message) Report {
	var report Report

	payload, err := proto.Encode(msg)
	if err != nil {
		r.log.Error().Err(err).Int64("message_id", msg.ID).Msg("encode message for push")
		return report
	}

	recipients, err := r.recipients(ctx, msg)
	if err != nil {
		r.metrics.observeLookupFailure()
		r.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("recipient lookup failed, message stays in history")
		return report
	}

	for _, user := range recipients {
		conn, ok := r.registry.Resolve(user)
		if !ok {
			report.Offline++
			r.metrics.observePush(resultOffline)
			continue
		}

		err := safePush(conn, payload)
		result := pushResult(err)
		r.metrics.observePush(result)
		if err != nil {
			report.Failed++
			r.log.Warn().Err(err).Str("user", user).Str("result", result).
				Int64("message_id", msg.ID).Msg("live push failed")
			continue
		}
		report.Delivered++
	}

	r.log.Debug().Int64("message_id", msg.ID).
		Int("delivered", report.Delivered).Int("offline", report.Offline).Int("failed", report.Failed).
		Msg("message delivered")
	return report
}

// recipients lists who should see msg. The registry lock is never held here.
func (r *Router) recipients(ctx context.Context, msg *store.Message) ([]string, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if msg.IsGroup() {
		lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()

		members, err := r.roster.ListGroupMembers(lookupCtx, *msg.GroupID)
		if err != nil {
			return nil, fmt.Errorf("group %d roster: %w", *msg.GroupID, err)
		}
		return dedupe(members), nil
	}

	// Sender gets an echo on its own channel, but only once when messaging itself.
	receiver := *msg.Receiver
	if msg.Sender == receiver {
		return []string{receiver}, nil
	}
	return []string{receiver, msg.Sender}, nil
}

func safePush(conn Connection, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("push panicked: %v", p)
		}
	}()
	return conn.Push(payload)
}

func dedupe(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
