package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phautamaki/orchard/internal/wire"
	"github.com/phautamaki/orchard/pkg/api"
)

const redisPollInterval = 20 * time.Millisecond

// RedisStore is a Store backed by Redis, for clusters whose workers are
// spread across machines. It uses a simple key structure:
//
//	<prefix>next            => counter behind NewRef
//	<prefix>obj:<ref>       => gob-encoded redisObjectPayload
//	<prefix>idx:requested   => SET of refs marked by RequestRef
//	<prefix>count:<name>    => stats counters
//
// At-most-once writes ride on SET NX: the first writer of a ref wins and
// every later write or alias fails with the matching error.
type RedisStore struct {
	client *redis.Client
	prefix string
	codec  wire.Codec
}

var _ Store = (*RedisStore)(nil)

// redisObjectPayload is the envelope stored under an object key. Payload
// holds wire-encoded bytes for structural values and the raw bytes for raw
// objects.
type redisObjectPayload struct {
	Class     uint8
	Payload   []byte
	AliasTo   uint64
	Contained []uint64
}

// NewRedisStore creates a RedisStore. prefix is optional but recommended
// (e.g. "orchard:"). Structural values are persisted with codec.
func NewRedisStore(client *redis.Client, prefix string, codec wire.Codec) *RedisStore {
	if prefix == "" {
		prefix = "orchard:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		codec:  codec,
	}
}

func (s *RedisStore) keyNext() string {
	return s.prefix + "next"
}

func (s *RedisStore) keyObject(ref api.ObjectRef) string {
	return s.prefix + "obj:" + strconv.FormatUint(uint64(ref), 10)
}

func (s *RedisStore) keyRequested() string {
	return s.prefix + "idx:requested"
}

func (s *RedisStore) keyCount(name string) string {
	return s.prefix + "count:" + name
}

func encodeRedisObject(p *redisObjectPayload) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisObject(data []byte) (*redisObjectPayload, error) {
	var p redisObjectPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) NewRef(ctx context.Context) (api.ObjectRef, error) {
	n, err := s.client.Incr(ctx, s.keyNext()).Result()
	if err != nil {
		return api.NilRef, err
	}
	return api.ObjectRef(n), nil
}

// checkAllocated rejects refs the counter never handed out.
func (s *RedisStore) checkAllocated(ctx context.Context, ref api.ObjectRef) error {
	next, err := s.client.Get(ctx, s.keyNext()).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if ref == api.NilRef || uint64(ref) > next {
		return ErrUnknownRef
	}
	return nil
}

func (s *RedisStore) PutRaw(ctx context.Context, ref api.ObjectRef, data []byte) error {
	return s.put(ctx, ref, &redisObjectPayload{Class: classRaw, Payload: data})
}

func (s *RedisStore) PutValue(ctx context.Context, ref api.ObjectRef, val *api.Value, contained []api.ObjectRef) error {
	if val == nil {
		return fmt.Errorf("storing %s: nil value", ref)
	}
	payload, err := s.codec.Marshal(val)
	if err != nil {
		return fmt.Errorf("storing %s: %w", ref, err)
	}
	env := &redisObjectPayload{Class: classValue, Payload: payload}
	for _, c := range contained {
		env.Contained = append(env.Contained, uint64(c))
	}
	return s.put(ctx, ref, env)
}

func (s *RedisStore) put(ctx context.Context, ref api.ObjectRef, env *redisObjectPayload) error {
	if err := s.checkAllocated(ctx, ref); err != nil {
		return fmt.Errorf("storing %s: %w", ref, err)
	}
	data, err := encodeRedisObject(env)
	if err != nil {
		return fmt.Errorf("storing %s: %w", ref, err)
	}

	ok, err := s.client.SetNX(ctx, s.keyObject(ref), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return s.putConflict(ctx, ref)
	}

	// Stats counters are best-effort; the object write already succeeded.
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, s.keyCount("objects"))
	if env.Class == classRaw {
		pipe.Incr(ctx, s.keyCount("raw"))
	}
	_, _ = pipe.Exec(ctx)

	return nil
}

// putConflict turns a lost SET NX into the matching error.
func (s *RedisStore) putConflict(ctx context.Context, ref api.ObjectRef) error {
	data, err := s.client.Get(ctx, s.keyObject(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		// The winning write disappeared between SET NX and here. Refs are
		// never deleted, so treat it as the generic conflict.
		return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyWritten)
	}
	if err != nil {
		return err
	}
	env, err := decodeRedisObject(data)
	if err != nil {
		return fmt.Errorf("storing %s: %w", ref, err)
	}
	if env.Class == classAlias {
		return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyAliased)
	}
	return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyWritten)
}

func (s *RedisStore) GetRaw(ctx context.Context, ref api.ObjectRef) ([]byte, error) {
	env, err := s.await(ctx, ref)
	if err != nil {
		return nil, err
	}
	if env.Class != classRaw {
		return nil, fmt.Errorf("reading %s raw: %w", ref, ErrWrongClass)
	}
	return env.Payload, nil
}

func (s *RedisStore) GetValue(ctx context.Context, ref api.ObjectRef) (*api.Value, error) {
	env, err := s.await(ctx, ref)
	if err != nil {
		return nil, err
	}
	if env.Class != classValue {
		return nil, fmt.Errorf("reading %s: %w", ref, ErrWrongClass)
	}
	var val api.Value
	if err := s.codec.Unmarshal(env.Payload, &val); err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}
	return &val, nil
}

func (s *RedisStore) IsRaw(ctx context.Context, ref api.ObjectRef) (bool, error) {
	env, err := s.await(ctx, ref)
	if err != nil {
		return false, err
	}
	return env.Class == classRaw, nil
}

func (s *RedisStore) Contained(ctx context.Context, ref api.ObjectRef) ([]api.ObjectRef, error) {
	env, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("reading %s: not resolved", ref)
	}
	if env.Class != classValue {
		return nil, fmt.Errorf("reading %s contained refs: %w", ref, ErrWrongClass)
	}
	var contained []api.ObjectRef
	for _, c := range env.Contained {
		contained = append(contained, api.ObjectRef(c))
	}
	return contained, nil
}

func (s *RedisStore) Alias(ctx context.Context, alias, target api.ObjectRef) error {
	if err := s.checkAllocated(ctx, alias); err != nil {
		return fmt.Errorf("aliasing %s: %w", alias, err)
	}
	if err := s.checkAllocated(ctx, target); err != nil {
		return fmt.Errorf("aliasing %s to %s: %w", alias, target, err)
	}

	// Walk the target's chain; reaching the alias means the new edge would
	// close a loop. A concurrent alias can still race this walk, which is
	// why every resolve carries the hop guard.
	for r, hops := target, 0; ; hops++ {
		if hops > maxAliasHops {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrAliasCycle)
		}
		if r == alias {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrAliasCycle)
		}
		data, err := s.client.Get(ctx, s.keyObject(r)).Bytes()
		if errors.Is(err, redis.Nil) {
			break // pending end of chain
		}
		if err != nil {
			return err
		}
		env, err := decodeRedisObject(data)
		if err != nil {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, err)
		}
		if env.Class != classAlias {
			break
		}
		r = api.ObjectRef(env.AliasTo)
	}

	data, err := encodeRedisObject(&redisObjectPayload{Class: classAlias, AliasTo: uint64(target)})
	if err != nil {
		return fmt.Errorf("aliasing %s: %w", alias, err)
	}
	ok, err := s.client.SetNX(ctx, s.keyObject(alias), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		data, err := s.client.Get(ctx, s.keyObject(alias)).Bytes()
		if err == nil {
			if env, derr := decodeRedisObject(data); derr == nil && env.Class == classAlias {
				return fmt.Errorf("aliasing %s: %w", alias, ErrRefAlreadyAliased)
			}
		}
		return fmt.Errorf("aliasing %s: %w", alias, ErrRefAlreadyWritten)
	}

	_ = s.client.Incr(ctx, s.keyCount("aliases")).Err()
	return nil
}

func (s *RedisStore) RequestRef(ctx context.Context, ref api.ObjectRef) error {
	if err := s.checkAllocated(ctx, ref); err != nil {
		return fmt.Errorf("requesting %s: %w", ref, err)
	}
	return s.client.SAdd(ctx, s.keyRequested(), uint64(ref)).Err()
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	pipe := s.client.Pipeline()
	next := pipe.Get(ctx, s.keyNext())
	objects := pipe.Get(ctx, s.keyCount("objects"))
	raw := pipe.Get(ctx, s.keyCount("raw"))
	aliases := pipe.Get(ctx, s.keyCount("aliases"))
	requested := pipe.SCard(ctx, s.keyRequested())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}

	var st Stats
	st.Allocated = counterValue(next)
	st.Objects = counterValue(objects)
	st.Raw = counterValue(raw)
	st.Aliases = counterValue(aliases)
	st.Requested = int(requested.Val())
	return st, nil
}

func counterValue(cmd *redis.StringCmd) int {
	n, err := cmd.Int()
	if err != nil {
		return 0
	}
	return n
}

// await polls until ref's alias chain ends in a written object.
func (s *RedisStore) await(ctx context.Context, ref api.ObjectRef) (*redisObjectPayload, error) {
	ticker := time.NewTicker(redisPollInterval)
	defer ticker.Stop()

	for {
		env, err := s.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		if env != nil {
			return env, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// resolve follows ref's alias chain once. A nil payload with nil error
// means the chain is intact but its end is not written yet.
func (s *RedisStore) resolve(ctx context.Context, ref api.ObjectRef) (*redisObjectPayload, error) {
	for hops := 0; ; hops++ {
		if hops > maxAliasHops {
			return nil, fmt.Errorf("resolving %s: %w", ref, ErrAliasCycle)
		}
		data, err := s.client.Get(ctx, s.keyObject(ref)).Bytes()
		if errors.Is(err, redis.Nil) {
			if cerr := s.checkAllocated(ctx, ref); cerr != nil {
				return nil, fmt.Errorf("resolving %s: %w", ref, cerr)
			}
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		env, err := decodeRedisObject(data)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", ref, err)
		}
		if env.Class != classAlias {
			return env, nil
		}
		ref = api.ObjectRef(env.AliasTo)
	}
}
