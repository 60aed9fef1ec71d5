package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/phautamaki/orchard/internal/testutil"
	"github.com/phautamaki/orchard/internal/wire"
	"github.com/phautamaki/orchard/pkg/api"
)

const redisTestPrefix = "orchard:test:"

type RedisStoreTestSuite struct {
	suite.Suite
	endpoint string
	store    *RedisStore
	client   *redis.Client
	ctx      context.Context
}

func TestRedisStoreTestSuite(t *testing.T) {
	testsuite := new(RedisStoreTestSuite)
	testsuite.endpoint = testutil.GetRedisAddress(t)
	initTestRedisStore(t, testsuite)
	suite.Run(t, testsuite)
}

// initTestRedisStore connects to Redis using the address in the suite and
// fills it with a Store under a test-specific prefix.
func initTestRedisStore(t *testing.T, ts *RedisStoreTestSuite) {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: ts.endpoint,
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	ts.client = client

	ctx := context.Background()
	ts.ctx = ctx
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	ts.store = NewRedisStore(client, redisTestPrefix, wire.CBOR())
}

func (r *RedisStoreTestSuite) SetupTest() {
	// Clean up all keys with this prefix.
	iter := r.client.Scan(r.ctx, 0, redisTestPrefix+"*", 0).Iterator()
	for iter.Next(r.ctx) {
		err := r.client.Del(r.ctx, iter.Val()).Err()
		r.NoErrorf(err, "redis DEL %q failed", iter.Val())
	}
	r.NoError(iter.Err(), "redis SCAN failed")
}

func (r *RedisStoreTestSuite) newRef() api.ObjectRef {
	ref, err := r.store.NewRef(r.ctx)
	r.Require().NoError(err, "NewRef failed")
	return ref
}

func (r *RedisStoreTestSuite) TestRawRoundTrip() {
	ref := r.newRef()

	r.NoError(r.store.PutRaw(r.ctx, ref, []byte("payload")))

	raw, err := r.store.IsRaw(r.ctx, ref)
	r.NoError(err)
	r.True(raw, "expected a raw object")

	data, err := r.store.GetRaw(r.ctx, ref)
	r.NoError(err)
	r.Equal("payload", string(data))
}

func (r *RedisStoreTestSuite) TestValueRoundTrip() {
	ref := r.newRef()
	val := &api.Value{Kind: api.KindList, List: []*api.Value{
		{Kind: api.KindFloat, Float: 0.5, Bits: 64},
		{Kind: api.KindRef, Ref: 3},
	}}

	r.NoError(r.store.PutValue(r.ctx, ref, val, []api.ObjectRef{3}))

	raw, err := r.store.IsRaw(r.ctx, ref)
	r.NoError(err)
	r.False(raw, "expected a structural object")

	got, err := r.store.GetValue(r.ctx, ref)
	r.NoError(err)
	if !reflect.DeepEqual(got, val) {
		r.Failf("unexpected value", "expected %+v, got %+v", val, got)
	}

	contained, err := r.store.Contained(r.ctx, ref)
	r.NoError(err)
	r.Equal([]api.ObjectRef{3}, contained)
}

func (r *RedisStoreTestSuite) TestWriteOnce() {
	ref := r.newRef()
	r.NoError(r.store.PutRaw(r.ctx, ref, []byte("a")))

	err := r.store.PutRaw(r.ctx, ref, []byte("b"))
	r.ErrorIs(err, ErrRefAlreadyWritten)

	target := r.newRef()
	err = r.store.Alias(r.ctx, ref, target)
	r.ErrorIs(err, ErrRefAlreadyWritten)
}

func (r *RedisStoreTestSuite) TestAliasOnce() {
	alias := r.newRef()
	target := r.newRef()
	other := r.newRef()

	r.NoError(r.store.Alias(r.ctx, alias, target))

	r.ErrorIs(r.store.Alias(r.ctx, alias, other), ErrRefAlreadyAliased)
	r.ErrorIs(r.store.PutRaw(r.ctx, alias, []byte("x")), ErrRefAlreadyAliased)
}

func (r *RedisStoreTestSuite) TestUnknownRef() {
	err := r.store.PutRaw(r.ctx, api.ObjectRef(99), []byte("x"))
	r.ErrorIs(err, ErrUnknownRef)

	_, err = r.store.GetRaw(r.ctx, api.ObjectRef(99))
	r.ErrorIs(err, ErrUnknownRef)
}

func (r *RedisStoreTestSuite) TestGetBlocksUntilPut() {
	ref := r.newRef()

	done := make(chan getResult, 1)
	go func() {
		data, err := r.store.GetRaw(r.ctx, ref)
		done <- getResult{data: data, err: err}
	}()

	time.Sleep(50 * time.Millisecond)
	r.NoError(r.store.PutRaw(r.ctx, ref, []byte("late")))

	select {
	case res := <-done:
		r.NoError(res.err)
		r.Equal("late", string(res.data))
	case <-time.After(5 * time.Second):
		r.Failf("timeout", "GetRaw did not return after the write")
	}
}

func (r *RedisStoreTestSuite) TestGetHonorsContextCancellation() {
	ref := r.newRef()

	ctx, cancel := context.WithTimeout(r.ctx, 50*time.Millisecond)
	defer cancel()

	_, err := r.store.GetRaw(ctx, ref)
	if !errors.Is(err, context.DeadlineExceeded) {
		r.Failf("unexpected error", "expected DeadlineExceeded, got %v", err)
	}
}

func (r *RedisStoreTestSuite) TestAliasChainAndCycles() {
	a := r.newRef()
	b := r.newRef()
	c := r.newRef()

	r.NoError(r.store.Alias(r.ctx, a, b))
	r.NoError(r.store.Alias(r.ctx, b, c))
	r.ErrorIs(r.store.Alias(r.ctx, c, a), ErrAliasCycle)

	r.NoError(r.store.PutRaw(r.ctx, c, []byte("end")))

	data, err := r.store.GetRaw(r.ctx, a)
	r.NoError(err)
	r.Equal("end", string(data))
}

func (r *RedisStoreTestSuite) TestStats() {
	rawRef := r.newRef()
	valRef := r.newRef()
	aliasRef := r.newRef()
	pendingRef := r.newRef()

	r.NoError(r.store.PutRaw(r.ctx, rawRef, []byte("x")))
	r.NoError(r.store.PutValue(r.ctx, valRef, sampleValue(), nil))
	r.NoError(r.store.Alias(r.ctx, aliasRef, rawRef))
	r.NoError(r.store.RequestRef(r.ctx, pendingRef))

	st, err := r.store.Stats(r.ctx)
	r.NoError(err)
	r.Equal(Stats{Allocated: 4, Objects: 2, Raw: 1, Aliases: 1, Requested: 1}, st)
}
