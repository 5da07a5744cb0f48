package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values    map[string]any
	ttls      map[string]time.Duration
	hashes    map[string]map[string]any
	deleted   []string
	pipelines int
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]any),
		ttls:   make(map[string]time.Duration),
		hashes: make(map[string]map[string]any),
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = value
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	f.ttls[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	h := f.hashes[key]
	if h == nil {
		h = make(map[string]any)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1]
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) Pipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &fakePipe{f: f}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	f.pipelines++
	for _, cmd := range pipe.cmds {
		if err := cmd.Err(); err != nil {
			return pipe.cmds, err
		}
	}
	return pipe.cmds, nil
}

// fakePipe applies each queued command to the fake right away. Only the
// commands the registry queues are implemented.
type fakePipe struct {
	redis.Pipeliner
	f    *fakeRedis
	cmds []redis.Cmder
}

func (p *fakePipe) Expire(ctx context.Context, key string, exp time.Duration) *redis.BoolCmd {
	cmd := p.f.Expire(ctx, key, exp)
	p.cmds = append(p.cmds, cmd)
	return cmd
}

func (p *fakePipe) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	cmd := p.f.HSet(ctx, key, values...)
	p.cmds = append(p.cmds, cmd)
	return cmd
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.deleted = append(f.deleted, keys...)
	for _, k := range keys {
		delete(f.values, k)
		delete(f.hashes, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisRegistryLifecycle(t *testing.T) {
	client := newFakeRedis()
	r := NewRedisRegistry(client, "iec104:sess:", 5*time.Minute)
	ctx := context.Background()
	s := testSession()

	key := r.SessionKey(s)
	assert.Equal(t, "iec104:sess:node-01:7", key)

	require.NoError(t, r.SessionOpened(ctx, s))
	assert.Equal(t, "node-01|10.0.0.5:40000|1700000000000", client.values[key])
	assert.Equal(t, 5*time.Minute, client.ttls[key])

	require.NoError(t, r.FrameReceived(ctx, s, testFrame(t)))
	assert.Equal(t, 1, client.pipelines)
	last := client.hashes[key+":last"]
	require.NotNil(t, last)
	assert.Equal(t, "U", last["kind"])
	assert.Equal(t, 6, last["length"])
	assert.Equal(t, int64(1700000000123), last["ts"])
	assert.Equal(t, 5*time.Minute, client.ttls[key+":last"])

	require.NoError(t, r.SessionClosed(ctx, s, "peer_closed"))
	assert.ElementsMatch(t, []string{key, key + ":last"}, client.deleted)
	assert.NotContains(t, client.values, key)
}

func TestRedisRegistryErrors(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	r := NewRedisRegistry(client, "p:", time.Minute)
	ctx := context.Background()

	assert.ErrorContains(t, r.SessionOpened(ctx, testSession()), "register session")
	assert.ErrorContains(t, r.FrameReceived(ctx, testSession(), testFrame(t)), "refresh session")
	assert.ErrorContains(t, r.SessionClosed(ctx, testSession(), "io_error"), "remove session")
}
