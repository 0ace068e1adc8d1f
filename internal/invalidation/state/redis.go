package state

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      RedisTLSConfig
}

// compareAndSetScript stores the state as a hash of (rev, state) and only
// overwrites it when rev still matches the caller's expectation.
const compareAndSetScript = `
local current = redis.call('HGET', KEYS[1], 'rev')
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'rev', ARGV[2], 'state', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`

type redisStore struct {
	client valkey.Client
	cas    *valkey.Lua
	ttl    time.Duration
}

// NewRedis returns a Store backed by Redis/Valkey. State survives restarts of
// this process for as long as the TTL allows.
func NewRedis(cfg RedisConfig, ttl time.Duration) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("state: redis address required")
	}
	if ttl <= 0 {
		return nil, errors.New("state: redis ttl required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("state: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("state: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("state: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("state: redis ping: %w", err)
	}

	return &redisStore{client: client, cas: valkey.NewLuaScript(compareAndSetScript), ttl: ttl}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (State, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Hmget().Key(key).Field("rev", "state").Build())
	fields, err := resp.ToArray()
	if err != nil {
		return State{}, false, fmt.Errorf("%w: redis hmget: %w", ErrUnavailable, err)
	}
	if len(fields) != 2 || fields[0].IsNil() || fields[1].IsNil() {
		return State{}, false, nil
	}
	rawRev, err := fields[0].ToString()
	if err != nil {
		return State{}, false, fmt.Errorf("state: redis rev: %w", err)
	}
	revision, err := strconv.ParseInt(rawRev, 10, 64)
	if err != nil {
		return State{}, false, fmt.Errorf("state: redis rev %q: %w", rawRev, err)
	}
	payload, err := fields[1].ToString()
	if err != nil {
		return State{}, false, fmt.Errorf("state: redis state: %w", err)
	}
	var st State
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return State{}, false, fmt.Errorf("state: redis unmarshal: %w", err)
	}
	st.Revision = revision
	return st, true, nil
}

func (s *redisStore) CompareAndSet(ctx context.Context, key string, expected int64, next State) (bool, error) {
	next.Revision = expected + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("state: redis marshal: %w", err)
	}
	args := []string{
		strconv.FormatInt(expected, 10),
		strconv.FormatInt(next.Revision, 10),
		string(payload),
		strconv.FormatInt(s.ttl.Milliseconds(), 10),
	}
	applied, err := s.cas.Exec(ctx, s.client, []string{key}, args).AsInt64()
	if err != nil {
		return false, fmt.Errorf("%w: redis compare-and-set: %w", ErrUnavailable, err)
	}
	return applied == 1, nil
}

func (s *redisStore) Close(context.Context) error {
	s.client.Close()
	return nil
}
