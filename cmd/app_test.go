package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/purgectl/internal/config"
	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/invalidation/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestBuildStateStore(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	tests := []struct {
		name string
		cfg  config.StateConfig
	}{
		{name: "defaults to memory", cfg: config.StateConfig{TTLSeconds: 60}},
		{name: "redis", cfg: config.StateConfig{Backend: "redis", TTLSeconds: 60, Redis: config.RedisStateConfig{Address: server.Addr()}}},
		{name: "unreachable redis falls back", cfg: config.StateConfig{Backend: "redis", TTLSeconds: 60, Redis: config.RedisStateConfig{Address: "127.0.0.1:1"}}},
		{name: "unknown backend falls back", cfg: config.StateConfig{Backend: "etcd", TTLSeconds: 60}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := buildStateStore(newTestLogger(), tc.cfg)
			require.NotNil(t, store)
			t.Cleanup(func() { _ = store.Close(context.Background()) })

			ctx := context.Background()
			ok, err := store.CompareAndSet(ctx, "k", 0, state.State{RetryToken: "t"})
			require.NoError(t, err)
			require.True(t, ok)
			got, found, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "t", got.RetryToken)
		})
	}
}

func TestBuildCDNClient(t *testing.T) {
	client, err := buildCDNClient(context.Background(), newTestLogger(), config.CDNConfig{Provider: "memory"})
	require.NoError(t, err)
	require.IsType(t, &cdn.Memory{}, client)

	_, err = buildCDNClient(context.Background(), newTestLogger(), config.CDNConfig{Provider: "fastly"})
	require.Error(t, err)
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Listen.Address = "127.0.0.1"
	cfg.Server.Listen.Port = 0
	cfg.Server.Admin.Token = "tok"
	cfg.CDN.DistributionID = "E1"
	cfg.CDN.BaseURL = "https://example.com/"
	return cfg
}

func startApp(t *testing.T, cfg config.Config) (*app, *httpexpect.Expect) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	application, err := newApp(ctx, cfg, newTestLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- application.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("app run: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("app did not stop")
		}
		application.close(context.Background())
	})

	client := &http.Client{Timeout: 5 * time.Second}
	require.Eventually(t, func() bool {
		addr := application.server.Addr()
		if addr == "127.0.0.1:0" {
			return false
		}
		resp, err := client.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	return application, httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  "http://" + application.server.Addr(),
		Reporter: httpexpect.NewRequireReporter(t),
		Client:   client,
	})
}

func TestAppEndToEnd(t *testing.T) {
	_, e := startApp(t, testConfig())

	event := map[string]any{
		"entity":    map[string]any{"id": "7", "type": "post", "permalink": "https://example.com/posts/x"},
		"oldStatus": "draft",
		"newStatus": "publish",
	}
	e.POST("/events").WithHeader("Authorization", "Bearer tok").WithJSON(event).Expect().
		Status(http.StatusAccepted).
		JSON().Object().Value("outcome").String().IsEqual("success")

	e.POST("/events").WithHeader("Authorization", "Bearer tok").WithJSON(event).Expect().
		Status(http.StatusAccepted).
		JSON().Object().Value("outcome").String().IsEqual("deferred")

	e.POST("/events").WithJSON(event).Expect().Status(http.StatusUnauthorized)

	e.POST("/events").WithHeader("Authorization", "Bearer tok").WithJSON(map[string]any{
		"entity":    map[string]any{"id": "8", "permalink": "/posts/y"},
		"oldStatus": "draft",
		"newStatus": "draft",
	}).Expect().
		Status(http.StatusAccepted).
		JSON().Object().Value("outcome").String().IsEqual("skipped")

	e.GET("/invalidations").Expect().Status(http.StatusOK).
		JSON().Object().Value("invalidations").Array().Length().IsEqual(1)

	e.POST("/invalidations/all").Expect().Status(http.StatusUnauthorized)
	e.POST("/invalidations/all").WithHeader("Authorization", "Bearer tok").Expect().
		Status(http.StatusOK).
		JSON().Object().Value("outcome").String().IsEqual("success")

	e.GET("/invalidations").Expect().Status(http.StatusOK).
		JSON().Object().Value("invalidations").Array().Length().IsEqual(2)

	e.GET("/metrics").Expect().Status(http.StatusOK).
		Body().Contains("purgectl_invalidation_requests_total")
}

func TestAppConsumesRedisEvents(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	cfg := testConfig()
	cfg.Events.Redis = config.PubSubConfig{Enabled: true, Address: server.Addr(), Channel: "purgectl:events"}
	cfg.Notify.Redis = config.PubSubConfig{Enabled: true, Address: server.Addr(), Channel: "purgectl:notices"}
	application, e := startApp(t, cfg)

	select {
	case <-application.subscriber.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber not ready")
	}

	publisher := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = publisher.Close() })
	require.NoError(t, publisher.Publish(context.Background(), "purgectl:events",
		`{"entity":{"id":"7","permalink":"/posts/x"},"oldStatus":"publish","newStatus":"trash"}`).Err())

	require.Eventually(t, func() bool {
		items, err := application.dispatcher.ListRecentInvalidations(context.Background())
		return err == nil && len(items) == 1
	}, 3*time.Second, 20*time.Millisecond)

	e.GET("/invalidations").Expect().Status(http.StatusOK).
		JSON().Object().Value("invalidations").Array().Length().IsEqual(1)
}

func TestAppReload(t *testing.T) {
	application, err := newApp(context.Background(), testConfig(), newTestLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { application.close(context.Background()) })

	next := testConfig()
	next.CDN.DistributionID = "E2"
	next.Policy.InvalidationExpression = "false"
	application.reload(next)
	require.Equal(t, "E2", application.live.DistributionID())

	broken := next
	broken.CDN.DistributionID = "E3"
	broken.Policy.InvalidationExpression = "result &&"
	application.reload(broken)
	require.Equal(t, "E2", application.live.DistributionID(), "rejected reload keeps the previous snapshot")
}

func TestNewAppReleasesStoreOnError(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	cfg := testConfig()
	cfg.State.Backend = "redis"
	cfg.State.Redis.Address = server.Addr()
	cfg.CDN.Provider = "fastly"

	_, err = newApp(context.Background(), cfg, newTestLogger(), prometheus.NewRegistry())
	require.Error(t, err)
	require.Positive(t, server.TotalConnectionCount())
	require.Eventually(t, func() bool {
		return server.CurrentConnectionCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRunRejectsUnknownFlags(t *testing.T) {
	require.Equal(t, 2, run(context.Background(), []string{"-no-such-flag"}))
}
