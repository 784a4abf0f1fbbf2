package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/otp"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), StoreTimeout: time.Second}

	client := BuildRedisClient(context.Background(), cfg, nil, true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))

	down := &appconfig.Config{RedisAddr: "127.0.0.1:1", StoreTimeout: 100 * time.Millisecond}
	assert.Nil(t, BuildRedisClient(context.Background(), down, nil, true))
}

func TestBuildPersistence(t *testing.T) {
	p, err := BuildPersistence(context.Background(), &appconfig.Config{UseMemoryStore: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Stores.Doctors)
	assert.NotNil(t, p.Stores.Schedule)
	assert.NotNil(t, p.Stores.Appointments)
	assert.Nil(t, p.Pool)
	p.Close()

	_, err = BuildPersistence(context.Background(), &appconfig.Config{}, nil)
	assert.Error(t, err)
}

func TestPostgresStores(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	stores := PostgresStores(pool)
	assert.NotNil(t, stores.Doctors)
	assert.NotNil(t, stores.Schedule)
	assert.NotNil(t, stores.Blocked)
	assert.NotNil(t, stores.Appointments)
	assert.NotNil(t, stores.Patients)
}

func TestBuildOTP(t *testing.T) {
	logger := logging.Default()
	cfg := &appconfig.Config{StoreTimeout: time.Second}
	stores := MemoryStores()

	assert.Nil(t, BuildOTP(cfg, nil, stores, nil, nil, logger))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr(), StoreTimeout: time.Second}, logger, false)
	t.Cleanup(func() { _ = client.Close() })
	svc := BuildOTP(cfg, client, stores, nil, nil, logger)
	require.NotNil(t, svc)
	assert.IsType(t, &otp.Service{}, svc)
}

func TestBuildSMSSender(t *testing.T) {
	logger := logging.Default()
	assert.IsType(t, &otp.LogSender{}, BuildSMSSender(&appconfig.Config{}, logger))

	cfg := &appconfig.Config{TwilioAccountSID: "AC1", TwilioAuthToken: "tok", TwilioFromNumber: "+212600000000", GatewayTimeout: time.Second}
	assert.IsType(t, &otp.TwilioSender{}, BuildSMSSender(cfg, logger))
}

func TestBuildAssistantDisabledWithoutKey(t *testing.T) {
	h, closeFn, err := BuildAssistant(context.Background(), &appconfig.Config{}, nil, nil, logging.Default())
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.NoError(t, closeFn())
}
