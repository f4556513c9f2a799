package testutil

import "testing"

const testRedisEnv = "MARCO_TEST_REDIS_ADDR"

// RedisAddr returns MARCO_TEST_REDIS_ADDR or skips the test.
func RedisAddr(t *testing.T) string {
	t.Helper()
	return envOrSkip(t, testRedisEnv)
}
