package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCreateConsumerGroup_FreshStream(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	// 生产者尚未写入任何消息时也必须能创建消费者组
	err := CreateConsumerGroup(ctx, client, "fresh-stream", "group-1")
	require.NoError(t, err)

	// 组创建后可以直接发布和消费
	_, err = PublishJSONToStream(ctx, client, "fresh-stream", map[string]string{"hello": "world"})
	require.NoError(t, err)

	messages, err := ReadFromStream(ctx, client, "fresh-stream", "group-1", "consumer-1", 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "stream-1", "group-1"))
	// 重复创建同一个组不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "stream-1", "group-1"))
}

func TestCreateConsumerGroup_ExistingStream(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	// 组创建前发布的消息从 "0" 起始位置仍可消费
	_, err := PublishJSONToStream(ctx, client, "stream-1", map[string]string{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, CreateConsumerGroup(ctx, client, "stream-1", "group-1"))

	messages, err := ReadFromStream(ctx, client, "stream-1", "group-1", "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.NoError(t, AckMessage(ctx, client, "stream-1", "group-1", messages[0].ID))
}
