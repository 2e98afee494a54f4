package kafka

import (
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	topics     map[string]int32
	createErr  error
	describeEr error

	created  *sarama.TopicDetail
	expanded int32
}

func (f *fakeAdmin) DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error) {
	if f.describeEr != nil {
		return nil, f.describeEr
	}
	out := make([]*sarama.TopicMetadata, 0, len(topics))
	for _, t := range topics {
		n, ok := f.topics[t]
		if !ok {
			out = append(out, &sarama.TopicMetadata{Name: t, Err: sarama.ErrUnknownTopicOrPartition})
			continue
		}
		md := &sarama.TopicMetadata{Name: t, Err: sarama.ErrNoError}
		for i := int32(0); i < n; i++ {
			md.Partitions = append(md.Partitions, &sarama.PartitionMetadata{ID: i})
		}
		out = append(out, md)
	}
	return out, nil
}

func (f *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = detail
	f.topics[topic] = detail.NumPartitions
	return nil
}

func (f *fakeAdmin) CreatePartitions(topic string, count int32, _ [][]int32, _ bool) error {
	f.expanded = count
	f.topics[topic] = count
	return nil
}

func TestEnsureTopic_CreatesMissing(t *testing.T) {
	admin := &fakeAdmin{topics: map[string]int32{}}
	cfg := DefaultConfig([]string{"k1:9092"})
	require.NoError(t, EnsureTopic(admin, "chat.events", cfg, nil))
	require.NotNil(t, admin.created)
	assert.Equal(t, cfg.PartitionsPerTopic, admin.created.NumPartitions)
	assert.Equal(t, "1", *admin.created.ConfigEntries["min.insync.replicas"])
}

func TestEnsureTopic_ExpandsPartitions(t *testing.T) {
	admin := &fakeAdmin{topics: map[string]int32{"chat.events": 2}}
	cfg := DefaultConfig(nil)
	require.NoError(t, EnsureTopic(admin, "chat.events", cfg, nil))
	assert.Nil(t, admin.created)
	assert.Equal(t, cfg.PartitionsPerTopic, admin.expanded)

	admin.expanded = 0
	require.NoError(t, EnsureTopic(admin, "chat.events", cfg, nil))
	assert.Zero(t, admin.expanded, "already wide enough")
}

func TestEnsureTopic_RaceAndErrors(t *testing.T) {
	admin := &fakeAdmin{topics: map[string]int32{}, createErr: &sarama.TopicError{Err: sarama.ErrTopicAlreadyExists}}
	assert.NoError(t, EnsureTopic(admin, "chat.events", DefaultConfig(nil), nil))

	admin = &fakeAdmin{topics: map[string]int32{}, describeEr: errors.New("no brokers")}
	assert.Error(t, EnsureTopic(admin, "chat.events", DefaultConfig(nil), nil))
}
