package kafka

import (
	"errors"
	"fmt"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// topicAdmin is the part of sarama.ClusterAdmin used here.
type topicAdmin interface {
	DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	CreatePartitions(topic string, count int32, assignment [][]int32, validateOnly bool) error
}

// EnsureTopic creates topic when missing and grows its partitions up to
// appCfg.PartitionsPerTopic. Kafka can only add partitions, never remove them.
func EnsureTopic(admin topicAdmin, topic string, appCfg AppConfig, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	descs, err := admin.DescribeTopics([]string{topic})
	if err != nil {
		return fmt.Errorf("describe topic %s: %w", topic, err)
	}
	exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

	if !exists {
		minISR := "1"
		if appCfg.ReplicationFactor >= 3 {
			minISR = "2"
		}
		td := &sarama.TopicDetail{
			NumPartitions:     appCfg.PartitionsPerTopic,
			ReplicationFactor: appCfg.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(topic, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				log.Info("topic exists (race)", zap.String("topic", topic))
				return nil
			}
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		log.Info("topic created", zap.String("topic", topic),
			zap.Int32("partitions", appCfg.PartitionsPerTopic), zap.Int16("rf", appCfg.ReplicationFactor))
		return nil
	}

	cur := int32(len(descs[0].Partitions))
	if appCfg.PartitionsPerTopic > cur {
		if err := admin.CreatePartitions(topic, appCfg.PartitionsPerTopic, nil, false); err != nil {
			return fmt.Errorf("expand partitions %s from %d to %d: %w", topic, cur, appCfg.PartitionsPerTopic, err)
		}
		log.Info("topic partitions expanded", zap.String("topic", topic),
			zap.Int32("from", cur), zap.Int32("to", appCfg.PartitionsPerTopic))
		return nil
	}
	log.Debug("topic exists", zap.String("topic", topic), zap.Int32("partitions", cur))
	return nil
}

// EnsureTopicOnCluster dials a cluster admin for c and runs EnsureTopic.
func EnsureTopicOnCluster(c AppConfig, topic string, log *zap.Logger) error {
	admin, err := sarama.NewClusterAdmin(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return fmt.Errorf("kafka admin: %w", err)
	}
	defer admin.Close()
	return EnsureTopic(admin, topic, c, log)
}

func strPtr(s string) *string { return &s }
