package source

import (
	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Topic helper
// ---------------------------------------------------------------------------

// EnsureTopic creates topic if it does not exist. created is false when the
// topic was already there.
func EnsureTopic(brokers []string, topic string, partitions int32, replication int16) (created bool, err error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	if err != nil {
		return false, errors.Wrap(err, "admin connect")
	}
	defer admin.Close()

	err = admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	}, false)
	if err == nil {
		return true, nil
	}
	if topicExists(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "create topic %s", topic)
}

func topicExists(err error) bool {
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) {
		return topicErr.Err == sarama.ErrTopicAlreadyExists
	}
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}
