package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// MessageFunc handles one consumed message. Returning an error leaves the
// message unmarked.
type MessageFunc func(msg *sarama.ConsumerMessage) error

type ConsumerGroupHandler struct {
	Handle MessageFunc
	Log    logrus.FieldLogger
}

func (ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.Handle(msg); err != nil {
			h.Log.WithError(err).WithFields(logrus.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("handle message failed")
			continue
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// StartSaramaConsumer consumes topics until ctx is done.
func StartSaramaConsumer(ctx context.Context, cfg *sarama.Config, brokers []string, groupID string, topics []string, handler ConsumerGroupHandler) error {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return fmt.Errorf("new consumer group: %w", err)
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			handler.Log.WithError(err).Error("close consumer group")
		}
	}()

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			handler.Log.WithError(err).Warn("consume error")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
