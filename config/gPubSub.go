package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// LedgerTaskMessage is the Pub/Sub payload for one queued ledger task.
// The worker reloads the task row by id; the message only routes it.
type LedgerTaskMessage struct {
	ID            int    `json:"id"`
	BusinessId    string `json:"business_id"`
	Action        string `json:"action"`
	CorrelationId string `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

// GetClient returns the shared Pub/Sub client, creating it on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is set.
func GetClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := pubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	err := retryWithBackoff(ctx, "pubsub project "+projectID, func() error {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err != nil {
			return err
		}
		pubsubClient = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pubsubClient, nil
}

func pubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

func CreateSubscriptionIfNotExists(ctx context.Context, client *pubsub.Client, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if name == "" {
		return nil, errors.New("subscription name is required")
	}
	if topic == nil {
		return nil, errors.New("topic is required")
	}

	sub := client.Subscription(name)
	subExists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription exists: %w", err)
	}
	if !subExists {
		// nacked tasks are redelivered after 10s, backing off to 10m
		sub, err = client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 60 * time.Second,
			RetryPolicy: &pubsub.RetryPolicy{
				MinimumBackoff: 10 * time.Second,
				MaximumBackoff: 10 * time.Minute,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create subscription %q: %w", name, err)
		}
	}
	return sub, nil
}

// PublishJSON publishes obj to topicName and returns the server-assigned message ID.
func PublishJSON(ctx context.Context, topicName string, obj any, attrs map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topic name is required")
	}
	client, err := GetClient(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}

// LedgerTaskTopic is the topic the outbox dispatcher publishes ledger tasks to.
func LedgerTaskTopic() string {
	return os.Getenv("PUBSUB_TOPIC")
}

// LedgerTaskSubscription is the subscription the worker drains.
func LedgerTaskSubscription() string {
	return os.Getenv("PUBSUB_SUBSCRIPTION")
}

// DomainEventTopic receives journal/ledger lifecycle notifications. Empty disables Pub/Sub events.
func DomainEventTopic() string {
	return os.Getenv("PUBSUB_EVENT_TOPIC")
}

// PubSubConfigured reports whether a project and a ledger task topic are set.
// Without them the worker runs ledger tasks in-process.
func PubSubConfigured() bool {
	return pubSubProjectID() != "" && LedgerTaskTopic() != ""
}
