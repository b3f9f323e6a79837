package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/gcp"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client wraps the v2 SDK. It verifies the settlement topic plus whichever
// subscriptions the calling binary consumes, at startup and on Ping.
type Client struct {
	client        *pubsub.Client
	projectID     string
	cfg           config.PubSubConfig
	subscriptions []string
}

// NewClient connects and checks the settlement topic and each named
// subscription. Publishers pass no subscriptions.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, subscriptions ...string) (*Client, error) {
	projectID := strings.TrimSpace(gcpCfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	var required []string
	for _, name := range subscriptions {
		if name = strings.TrimSpace(name); name != "" {
			required = append(required, name)
		}
	}

	psClient, err := pubsub.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:        psClient,
		projectID:     projectID,
		cfg:           cfg,
		subscriptions: required,
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":         cfg.SettlementTopic,
			"subscriptions": required,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping confirms the topic and required subscriptions still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	topic := gcp.ResourceName(c.projectID, "topics", c.cfg.SettlementTopic)
	if topic == "" {
		return errors.New("pubsub settlement topic is required")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	if err := describe("topic", c.cfg.SettlementTopic, err); err != nil {
		return err
	}
	for _, name := range c.subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: gcp.ResourceName(c.projectID, "subscriptions", name),
		})
		if err := describe("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func (c *Client) subscriber(name string) *pubsub.Subscriber {
	full := gcp.ResourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// NotificationSubscription feeds the notification worker.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.subscriber(c.cfg.NotificationSubscription)
}

// AnalyticsSubscription feeds the BigQuery export worker.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.subscriber(c.cfg.AnalyticsSubscription)
}

// SettlementPublisher publishes to the settlement topic with message
// ordering on, so events sharing an ordering key arrive in order.
func (c *Client) SettlementPublisher() *pubsub.Publisher {
	full := gcp.ResourceName(c.projectID, "topics", c.cfg.SettlementTopic)
	if full == "" {
		return nil
	}
	pub := c.client.Publisher(full)
	pub.EnableMessageOrdering = true
	return pub
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
