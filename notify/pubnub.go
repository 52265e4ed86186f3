package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"service-queue/models"

	pubnubgo "github.com/pubnub/go/v7"
)

var _ Publisher = (*pubnubPublisher)(nil)

type PubNubConfig struct {
	PublishKey, SubscribeKey, SecretKey, UserID string
	// Origin overrides the PubNub host, e.g. "http://pubnub-proxy:8080".
	Origin string
}

// Publisher sends one message to one realtime channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

func NewPubNubPublisher(cfg *PubNubConfig) (Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[NewPubNubPublisher] cfg: must not be nil")
	}
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		return nil, fmt.Errorf("[NewPubNubPublisher] publish and subscribe keys are required")
	}

	pnCfg := pubnubgo.NewConfigWithUserId(pubnubgo.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey
	if cfg.Origin != "" {
		origin, err := url.Parse(cfg.Origin)
		if err != nil || origin.Host == "" {
			return nil, fmt.Errorf("[NewPubNubPublisher] origin %q: must be an absolute url", cfg.Origin)
		}
		pnCfg.Origin = origin.Host
		pnCfg.Secure = origin.Scheme != "http"
	}

	return &pubnubPublisher{pn: pubnubgo.NewPubNub(pnCfg)}, nil
}

type pubnubPublisher struct {
	pn *pubnubgo.PubNub
}

func (p *pubnubPublisher) Publish(ctx context.Context, channel string, message any) error {
	_, _, err := p.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(message).
		Execute()
	return err
}

func LocationChannel(locationID string) string {
	return fmt.Sprintf("location-%s", locationID)
}

func CustomerChannel(customerID string) string {
	return fmt.Sprintf("customer-%s", customerID)
}

// PubNubSink fans queue events out to realtime channels: every event goes to
// the location channel, entry events also reach the customer channel.
type PubNubSink struct {
	publisher Publisher
}

func NewPubNubSink(publisher Publisher) *PubNubSink {
	return &PubNubSink{publisher: publisher}
}

func (s *PubNubSink) Publish(ctx context.Context, event models.Event) error {
	env, err := models.NewEnvelope(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Kind(), err)
	}
	return s.PublishEnvelope(ctx, env)
}

func (s *PubNubSink) PublishEnvelope(ctx context.Context, env models.EventEnvelope) error {
	var errs []error
	if err := s.publisher.Publish(ctx, LocationChannel(env.LocationID), env); err != nil {
		errs = append(errs, fmt.Errorf("publish to location %s: %w", env.LocationID, err))
	}
	if env.CustomerID != "" {
		if err := s.publisher.Publish(ctx, CustomerChannel(env.CustomerID), env); err != nil {
			errs = append(errs, fmt.Errorf("publish to customer %s: %w", env.CustomerID, err))
		}
	}
	return errors.Join(errs...)
}
