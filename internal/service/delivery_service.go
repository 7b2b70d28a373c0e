package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/config"
	"github.com/GTDGit/schemagate/internal/metrics"
	"github.com/GTDGit/schemagate/internal/models"
)

const artifactContentType = "application/ld+json"

// Publisher writes an artifact body where the storefront can read it.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
}

// SyncMarker records confirmed deliveries.
type SyncMarker interface {
	MarkSynced(ctx context.Context, productID, fingerprint string) (bool, error)
}

// ArtifactKey is the object key of a product's published artifact.
func ArtifactKey(shop, productID string) string {
	return fmt.Sprintf("schemas/%s/%s.json", shop, productID)
}

// DeliveryService publishes persisted artifacts and flips is_synced once the
// publisher confirmed the write.
type DeliveryService struct {
	publisher Publisher
	marker    SyncMarker
	notifier  Notifier
}

// NewDeliveryService constructs a DeliveryService.
func NewDeliveryService(publisher Publisher, marker SyncMarker) *DeliveryService {
	return &DeliveryService{publisher: publisher, marker: marker, notifier: NopNotifier{}}
}

// SetNotifier sets the receiver of delivery events.
func (s *DeliveryService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Deliver publishes rec's artifact and marks it synced. A record regenerated
// while the publish was in flight stays unsynced.
func (s *DeliveryService) Deliver(ctx context.Context, rec *models.ProductRecord) error {
	if rec.Artifact == nil || rec.ContentFingerprint == nil {
		return errors.New("record has no artifact to deliver")
	}

	body, err := json.Marshal(rec.Artifact)
	if err != nil {
		metrics.DeliveryTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	key := ArtifactKey(rec.Shop, rec.ProductID)
	if err := s.publisher.Publish(ctx, key, body); err != nil {
		metrics.DeliveryTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s: %w", key, err)
	}

	synced, err := s.marker.MarkSynced(ctx, rec.ProductID, *rec.ContentFingerprint)
	if err != nil {
		metrics.DeliveryTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("mark %s synced: %w", rec.ProductID, err)
	}
	if !synced {
		metrics.DeliveryTotal.WithLabelValues("stale").Inc()
		log.Debug().Str("product_id", rec.ProductID).Msg("delivered artifact was superseded before sync")
		return nil
	}

	metrics.DeliveryTotal.WithLabelValues("published").Inc()
	s.notifier.NotifyArtifactDelivered(rec)
	log.Info().Str("shop", rec.Shop).Str("product_id", rec.ProductID).Str("key", key).Msg("artifact delivered")
	return nil
}

// S3PutObjectAPI is the subset of the S3 client used for publishing.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher publishes artifacts to an S3 (or S3-compatible) bucket.
type S3Publisher struct {
	client S3PutObjectAPI
	bucket string
}

// NewS3Publisher builds an S3 client from cfg. Static credentials are used
// when configured; otherwise the default AWS credential chain applies.
func NewS3Publisher(ctx context.Context, cfg *config.S3Config) (*S3Publisher, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3PublisherWithClient(client, cfg.Bucket), nil
}

// NewS3PublisherWithClient wraps an existing client.
func NewS3PublisherWithClient(client S3PutObjectAPI, bucket string) *S3Publisher {
	return &S3Publisher{client: client, bucket: bucket}
}

// Publish uploads body under key as JSON-LD.
func (p *S3Publisher) Publish(ctx context.Context, key string, body []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(artifactContentType),
		CacheControl: aws.String("max-age=300"),
	})
	return err
}
