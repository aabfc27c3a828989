package destination

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
)

// snsClientPool caches SNS clients per credential source. Insertion and
// lookup use the same derived key.
type snsClientPool struct {
	mu      sync.Mutex
	clients map[string]*sns.Client
}

func newSNSClientPool() *snsClientPool {
	return &snsClientPool{clients: make(map[string]*sns.Client)}
}

// clientCacheKey derives the cache key from the credential source: the
// static-credential pair when SNS static mode is enabled, the role ARN
// otherwise.
func clientCacheKey(dest models.Destination, aws settings.AWSSettings) string {
	if aws.SNSEnabled && aws.AccessKey != "" {
		sum := sha256.Sum256([]byte(aws.AccessKey + "|" + aws.SecretKey))
		return "static:" + hex.EncodeToString(sum[:8])
	}
	return "role:" + dest.RoleARN
}

func (p *snsClientPool) client(ctx context.Context, dest models.Destination, aws settings.AWSSettings) (*sns.Client, error) {
	region, err := regionFromARN(dest.TopicARN)
	if err != nil {
		return nil, err
	}

	key := clientCacheKey(dest, aws)

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[key]; ok {
		return client, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if aws.SNSEnabled && aws.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(aws.AccessKey, aws.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := sns.NewFromConfig(cfg)
	p.clients[key] = client
	return client, nil
}

// Invalidate drops cached clients so the next publish rebuilds them with
// fresh credentials. Called by the settings reload path.
func (p *snsClientPool) Invalidate() {
	p.mu.Lock()
	p.clients = make(map[string]*sns.Client)
	p.mu.Unlock()
}

// InvalidateSNSClients drops the registry's cached SNS clients.
func (r *Registry) InvalidateSNSClients() {
	r.sns.Invalidate()
}

func (p *snsClientPool) publish(ctx context.Context, dest models.Destination, subject, message string, aws settings.AWSSettings) (string, error) {
	client, err := p.client(ctx, dest, aws)
	if err != nil {
		return "", err
	}

	input := &sns.PublishInput{
		TopicArn: awssdk.String(dest.TopicARN),
		Message:  awssdk.String(message),
	}
	if subject != "" {
		input.Subject = awssdk.String(subject)
	}

	out, err := client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("SNS publish failed: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}

// regionFromARN extracts the region from a topic ARN
// (arn:aws:sns:<region>:<account>:<topic>).
func regionFromARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 || parts[0] != "arn" || parts[2] != "sns" || parts[3] == "" {
		return "", fmt.Errorf("invalid SNS topic ARN %q", arn)
	}
	return parts[3], nil
}
