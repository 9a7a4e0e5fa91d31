package signing

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"
)

// SigV4Signer signs outbound HTTP requests with AWS Signature Version 4, for
// providers whose chat endpoint sits behind IAM authentication. Credentials
// come from the standard AWS credential chain (environment, shared config,
// instance roles).
type SigV4Signer struct {
	credentials aws.CredentialsProvider
	region      string
	service     string
	signer      *v4.Signer
	configured  bool
}

// NewSigV4Signer loads credentials from the default chain. The returned
// signer is always non-nil; IsConfigured reports whether signing can succeed.
func NewSigV4Signer(region, service string) *SigV4Signer {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	if service == "" {
		service = "bedrock"
	}

	s := &SigV4Signer{
		region:  region,
		service: service,
		signer:  v4.NewSigner(),
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load AWS config for sigv4 signer")
		return s
	}

	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		log.Debug().Err(err).Msg("no AWS credentials available for sigv4 signer")
		return s
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		log.Debug().Msg("AWS credentials are empty, sigv4 signer not configured")
		return s
	}

	s.credentials = cfg.Credentials
	s.configured = true

	log.Info().
		Str("region", region).
		Str("service", service).
		Msg("sigv4 signer initialized")

	return s
}

// IsConfigured returns true if AWS credentials are available for signing.
func (s *SigV4Signer) IsConfigured() bool {
	return s.configured
}

// Region returns the configured AWS region.
func (s *SigV4Signer) Region() string {
	return s.region
}

// SignRequest signs req in place. The request's URL and Host must already
// point at the target endpoint; body is needed for the payload hash.
func (s *SigV4Signer) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	if !s.configured {
		return fmt.Errorf("sigv4 signer not configured: no AWS credentials available")
	}

	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, s.service, s.region, time.Now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}
