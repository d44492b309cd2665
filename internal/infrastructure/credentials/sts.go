package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/batch"
	"github.com/objectstage/batch-api/internal/infrastructure/awsconn"
)

// STSBroker exchanges the service identity for temporary role credentials.
type STSBroker struct {
	client  *sts.Client
	roleArn string
	log     zerolog.Logger
}

func NewSTSBroker(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*STSBroker, error) {
	awsCfg, err := awsconn.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &STSBroker{
		client:  sts.NewFromConfig(awsCfg),
		roleArn: cfg.AWSRoleArn,
		log:     log.With().Str("component", "sts-broker").Logger(),
	}, nil
}

// AssumeRole mints temporary credentials scoped to the configured role,
// tagged with sessionName for auditability.
func (b *STSBroker) AssumeRole(ctx context.Context, sessionName string) (*batch.Credentials, error) {
	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(b.roleArn),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		b.log.Error().Err(err).Str("session_name", sessionName).Msg("assume role failed")
		return nil, fmt.Errorf("assume role %s: %w", b.roleArn, err)
	}

	creds := out.Credentials
	return &batch.Credentials{
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiration:      aws.ToTime(creds.Expiration),
	}, nil
}
