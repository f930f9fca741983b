package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	cc "github.com/klinikos/medsync/internal/central/config"
)

// AttachmentService hands out presigned S3 URLs so attachment bytes flow
// between an instance and object storage without passing through this
// process.
type AttachmentService struct {
	config *cc.Config
}

func NewAttachmentService(config *cc.Config) *AttachmentService {
	return &AttachmentService{config: config}
}

func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("attachments/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return s3.NewPresignClient(client), nil
}

func (s *AttachmentService) GetPresignedPutUrl(ctx context.Context) (string, string, error) {

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := GetRandomStorageKey()

	// Presigned PUT
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

func (s *AttachmentService) GetPresignedGetUrl(ctx context.Context, key string) (string, error) {

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	// Presigned GET
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
