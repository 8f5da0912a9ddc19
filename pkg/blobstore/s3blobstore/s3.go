// Writes your blobs to AWS S3 (or an S3-compatible service)
package s3blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/function61/casfs/pkg/blobstore"
)

type Config struct {
	Bucket          string
	Prefix          string
	AccessKeyId     string
	AccessKeySecret string
	RegionId        string
	Endpoint        string // empty = AWS proper. set for S3-compatible services (also forces path-style addressing)
}

func (c *Config) Serialize() string {
	parts := []string{c.Bucket, c.Prefix, c.AccessKeyId, c.AccessKeySecret, c.RegionId}
	if c.Endpoint != "" {
		parts = append(parts, c.Endpoint)
	}

	return strings.Join(parts, ":")
}

type s3blobstore struct {
	bucket string
	prefix string
	client *s3.S3
}

func New(conf Config) (*s3blobstore, error) {
	client, err := makeClient(conf)
	if err != nil {
		return nil, err
	}

	return &s3blobstore{
		bucket: conf.Bucket,
		prefix: conf.Prefix,
		client: client,
	}, nil
}

func NewFromOptionsString(opts string) (*s3blobstore, error) {
	conf, err := deserializeConfig(opts)
	if err != nil {
		return nil, err
	}

	return New(*conf)
}

func (g *s3blobstore) Put(ctx context.Context, key string, content io.Reader, checksumSha256 string) error {
	// the SDK internally requires retry support and therefore an io.ReadSeeker.
	// use content as-is when it already is seekable, otherwise we're forced to buffer.
	body, isSeeker := content.(io.ReadSeeker)
	if !isSeeker {
		buf, err := io.ReadAll(content)
		if err != nil {
			return err
		}

		body = bytes.NewReader(buf)
	}

	input := &s3.PutObjectInput{
		Bucket: &g.bucket,
		Key:    aws.String(g.prefix + key),
		Body:   body,
	}
	if checksumSha256 != "" {
		// S3 validates the uploaded bytes against this at its ingestion point
		// and persists it for GetObject's checksum mode
		input.ChecksumSHA256 = &checksumSha256
	}

	if _, err := g.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("s3 PutObject: %v", err)
	}

	return nil
}

func (g *s3blobstore) Get(ctx context.Context, key string) (*blobstore.FetchResult, error) {
	res, err := g.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket:       &g.bucket,
		Key:          aws.String(g.prefix + key),
		ChecksumMode: aws.String(s3.ChecksumModeEnabled),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("s3 GetObject %s: %w", key, fs.ErrNotExist)
		}

		return nil, fmt.Errorf("s3 GetObject: %v", err)
	}

	return &blobstore.FetchResult{
		Body:           res.Body,
		ChecksumSha256: aws.StringValue(res.ChecksumSHA256),
	}, nil
}

func (g *s3blobstore) Mountable(ctx context.Context) error {
	_, err := g.client.ListObjectsWithContext(ctx, &s3.ListObjectsInput{
		Bucket:  &g.bucket,
		MaxKeys: aws.Int64(1), // we'll just want to see that the access key works
	})
	return err
}

func makeClient(conf Config) (*s3.S3, error) {
	awsConf := &aws.Config{
		Credentials: credentials.NewStaticCredentials(conf.AccessKeyId, conf.AccessKeySecret, ""),
		Region:      aws.String(conf.RegionId),
	}

	if conf.Endpoint != "" {
		awsConf.Endpoint = aws.String(conf.Endpoint)
		awsConf.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, err
	}

	return s3.New(sess), nil
}

var deserializeConfigRe = regexp.MustCompile("^([^:]+):([^:]*):([^:]+):([^:]+):([^:]+?)(?::(.+))?$")

func deserializeConfig(serialized string) (*Config, error) {
	match := deserializeConfigRe.FindStringSubmatch(serialized)
	if match == nil {
		return nil, errors.New("s3 options not in format bucket:prefix:accessKeyId:secret:region[:endpoint]")
	}

	return &Config{
		Bucket:          match[1],
		Prefix:          match[2],
		AccessKeyId:     match[3],
		AccessKeySecret: match[4],
		RegionId:        match[5],
		Endpoint:        match[6],
	}, nil
}
