package providers

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Provider stores archives in an S3-compatible bucket.
type S3Provider struct {
	bucket     string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Provider creates an S3Provider. When accessKey is empty the default
// credential chain (environment, shared config, instance role) is used.
func NewS3Provider(ctx context.Context, bucket, region, accessKey, secretKey string) (*S3Provider, error) {
	if bucket == "" || region == "" {
		return nil, errors.New("s3 bucket and region are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Provider{
		bucket:     bucket,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}, nil
}

// Upload sends a local file to the bucket, compressing when the key asks
// for it.
func (p *S3Provider) Upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	var body io.Reader = f
	if strings.HasSuffix(remotePath, ".gz") {
		pr, pw := io.Pipe()
		go func() {
			gz := gzip.NewWriter(pw)
			_, copyErr := io.Copy(gz, f)
			if closeErr := gz.Close(); copyErr == nil {
				copyErr = closeErr
			}
			pw.CloseWithError(copyErr)
		}()
		body = pr
	}

	_, err = p.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remotePath),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("s3 upload of %s: %w", remotePath, err)
	}
	return nil
}

// Download retrieves an object to a local file, decompressing ".gz" keys.
func (p *S3Provider) Download(remotePath, localPath string) error {
	if !strings.HasSuffix(remotePath, ".gz") {
		f, err := os.Create(localPath)
		if err != nil {
			return fmt.Errorf("failed to create destination file: %w", err)
		}
		_, err = p.downloader.Download(context.Background(), f, &s3.GetObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(remotePath),
		})
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("s3 download of %s: %w", remotePath, err)
		}
		return nil
	}

	// The concurrent downloader needs a WriterAt, which a gzip stream cannot
	// provide, so compressed objects come down through GetObject.
	out, err := p.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remotePath),
	})
	if err != nil {
		return fmt.Errorf("s3 download of %s: %w", remotePath, err)
	}
	defer out.Body.Close()

	gz, err := gzip.NewReader(out.Body)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		gz.Close()
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	_, err = io.Copy(f, gz)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if closeErr := gz.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to decompress %s: %w", remotePath, err)
	}
	return nil
}

// List enumerates object keys under the given prefix.
func (p *S3Provider) List(prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Delete removes an object from the bucket.
func (p *S3Provider) Delete(remotePath string) error {
	_, err := p.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(remotePath),
	})
	if err != nil {
		return fmt.Errorf("s3 delete of %s: %w", remotePath, err)
	}
	return nil
}
