// Package awss3 provides an AWS SDK for Go v2 implementation of
// filestore.Backend.
package awss3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/koustreak/contentstore/internal/errs"
	"github.com/koustreak/contentstore/internal/filestore"
)

const (
	// Provider is the name the driver registers under.
	Provider = "aws"

	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"

	metaPrefix = "x-amz-meta-"
)

func init() {
	filestore.RegisterProvider(Provider, func(ctx context.Context, opts filestore.Options) (filestore.Backend, error) {
		return New(ctx, opts)
	})
}

// Driver implements filestore.Backend on the AWS SDK v2 S3 client.
type Driver struct {
	client  *awss3.Client
	presign *awss3.PresignClient
}

// New builds an S3 client from opts. With UseIAMProfile the SDK default
// credential chain is used (environment, shared config, instance role).
//
// Recognised extra options: "endpoint" (string, for S3-compatible services)
// and "force_path_style" (bool).
func New(ctx context.Context, opts filestore.Options) (*Driver, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if !opts.UseIAMProfile && opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load aws config", err)
	}

	endpoint := opts.String("endpoint", "")
	pathStyle := opts.Bool("force_path_style", false)
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	return &Driver{client: client, presign: awss3.NewPresignClient(client)}, nil
}

// PutObject uploads body to key inside bucket with the given headers.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, headers map[string]string) error {
	in, raw, err := putInput(headers)
	if err != nil {
		return err
	}
	in.Bucket = aws.String(bucket)
	in.Key = aws.String(key)
	in.Body = body
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := d.client.PutObject(ctx, in, withRawHeaders(raw)); err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

// GetObject opens the object at key inside bucket. User metadata is exposed
// under its x-amz-meta-* header names.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	out, err := d.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	header := http.Header{}
	for k, v := range out.Metadata {
		header.Set(metaPrefix+k, v)
	}
	setIfPresent(header, "Content-Type", out.ContentType)
	setIfPresent(header, "Content-Encoding", out.ContentEncoding)
	setIfPresent(header, "Content-Disposition", out.ContentDisposition)
	setIfPresent(header, "Content-Language", out.ContentLanguage)
	setIfPresent(header, "Cache-Control", out.CacheControl)
	setIfPresent(header, "ETag", out.ETag)

	return filestore.NewObject(out.Body, header), nil
}

// DeleteObject removes the object at key inside bucket.
func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := d.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// GetBucketLocation returns the bucket's location constraint. us-east-1
// buckets report an empty constraint.
func (d *Driver) GetBucketLocation(ctx context.Context, bucket string) (string, error) {
	out, err := d.client.GetBucketLocation(ctx, &awss3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", mapError(err, "failed to get bucket location")
	}
	return string(out.LocationConstraint), nil
}

// CreateBucket creates bucket in location.
func (d *Driver) CreateBucket(ctx context.Context, bucket, location string) error {
	in := &awss3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit constraint.
	if location != "" && location != DefaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(location),
		}
	}

	if _, err := d.client.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return mapError(err, "failed to create bucket")
	}
	return nil
}

// PresignGetURL returns a time-limited download URL. Only the S3
// response-* overrides are accepted as extra query parameters.
func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, expiresAt time.Time, query url.Values) (string, error) {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		return "", errs.Newf(errs.ErrKindInvalidInput, "presign expiry %s is in the past", expiresAt.UTC().Format(time.RFC3339))
	}

	in := &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	for k := range query {
		v := query.Get(k)
		switch strings.ToLower(k) {
		case "response-content-type":
			in.ResponseContentType = aws.String(v)
		case "response-content-disposition":
			in.ResponseContentDisposition = aws.String(v)
		case "response-content-encoding":
			in.ResponseContentEncoding = aws.String(v)
		case "response-content-language":
			in.ResponseContentLanguage = aws.String(v)
		case "response-cache-control":
			in.ResponseCacheControl = aws.String(v)
		default:
			return "", errs.Newf(errs.ErrKindInvalidInput, "unsupported presign parameter %q", k)
		}
	}

	req, err := d.presign.PresignGetObject(ctx, in, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", mapError(err, "failed to generate presigned URL")
	}
	return req.URL, nil
}

// putInput maps headers onto the typed PutObjectInput fields. Headers the
// input has no field for are returned in raw and sent as they are.
func putInput(headers map[string]string) (in *awss3.PutObjectInput, raw map[string]string, err error) {
	in = &awss3.PutObjectInput{}
	for k, v := range headers {
		lk := strings.ToLower(k)
		switch {
		case lk == "content-type":
			in.ContentType = aws.String(v)
		case lk == "content-encoding":
			in.ContentEncoding = aws.String(v)
		case lk == "content-disposition":
			in.ContentDisposition = aws.String(v)
		case lk == "content-language":
			in.ContentLanguage = aws.String(v)
		case lk == "cache-control":
			in.CacheControl = aws.String(v)
		case lk == "expires":
			t, err := http.ParseTime(v)
			if err != nil {
				return nil, nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid Expires header", err)
			}
			in.Expires = aws.Time(t)
		case lk == "x-amz-acl":
			in.ACL = types.ObjectCannedACL(v)
		case lk == "x-amz-storage-class":
			in.StorageClass = types.StorageClass(v)
		case lk == "x-amz-server-side-encryption":
			in.ServerSideEncryption = types.ServerSideEncryption(v)
		case lk == "x-amz-server-side-encryption-aws-kms-key-id":
			in.SSEKMSKeyId = aws.String(v)
		case lk == "x-amz-server-side-encryption-context":
			in.SSEKMSEncryptionContext = aws.String(v)
		case lk == "x-amz-server-side-encryption-customer-algorithm":
			in.SSECustomerAlgorithm = aws.String(v)
		case lk == "x-amz-server-side-encryption-customer-key":
			in.SSECustomerKey = aws.String(v)
		case lk == "x-amz-website-redirect-location":
			in.WebsiteRedirectLocation = aws.String(v)
		case lk == "x-amz-tagging":
			in.Tagging = aws.String(v)
		case lk == "x-amz-grant-full-control":
			in.GrantFullControl = aws.String(v)
		case lk == "x-amz-grant-read":
			in.GrantRead = aws.String(v)
		case lk == "x-amz-grant-read-acp":
			in.GrantReadACP = aws.String(v)
		case lk == "x-amz-grant-write-acp":
			in.GrantWriteACP = aws.String(v)
		case strings.HasPrefix(lk, metaPrefix):
			if in.Metadata == nil {
				in.Metadata = make(map[string]string)
			}
			in.Metadata[strings.TrimPrefix(lk, metaPrefix)] = v
		default:
			if raw == nil {
				raw = make(map[string]string)
			}
			raw[http.CanonicalHeaderKey(k)] = v
		}
	}
	return in, raw, nil
}

// withRawHeaders sets headers on the outgoing request before it is signed.
func withRawHeaders(headers map[string]string) func(*awss3.Options) {
	fns := make([]func(*middleware.Stack) error, 0, len(headers))
	for k, v := range headers {
		fns = append(fns, smithyhttp.SetHeaderValue(k, v))
	}
	return awss3.WithAPIOptions(fns...)
}

func setIfPresent(h http.Header, key string, v *string) {
	if s := aws.ToString(v); s != "" {
		h.Set(key, s)
	}
}

// compile-time check
var _ filestore.Backend = (*Driver)(nil)
