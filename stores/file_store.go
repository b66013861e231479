package stores

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// FileStore stores pin attachments (note a file is just a byte sequence) and vends publicly retrievable URLs for
// them
type FileStore interface {
	// Ref returns a fresh storage key for a file named filename. Two calls never return the same key, so
	// uploads never overwrite each other
	Ref(filename string) string
	// Save persists the file under ref and returns the URL the file can be fetched from afterwards
	Save(ctx context.Context, ref string, f *md.File) (string, *pe.PinErr)
	// Delete removes the file under ref. Delete must be idempotent
	Delete(ctx context.Context, ref string) *pe.PinErr
	Close() *pe.PinErr
}

// NewRef builds storage key as <prefix>/<random>.<ext of filename>
func NewRef(filename string) string {
	key := uuid.NewString()
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && ext != "." {
		key += ext
	}
	return path.Join(cst.ImagePathPrefix, key)
}

func joinURL(base, ref string) string {
	return strings.TrimRight(base, "/") + "/" + ref
}

// LocalFileStore implements FileStore backed by local file system. Files are expected to be served by some file
// server under BaseURL
type LocalFileStore struct {
	Dir     string
	BaseURL string
}

func (fs *LocalFileStore) Ref(filename string) string {
	return NewRef(filename)
}

func (fs *LocalFileStore) Save(ctx context.Context, ref string, f *md.File) (string, *pe.PinErr) {
	clog := logging.WithFuncName().WithField("ref", ref)
	// 1. prepare file to host data
	errMsg := "error allocating file storage space"
	fp := filepath.Join(fs.Dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(fp), 0755); err != nil {
		clog.WithError(err).Error(errMsg)
		return "", pe.NewServiceFailure(errMsg).WithCause(err)
	}
	out, err := os.Create(fp)
	if err != nil {
		clog.WithError(err).Error(errMsg)
		return "", pe.NewServiceFailure(errMsg).WithCause(err)
	}
	defer out.Close()
	// 2. pipe data to file
	if _, err := bufio.NewReader(f.Body).WriteTo(out); err != nil {
		clog.WithError(err).Error("error writing attachment data")
		os.Remove(fp)
		return "", pe.NewServiceFailure("error saving pin attachment data").WithCause(err)
	}
	return joinURL(fs.BaseURL, ref), nil
}

func (fs *LocalFileStore) Delete(ctx context.Context, ref string) *pe.PinErr {
	if err := os.Remove(filepath.Join(fs.Dir, filepath.FromSlash(ref))); err != nil && !os.IsNotExist(err) {
		return pe.NewServiceFailure("error removing pin attachment").WithCause(err)
	}
	return nil
}

func (fs *LocalFileStore) Close() *pe.PinErr {
	return nil
}

// S3Options configures an S3FileStore. Endpoint is optional and targets S3 compatible services like R2 or minio
type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is the URL prefix objects in Bucket are publicly readable under
	PublicBaseURL string
}

// S3FileStore implements FileStore backed by an S3 compatible object storage
type S3FileStore struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3FileStore(opts S3Options) *S3FileStore {
	cfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Region:      opts.Region,
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3FileStore{client: client, bucket: opts.Bucket, baseURL: opts.PublicBaseURL}
}

func (fs *S3FileStore) Ref(filename string) string {
	return NewRef(filename)
}

func (fs *S3FileStore) Save(ctx context.Context, ref string, f *md.File) (string, *pe.PinErr) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(ref),
		Body:   f.Body,
	}
	if f.ContentType != "" {
		in.ContentType = aws.String(f.ContentType)
	}
	if _, err := fs.client.PutObject(ctx, in); err != nil {
		logging.WithFuncName().WithField("ref", ref).WithError(err).Error("error uploading attachment")
		return "", pe.NewServiceFailure("error saving pin attachment data").WithCause(err)
	}
	return joinURL(fs.baseURL, ref), nil
}

func (fs *S3FileStore) Delete(ctx context.Context, ref string) *pe.PinErr {
	// S3 DeleteObject succeeds on absent keys
	if _, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(ref),
	}); err != nil {
		return pe.NewServiceFailure("error removing pin attachment").WithCause(err)
	}
	return nil
}

func (fs *S3FileStore) Close() *pe.PinErr {
	return nil
}
