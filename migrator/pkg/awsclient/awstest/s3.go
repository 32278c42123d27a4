package awstest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type pendingObject struct {
	data     []byte
	listings int
}

// S3Server implements an S3 simulator for use in testing.
type S3Server struct {
	mu       sync.Mutex
	account  string
	recorder *Recorder

	ownerId   string
	buckets   map[string]map[string][]byte
	pending   map[string]map[string]*pendingObject
	acls      map[string]*s3.PutObjectAclInput
	lifecycle map[string]*types.BucketLifecycleConfiguration

	// LifecycleError, when set, is returned by PutBucketLifecycleConfiguration.
	LifecycleError error
}

func NewS3Server(account string, ownerId string, recorder *Recorder) *S3Server {
	return &S3Server{
		account:   account,
		recorder:  recorder,
		ownerId:   ownerId,
		buckets:   make(map[string]map[string][]byte),
		pending:   make(map[string]map[string]*pendingObject),
		acls:      make(map[string]*s3.PutObjectAclInput),
		lifecycle: make(map[string]*types.BucketLifecycleConfiguration),
	}
}

func (s *S3Server) AddBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
}

// AddObjectAfter makes key visible in bucket once it has been listed the given
// number of times.
func (s *S3Server) AddObjectAfter(bucket string, key string, data []byte, listings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[bucket]; !ok {
		s.pending[bucket] = make(map[string]*pendingObject)
	}
	s.pending[bucket][key] = &pendingObject{data: data, listings: listings}
}

// Object returns the content of key in bucket.
func (s *S3Server) Object(bucket string, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	return data, ok
}

// Acl returns the last ACL put on key in bucket.
func (s *S3Server) Acl(bucket string, key string) *s3.PutObjectAclInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acls[bucket+"/"+key]
}

// Lifecycle returns the lifecycle configuration of bucket.
func (s *S3Server) Lifecycle(bucket string) *types.BucketLifecycleConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle[bucket]
}

func noSuchBucket(bucket string) error {
	return &smithy.GenericAPIError{Code: "NoSuchBucket", Message: fmt.Sprintf("bucket %v does not exist", bucket)}
}

func (s *S3Server) ListObjectsV2(
	ctx context.Context,
	input *s3.ListObjectsV2Input,
	opts ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	bucket := aws.ToString(input.Bucket)
	prefix := aws.ToString(input.Prefix)
	s.recorder.record(s.account, "S3.ListObjectsV2", bucket, prefix)

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, noSuchBucket(bucket)
	}

	for key, p := range s.pending[bucket] {
		if p.listings <= 0 {
			objects[key] = p.data
			delete(s.pending[bucket], key)
			continue
		}
		p.listings--
	}

	var keys []string
	for key := range objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{Name: input.Bucket, Prefix: input.Prefix}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (s *S3Server) GetObject(
	ctx context.Context,
	input *s3.GetObjectInput,
	opts ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	bucket, key := aws.ToString(input.Bucket), aws.ToString(input.Key)
	s.recorder.record(s.account, "S3.GetObject", bucket, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, noSuchBucket(bucket)
	}
	data, ok := objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String(key)}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (s *S3Server) PutObject(
	ctx context.Context,
	input *s3.PutObjectInput,
	opts ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	bucket, key := aws.ToString(input.Bucket), aws.ToString(input.Key)
	s.recorder.record(s.account, "S3.PutObject", bucket, key)

	var data []byte
	if input.Body != nil {
		var err error
		data, err = io.ReadAll(input.Body)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, noSuchBucket(bucket)
	}
	objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (s *S3Server) PutObjectAcl(
	ctx context.Context,
	input *s3.PutObjectAclInput,
	opts ...func(*s3.Options),
) (*s3.PutObjectAclOutput, error) {
	bucket, key := aws.ToString(input.Bucket), aws.ToString(input.Key)
	s.recorder.record(s.account, "S3.PutObjectAcl", bucket, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket][key]; !ok {
		return nil, &types.NoSuchKey{Message: aws.String(key)}
	}
	s.acls[bucket+"/"+key] = input
	return &s3.PutObjectAclOutput{}, nil
}

func (s *S3Server) PutBucketLifecycleConfiguration(
	ctx context.Context,
	input *s3.PutBucketLifecycleConfigurationInput,
	opts ...func(*s3.Options),
) (*s3.PutBucketLifecycleConfigurationOutput, error) {
	bucket := aws.ToString(input.Bucket)
	s.recorder.record(s.account, "S3.PutBucketLifecycleConfiguration", bucket)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LifecycleError != nil {
		return nil, s.LifecycleError
	}
	if _, ok := s.buckets[bucket]; !ok {
		return nil, noSuchBucket(bucket)
	}
	s.lifecycle[bucket] = input.LifecycleConfiguration
	return &s3.PutBucketLifecycleConfigurationOutput{}, nil
}

func (s *S3Server) ListBuckets(
	ctx context.Context,
	input *s3.ListBucketsInput,
	opts ...func(*s3.Options),
) (*s3.ListBucketsOutput, error) {
	s.recorder.record(s.account, "S3.ListBuckets")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := &s3.ListBucketsOutput{Owner: &types.Owner{ID: aws.String(s.ownerId)}}
	for name := range s.buckets {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}
