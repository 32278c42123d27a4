package migration

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// transfer copies every exported RDB file from the source export bucket into
// the target import bucket and grants ElastiCache read access to it.
func (m *Migrator) transfer(ctx context.Context, run *Run) error {
	for _, key := range run.ExportFiles {
		if err := m.copyObject(ctx, run, key); err != nil {
			return err
		}
		run.ImportPaths = append(run.ImportPaths, run.ImportBucket+"/"+key)
	}
	return nil
}

func (m *Migrator) copyObject(ctx context.Context, run *Run, key string) error {
	logger := run.logger("transfer")

	tmp, err := os.CreateTemp(m.Conf.Export.TempDir, "redis-migrate-*.rdb")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %w", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			logger.Warnf("Could not remove temporary file %v: %v", tmp.Name(), err)
		}
	}()

	logger.Infof("Downloading s3://%v/%v.", run.ExportBucket, key)
	out, err := m.Source.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(run.ExportBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("could not download %v from %v: %w", key, run.ExportBucket, err)
	}
	n, err := io.Copy(tmp, out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("could not download %v from %v: %w", key, run.ExportBucket, err)
	}
	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not rewind %v: %w", tmp.Name(), err)
	}

	logger.Infof("Uploading %v bytes to s3://%v/%v.", n, run.ImportBucket, key)
	_, err = m.Target.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(run.ImportBucket),
		Key:    aws.String(key),
		Body:   tmp,
	})
	if err != nil {
		return fmt.Errorf("could not upload %v to %v: %w", key, run.ImportBucket, err)
	}

	_, err = m.Target.S3.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket:           aws.String(run.ImportBucket),
		Key:              aws.String(key),
		GrantRead:        aws.String("id=" + m.Conf.Target.ElastiCacheCanonicalId),
		GrantReadACP:     aws.String("id=" + m.Conf.Target.ElastiCacheCanonicalId),
		GrantFullControl: aws.String("id=" + run.TargetCanonicalId),
	})
	if err != nil {
		return fmt.Errorf("could not grant ElastiCache access to %v/%v: %w", run.ImportBucket, key, err)
	}
	return nil
}
