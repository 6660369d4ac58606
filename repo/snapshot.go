package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/setting"
	"github.com/olivere/elastic/v7"
)

const (
	DefaultESTimeout = 30 * time.Second
	MaxRetryAttempts = 3
	BaseRetryDelay   = 2 * time.Second
)

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "cannot assign requested address") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout")
}

type SnapshotRepo interface {
	BulkIndex(index string, docs []interface{}) error
	UpsertDevice(doc model.DeviceDocument) error
}

type snapshotRepo struct {
	elastic *elastic.Client
}

func NewSnapshotRepo(elastic *elastic.Client) SnapshotRepo {
	return &snapshotRepo{
		elastic: elastic,
	}
}

// SnapshotIndex returns the daily index a snapshot taken at t belongs to.
func SnapshotIndex(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = setting.ElasticIndexPrefix
	}

	return fmt.Sprintf("%s-%s", prefix, t.Format("2006.01.02"))
}

func (r *snapshotRepo) createIndexIfNotExist(index string) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultESTimeout)
	defer cancel()

	exist, err := r.elastic.IndexExists(index).Do(ctx)
	if err != nil {
		return err
	}

	if exist {
		return nil
	}

	result, err := r.elastic.CreateIndex(index).Do(ctx)
	if err != nil {
		// another writer may have created it in between
		if elastic.IsStatusCode(err, 400) {
			return nil
		}
		return err
	}

	if !result.Acknowledged {
		return errors.New("elasticsearch did not acknowledge")
	}

	return nil
}

func (r *snapshotRepo) BulkIndex(index string, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}

	if err := r.createIndexIfNotExist(index); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetryAttempts; attempt++ {
		bulk := r.elastic.Bulk()
		for _, doc := range docs {
			bulk.Add(elastic.NewBulkIndexRequest().Index(index).Doc(doc))
		}

		ctx, cancel := context.WithTimeout(context.Background(), DefaultESTimeout)
		resp, err := bulk.Do(ctx)
		cancel()
		lastErr = err

		if lastErr == nil {
			// rejected documents are not retried
			return bulkFailures(resp)
		}

		if !isRetryableError(lastErr) {
			return lastErr
		}

		// 2s, 4s, 8s
		if attempt < MaxRetryAttempts {
			time.Sleep(BaseRetryDelay * time.Duration(1<<attempt))
		}
	}

	return lastErr
}

// bulkFailures reports the items elasticsearch rejected within an otherwise
// successful bulk request.
func bulkFailures(resp *elastic.BulkResponse) error {
	if resp == nil || !resp.Errors {
		return nil
	}

	failed := resp.Failed()
	if len(failed) == 0 {
		return nil
	}

	reasons := make([]string, 0, len(failed))
	for _, item := range failed {
		reason := fmt.Sprintf("status %d", item.Status)
		if item.Error != nil {
			reason = fmt.Sprintf("%s: %s", item.Error.Type, item.Error.Reason)
		}
		reasons = append(reasons, fmt.Sprintf("%s/%s %s", item.Index, item.Id, reason))
	}

	return fmt.Errorf("bulk index rejected %d of %d documents: %s", len(failed), len(resp.Items), strings.Join(reasons, "; "))
}

func (r *snapshotRepo) UpsertDevice(doc model.DeviceDocument) error {
	index := setting.ElasticDeviceIndex
	if err := r.createIndexIfNotExist(index); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultESTimeout)
	defer cancel()

	_, err := r.elastic.Update().
		Index(index).
		Id(doc.EntryID).
		Doc(doc).
		DocAsUpsert(true).
		Do(ctx)
	return err
}
