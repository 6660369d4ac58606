package repo

import (
	"sync"

	"github.com/HavvokLab/solax-cloud/model"
)

// snapshotMock keeps documents in memory for tests and dry runs.
type snapshotMock struct {
	mu      sync.Mutex
	indexed map[string][]interface{}
	devices map[string]model.DeviceDocument
}

func NewSnapshotMockRepo() *snapshotMock {
	return &snapshotMock{
		indexed: make(map[string][]interface{}),
		devices: make(map[string]model.DeviceDocument),
	}
}

func (r *snapshotMock) BulkIndex(index string, docs []interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed[index] = append(r.indexed[index], docs...)
	return nil
}

func (r *snapshotMock) UpsertDevice(doc model.DeviceDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[doc.EntryID] = doc
	return nil
}

func (r *snapshotMock) Indexed(index string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.indexed[index]...)
}

func (r *snapshotMock) Device(entryID string) (model.DeviceDocument, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.devices[entryID]
	return doc, ok
}
