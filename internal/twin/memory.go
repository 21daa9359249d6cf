package twin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sitewatch/sitewatch/internal/vision"
)

// Alert is one inbox message recorded by the in-memory store.
type Alert struct {
	ThingID string
	Subject string
	Payload any
}

// MemoryStore is an in-process Store used by tests and by deployments
// that run without a document store. Every mutation is also recorded in
// a per-thing revision log to mirror the remote store's revisions feed.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[string]*Document
	revisions map[string][]json.RawMessage
	alerts    []Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		revisions: make(map[string][]json.RawMessage),
	}
}

func (s *MemoryStore) Get(ctx context.Context, thingID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[thingID]
	if !ok {
		return nil, nil
	}
	return copyDocument(doc), nil
}

func (s *MemoryStore) Create(ctx context.Context, thingID string, last Snapshot, det Detections) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[thingID]; ok {
		return fmt.Errorf("thing %s already exists", thingID)
	}

	s.documents[thingID] = &Document{
		ThingID:     thingID,
		LastCapture: last,
		History:     []Snapshot{last},
		Detections:  det,
	}
	s.recordRevision(thingID)
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, thingID string, last Snapshot, det Detections, historyMax int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[thingID]
	if !ok {
		return fmt.Errorf("thing %s does not exist", thingID)
	}

	doc.History = trimHistory(append(doc.History, last), historyMax)
	doc.LastCapture = last
	doc.Detections = det
	s.recordRevision(thingID)
	return nil
}

func (s *MemoryStore) UpdateDetections(ctx context.Context, thingID, caption string, objects []vision.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[thingID]
	if !ok {
		return fmt.Errorf("thing %s does not exist", thingID)
	}
	doc.Detections.Caption = caption
	doc.Detections.Objects = objects
	s.recordRevision(thingID)
	return nil
}

func (s *MemoryStore) Revisions(ctx context.Context, thingID string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs := s.revisions[thingID]
	out := make([]json.RawMessage, len(revs))
	copy(out, revs)
	return out, nil
}

func (s *MemoryStore) SendAlert(ctx context.Context, thingID, subject string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, Alert{ThingID: thingID, Subject: subject, Payload: payload})
	return nil
}

// Alerts returns all recorded inbox messages.
func (s *MemoryStore) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Count returns the number of documents in the store.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents)
}

func (s *MemoryStore) recordRevision(thingID string) {
	data, err := json.Marshal(s.documents[thingID])
	if err != nil {
		return
	}
	s.revisions[thingID] = append(s.revisions[thingID], json.RawMessage(data))
}

func copyDocument(doc *Document) *Document {
	out := *doc
	out.History = make([]Snapshot, len(doc.History))
	copy(out.History, doc.History)
	return &out
}
