package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"workphone-gateway/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	FindByID(ctx context.Context, callID string) (*domain.Call, error)
	ApplyUpdate(ctx context.Context, callID string, update domain.CallUpdate) (*domain.Call, error)
}

type callRepository struct {
	client *kivik.Client
	dbName string
}

func NewCallRepository(client *kivik.Client, dbName string) CallRepository {
	return &callRepository{
		client: client,
		dbName: dbName,
	}
}

func callDocID(callID string) string {
	return fmt.Sprintf("call:%s", callID)
}

func (r *callRepository) Create(ctx context.Context, call *domain.Call) error {
	db := r.client.DB(r.dbName)

	doc, err := toDoc(call)
	if err != nil {
		return err
	}
	doc["doc_type"] = "call"

	if _, err := db.Put(ctx, callDocID(call.ID), doc); err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

func (r *callRepository) FindByID(ctx context.Context, callID string) (*domain.Call, error) {
	db := r.client.DB(r.dbName)

	var call domain.Call
	if err := db.Get(ctx, callDocID(callID)).ScanDoc(&call); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find call: %w", err)
	}
	return &call, nil
}

// ApplyUpdate writes the reported status onto the call document and returns
// the updated record. Zero duration and nil end time leave the stored values.
func (r *callRepository) ApplyUpdate(ctx context.Context, callID string, update domain.CallUpdate) (*domain.Call, error) {
	db := r.client.DB(r.dbName)
	docID := callDocID(callID)

	var rawDoc map[string]interface{}
	if err := db.Get(ctx, docID).ScanDoc(&rawDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load call: %w", err)
	}

	rawDoc["status"] = update.Status
	rawDoc["updated_at"] = time.Now()
	if update.Duration > 0 {
		rawDoc["duration"] = update.Duration
	}
	if update.EndedAt != nil {
		rawDoc["ended_at"] = *update.EndedAt
	}
	if update.Reason != "" {
		rawDoc["reason"] = update.Reason
	}

	if _, err := db.Put(ctx, docID, rawDoc); err != nil {
		return nil, fmt.Errorf("failed to update call: %w", err)
	}

	return r.FindByID(ctx, callID)
}
