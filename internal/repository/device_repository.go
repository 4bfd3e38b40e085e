package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"workphone-gateway/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type DeviceRepository interface {
	Save(ctx context.Context, device *domain.Device) error
	List(ctx context.Context, userID string) ([]*domain.Device, error)
	FindByID(ctx context.Context, deviceID string) (*domain.Device, error)
	Deactivate(ctx context.Context, deviceID string) error
	UpdateLastActive(ctx context.Context, deviceID string) error
}

type deviceRepository struct {
	client *kivik.Client
	dbName string
}

func NewDeviceRepository(client *kivik.Client, dbName string) DeviceRepository {
	return &deviceRepository{
		client: client,
		dbName: dbName,
	}
}

func deviceDocID(deviceID string) string {
	return fmt.Sprintf("device:%s", deviceID)
}

// Save creates the binding document or overwrites an existing one for the
// same device, keeping its revision.
func (r *deviceRepository) Save(ctx context.Context, device *domain.Device) error {
	db := r.client.DB(r.dbName)
	docID := deviceDocID(device.ID)

	doc, err := toDoc(device)
	if err != nil {
		return err
	}
	doc["doc_type"] = "device"

	var existing map[string]interface{}
	err = db.Get(ctx, docID).ScanDoc(&existing)
	switch {
	case err == nil:
		doc["_rev"] = existing["_rev"]
	case kivik.HTTPStatus(err) != http.StatusNotFound:
		return fmt.Errorf("failed to load device: %w", err)
	}

	if _, err := db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	return nil
}

func (r *deviceRepository) List(ctx context.Context, userID string) ([]*domain.Device, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": "device",
			"user_id":  userID,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		var device domain.Device
		if err := rows.ScanDoc(&device); err != nil {
			continue // Skip malformed docs
		}
		devices = append(devices, &device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	return devices, nil
}

func (r *deviceRepository) FindByID(ctx context.Context, deviceID string) (*domain.Device, error) {
	db := r.client.DB(r.dbName)

	var device domain.Device
	if err := db.Get(ctx, deviceDocID(deviceID)).ScanDoc(&device); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}

	return &device, nil
}

func (r *deviceRepository) Deactivate(ctx context.Context, deviceID string) error {
	now := time.Now()
	return r.patch(ctx, deviceID, map[string]interface{}{
		"is_active":  false,
		"unbound_at": now,
	})
}

func (r *deviceRepository) UpdateLastActive(ctx context.Context, deviceID string) error {
	return r.patch(ctx, deviceID, map[string]interface{}{
		"last_active": time.Now(),
	})
}

func (r *deviceRepository) patch(ctx context.Context, deviceID string, fields map[string]interface{}) error {
	db := r.client.DB(r.dbName)
	docID := deviceDocID(deviceID)

	var rawDoc map[string]interface{}
	if err := db.Get(ctx, docID).ScanDoc(&rawDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return ErrNotFound
		}
		return err
	}

	for k, v := range fields {
		rawDoc[k] = v
	}

	if _, err := db.Put(ctx, docID, rawDoc); err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return nil
}

func toDoc(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}
