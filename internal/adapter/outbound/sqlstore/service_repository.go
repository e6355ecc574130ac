package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// ServiceRepository implements outbound.ServiceRepository over a SQLite
// table of (service_id, json blob) rows, the authoritative backing store
// for the registry's TTL-cached snapshot (C6) when registry.backend is
// "sqlite" instead of "memory".
type ServiceRepository struct {
	db *sql.DB
}

// NewServiceRepository wraps db, which must already have this package's
// schema applied (see Open).
func NewServiceRepository(db *sql.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// FindAll implements outbound.ServiceRepository.
func (r *ServiceRepository) FindAll(ctx context.Context) ([]registry.ServiceRegistration, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT data FROM services ORDER BY service_id")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find all services: %w", err)
	}
	defer rows.Close()

	out := make([]registry.ServiceRegistration, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlstore: scan service row: %w", err)
		}
		var reg registry.ServiceRegistration
		if err := json.Unmarshal(data, &reg); err != nil {
			return nil, fmt.Errorf("sqlstore: unmarshal service row: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterate service rows: %w", err)
	}
	return out, nil
}

// FindByID implements outbound.ServiceRepository.
func (r *ServiceRepository) FindByID(ctx context.Context, serviceID string) (*registry.ServiceRegistration, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT data FROM services WHERE service_id = ?", serviceID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find service %s: %w", serviceID, err)
	}
	var reg registry.ServiceRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal service %s: %w", serviceID, err)
	}
	return &reg, nil
}

// Save implements outbound.ServiceRepository.
func (r *ServiceRepository) Save(ctx context.Context, reg registry.ServiceRegistration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal service %s: %w", reg.ServiceID, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO services (service_id, data) VALUES (?, ?)
		 ON CONFLICT(service_id) DO UPDATE SET data = excluded.data`,
		reg.ServiceID, data)
	if err != nil {
		return fmt.Errorf("sqlstore: save service %s: %w", reg.ServiceID, err)
	}
	return nil
}

// Delete implements outbound.ServiceRepository.
func (r *ServiceRepository) Delete(ctx context.Context, serviceID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM services WHERE service_id = ?", serviceID)
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete service %s: %w", serviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete service %s: %w", serviceID, err)
	}
	return n > 0, nil
}

// Exists implements outbound.ServiceRepository.
func (r *ServiceRepository) Exists(ctx context.Context, serviceID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM services WHERE service_id = ?", serviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: exists service %s: %w", serviceID, err)
	}
	return true, nil
}

// Count implements outbound.ServiceRepository.
func (r *ServiceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM services").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count services: %w", err)
	}
	return n, nil
}

var _ outbound.ServiceRepository = (*ServiceRepository)(nil)
