package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-admission/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (d *DB) InsertScanRecord(ctx context.Context, rec models.ScanRecord) error {
	_, err := d.Bun.NewInsert().Model(&rec).Exec(ctx)
	return err
}

func (d *DB) GetScanRecordsByRef(ctx context.Context, credentialRef string) ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("credential_ref = ?", credentialRef).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountAdmittedForEvent sums committed_count over successful scans, so a
// group of four counts as four admissions.
func (d *DB) CountAdmittedForEvent(ctx context.Context, eventID string, scanType models.ScanType) (int, error) {
	var total int
	err := d.Bun.NewSelect().
		Model((*models.ScanRecord)(nil)).
		ColumnExpr("COALESCE(SUM(committed_count), 0)").
		Where("event_id = ?", eventID).
		Where("scan_type = ?", scanType).
		Where("result IN (?, ?)", models.ResultValid, models.ResultRedeemed).
		Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
