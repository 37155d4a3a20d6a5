package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"roadinfra-monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupHealthRecordRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *HealthRecordRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewHealthRecordRepository(db, zap.NewNop())
	return db, mock, repo
}

var healthRecordColumnList = []string{
	"id", "asset_id", "asset_category", "timestamp",
	"overall_score", "structural_score", "environmental_score", "operational_score",
	"status", "active_sensor_count", "total_sensor_count", "faulty_sensor_count",
	"active_alert_count",
}

func TestHealthRecordCreate(t *testing.T) {
	db, mock, repo := setupHealthRecordRepo(t)
	defer db.Close()

	record := &models.HealthRecord{
		ID:            "rec-1",
		AssetID:       "bridge-1",
		AssetCategory: models.AssetBridge,
		Timestamp:     time.Now(),
		OverallScore:  93.75,
		Status:        models.StatusHealthy,
	}

	mock.ExpectExec(`INSERT INTO health_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLatestByAsset(t *testing.T) {
	db, mock, repo := setupHealthRecordRepo(t)
	defer db.Close()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(healthRecordColumnList).
		AddRow("rec-1", "bridge-1", "BRIDGE", ts, 93.75, 100.0, 100.0, 75.0, "HEALTHY", 5, 6, 1, 0)

	mock.ExpectQuery(`SELECT(.|\n)+FROM health_records`).
		WithArgs("bridge-1").
		WillReturnRows(rows)

	record, err := repo.FindLatestByAsset(context.Background(), "bridge-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.StatusHealthy, record.Status)
	assert.Equal(t, 93.75, record.OverallScore)
	assert.Equal(t, 6, record.TotalSensorCount)
}

func TestFindLatestByAsset_NoRecords(t *testing.T) {
	db, mock, repo := setupHealthRecordRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\n)+FROM health_records`).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows(healthRecordColumnList))

	record, err := repo.FindLatestByAsset(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestFindRecentScores(t *testing.T) {
	db, mock, repo := setupHealthRecordRepo(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"overall_score"}).
		AddRow(90.0).
		AddRow(85.0).
		AddRow(88.0)

	mock.ExpectQuery(`SELECT overall_score`).
		WithArgs("bridge-1", 5).
		WillReturnRows(rows)

	scores, err := repo.FindRecentScores(context.Background(), "bridge-1", 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{90, 85, 88}, scores)
}
