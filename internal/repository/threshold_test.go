package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"roadinfra-monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupThresholdRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ThresholdRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewThresholdRepository(db, zap.NewNop())
	return db, mock, repo
}

var thresholdColumnList = []string{
	"id", "asset_category", "sensor_category", "metric_name",
	"warning_low", "warning_high", "critical_low", "critical_high",
	"unit", "enabled", "created_at", "updated_at",
}

func TestFindEnabled(t *testing.T) {
	db, mock, repo := setupThresholdRepo(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(thresholdColumnList).
		AddRow("th-1", "BRIDGE", "TEMPERATURE", "temperature", -10.0, 40.0, -20.0, 50.0, "°C", true, now, now).
		AddRow("th-2", "BRIDGE", "STRAIN_GAUGE", "strain", nil, 100.0, nil, 200.0, nil, true, now, now)

	mock.ExpectQuery(`SELECT(.|\n)+FROM health_thresholds`).
		WithArgs("BRIDGE").
		WillReturnRows(rows)

	thresholds, err := repo.FindEnabled(context.Background(), models.AssetBridge)
	require.NoError(t, err)
	require.Len(t, thresholds, 2)

	assert.Equal(t, models.CategoryTemperature, thresholds[0].SensorCategory)
	assert.Equal(t, -10.0, *thresholds[0].WarningLow)
	assert.Equal(t, 50.0, *thresholds[0].CriticalHigh)
	assert.Equal(t, "°C", thresholds[0].Unit)

	// 单边阈值：低侧界限为空
	assert.Nil(t, thresholds[1].WarningLow)
	assert.Nil(t, thresholds[1].CriticalLow)
	assert.Equal(t, 100.0, *thresholds[1].WarningHigh)
	assert.Empty(t, thresholds[1].Unit)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEnabled_Empty(t *testing.T) {
	db, mock, repo := setupThresholdRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\n)+FROM health_thresholds`).
		WithArgs("TUNNEL").
		WillReturnRows(sqlmock.NewRows(thresholdColumnList))

	thresholds, err := repo.FindEnabled(context.Background(), models.AssetTunnel)
	require.NoError(t, err)
	assert.Empty(t, thresholds)
}

func TestFindEnabled_MissingCategory(t *testing.T) {
	db, _, repo := setupThresholdRepo(t)
	defer db.Close()

	_, err := repo.FindEnabled(context.Background(), "")
	assert.Error(t, err)
}

func TestFindEnabled_QueryError(t *testing.T) {
	db, mock, repo := setupThresholdRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\n)+FROM health_thresholds`).
		WithArgs("BRIDGE").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.FindEnabled(context.Background(), models.AssetBridge)
	assert.Error(t, err)
}
