package logquery_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mutugading/logquery/internal/application/logquery"
	"github.com/mutugading/logquery/internal/domain/logrecord"
	"github.com/mutugading/logquery/pkg/circuitbreaker"
)

func TestExportHandler_Handle(t *testing.T) {
	t.Run("success - writes one row per record", func(t *testing.T) {
		repo := new(MockRepository)
		handler := logquery.NewExportHandler(repo, 5, nil)
		filter := logrecord.Filter{Level: "info"}
		logs := makeLogs(3)

		repo.On("Find", mock.Anything, filter, logrecord.PageRequest{Page: 1, Limit: 6, SortOrder: logrecord.SortAscending}).
			Return(logs, nil)

		result, err := handler.Handle(context.Background(), filter)

		require.NoError(t, err)
		assert.Equal(t, "logs_export.xlsx", result.FileName)
		assert.Equal(t, 3, result.Rows)
		assert.False(t, result.Truncated)

		f, err := excelize.OpenReader(bytes.NewReader(result.FileContent))
		require.NoError(t, err)
		defer func() { _ = f.Close() }()

		rows, err := f.GetRows("Logs")
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"No", "ID", "Type", "Level", "Message", "Created At", "Updated At"}, rows[0])
		assert.Equal(t, logs[0].ID().String(), rows[1][1])
		assert.Equal(t, "record 3", rows[3][4])
	})

	t.Run("success - truncates at the row cap", func(t *testing.T) {
		repo := new(MockRepository)
		handler := logquery.NewExportHandler(repo, 2, nil)

		repo.On("Find", mock.Anything, logrecord.Filter{}, mock.Anything).Return(makeLogs(3), nil)

		result, err := handler.Handle(context.Background(), logrecord.Filter{})

		require.NoError(t, err)
		assert.Equal(t, 2, result.Rows)
		assert.True(t, result.Truncated)
	})

	t.Run("error - storage failure", func(t *testing.T) {
		repo := new(MockRepository)
		handler := logquery.NewExportHandler(repo, 0, nil)

		repo.On("Find", mock.Anything, logrecord.Filter{}, mock.Anything).Return(nil, errors.New("timeout"))

		result, err := handler.Handle(context.Background(), logrecord.Filter{})

		assert.Nil(t, result)
		var serr *logrecord.StorageError
		assert.True(t, errors.As(err, &serr))
	})

	t.Run("error - open circuit skips storage", func(t *testing.T) {
		repo := new(MockRepository)
		settings := circuitbreaker.DefaultSettings("log-store")
		settings.MaxFailures = 1
		settings.OpenTimeout = time.Hour
		cb := circuitbreaker.New(settings)
		handler := logquery.NewExportHandler(repo, 0, cb)

		repo.On("Find", mock.Anything, logrecord.Filter{}, mock.Anything).Return(nil, errors.New("connection refused")).Once()

		_, err := handler.Handle(context.Background(), logrecord.Filter{})
		require.Error(t, err)
		require.Equal(t, circuitbreaker.StateOpen, cb.State())

		result, err := handler.Handle(context.Background(), logrecord.Filter{})

		assert.Nil(t, result)
		var serr *logrecord.StorageError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "export", serr.Op)
		assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
		repo.AssertNumberOfCalls(t, "Find", 1)
	})
}
