package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockCatalogRepository creates a GormCatalogRepository with a mocked SQL connection
func newMockCatalogRepository(t *testing.T) (*GormCatalogRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormCatalogRepository(gormDB), mock, mockDB
}

func TestGormCatalogRepository_FindByVendor(t *testing.T) {
	t.Run("returns vendor entries ordered by product", func(t *testing.T) {
		repo, mock, mockDB := newMockCatalogRepository(t)
		defer mockDB.Close()

		rows := sqlmock.NewRows([]string{"id", "vendor", "product", "product_norm"}).
			AddRow(uuid.New(), "Green Fields", "Blue Dream 3.5g", "blue dream 3.5g").
			AddRow(uuid.New(), "Green Fields", "Sour Diesel 1g", "sour diesel 1g")

		mock.ExpectQuery(`SELECT \* FROM "catalog_entries" WHERE vendor = \$1 ORDER BY product ASC`).
			WithArgs("Green Fields").
			WillReturnRows(rows)

		entries, err := repo.FindByVendor(context.Background(), "Green Fields")

		assert.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Blue Dream 3.5g", entries[0].Product)
		assert.Equal(t, "sour diesel 1g", entries[1].ProductNorm)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty slice for unknown vendor", func(t *testing.T) {
		repo, mock, mockDB := newMockCatalogRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "catalog_entries" WHERE vendor = \$1 ORDER BY product ASC`).
			WithArgs("Nobody").
			WillReturnRows(sqlmock.NewRows([]string{"id", "vendor", "product", "product_norm"}))

		entries, err := repo.FindByVendor(context.Background(), "Nobody")

		assert.NoError(t, err)
		assert.Empty(t, entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
