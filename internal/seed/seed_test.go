package seed

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/classsync/internal/data/backend"
)

func testBackend(t *testing.T) *backend.Backend {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:seed_%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, backend.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return backend.New(db, nil)
}

func TestDefaultSeedParses(t *testing.T) {
	f, err := Default()
	require.NoError(t, err)
	require.Len(t, f.Units, 2)
	require.Equal(t, "кошка", f.Units[0].Rounds[0].Words[0].Russian)
}

func TestParseRejectsUnknownKeysAndDuplicates(t *testing.T) {
	_, err := Parse(strings.NewReader("units:\n  - title: A\n    colour: red\n"))
	require.Error(t, err)

	_, err = Parse(strings.NewReader("units:\n  - title: A\n  - title: A\n"))
	require.ErrorContains(t, err, "appears twice")

	_, err = Parse(strings.NewReader("profiles:\n  - name: X\n    role: admin\n"))
	require.ErrorContains(t, err, "role")

	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, f.Units)
}

func TestLoadIsIdempotentByTitle(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	f, err := Default()
	require.NoError(t, err)
	f.Profiles = []Profile{{ID: "t1", Name: "Teacher", Role: "teacher"}}

	rep, err := Load(ctx, b, f, nil)
	require.NoError(t, err)
	require.Equal(t, 2, rep.UnitsCreated)
	require.Equal(t, 10, rep.WordsCreated)
	require.Equal(t, 1, rep.ProfilesCreated)

	rep, err = Load(ctx, b, f, nil)
	require.NoError(t, err)
	require.Zero(t, rep.UnitsCreated)
	require.Equal(t, 2, rep.UnitsSkipped)
	require.Zero(t, rep.ProfilesCreated)

	units, err := b.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Equal(t, "Animals", units[0].Title)
	require.Equal(t, 1, units[0].UnitNumber)
	require.True(t, units[0].Unlocked)
	require.False(t, units[1].Unlocked)
	require.Len(t, units[0].Rounds, 2)
}
