package repository

import (
	"context"
	"testing"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedAgencies(t *testing.T, repo interface {
	Create(context.Context, *entity.Agency) error
}) {
	t.Helper()
	agencies := []entity.Agency{
		{ID: "exec-mh-2", Name: "Pune Works", Type: entity.AgencyTypeExecuting, Region: "Maharashtra", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "exec-mh-1", Name: "Mumbai Works", Type: entity.AgencyTypeExecuting, Region: "Maharashtra", CreatedAt: t0.Add(time.Minute)},
		{ID: "exec-mh-0", Name: "Nagpur Works", Type: entity.AgencyTypeExecuting, Region: "Maharashtra", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "exec-ka", Name: "Bengaluru Works", Type: entity.AgencyTypeExecuting, Region: "Karnataka", CreatedAt: t0},
		{ID: "mon-dl", Name: "Central Monitoring", Type: entity.AgencyTypeMonitoring, Region: "Delhi", ChatOpenID: "ou_mon", CreatedAt: t0},
	}
	for i := range agencies {
		require.NoError(t, repo.Create(context.Background(), &agencies[i]))
	}
}

func TestAgencyRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewAgencyRepository(newTestDB(t), zap.NewNop())
	seedAgencies(t, repo)

	got, err := repo.GetByID(ctx, "mon-dl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.AgencyTypeMonitoring, got.Type)
	assert.Equal(t, "ou_mon", got.ChatOpenID)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAgencyRepository_FindOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewAgencyRepository(newTestDB(t), zap.NewNop())
	seedAgencies(t, repo)

	tests := []struct {
		name     string
		criteria entity.AgencyCriteria
		limit    int
		want     []string
	}{
		{
			name:     "region scoped ordered by created_at then id",
			criteria: entity.AgencyCriteria{Type: entity.AgencyTypeExecuting, Region: "Maharashtra"},
			want:     []string{"exec-mh-1", "exec-mh-0", "exec-mh-2"},
		},
		{
			name:     "limit",
			criteria: entity.AgencyCriteria{Type: entity.AgencyTypeExecuting, Region: "Maharashtra"},
			limit:    2,
			want:     []string{"exec-mh-1", "exec-mh-0"},
		},
		{
			name:     "unscoped",
			criteria: entity.AgencyCriteria{Type: entity.AgencyTypeExecuting},
			want:     []string{"exec-ka", "exec-mh-1", "exec-mh-0", "exec-mh-2"},
		},
		{
			name:     "no match",
			criteria: entity.AgencyCriteria{Type: entity.AgencyTypeNodal, Region: "Maharashtra"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindAll(ctx, tt.criteria, tt.limit)
			require.NoError(t, err)
			var ids []string
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestAgencyRepository_Find(t *testing.T) {
	ctx := context.Background()
	repo := NewAgencyRepository(newTestDB(t), zap.NewNop())
	seedAgencies(t, repo)

	got, err := repo.Find(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeMonitoring})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mon-dl", got.ID)

	none, err := repo.Find(ctx, entity.AgencyCriteria{Type: entity.AgencyTypeNodal})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAgencyRepository_CreateValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewAgencyRepository(newTestDB(t), zap.NewNop())

	assert.Error(t, repo.Create(ctx, &entity.Agency{Name: "no id", Type: entity.AgencyTypeNodal}))
	assert.Error(t, repo.Create(ctx, &entity.Agency{ID: "x", Type: "Ministry"}))

	a := &entity.Agency{ID: "nodal-mh", Name: "MH Nodal", Type: entity.AgencyTypeNodal, Region: "Maharashtra"}
	require.NoError(t, repo.Create(ctx, a))
	assert.False(t, a.CreatedAt.IsZero())
	assert.Error(t, repo.Create(ctx, a), "duplicate id")
}
