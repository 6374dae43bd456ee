package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

type fakeServices struct {
	lots       []models.Lot
	yielded    int
	stage      models.Stage
	token      string
	filter     models.LotFilter
	closed     int
	resolveErr error
}

func (f *fakeServices) PendingFor(_ context.Context, stage models.Stage) iter.Seq2[models.Lot, error] {
	f.stage = stage
	return func(yield func(models.Lot, error) bool) {
		for _, lot := range f.lots {
			f.yielded++
			if !yield(lot, nil) {
				return
			}
		}
	}
}

func (f *fakeServices) Resolve(_ context.Context, token string) (*models.Provenance, error) {
	f.token = token
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &models.Provenance{LotID: "lot-1", LookupCode: token, Species: "Tulsi"}, nil
}

func (f *fakeServices) Overview(_ context.Context, filter models.LotFilter) ([]models.LotWithStatus, *models.Pagination, error) {
	f.filter = filter
	out := make([]models.LotWithStatus, 0, len(f.lots))
	for _, lot := range f.lots {
		out = append(out, lot.WithSupplyChainStatus())
	}
	return out, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: len(f.lots)}, nil
}

func (f *fakeServices) loader() serviceLoader {
	return func(context.Context) (*services, error) {
		return &services{workflow: f, provenance: f, supplyChain: f, close: func() { f.closed++ }}, nil
	}
}

func run(t *testing.T, f *fakeServices, migrate migrator, args ...string) (string, error) {
	t.Helper()
	if migrate == nil {
		migrate = func(context.Context) ([]string, error) { return nil, nil }
	}
	root := newRootCmd(f.loader(), migrate)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPendingCommandHonoursLimit(t *testing.T) {
	f := &fakeServices{lots: []models.Lot{
		{ID: "lot-1", Species: "Tulsi", LookupCode: "QR-1"},
		{ID: "lot-2", Species: "Neem", LookupCode: "QR-2"},
		{ID: "lot-3", Species: "Ashwagandha", LookupCode: "QR-3"},
	}}

	out, err := run(t, f, nil, "pending", "lab_technician", "--limit", "2")

	require.NoError(t, err)
	assert.Equal(t, models.StageLabTechnician, f.stage)
	assert.Equal(t, 2, f.yielded)
	assert.Contains(t, out, "lot-2")
	assert.NotContains(t, out, "lot-3")
	assert.Equal(t, 1, f.closed)
}

func TestPendingCommandRejectsUnknownStage(t *testing.T) {
	f := &fakeServices{}

	_, err := run(t, f, nil, "pending", "shipper")

	require.Error(t, err)
	assert.Zero(t, f.closed)
}

func TestProvenanceCommandPrintsJSON(t *testing.T) {
	f := &fakeServices{}

	out, err := run(t, f, nil, "provenance", "QR-9")

	require.NoError(t, err)
	assert.Equal(t, "QR-9", f.token)
	assert.Contains(t, out, `"lookup_code": "QR-9"`)
}

func TestProvenanceCommandPropagatesErrors(t *testing.T) {
	f := &fakeServices{resolveErr: errors.New("lot not found")}

	_, err := run(t, f, nil, "provenance", "QR-404")

	assert.EqualError(t, err, "lot not found")
	assert.Equal(t, 1, f.closed)
}

func TestSupplyChainCommandPassesFilters(t *testing.T) {
	f := &fakeServices{lots: []models.Lot{{ID: "lot-1", Species: "Tulsi"}}}

	out, err := run(t, f, nil, "supply-chain", "--species", "Tulsi", "--status", "tested", "--page-size", "10")

	require.NoError(t, err)
	assert.Equal(t, models.LotFilter{Status: models.LotStatusTested, Species: "Tulsi", PageSize: 10}, f.filter)
	assert.Contains(t, out, "lot-1")
	assert.Contains(t, out, "1 of 1 lots")
}

func TestMigrateCommandReportsVersions(t *testing.T) {
	out, err := run(t, &fakeServices{}, func(context.Context) ([]string, error) {
		return []string{"0001_init.sql", "0002_audit.sql"}, nil
	}, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "applied 0001_init.sql\napplied 0002_audit.sql\n", out)

	out, err = run(t, &fakeServices{}, nil, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "database is up to date\n", out)
}
