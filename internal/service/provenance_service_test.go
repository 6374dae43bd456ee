package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

func TestComposeProvenanceFallsBackToLinkedRecords(t *testing.T) {
	harvestDate := time.Date(2024, 3, 8, 6, 30, 0, 0, time.UTC)
	testDate := time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC)
	lot := models.Lot{
		ID:            "lot-1",
		Species:       "Tulsi",
		Variety:       "Unknown",
		FarmerName:    "Lot Farmer",
		LookupCode:    "QR-1",
		BatchID:       "BATCH-1",
		Origin:        models.Origin{Address: "Lot origin"},
		HarvestIDs:    []string{"h-1"},
		TestResultIDs: []string{"t-1"},
		WorkflowStatus: models.WorkflowStatus{
			Farmer: models.StageRecord{Completed: true},
		},
	}
	harvests := []models.Harvest{{ID: "h-1", HarvestDate: harvestDate, Address: "Field 4", Region: "Karnataka"}}
	tests := []models.TestResult{{ID: "t-1", Category: models.TestPurity, QualityGrade: models.GradeB, TestDate: testDate}}

	got := ComposeProvenance(lot, harvests, tests, nil, nil)

	want := []models.NarrativeEntry{
		{Stage: models.StageFarmer, Step: "Farmer", Description: "Harvested by Lot Farmer", Date: &harvestDate, Status: models.NarrativeCompleted, CompletedBy: "Farmer"},
		{Stage: models.StageLabTechnician, Step: "Laboratory Testing", Description: "Quality tests completed", Date: &testDate, Status: models.NarrativePending, CompletedBy: "Lab Technician"},
		{Stage: models.StageProcessor, Step: "Processing", Description: "Processing pending", Status: models.NarrativePending, CompletedBy: "Processor"},
		{Stage: models.StageManager, Step: "Manager Approval", Description: "Final approval pending", Status: models.NarrativePending, CompletedBy: "Manager"},
	}
	if diff := cmp.Diff(want, got.Narrative); diff != "" {
		t.Fatalf("narrative mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Lot Farmer", got.FarmerName)
	assert.Equal(t, "Field 4", got.Origin.Address)
	assert.Equal(t, "Karnataka", got.Origin.Region)
	assert.Equal(t, models.SupplyChainTested, got.SupplyChainStatus.Stage)
	assert.Equal(t, []models.ProvenanceTest{{Category: models.TestPurity, Grade: models.GradeB, Date: testDate}}, got.TestResults)
	assert.Empty(t, got.Certificates)
}

func TestComposeProvenancePrefersStageSlots(t *testing.T) {
	completedAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	lot := models.Lot{
		ID:                 "lot-1",
		HarvestIDs:         []string{"h-1"},
		TestResultIDs:      []string{"t-1"},
		ProcessingBatchIDs: []string{"b-1"},
		WorkflowStatus: models.WorkflowStatus{
			Farmer:        models.CompletedRecord(completedAt, "Harvested 50kg of Tulsi"),
			LabTechnician: models.CompletedRecord(completedAt, "Quality testing completed - Grade: A"),
			Processor:     models.CompletedRecord(completedAt, "Processing batch created - Type: drying"),
		},
	}
	harvests := []models.Harvest{{ID: "h-1", FarmerName: "Asha Devi"}}
	batch := &models.ProcessingBatch{ID: "b-1", StartDate: start}

	got := ComposeProvenance(lot, harvests, []models.TestResult{{ID: "t-1"}}, batch, nil)

	descriptions := make([]string, 0, len(got.Narrative))
	for _, entry := range got.Narrative {
		descriptions = append(descriptions, entry.Description)
	}
	assert.Equal(t, []string{
		"Harvested 50kg of Tulsi",
		"Quality testing completed - Grade: A",
		"Processing batch created - Type: drying",
		"Final approval pending",
	}, descriptions)
	assert.Equal(t, completedAt, *got.Narrative[2].Date)
	assert.Nil(t, got.Narrative[3].Date)
	assert.Equal(t, "Asha Devi", got.FarmerName)
	assert.Equal(t, models.SupplyChainProcessed, got.SupplyChainStatus.Stage)
}

func TestComposeProvenanceUnknownFarmer(t *testing.T) {
	got := ComposeProvenance(models.Lot{ID: "lot-1"}, nil, nil, nil, nil)

	assert.Equal(t, models.UnknownFarmer, got.FarmerName)
	assert.Equal(t, "Harvested by "+models.UnknownFarmer, got.Narrative[0].Description)
	assert.Nil(t, got.HarvestDate)
	assert.Equal(t, models.SupplyChainPending, got.SupplyChainStatus.Stage)
	assert.NotNil(t, got.TestResults)
	assert.NotNil(t, got.Certificates)
}

func TestComposeProvenanceIsPure(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	expires := at.AddDate(1, 0, 0)
	lot := models.Lot{
		ID:             "lot-1",
		HarvestIDs:     []string{"h-1"},
		CertificateIDs: []string{"c-1"},
		WorkflowStatus: models.WorkflowStatus{Farmer: models.CompletedRecord(at, "Harvested 5kg of Neem")},
	}
	harvests := []models.Harvest{{ID: "h-1", FarmerName: "Asha"}}
	certs := []models.Certificate{{ID: "c-1", Number: "CERT-1", Category: models.CertificateOrganic, Status: models.CertificateActive, IssuerID: "mgr-1", IssuedAt: at, ExpiresAt: &expires}}

	lotBefore := *cloneLot(&lot)
	first := ComposeProvenance(lot, harvests, nil, nil, certs)
	second := ComposeProvenance(lot, harvests, nil, nil, certs)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("composition not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(lotBefore, lot, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("lot mutated (-before +after):\n%s", diff)
	}
	require.Len(t, first.Certificates, 1)
	assert.Equal(t, "mgr-1", first.Certificates[0].IssuedBy)
	assert.Equal(t, &expires, first.Certificates[0].ValidUntil)
	assert.Equal(t, "Final approval completed", first.Narrative[3].Description)
	assert.Equal(t, at, *first.Narrative[3].Date)
}

func TestResolveAnswersEveryLookupKeyIdentically(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	h := f.harvest(t, farmerActor, "Tulsi", 50)
	f.test(t, h.Harvest.ID, models.GradeA)
	f.batch(t, h.Harvest.ID)
	svc := NewProvenanceService(f.store.stores(), nil)

	byCode, err := svc.Resolve(ctx, h.Lot.LookupCode)
	require.NoError(t, err)
	byBatch, err := svc.Resolve(ctx, h.Lot.BatchID)
	require.NoError(t, err)
	byID, err := svc.Resolve(ctx, " "+h.Lot.ID+" ")
	require.NoError(t, err)

	if diff := cmp.Diff(byCode, byBatch); diff != "" {
		t.Fatalf("lookup code and batch id disagree (-code +batch):\n%s", diff)
	}
	if diff := cmp.Diff(byCode, byID); diff != "" {
		t.Fatalf("lookup code and lot id disagree (-code +id):\n%s", diff)
	}
	assert.Equal(t, models.SupplyChainProcessed, byCode.SupplyChainStatus.Stage)
}

func TestResolveRejectsEmptyAndUnknownTokens(t *testing.T) {
	svc := NewProvenanceService(newMemoryStore().stores(), nil)

	_, err := svc.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Resolve(context.Background(), "QR-404")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestResolveToleratesMissingBatch(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	lot := &models.Lot{Species: "Neem", FarmerID: "farmer-1", LookupCode: "QR-N", BatchID: "BATCH-N"}
	require.NoError(t, memLots{store}.Create(ctx, lot))
	require.NoError(t, memLots{store}.AppendLink(ctx, lot.ID, models.LinkProcessingBatch, "ghost-batch"))

	got, err := NewProvenanceService(store.stores(), nil).Resolve(ctx, "QR-N")
	require.NoError(t, err)
	assert.Equal(t, "Processing pending", got.Narrative[2].Description)
	assert.Nil(t, got.Narrative[2].Date)
}
