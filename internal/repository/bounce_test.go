package repository

import (
	"testing"

	"github.com/mcanepa/sendero/internal/models"
)

func TestBounceRepository_RecordDeduplicates(t *testing.T) {
	d := setupTestDB(t)
	repo := NewBounceRepository(d)

	ev := &models.BounceEvent{
		ProviderMsgID: "prov-123",
		BouncedEmail:  "gone@example.com",
		Reason:        "550 user unknown",
	}

	created, err := repo.Record(ev)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !created {
		t.Error("Record() = false for first event")
	}

	// Same provider message id again is a no-op
	dup := &models.BounceEvent{ProviderMsgID: "prov-123", BouncedEmail: "gone@example.com"}
	created, err = repo.Record(dup)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if created {
		t.Error("Record() = true for duplicate provider message id")
	}

	events, total, err := repo.List(models.BounceListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Errorf("List() = %d/%d events, want 1/1", len(events), total)
	}
	if events[0].Reason != "550 user unknown" {
		t.Errorf("Reason = %v", events[0].Reason)
	}
}

func TestTestSendRepository_Record(t *testing.T) {
	d := setupTestDB(t)
	repo := NewTestSendRepository(d)

	c := createTestCampaign(t, d)

	events := []models.TestSendEvent{
		{CampaignID: c.ID, ToEmail: "me@example.com", RenderedSubject: "Hola Ana", RenderedHTML: "<p>Hola</p>"},
		{CampaignID: c.ID, ToEmail: "me@example.com", RenderedSubject: "Hola Bruno", RenderedHTML: "<p>Hola</p>"},
	}
	for i := range events {
		if err := repo.Record(&events[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := repo.ListForCampaign(c.ID)
	if err != nil {
		t.Fatalf("ListForCampaign() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListForCampaign() returned %d events, want 2", len(got))
	}

	got, err = repo.ListForCampaign("other-campaign")
	if err != nil {
		t.Fatalf("ListForCampaign() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListForCampaign(other) returned %d events, want 0", len(got))
	}
}
