package service

import (
	"context"
	"testing"

	"github.com/pulseline/broadcast-engine/internal/domain"
)

// Walks one campaign through its whole life: broadcast to three recipients,
// one reads, one deletes, counts follow at every step.
func TestBroadcastLifecycle(t *testing.T) {
	t.Parallel()

	dir := seededDirectory() // u1, u2 donors; u3 recipient
	fixture := newCampaignFixture(t, dir)

	inbox, err := NewInboxService(fixture.deliveries, fixture.bus, nil, nil)
	if err != nil {
		t.Fatalf("NewInboxService() error = %v", err)
	}
	feed, err := NewAdminFeedService(fixture.deliveries, fixture.bus, nil, nil)
	if err != nil {
		t.Fatalf("NewAdminFeedService() error = %v", err)
	}
	dashboard, err := NewDashboardService(fixture.deliveries, fixture.bus, nil, nil)
	if err != nil {
		t.Fatalf("NewDashboardService() error = %v", err)
	}

	ctx := context.Background()

	campaign, report, err := fixture.service.Create(ctx, adminCap, CreateInput{
		Title:    "Urgent: O- Needed",
		Body:     "Report to the central clinic.",
		Category: domain.CategoryUrgent,
		Selector: domain.AudienceSelector{Kind: domain.SelectorAll},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if report.Created != 3 {
		t.Fatalf("report = %+v, want 3 created", report)
	}

	// Every copy starts unread and live.
	summary := feedSummary(t, feed, campaign.ID)
	if summary.TotalSent != 3 || summary.ReadCount != 0 {
		t.Fatalf("summary after fan-out = %+v, want 3/0", summary)
	}

	// One recipient reads their copy.
	u1Inbox, err := inbox.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot(u1) error = %v", err)
	}
	if len(u1Inbox) != 1 || u1Inbox[0].Read {
		t.Fatalf("u1 inbox = %+v, want one unread record", u1Inbox)
	}
	if err := inbox.MarkRead(ctx, "u1", u1Inbox[0].ID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	summary = feedSummary(t, feed, campaign.ID)
	if summary.TotalSent != 3 || summary.ReadCount != 1 {
		t.Fatalf("summary after read = %+v, want 3/1", summary)
	}

	// Another recipient deletes their copy: reach shrinks, other inboxes
	// stay untouched.
	u2Inbox, err := inbox.Snapshot(ctx, "u2")
	if err != nil {
		t.Fatalf("Snapshot(u2) error = %v", err)
	}
	if err := inbox.SoftDelete(ctx, "u2", u2Inbox[0].ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	summary = feedSummary(t, feed, campaign.ID)
	if summary.TotalSent != 2 || summary.ReadCount != 1 {
		t.Fatalf("summary after delete = %+v, want 2/1", summary)
	}

	if records, _ := inbox.Snapshot(ctx, "u2"); len(records) != 0 {
		t.Fatalf("u2 inbox = %v, want empty after delete", records)
	}
	for _, other := range []string{"u1", "u3"} {
		if records, _ := inbox.Snapshot(ctx, other); len(records) != 1 {
			t.Fatalf("%s inbox changed by u2's delete", other)
		}
	}

	counters, err := dashboard.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if counters.DistinctCampaigns != 1 || counters.LiveDeliveries != 2 || counters.TotalRead != 1 {
		t.Fatalf("counters = %+v, want {1 2 1}", counters)
	}

	// Admin recalls the campaign; everything live disappears.
	if _, err := fixture.service.CascadeDelete(ctx, adminCap, campaign.ID); err != nil {
		t.Fatalf("CascadeDelete() error = %v", err)
	}
	summaries, err := feed.Feed(ctx)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("feed after cascade = %v, want empty", summaries)
	}
}

func feedSummary(t *testing.T, feed *AdminFeedService, campaignID string) domain.CampaignSummary {
	t.Helper()

	summaries, err := feed.Feed(context.Background())
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	for _, summary := range summaries {
		if summary.GroupKey == campaignID {
			return summary
		}
	}
	t.Fatalf("campaign %s not in feed", campaignID)
	return domain.CampaignSummary{}
}
