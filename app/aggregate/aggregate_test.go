package aggregate_test

import (
	"context"
	"testing"

	"github.com/vibast-solutions/ms-go-accounts/app/aggregate"
)

func accountsFixture() aggregate.Memory {
	return aggregate.Memory{
		{"id": uint64(1), "handle": "alpha", "fullName": "Alpha One", "avatar": "https://cdn/a.png", "watchHistory": []uint64{20, 10}},
		{"id": uint64(2), "handle": "bravo", "fullName": "Bravo Two", "avatar": "https://cdn/b.png", "watchHistory": []uint64{}},
	}
}

func subscriptionsFixture() aggregate.Memory {
	return aggregate.Memory{
		{"id": uint64(100), "subscriber": uint64(2), "channel": uint64(1)},
		{"id": uint64(101), "subscriber": uint64(3), "channel": uint64(1)},
		{"id": uint64(102), "subscriber": uint64(1), "channel": uint64(4)},
	}
}

func videosFixture() aggregate.Memory {
	return aggregate.Memory{
		{"id": uint64(10), "title": "first", "owner": uint64(2)},
		{"id": uint64(20), "title": "second", "owner": uint64(2)},
		{"id": uint64(30), "title": "unrelated", "owner": uint64(1)},
	}
}

func TestMemoryFind_EqualityAndIn(t *testing.T) {
	accounts := accountsFixture()

	docs, err := accounts.Find(context.Background(), aggregate.Filter{"handle": "alpha"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(docs) != 1 || docs[0]["id"] != uint64(1) {
		t.Fatalf("expected account 1, got %v", docs)
	}

	docs, err = accounts.Find(context.Background(), aggregate.Filter{"id": []uint64{1, 2}})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(docs))
	}

	docs, err = accounts.Find(context.Background(), aggregate.Filter{"handle": "missing"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no accounts, got %d", len(docs))
	}
}

func TestLookup_JoinsAndLeavesInputUntouched(t *testing.T) {
	in := []aggregate.Document{{"id": uint64(1), "handle": "alpha"}}

	stage := aggregate.Lookup{
		From:         subscriptionsFixture(),
		LocalField:   "id",
		ForeignField: "channel",
		As:           "subscribers",
	}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	joined := aggregate.Joined(out[0], "subscribers")
	if len(joined) != 2 {
		t.Fatalf("expected 2 subscriber edges, got %d", len(joined))
	}
	if _, ok := in[0]["subscribers"]; ok {
		t.Fatalf("lookup mutated its input document")
	}
}

func TestLookup_EmptyJoinYieldsEmptySlice(t *testing.T) {
	in := []aggregate.Document{{"id": uint64(9)}}

	stage := aggregate.Lookup{
		From:         subscriptionsFixture(),
		LocalField:   "id",
		ForeignField: "channel",
		As:           "subscribers",
	}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	joined, ok := out[0]["subscribers"].([]aggregate.Document)
	if !ok || len(joined) != 0 {
		t.Fatalf("expected empty join result, got %v", out[0]["subscribers"])
	}
}

func TestLookup_PreservesLocalListOrder(t *testing.T) {
	// watchHistory lists 20 before 10; the join must keep that order even
	// though the backing collection stores 10 first.
	in := []aggregate.Document{{"id": uint64(1), "watchHistory": []uint64{20, 10}}}

	stage := aggregate.Lookup{
		From:         videosFixture(),
		LocalField:   "watchHistory",
		ForeignField: "id",
		As:           "watchHistory",
	}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	joined := aggregate.Joined(out[0], "watchHistory")
	if len(joined) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(joined))
	}
	if joined[0]["id"] != uint64(20) || joined[1]["id"] != uint64(10) {
		t.Fatalf("expected order [20 10], got [%v %v]", joined[0]["id"], joined[1]["id"])
	}
}

func TestLookup_SingleCollapsesAndProjects(t *testing.T) {
	in := []aggregate.Document{{"id": uint64(10), "owner": uint64(2)}}

	stage := aggregate.Lookup{
		From:         accountsFixture(),
		LocalField:   "owner",
		ForeignField: "id",
		As:           "owner",
		Project:      []string{"fullName", "handle", "avatar"},
		Single:       true,
	}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	owner, ok := out[0]["owner"].(aggregate.Document)
	if !ok {
		t.Fatalf("expected single owner document, got %T", out[0]["owner"])
	}
	if owner["handle"] != "bravo" || owner["fullName"] != "Bravo Two" {
		t.Fatalf("unexpected owner: %v", owner)
	}
	if _, ok := owner["id"]; ok {
		t.Fatalf("owner projection leaked the id field")
	}
	if _, ok := owner["watchHistory"]; ok {
		t.Fatalf("owner projection leaked watchHistory")
	}
}

func TestLookup_SingleWithNoMatchIsNil(t *testing.T) {
	in := []aggregate.Document{{"id": uint64(10), "owner": uint64(99)}}

	stage := aggregate.Lookup{
		From:         accountsFixture(),
		LocalField:   "owner",
		ForeignField: "id",
		As:           "owner",
		Single:       true,
	}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if out[0]["owner"] != nil {
		t.Fatalf("expected nil owner, got %v", out[0]["owner"])
	}
}

func TestDerive_AddsComputedField(t *testing.T) {
	in := []aggregate.Document{
		{"subscribers": []aggregate.Document{{"subscriber": uint64(2)}, {"subscriber": uint64(3)}}},
	}

	stage := aggregate.Derive{
		Field: "subscribersCount",
		Fn: func(d aggregate.Document) any {
			return len(aggregate.Joined(d, "subscribers"))
		},
	}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if out[0]["subscribersCount"] != 2 {
		t.Fatalf("expected count 2, got %v", out[0]["subscribersCount"])
	}
	if _, ok := in[0]["subscribersCount"]; ok {
		t.Fatalf("derive mutated its input document")
	}
}

func TestProject_AllowlistOnly(t *testing.T) {
	in := []aggregate.Document{
		{"id": uint64(1), "handle": "alpha", "passwordHash": "secret", "refreshToken": "secret"},
	}

	stage := aggregate.Project{Fields: []string{"id", "handle", "missing"}}

	out, err := stage.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}
	if len(out[0]) != 2 {
		t.Fatalf("expected exactly 2 fields, got %v", out[0])
	}
	if _, ok := out[0]["passwordHash"]; ok {
		t.Fatalf("projection leaked passwordHash")
	}
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	pipeline := aggregate.New(
		accountsFixture(),
		aggregate.Filter{"handle": "alpha"},
		aggregate.Lookup{From: subscriptionsFixture(), LocalField: "id", ForeignField: "channel", As: "subscribers"},
		aggregate.Lookup{From: subscriptionsFixture(), LocalField: "id", ForeignField: "subscriber", As: "subscribedTo"},
		aggregate.Derive{Field: "subscribersCount", Fn: func(d aggregate.Document) any {
			return len(aggregate.Joined(d, "subscribers"))
		}},
		aggregate.Derive{Field: "channelsSubscribedToCount", Fn: func(d aggregate.Document) any {
			return len(aggregate.Joined(d, "subscribedTo"))
		}},
		aggregate.Project{Fields: []string{"id", "handle", "subscribersCount", "channelsSubscribedToCount"}},
	)

	docs, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	doc := docs[0]
	if doc["subscribersCount"] != 2 || doc["channelsSubscribedToCount"] != 1 {
		t.Fatalf("unexpected counts: %v", doc)
	}
	if _, ok := doc["watchHistory"]; ok {
		t.Fatalf("projection kept a field outside the allowlist")
	}
}

func TestPipeline_NoMatchYieldsEmpty(t *testing.T) {
	pipeline := aggregate.New(
		accountsFixture(),
		aggregate.Filter{"handle": "nobody"},
		aggregate.Project{Fields: []string{"id"}},
	)

	docs, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %d documents", len(docs))
	}
}
