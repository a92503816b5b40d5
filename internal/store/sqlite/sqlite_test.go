package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/kupantip/chat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, handle string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), handle, handle+" Display", "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", handle, err)
	}
	return u
}

func TestCreateDirectRoomDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	first, err := s.CreateDirectRoom(ctx, "dm:1:2", alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct room: %v", err)
	}
	if first.IsGroup {
		t.Errorf("direct room should not be a group")
	}

	second, err := s.CreateDirectRoom(ctx, "dm:1:2", alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct room again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same room id %d, got %d", first.ID, second.ID)
	}

	members, err := s.ListMembers(ctx, first.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %d", len(members))
	}
}

func TestCreateRoomAddsCreatorAndParticipants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	room, err := s.CreateRoom(ctx, "study-group", alice.ID, []int64{bob.ID, carol.ID})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !room.IsGroup {
		t.Errorf("expected group room")
	}
	if room.Name != "study-group" {
		t.Errorf("unexpected name %q", room.Name)
	}

	for _, u := range []*store.User{alice, bob, carol} {
		ok, err := s.IsMember(ctx, u.ID, room.ID)
		if err != nil {
			t.Fatalf("is member: %v", err)
		}
		if !ok {
			t.Errorf("expected %s to be a member", u.Handle)
		}
	}
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	room, err := s.CreateDirectRoom(ctx, "dm:1:2", alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct room: %v", err)
	}

	for _, text := range []string{"hi", "how are you", "hello?"} {
		msg := &store.Message{RoomID: room.ID, SenderID: bob.ID, Content: text}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		if msg.ID == 0 {
			t.Fatalf("expected message id to be filled")
		}
	}

	count, err := s.UnreadCount(ctx, alice.ID, room.ID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 unread, got %d", count)
	}

	// Bob's own messages never count as unread for Bob.
	count, err = s.UnreadCount(ctx, bob.ID, room.ID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread for sender, got %d", count)
	}

	if err := s.MarkRead(ctx, alice.ID, room.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	count, err = s.UnreadCount(ctx, alice.ID, room.ID)
	if err != nil {
		t.Fatalf("unread count after read: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread after mark read, got %d", count)
	}

	// New message after mark-read becomes unread again.
	if err := s.SaveMessage(ctx, &store.Message{RoomID: room.ID, SenderID: bob.ID, Content: "still there?"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	count, err = s.UnreadCount(ctx, alice.ID, room.ID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 unread, got %d", count)
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	room, err := s.CreateDirectRoom(ctx, "dm:1:2", alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct room: %v", err)
	}

	texts := []string{"one", "two", "three", "four", "five"}
	ids := make([]int64, 0, len(texts))
	for _, text := range texts {
		msg := &store.Message{RoomID: room.ID, SenderID: alice.ID, Content: text}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	// Latest page, oldest first within the page.
	page, err := s.ListMessages(ctx, room.ID, 2, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page) != 2 || page[0].Content != "four" || page[1].Content != "five" {
		t.Fatalf("unexpected latest page: %+v", page)
	}
	if page[0].SenderHandle != "alice" {
		t.Errorf("expected sender handle alice, got %q", page[0].SenderHandle)
	}

	// Older page via cursor.
	page, err = s.ListMessages(ctx, room.ID, 2, &ids[3])
	if err != nil {
		t.Fatalf("list messages before: %v", err)
	}
	if len(page) != 2 || page[0].Content != "two" || page[1].Content != "three" {
		t.Fatalf("unexpected older page: %+v", page)
	}
}

func TestListRoomSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	dm, err := s.CreateDirectRoom(ctx, "dm:1:2", alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct room: %v", err)
	}
	group, err := s.CreateRoom(ctx, "announcements", alice.ID, []int64{bob.ID, carol.ID})
	if err != nil {
		t.Fatalf("create group room: %v", err)
	}

	if err := s.SaveMessage(ctx, &store.Message{RoomID: dm.ID, SenderID: bob.ID, Content: "old"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := s.SaveMessage(ctx, &store.Message{RoomID: group.ID, SenderID: carol.ID, Content: "newest"}); err != nil {
		t.Fatalf("save message: %v", err)
	}

	summaries, err := s.ListRoomSummaries(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	// Group has the most recent activity, so it sorts first.
	if summaries[0].ID != group.ID {
		t.Errorf("expected group room first, got room %d", summaries[0].ID)
	}
	if summaries[0].LastMessage == nil || *summaries[0].LastMessage != "newest" {
		t.Errorf("unexpected last message: %v", summaries[0].LastMessage)
	}
	if summaries[0].UnreadCount != 1 {
		t.Errorf("expected 1 unread in group, got %d", summaries[0].UnreadCount)
	}
	if len(summaries[0].Members) != 3 {
		t.Errorf("expected 3 group members, got %d", len(summaries[0].Members))
	}
	if summaries[1].UnreadCount != 1 {
		t.Errorf("expected 1 unread in dm, got %d", summaries[1].UnreadCount)
	}

	// Carol is not in the DM, so she sees only the group.
	summaries, err = s.ListRoomSummaries(ctx, carol.ID)
	if err != nil {
		t.Fatalf("list summaries for carol: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != group.ID {
		t.Fatalf("unexpected summaries for carol: %+v", summaries)
	}
}

func TestRenameRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	room, err := s.CreateRoom(ctx, "before", alice.ID, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := s.RenameRoom(ctx, room.ID, "after"); err != nil {
		t.Fatalf("rename room: %v", err)
	}

	got, err := s.GetRoomByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != "after" {
		t.Errorf("expected renamed room, got %q", got.Name)
	}

	if err := s.RenameRoom(ctx, 9999, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing room, got %v", err)
	}
}
