package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage, userName, email string) string {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		UserName: userName,
		Email:    email,
		Password: "secret-password",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user.ID
}

func createTestVideo(t *testing.T, store *Storage, ownerID, name string) string {
	t.Helper()
	video, err := store.CreateVideo(CreateVideoParams{
		OwnerID:   ownerID,
		Name:      name,
		VideoPath: "videos/" + name + ".mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo returned error: %v", err)
	}
	return video.ID
}

func TestCreateUserEnforcesUniqueness(t *testing.T) {
	store := newTestStorage(t)

	createTestUser(t, store, "alice", "alice@example.com")

	if _, err := store.CreateUser(CreateUserParams{UserName: "other", Email: "Alice@Example.com", Password: "pw"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	if _, err := store.CreateUser(CreateUserParams{UserName: "ALICE", Email: "second@example.com", Password: "pw"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate userName, got %v", err)
	}
}

func TestCreateUserComputesSlug(t *testing.T) {
	store := newTestStorage(t)

	user, err := store.CreateUser(CreateUserParams{UserName: "Jane  Doe", Email: "jane@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.Slug != "jane-doe" {
		t.Fatalf("slug = %q, want jane-doe", user.Slug)
	}
}

func TestAuthenticateUserRecordsLoginIP(t *testing.T) {
	store := newTestStorage(t)
	createTestUser(t, store, "alice", "alice@example.com")

	user, err := store.AuthenticateUser("alice@example.com", "secret-password", "203.0.113.9")
	if err != nil {
		t.Fatalf("AuthenticateUser returned error: %v", err)
	}
	if len(user.LoginIPs) != 1 || user.LoginIPs[0] != "203.0.113.9" {
		t.Fatalf("loginIPs = %v, want [203.0.113.9]", user.LoginIPs)
	}

	// Same IP again must not duplicate.
	user, err = store.AuthenticateUser("alice@example.com", "secret-password", "203.0.113.9")
	if err != nil {
		t.Fatalf("AuthenticateUser returned error: %v", err)
	}
	if len(user.LoginIPs) != 1 {
		t.Fatalf("loginIPs = %v, want single entry", user.LoginIPs)
	}

	if _, err := store.AuthenticateUser("alice@example.com", "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.AuthenticateUser("nobody@example.com", "secret-password", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestSubscribeIsBidirectional(t *testing.T) {
	store := newTestStorage(t)
	viewerID := createTestUser(t, store, "viewer", "viewer@example.com")
	channelID := createTestUser(t, store, "channel", "channel@example.com")

	if _, err := store.Subscribe(viewerID, channelID); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	viewer, _ := store.GetUser(viewerID)
	channel, _ := store.GetUser(channelID)
	if len(viewer.SubscribedChannels) != 1 || viewer.SubscribedChannels[0] != channelID {
		t.Fatalf("subscribedChannels = %v", viewer.SubscribedChannels)
	}
	if len(channel.Subscribers) != 1 || channel.Subscribers[0] != viewerID {
		t.Fatalf("subscribers = %v", channel.Subscribers)
	}

	// Repeat subscribe is a no-op.
	if _, err := store.Subscribe(viewerID, channelID); err != nil {
		t.Fatalf("repeat Subscribe returned error: %v", err)
	}
	viewer, _ = store.GetUser(viewerID)
	if len(viewer.SubscribedChannels) != 1 {
		t.Fatalf("subscribedChannels duplicated: %v", viewer.SubscribedChannels)
	}

	if _, err := store.Unsubscribe(viewerID, channelID); err != nil {
		t.Fatalf("Unsubscribe returned error: %v", err)
	}
	viewer, _ = store.GetUser(viewerID)
	channel, _ = store.GetUser(channelID)
	if len(viewer.SubscribedChannels) != 0 || len(channel.Subscribers) != 0 {
		t.Fatalf("unsubscribe left references: %v %v", viewer.SubscribedChannels, channel.Subscribers)
	}

	if _, err := store.Subscribe(viewerID, viewerID); err == nil {
		t.Fatal("expected error subscribing to self")
	}
}

func TestVideoReactionsAreMutuallyExclusive(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	viewerID := createTestUser(t, store, "viewer", "viewer@example.com")
	videoID := createTestVideo(t, store, ownerID, "clip")

	video, err := store.LikeVideo(videoID, viewerID)
	if err != nil {
		t.Fatalf("LikeVideo returned error: %v", err)
	}
	if len(video.Likes) != 1 || len(video.Dislikes) != 0 {
		t.Fatalf("after like: likes=%v dislikes=%v", video.Likes, video.Dislikes)
	}

	video, err = store.DislikeVideo(videoID, viewerID)
	if err != nil {
		t.Fatalf("DislikeVideo returned error: %v", err)
	}
	if len(video.Likes) != 0 || len(video.Dislikes) != 1 {
		t.Fatalf("dislike did not displace like: likes=%v dislikes=%v", video.Likes, video.Dislikes)
	}

	// A repeated dislike withdraws it.
	video, err = store.DislikeVideo(videoID, viewerID)
	if err != nil {
		t.Fatalf("DislikeVideo returned error: %v", err)
	}
	if len(video.Likes) != 0 || len(video.Dislikes) != 0 {
		t.Fatalf("repeat dislike not withdrawn: likes=%v dislikes=%v", video.Likes, video.Dislikes)
	}
}

func TestRecordViewIsDistinctPerIP(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	videoID := createTestVideo(t, store, ownerID, "clip")

	for _, ip := range []string{"198.51.100.1", "198.51.100.1", "198.51.100.2"} {
		if _, err := store.RecordView(videoID, ip); err != nil {
			t.Fatalf("RecordView(%s) returned error: %v", ip, err)
		}
	}

	video, _ := store.GetVideo(videoID)
	if video.ViewCount() != 2 {
		t.Fatalf("view count = %d, want 2", video.ViewCount())
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	videoID := createTestVideo(t, store, ownerID, "clip")

	comment, err := store.CreateComment(videoID, ownerID, "first")
	if err != nil {
		t.Fatalf("CreateComment returned error: %v", err)
	}
	reply, err := store.CreateReply(comment.ID, ownerID, "reply")
	if err != nil {
		t.Fatalf("CreateReply returned error: %v", err)
	}

	playlist, err := store.CreatePlaylist(ownerID, "favorites")
	if err != nil {
		t.Fatalf("CreatePlaylist returned error: %v", err)
	}
	if _, err := store.AddToPlaylist(playlist.ID, videoID); err != nil {
		t.Fatalf("AddToPlaylist returned error: %v", err)
	}

	if err := store.DeleteVideo(videoID); err != nil {
		t.Fatalf("DeleteVideo returned error: %v", err)
	}

	if _, ok := store.GetVideo(videoID); ok {
		t.Fatal("video still present after delete")
	}
	if _, ok := store.GetComment(comment.ID); ok {
		t.Fatal("comment survived video delete")
	}
	if _, ok := store.GetReply(reply.ID); ok {
		t.Fatal("reply survived video delete")
	}
	updatedPlaylist, _ := store.GetPlaylist(playlist.ID)
	if len(updatedPlaylist.Videos) != 0 {
		t.Fatalf("playlist still references deleted video: %v", updatedPlaylist.Videos)
	}
	owner, _ := store.GetUser(ownerID)
	if len(owner.Videos) != 0 {
		t.Fatalf("owner still references deleted video: %v", owner.Videos)
	}
}

func TestCreateVideoRejectsDuplicatePath(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	otherID := createTestUser(t, store, "other", "other@example.com")

	if _, err := store.CreateVideo(CreateVideoParams{
		OwnerID:   ownerID,
		Name:      "clip",
		VideoPath: "videos/same.mp4",
	}); err != nil {
		t.Fatalf("CreateVideo returned error: %v", err)
	}

	if _, err := store.CreateVideo(CreateVideoParams{
		OwnerID:   otherID,
		Name:      "another clip",
		VideoPath: "videos/same.mp4",
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate videoPath, got %v", err)
	}
}

func TestCreatePlaylistRejectsDuplicateName(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")

	if _, err := store.CreatePlaylist(ownerID, "favorites"); err != nil {
		t.Fatalf("CreatePlaylist returned error: %v", err)
	}
	if _, err := store.CreatePlaylist(ownerID, "favorites"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate playlist name, got %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	viewerID := createTestUser(t, store, "viewer", "viewer@example.com")
	videoID := createTestVideo(t, store, ownerID, "clip")
	otherVideoID := createTestVideo(t, store, viewerID, "other")

	if _, err := store.Subscribe(viewerID, ownerID); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	comment, err := store.CreateComment(otherVideoID, ownerID, "from the owner")
	if err != nil {
		t.Fatalf("CreateComment returned error: %v", err)
	}
	if _, err := store.LikeVideo(otherVideoID, ownerID); err != nil {
		t.Fatalf("LikeVideo returned error: %v", err)
	}

	if err := store.DeleteUser(ownerID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}

	if _, ok := store.GetUser(ownerID); ok {
		t.Fatal("user still present after delete")
	}
	if _, ok := store.GetVideo(videoID); ok {
		t.Fatal("owned video survived user delete")
	}
	if _, ok := store.GetComment(comment.ID); ok {
		t.Fatal("authored comment survived user delete")
	}
	viewer, _ := store.GetUser(viewerID)
	if len(viewer.SubscribedChannels) != 0 {
		t.Fatalf("viewer still subscribed to deleted channel: %v", viewer.SubscribedChannels)
	}
	otherVideo, _ := store.GetVideo(otherVideoID)
	if len(otherVideo.Likes) != 0 {
		t.Fatalf("deleted user's like survived: %v", otherVideo.Likes)
	}
}

func TestDeleteCommentRemovesRepliesAndBackReference(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	videoID := createTestVideo(t, store, ownerID, "clip")

	comment, err := store.CreateComment(videoID, ownerID, "first")
	if err != nil {
		t.Fatalf("CreateComment returned error: %v", err)
	}
	reply, err := store.CreateReply(comment.ID, ownerID, "reply")
	if err != nil {
		t.Fatalf("CreateReply returned error: %v", err)
	}

	if err := store.DeleteComment(comment.ID); err != nil {
		t.Fatalf("DeleteComment returned error: %v", err)
	}

	if _, ok := store.GetReply(reply.ID); ok {
		t.Fatal("reply survived comment delete")
	}
	video, _ := store.GetVideo(videoID)
	if len(video.Comments) != 0 {
		t.Fatalf("video still references deleted comment: %v", video.Comments)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	store := newTestStorage(t)
	createTestUser(t, store, "alice", "alice@example.com")

	user, code, err := store.BeginPasswordReset("alice@example.com", 10*time.Minute)
	if err != nil {
		t.Fatalf("BeginPasswordReset returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code = %q, want six digits", code)
	}
	if user.PasswordResetCodeHash == "" || user.PasswordResetCodeHash == code {
		t.Fatal("reset code stored in plain text or missing")
	}

	if err := store.VerifyResetCode("alice@example.com", "000000"); !errors.Is(err, ErrResetCodeInvalid) && code != "000000" {
		t.Fatalf("expected ErrResetCodeInvalid for wrong code, got %v", err)
	}
	if err := store.VerifyResetCode("alice@example.com", code); err != nil {
		t.Fatalf("VerifyResetCode returned error: %v", err)
	}

	updated, err := store.ResetPassword("alice@example.com", "new-password")
	if err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	if updated.PasswordChangedAt == nil {
		t.Fatal("passwordChangedAt not stamped")
	}
	if updated.PasswordResetCodeHash != "" || updated.PasswordResetVerified {
		t.Fatal("reset state not cleared")
	}

	if _, err := store.AuthenticateUser("alice@example.com", "new-password", ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := store.AuthenticateUser("alice@example.com", "secret-password", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestResetPasswordRequiresVerifiedCode(t *testing.T) {
	store := newTestStorage(t)
	createTestUser(t, store, "alice", "alice@example.com")

	if _, _, err := store.BeginPasswordReset("alice@example.com", 10*time.Minute); err != nil {
		t.Fatalf("BeginPasswordReset returned error: %v", err)
	}
	if _, err := store.ResetPassword("alice@example.com", "new-password"); !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("expected ErrResetCodeInvalid without verification, got %v", err)
	}
}

func TestExpiredResetCodeRejected(t *testing.T) {
	store := newTestStorage(t)
	createTestUser(t, store, "alice", "alice@example.com")

	_, code, err := store.BeginPasswordReset("alice@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("BeginPasswordReset returned error: %v", err)
	}
	if err := store.VerifyResetCode("alice@example.com", code); !errors.Is(err, ErrResetCodeInvalid) {
		t.Fatalf("expected ErrResetCodeInvalid for expired code, got %v", err)
	}
}

func TestDeleteCategoryClearsVideoReferences(t *testing.T) {
	store := newTestStorage(t)
	ownerID := createTestUser(t, store, "owner", "owner@example.com")
	category, err := store.CreateCategory("Music", "music videos", ownerID)
	if err != nil {
		t.Fatalf("CreateCategory returned error: %v", err)
	}

	video, err := store.CreateVideo(CreateVideoParams{
		OwnerID:    ownerID,
		Name:       "clip",
		VideoPath:  "videos/clip.mp4",
		CategoryID: category.ID,
	})
	if err != nil {
		t.Fatalf("CreateVideo returned error: %v", err)
	}

	if err := store.DeleteCategory(category.ID); err != nil {
		t.Fatalf("DeleteCategory returned error: %v", err)
	}

	updated, _ := store.GetVideo(video.ID)
	if updated.CategoryID != "" {
		t.Fatalf("video still references deleted category %q", updated.CategoryID)
	}
}

func TestStorageSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	userID := createTestUser(t, store, "alice", "alice@example.com")
	videoID := createTestVideo(t, store, userID, "clip")

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if _, ok := reloaded.GetUser(userID); !ok {
		t.Fatal("user missing after reload")
	}
	if _, ok := reloaded.GetVideo(videoID); !ok {
		t.Fatal("video missing after reload")
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	store := newTestStorage(t)
	userID := createTestUser(t, store, "alice", "alice@example.com")

	store.persistOverride = func(dataset) error {
		return errors.New("disk full")
	}

	if _, err := store.UpdateUser(userID, UserUpdate{FirstName: ptr("New")}); err == nil {
		t.Fatal("expected persist error")
	}
	user, _ := store.GetUser(userID)
	if user.FirstName != "" {
		t.Fatalf("update applied despite persist failure: %q", user.FirstName)
	}
}

func ptr[T any](v T) *T {
	return &v
}
