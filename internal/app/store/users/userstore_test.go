package userstore_test

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	userstore "github.com/taskvine/taskvine/internal/app/store/users"
	"github.com/taskvine/taskvine/internal/app/system/indexes"
	"github.com/taskvine/taskvine/internal/domain/models"
	"github.com/taskvine/taskvine/internal/testutil"
)

func newStore(t *testing.T) (*userstore.Store, *testutil.Fixtures, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return userstore.New(db, zap.NewNop()), testutil.NewFixtures(t, db), db
}

func ensureIndexes(t *testing.T, db *mongo.Database) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestStore_Create(t *testing.T) {
	store, _, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := models.User{
		Handle:   "Alice",
		FullName: "Alice Anderson",
		Email:    "Alice@Example.com",
	}

	created, err := store.Create(ctx, user)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Verify ID was assigned
	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}

	// Verify normalized fields
	if created.Handle != "alice" {
		t.Errorf("expected handle to be lowercased, got %q", created.Handle)
	}
	if created.Email != "alice@example.com" {
		t.Errorf("expected email to be lowercased, got %q", created.Email)
	}
	if created.FullNameCI == "" {
		t.Error("expected FullNameCI to be set")
	}

	// Verify timestamps and default status
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if created.Status != "active" {
		t.Errorf("expected status 'active', got %q", created.Status)
	}

	// Relationship arrays start empty, not nil
	if created.Followers == nil || created.Following == nil || created.FollowRequests == nil {
		t.Error("expected relationship arrays to be initialized")
	}
}

func TestStore_Create_MissingHandle(t *testing.T) {
	store, _, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{
		FullName: "No Handle",
		Email:    "nohandle@example.com",
	})
	if err == nil {
		t.Error("expected error for missing handle")
	}
}

func TestStore_Create_DuplicateHandle(t *testing.T) {
	store, _, db := newStore(t)
	ensureIndexes(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{Handle: "bob", FullName: "Bob One", Email: "bob1@example.com"})
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	_, err = store.Create(ctx, models.User{Handle: "bob", FullName: "Bob Two", Email: "bob2@example.com"})
	if err != userstore.ErrDuplicateHandle {
		t.Errorf("expected ErrDuplicateHandle, got %v", err)
	}
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	store, _, db := newStore(t)
	ensureIndexes(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{Handle: "carol", FullName: "Carol", Email: "carol@example.com"})
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	_, err = store.Create(ctx, models.User{Handle: "carol2", FullName: "Carol Two", Email: "carol@example.com"})
	if err != userstore.ErrDuplicateEmail {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	store, _, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if err != userstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_GetByHandle(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "dave", "Dave")

	got, err := store.GetByHandle(ctx, "@Dave")
	if err != nil {
		t.Fatalf("GetByHandle failed: %v", err)
	}
	if got.ID != user.ID {
		t.Error("expected lookup to normalize the handle")
	}
}

func TestStore_SetPrivacy_ToPrivate(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "erin", "Erin")

	promoted, err := store.SetPrivacy(ctx, user.ID, true)
	if err != nil {
		t.Fatalf("SetPrivacy failed: %v", err)
	}
	if len(promoted) != 0 {
		t.Errorf("expected no promotions when going private, got %d", len(promoted))
	}

	got, err := store.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.IsPrivate {
		t.Error("expected user to be private")
	}
}

func TestStore_SetPrivacy_NoChange(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := fixtures.CreateUser(ctx, "frank", "Frank")

	promoted, err := store.SetPrivacy(ctx, user.ID, false)
	if err != nil {
		t.Fatalf("SetPrivacy failed: %v", err)
	}
	if promoted != nil {
		t.Error("expected no-op when privacy unchanged")
	}
}

func TestStore_SetPrivacy_FlipPublicPromotesRequests(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	target := fixtures.CreatePrivateUser(ctx, "grace", "Grace")
	req1 := fixtures.CreateUser(ctx, "henry", "Henry")
	req2 := fixtures.CreateUser(ctx, "iris", "Iris")
	fixtures.MakePendingRequest(ctx, req1.ID, target.ID)
	fixtures.MakePendingRequest(ctx, req2.ID, target.ID)

	promoted, err := store.SetPrivacy(ctx, target.ID, false)
	if err != nil {
		t.Fatalf("SetPrivacy failed: %v", err)
	}
	if len(promoted) != 2 {
		t.Fatalf("expected 2 promoted requesters, got %d", len(promoted))
	}

	got, err := store.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IsPrivate {
		t.Error("expected target to be public")
	}
	if len(got.FollowRequests) != 0 {
		t.Errorf("expected follow_requests to drain, got %d", len(got.FollowRequests))
	}
	if len(got.Followers) != 2 {
		t.Errorf("expected 2 followers after promotion, got %d", len(got.Followers))
	}

	// Each requester now follows the target
	for _, rid := range []primitive.ObjectID{req1.ID, req2.ID} {
		r, err := store.GetByID(ctx, rid)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if !containsID(r.Following, target.ID) {
			t.Errorf("expected requester %s to follow target after promotion", r.Handle)
		}
	}
}

func TestStore_Counts(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fixtures.CreateUser(ctx, "judy", "Judy")
	b := fixtures.CreateUser(ctx, "karl", "Karl")
	c := fixtures.CreateUser(ctx, "lena", "Lena")
	fixtures.MakeFollower(ctx, b.ID, a.ID)
	fixtures.MakeFollower(ctx, c.ID, a.ID)
	fixtures.MakeFollower(ctx, a.ID, b.ID)

	followers, following, err := store.Counts(ctx, a.ID)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if followers != 2 {
		t.Errorf("followers: got %d, want 2", followers)
	}
	if following != 1 {
		t.Errorf("following: got %d, want 1", following)
	}
}

func TestStore_SearchByName(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fixtures.CreateUser(ctx, "maria", "Maria Santos")
	fixtures.CreateUser(ctx, "mark", "Marcus Webb")
	fixtures.CreateUser(ctx, "nina", "Nina Patel")

	results, err := store.SearchByName(ctx, "mar", 10)
	if err != nil {
		t.Fatalf("SearchByName failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results for prefix 'mar', got %d", len(results))
	}

	empty, err := store.SearchByName(ctx, "   ", 10)
	if err != nil {
		t.Fatalf("SearchByName failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no results for blank query, got %d", len(empty))
	}
}

func TestStore_Delete_UnlinksRelationships(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gone := fixtures.CreateUser(ctx, "oscar", "Oscar")
	other := fixtures.CreateUser(ctx, "pam", "Pam")
	fixtures.MakeFollower(ctx, gone.ID, other.ID)
	fixtures.MakeFollower(ctx, other.ID, gone.ID)

	if err := store.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.GetByID(ctx, gone.ID); err != userstore.ErrNotFound {
		t.Errorf("expected deleted user to be gone, got %v", err)
	}

	remaining, err := store.GetByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if containsID(remaining.Followers, gone.ID) || containsID(remaining.Following, gone.ID) {
		t.Error("expected deleted user to be pulled from relationship arrays")
	}
}

// A request filed by a since-deleted account stays on the target's
// document. The follow store surfaces it as actor-not-found when the
// target tries to accept, and that is the moment it gets swept.
func TestStore_Delete_LeavesFiledRequestsDangling(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gone := fixtures.CreateUser(ctx, "quinn", "Quinn")
	target := fixtures.CreatePrivateUser(ctx, "rosa", "Rosa")
	fixtures.MakePendingRequest(ctx, gone.ID, target.ID)

	if err := store.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	remaining, err := store.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !containsID(remaining.FollowRequests, gone.ID) {
		t.Error("expected the filed request to remain on the target document")
	}
}

func TestStore_Delete_NotFound(t *testing.T) {
	store, _, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Delete(ctx, primitive.NewObjectID()); err != userstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestStore_SetPrivacy_LateRequestStillPromoted(t *testing.T) {
	store, fixtures, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	target := fixtures.CreatePrivateUser(ctx, "judy", "Judy")
	early := fixtures.CreateUser(ctx, "kate", "Kate")
	late := fixtures.CreateUser(ctx, "liam", "Liam")
	fixtures.MakePendingRequest(ctx, early.ID, target.ID)

	// A caller reads the profile, then a request lands before the flip.
	// The drain happens at write time, so the late request must be both
	// promoted and reported, not silently wiped.
	if _, err := store.GetByID(ctx, target.ID); err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	fixtures.MakePendingRequest(ctx, late.ID, target.ID)

	promoted, err := store.SetPrivacy(ctx, target.ID, false)
	if err != nil {
		t.Fatalf("SetPrivacy failed: %v", err)
	}
	if len(promoted) != 2 {
		t.Fatalf("expected both requesters promoted, got %d", len(promoted))
	}
	if !containsID(promoted, late.ID) {
		t.Error("late requester missing from the promoted set")
	}

	got, err := store.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(got.FollowRequests) != 0 {
		t.Errorf("expected follow_requests to drain, got %d", len(got.FollowRequests))
	}
	if !containsID(got.Followers, late.ID) {
		t.Error("late requester not promoted to follower")
	}
	lateUser, err := store.GetByID(ctx, late.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !containsID(lateUser.Following, target.ID) {
		t.Error("late requester's following edge missing after promotion")
	}
}

func TestStore_SetPrivacy_UnknownUser(t *testing.T) {
	store, _, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.SetPrivacy(ctx, primitive.NewObjectID(), true); err != userstore.ErrNotFound {
		t.Errorf("expected ErrNotFound going private, got %v", err)
	}
	if _, err := store.SetPrivacy(ctx, primitive.NewObjectID(), false); err != userstore.ErrNotFound {
		t.Errorf("expected ErrNotFound going public, got %v", err)
	}
}
