package tasks_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	apierrors "github.com/taskvine/taskvine/internal/app/features/errors"
	"github.com/taskvine/taskvine/internal/app/features/tasks"
	activitystore "github.com/taskvine/taskvine/internal/app/store/activities"
	"github.com/taskvine/taskvine/internal/app/system/events"
	"github.com/taskvine/taskvine/internal/domain/models"
	"github.com/taskvine/taskvine/internal/testutil"
)

func newHandler(t *testing.T) (*tasks.Handler, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	h := tasks.NewHandler(db, events.NewBus(logger), apierrors.NewErrorLogger(logger), logger)
	return h, testutil.NewFixtures(t, db)
}

func asUser(r *http.Request, u models.User) *http.Request {
	return testutil.WithUser(r, testutil.UserFor(u.ID, u.Handle, u.FullName, u.IsPrivate))
}

func jsonRequest(method, target, body string, u models.User) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return asUser(req, u)
}

func TestLifecycle_NotifiesCounterparties(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")
	worker := fx.CreateUser(ctx, "worker", "Wendy Worker")
	task := fx.CreateTask(ctx, owner.ID, "Build a shed")
	acts := activitystore.New(fx.DB())

	// Worker applies: owner is notified.
	req := asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/apply"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec := testutil.NewRecorder()
	h.Apply(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	page, _ := acts.List(ctx, owner.ID, activitystore.ListOptions{})
	if len(page.Activities) != 1 || page.Activities[0].Type != models.ActivityTaskApply {
		t.Fatalf("expected task_apply for owner, got %+v", page.Activities)
	}

	// Owner assigns: worker is notified.
	req = jsonRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/assign", `{"assignee":"`+worker.ID.Hex()+`"}`, owner)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec = testutil.NewRecorder()
	h.Assign(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"status":"assigned"`)

	page, _ = acts.List(ctx, worker.ID, activitystore.ListOptions{})
	if len(page.Activities) != 1 || page.Activities[0].Type != models.ActivityTaskAssign {
		t.Fatalf("expected task_assign for worker, got %+v", page.Activities)
	}

	// Worker completes: owner is notified.
	req = asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/complete"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec = testutil.NewRecorder()
	h.Complete(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"status":"completed"`)

	page, _ = acts.List(ctx, owner.ID, activitystore.ListOptions{Types: []string{models.ActivityTaskComplete}})
	if len(page.Activities) != 1 {
		t.Fatalf("expected task_complete for owner, got %+v", page.Activities)
	}
}

func TestApply_OwnTaskIs400(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")
	task := fx.CreateTask(ctx, owner.ID, "Self task")

	req := asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/apply"), owner)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec := testutil.NewRecorder()
	h.Apply(rec, req)

	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "own_task")
}

func TestApply_TwiceIs409(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")
	worker := fx.CreateUser(ctx, "worker", "Wendy Worker")
	task := fx.CreateTask(ctx, owner.ID, "Popular task")

	req := asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/apply"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	h.Apply(testutil.NewRecorder(), req)

	req = asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/apply"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec := testutil.NewRecorder()
	h.Apply(rec, req)

	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertContains(t, "already_applied")

	// Dedup also holds at the activity layer.
	acts := activitystore.New(fx.DB())
	n, _ := acts.CountUnread(ctx, owner.ID)
	if n != 1 {
		t.Errorf("expected 1 notification despite retry, got %d", n)
	}
}

func TestWithdraw_RetractsNotification(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")
	worker := fx.CreateUser(ctx, "worker", "Wendy Worker")
	task := fx.CreateTask(ctx, owner.ID, "Task")

	req := asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/apply"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	h.Apply(testutil.NewRecorder(), req)

	req = asUser(testutil.NewRequest(http.MethodDelete, "/tasks/"+task.ID.Hex()+"/apply"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec := testutil.NewRecorder()
	h.Withdraw(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	acts := activitystore.New(fx.DB())
	n, _ := acts.CountUnread(ctx, owner.ID)
	if n != 0 {
		t.Errorf("expected application notification retracted, got %d", n)
	}
}

func TestAssign_NonOwnerIs403(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")
	worker := fx.CreateUser(ctx, "worker", "Wendy Worker")
	task := fx.CreateTask(ctx, owner.ID, "Task")

	req := jsonRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/assign", `{"assignee":"`+worker.ID.Hex()+`"}`, worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec := testutil.NewRecorder()
	h.Assign(rec, req)

	rec.AssertStatus(t, http.StatusForbidden)
	rec.AssertContains(t, "not_owner")
}

func TestCreate_EmptyTitle(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")

	rec := testutil.NewRecorder()
	h.Create(rec, jsonRequest(http.MethodPost, "/tasks", `{"title":" "}`, owner))

	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "empty_title")
}

func TestDelete_PurgesActivities(t *testing.T) {
	h, fx := newHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := fx.CreateUser(ctx, "owner", "Olive Owner")
	worker := fx.CreateUser(ctx, "worker", "Wendy Worker")
	task := fx.CreateTask(ctx, owner.ID, "Task")

	req := asUser(testutil.NewRequest(http.MethodPost, "/tasks/"+task.ID.Hex()+"/apply"), worker)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	h.Apply(testutil.NewRecorder(), req)

	req = asUser(testutil.NewRequest(http.MethodDelete, "/tasks/"+task.ID.Hex()), owner)
	req = testutil.WithChiURLParam(req, "id", task.ID.Hex())
	rec := testutil.NewRecorder()
	h.Delete(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	acts := activitystore.New(fx.DB())
	n, _ := acts.CountUnread(ctx, owner.ID)
	if n != 0 {
		t.Errorf("expected task activities purged, got %d", n)
	}
}
