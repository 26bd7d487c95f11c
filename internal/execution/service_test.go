package execution

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tourman/internal/catalog"
	"github.com/hitoshi/tourman/internal/model"
	"github.com/hitoshi/tourman/internal/repository"
)

// fakeExecRepo はExecutionRepositoryのインメモリ実装。
// 部分ユニークインデックスと条件付き更新のセマンティクスを再現する。
type fakeExecRepo struct {
	mu    sync.Mutex
	execs map[string]*model.TourExecution
}

func newFakeExecRepo() *fakeExecRepo {
	return &fakeExecRepo{execs: make(map[string]*model.TourExecution)}
}

func (f *fakeExecRepo) InsertActive(ctx context.Context, exec *model.TourExecution) (*model.TourExecution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.execs {
		if e.TouristID == exec.TouristID && e.TourID == exec.TourID && e.Status == model.ExecutionStatusActive {
			cp := *e
			return &cp, false, nil
		}
	}
	cp := *exec
	f.execs[exec.ID] = &cp
	return exec, true, nil
}

func (f *fakeExecRepo) FindByIDForTourist(ctx context.Context, executionID string, touristID int64) (*model.TourExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[executionID]
	if !ok || e.TouristID != touristID {
		return nil, nil
	}
	cp := *e
	cp.CompletedKeypoints = append([]model.CompletedKeypoint{}, e.CompletedKeypoints...)
	return &cp, nil
}

func (f *fakeExecRepo) AppendCompletedKeypoint(ctx context.Context, executionID string, kp *model.CompletedKeypoint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[executionID]
	if !ok {
		return false, errors.New("execution not found")
	}
	for _, existing := range e.CompletedKeypoints {
		if existing.KeypointID == kp.KeypointID {
			return false, nil
		}
	}
	e.CompletedKeypoints = append(e.CompletedKeypoints, *kp)
	return true, nil
}

func (f *fakeExecRepo) UpdatePosition(ctx context.Context, executionID string, pos model.Position, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[executionID]
	if !ok || e.Status != model.ExecutionStatusActive {
		return nil
	}
	e.CurrentPosition = pos
	e.LastActivityTime = at
	return nil
}

func (f *fakeExecRepo) CompleteActive(ctx context.Context, executionID string, at time.Time) (bool, error) {
	return f.transition(executionID, model.ExecutionStatusCompleted, at)
}

func (f *fakeExecRepo) AbandonActive(ctx context.Context, executionID string, at time.Time) (bool, error) {
	return f.transition(executionID, model.ExecutionStatusAbandoned, at)
}

func (f *fakeExecRepo) transition(executionID string, status model.ExecutionStatus, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.execs[executionID]
	if !ok || e.Status != model.ExecutionStatusActive {
		return false, nil
	}
	e.Status = status
	e.EndTime = &at
	e.LastActivityTime = at
	return true, nil
}

var _ repository.ExecutionRepository = (*fakeExecRepo)(nil)

// mockVerifier はOwnershipVerifierのモック実装。
type mockVerifier struct {
	hasPurchasedFunc func(ctx context.Context, touristID int64, tourID string) (bool, error)
}

func (m *mockVerifier) HasPurchased(ctx context.Context, touristID int64, tourID string) (bool, error) {
	if m.hasPurchasedFunc != nil {
		return m.hasPurchasedFunc(ctx, touristID, tourID)
	}
	return true, nil
}

// mockCatalog はTourCatalogのモック実装。
type mockCatalog struct {
	getTourFunc func(ctx context.Context, tourID string) (*model.TourInfo, error)
}

func (m *mockCatalog) GetTour(ctx context.Context, tourID string) (*model.TourInfo, error) {
	if m.getTourFunc != nil {
		return m.getTourFunc(ctx, tourID)
	}
	return twoKeypointTour(tourID), nil
}

// twoKeypointTour は2つのキーポイントを持つ公開ツアーを返す。
func twoKeypointTour(id string) *model.TourInfo {
	return &model.TourInfo{
		ID:     id,
		Name:   "旧市街ウォーキングツアー",
		Price:  25.0,
		Status: model.TourStatusPublished,
		Keypoints: []model.Keypoint{
			{ID: "kp-1", Name: "広場", Latitude: 44.80, Longitude: 20.46},
			{ID: "kp-2", Name: "要塞", Latitude: 44.81, Longitude: 20.47},
		},
	}
}

// mockMetrics はMetricsCollectorのモック実装。
type mockMetrics struct {
	mu        sync.Mutex
	started   int
	completed int
	abandoned int
	keypoints int
}

func (m *mockMetrics) RecordCheckoutSuccess()              {}
func (m *mockMetrics) RecordCheckoutFailure(step string)   {}
func (m *mockMetrics) RecordCheckoutCompensation(r bool)   {}
func (m *mockMetrics) RecordCheckoutLatency(time.Duration) {}
func (m *mockMetrics) RecordCatalogStatus(statusCode int)  {}

func (m *mockMetrics) RecordExecutionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *mockMetrics) RecordExecutionCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

func (m *mockMetrics) RecordExecutionAbandoned() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned++
}

func (m *mockMetrics) RecordKeypointReached() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keypoints++
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

// farPosition はどのキーポイントからも離れた位置。
var farPosition = model.Position{Latitude: 44.805, Longitude: 20.465}

// nearKp1 はkp-1から数メートルの位置。
var nearKp1 = model.Position{Latitude: 44.80005, Longitude: 20.46005}

// nearKp2 はkp-2から数メートルの位置。
var nearKp2 = model.Position{Latitude: 44.81005, Longitude: 20.47005}

func newTestService(repo *fakeExecRepo, v *mockVerifier, c *mockCatalog, m *mockMetrics) *Service {
	return NewService(repo, v, c, m, newTestLogger())
}

func apiErrCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorであるべきだが: %v", err)
	}
	return apiErr.Code
}

func TestStart_NotPurchased_Rejected(t *testing.T) {
	v := &mockVerifier{
		hasPurchasedFunc: func(ctx context.Context, touristID int64, tourID string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(newFakeExecRepo(), v, &mockCatalog{}, &mockMetrics{})

	_, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if code := apiErrCode(t, err); code != model.ErrCodeNotPurchased {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeNotPurchased)
	}
}

func TestStart_VerifierError_FailsClosed(t *testing.T) {
	v := &mockVerifier{
		hasPurchasedFunc: func(ctx context.Context, touristID int64, tourID string) (bool, error) {
			return false, errors.New("verifier unreachable")
		},
	}
	svc := newTestService(newFakeExecRepo(), v, &mockCatalog{}, &mockMetrics{})

	// 確認自体の失敗も購入なしとして扱う
	_, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if code := apiErrCode(t, err); code != model.ErrCodeNotPurchased {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeNotPurchased)
	}
}

func TestStart_InvalidPosition_Rejected(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	_, err := svc.Start(context.Background(), 42, "tour-1", model.Position{Latitude: 91, Longitude: 0})
	if code := apiErrCode(t, err); code != model.ErrCodeInvalidPosition {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeInvalidPosition)
	}
}

func TestStart_Idempotent_ReturnsExistingSession(t *testing.T) {
	m := &mockMetrics{}
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, m)

	first, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("1回目のStart がエラーを返した: %v", err)
	}

	second, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("2回目のStart がエラーを返した: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("2回目のStartが新規セッションを作成した: %q != %q", second.ID, first.ID)
	}
	if m.started != 1 {
		t.Errorf("開始メトリクス = %d, want 1", m.started)
	}
}

func TestStart_TourNotFound(t *testing.T) {
	c := &mockCatalog{
		getTourFunc: func(ctx context.Context, tourID string) (*model.TourInfo, error) {
			return nil, catalog.ErrTourNotFound
		},
	}
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, c, &mockMetrics{})

	_, err := svc.Start(context.Background(), 42, "no-such-tour", farPosition)
	if code := apiErrCode(t, err); code != model.ErrCodeTourNotFound {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeTourNotFound)
	}
}

func TestUpdatePosition_NearNextKeypoint_RecordsCompletion(t *testing.T) {
	m := &mockMetrics{}
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, m)

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	updated, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp1)
	if err != nil {
		t.Fatalf("UpdatePosition がエラーを返した: %v", err)
	}

	if len(updated.CompletedKeypoints) != 1 {
		t.Fatalf("到達数 = %d, want 1", len(updated.CompletedKeypoints))
	}
	if updated.CompletedKeypoints[0].KeypointID != "kp-1" {
		t.Errorf("到達キーポイント = %q, want kp-1", updated.CompletedKeypoints[0].KeypointID)
	}
	if updated.Status != model.ExecutionStatusActive {
		t.Errorf("status = %q, want active（まだ全到達ではない）", updated.Status)
	}
	if m.keypoints != 1 {
		t.Errorf("到達メトリクス = %d, want 1", m.keypoints)
	}
}

func TestUpdatePosition_OutOfOrder_SkipsLaterKeypoint(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	// kp-1未到達のままkp-2の近くに立っても到達にはならない
	updated, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp2)
	if err != nil {
		t.Fatalf("UpdatePosition がエラーを返した: %v", err)
	}

	if len(updated.CompletedKeypoints) != 0 {
		t.Errorf("到達数 = %d, want 0（順序を飛ばした到達は無効）", len(updated.CompletedKeypoints))
	}
	// 位置自体は更新される
	if updated.CurrentPosition != nearKp2 {
		t.Errorf("現在位置 = %v, want %v", updated.CurrentPosition, nearKp2)
	}
}

func TestUpdatePosition_DuplicateReach_RecordedOnce(t *testing.T) {
	m := &mockMetrics{}
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, m)

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp1); err != nil {
			t.Fatalf("UpdatePosition がエラーを返した: %v", err)
		}
	}

	updated, err := svc.Get(context.Background(), 42, exec.ID)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if len(updated.CompletedKeypoints) != 1 {
		t.Errorf("到達数 = %d, want 1（重複到達は1回だけ記録）", len(updated.CompletedKeypoints))
	}
	if m.keypoints != 1 {
		t.Errorf("到達メトリクス = %d, want 1", m.keypoints)
	}
}

// ツアー全体のウォークスルー: 開始 → kp-1到達 → kp-2到達で自動完了
func TestUpdatePosition_FullWalkthrough_CompletesTour(t *testing.T) {
	m := &mockMetrics{}
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, m)

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	after1, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp1)
	if err != nil {
		t.Fatalf("kp-1への移動がエラーを返した: %v", err)
	}
	if len(after1.CompletedKeypoints) != 1 || after1.Status != model.ExecutionStatusActive {
		t.Fatalf("kp-1到達後: 到達数 = %d, status = %q, want 1/active",
			len(after1.CompletedKeypoints), after1.Status)
	}

	after2, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp2)
	if err != nil {
		t.Fatalf("kp-2への移動がエラーを返した: %v", err)
	}
	if len(after2.CompletedKeypoints) != 2 {
		t.Fatalf("到達数 = %d, want 2", len(after2.CompletedKeypoints))
	}
	if after2.Status != model.ExecutionStatusCompleted {
		t.Errorf("status = %q, want completed（最終キーポイント到達で自動完了）", after2.Status)
	}
	if after2.EndTime == nil {
		t.Error("完了セッションのEndTimeが設定されていない")
	}
	// 到達記録はツアー定義順の連続した並び
	if after2.CompletedKeypoints[0].KeypointID != "kp-1" || after2.CompletedKeypoints[1].KeypointID != "kp-2" {
		t.Errorf("到達順序が不正: %v", after2.CompletedKeypoints)
	}
	if m.completed != 1 {
		t.Errorf("完了メトリクス = %d, want 1", m.completed)
	}
}

func TestUpdatePosition_TerminalSession_NotFound(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}
	if _, err := svc.Abandon(context.Background(), 42, exec.ID); err != nil {
		t.Fatalf("Abandon がエラーを返した: %v", err)
	}

	_, err = svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp1)
	if code := apiErrCode(t, err); code != model.ErrCodeExecutionNotFound {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeExecutionNotFound)
	}
}

func TestUpdatePosition_WrongOwner_NotFound(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	// 他のツーリストからは存在しないのと同じ扱い
	_, err = svc.UpdatePosition(context.Background(), 99, exec.ID, nearKp1)
	if code := apiErrCode(t, err); code != model.ErrCodeExecutionNotFound {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeExecutionNotFound)
	}
}

func TestUpdatePosition_CatalogUnavailable_NoSessionChange(t *testing.T) {
	repo := newFakeExecRepo()
	catalogDown := false
	c := &mockCatalog{
		getTourFunc: func(ctx context.Context, tourID string) (*model.TourInfo, error) {
			if catalogDown {
				return nil, catalog.ErrUnavailable
			}
			return twoKeypointTour(tourID), nil
		},
	}
	svc := newTestService(repo, &mockVerifier{}, c, &mockMetrics{})

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	catalogDown = true
	_, err = svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp1)
	if code := apiErrCode(t, err); code != model.ErrCodeCatalogUnavailable {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeCatalogUnavailable)
	}

	// セッションは変更されていない
	unchanged, err := svc.Get(context.Background(), 42, exec.ID)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if unchanged.CurrentPosition != farPosition {
		t.Errorf("カタログ到達不能時に位置が変更された: %v", unchanged.CurrentPosition)
	}
}

func TestAbandon_ActiveSession_Succeeds(t *testing.T) {
	m := &mockMetrics{}
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, m)

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	abandoned, err := svc.Abandon(context.Background(), 42, exec.ID)
	if err != nil {
		t.Fatalf("Abandon がエラーを返した: %v", err)
	}
	if abandoned.Status != model.ExecutionStatusAbandoned {
		t.Errorf("status = %q, want abandoned", abandoned.Status)
	}
	if abandoned.EndTime == nil {
		t.Error("中断セッションのEndTimeが設定されていない")
	}
	if m.abandoned != 1 {
		t.Errorf("中断メトリクス = %d, want 1", m.abandoned)
	}
}

func TestAbandon_CompletedSession_NotOverwritten(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}

	// 全キーポイント到達で完了させる
	if _, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp1); err != nil {
		t.Fatalf("UpdatePosition がエラーを返した: %v", err)
	}
	if _, err := svc.UpdatePosition(context.Background(), 42, exec.ID, nearKp2); err != nil {
		t.Fatalf("UpdatePosition がエラーを返した: %v", err)
	}

	_, err = svc.Abandon(context.Background(), 42, exec.ID)
	if code := apiErrCode(t, err); code != model.ErrCodeExecutionNotFound {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeExecutionNotFound)
	}

	// completedのまま変わっていない
	final, err := svc.Get(context.Background(), 42, exec.ID)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if final.Status != model.ExecutionStatusCompleted {
		t.Errorf("status = %q, want completed（abandonで上書きされない）", final.Status)
	}
}

func TestGet_TerminalSession_IsVisible(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	exec, err := svc.Start(context.Background(), 42, "tour-1", farPosition)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}
	if _, err := svc.Abandon(context.Background(), 42, exec.ID); err != nil {
		t.Fatalf("Abandon がエラーを返した: %v", err)
	}

	// 終端状態のセッションも参照はできる
	got, err := svc.Get(context.Background(), 42, exec.ID)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if got.Status != model.ExecutionStatusAbandoned {
		t.Errorf("status = %q, want abandoned", got.Status)
	}
}

func TestGet_UnknownID_NotFound(t *testing.T) {
	svc := newTestService(newFakeExecRepo(), &mockVerifier{}, &mockCatalog{}, &mockMetrics{})

	_, err := svc.Get(context.Background(), 42, "no-such-execution")
	if code := apiErrCode(t, err); code != model.ErrCodeExecutionNotFound {
		t.Errorf("エラーコード = %q, want %q", code, model.ErrCodeExecutionNotFound)
	}
}
