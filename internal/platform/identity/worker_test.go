package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows    []*Row
	synced  []string
	failed  map[string]string
	retried map[string]string
}

func newFakeRepo(rows ...*Row) *fakeRepo {
	return &fakeRepo{rows: rows, failed: map[string]string{}, retried: map[string]string{}}
}

func (f *fakeRepo) Queue(ctx context.Context, userID, username string, encryptedPassword *string, operation Operation) error {
	return nil
}

func (f *fakeRepo) FindUnsynced(ctx context.Context, limit int) ([]*Row, error) { return f.rows, nil }

func (f *fakeRepo) MarkSynced(ctx context.Context, id string) error {
	f.synced = append(f.synced, id)
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeRepo) MarkRetry(ctx context.Context, id, errMsg string) error {
	f.retried[id] = errMsg
	return nil
}

func (f *fakeRepo) CreateSchema(ctx context.Context) error { return nil }

type fakeClient struct {
	statusByUser map[string]int
	errByUser    map[string]error
	calls        []string
}

func (f *fakeClient) Sync(ctx context.Context, req SyncRequest) (int, error) {
	f.calls = append(f.calls, req.UserID)
	if err, ok := f.errByUser[req.UserID]; ok {
		return 0, err
	}
	return f.statusByUser[req.UserID], nil
}

func noopDecrypt(ciphertext string) (string, error) { return ciphertext, nil }

func tolerantBreaker() *BreakerConfig {
	return &BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, Ratio: 1.1, MinRequests: 1000}
}

func TestWorker_RunBatch_MarksSyncedOn2xx(t *testing.T) {
	repo := newFakeRepo(&Row{ID: "r1", UserID: "u1", Operation: OperationCreate})
	client := &fakeClient{statusByUser: map[string]int{"u1": 201}}
	w := NewWorker(repo, client, noopDecrypt, tolerantBreaker())

	result, err := w.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Contains(t, repo.synced, "r1")
}

func TestWorker_RunBatch_MarksFailedOn4xx(t *testing.T) {
	repo := newFakeRepo(&Row{ID: "r1", UserID: "u1", Operation: OperationCreate})
	client := &fakeClient{statusByUser: map[string]int{"u1": 422}}
	w := NewWorker(repo, client, noopDecrypt, tolerantBreaker())

	result, err := w.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, repo.failed, "r1")
}

func TestWorker_RunBatch_MarksRetryOn5xx(t *testing.T) {
	repo := newFakeRepo(&Row{ID: "r1", UserID: "u1", Operation: OperationCreate})
	client := &fakeClient{statusByUser: map[string]int{"u1": 503}}
	w := NewWorker(repo, client, noopDecrypt, tolerantBreaker())

	result, err := w.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Contains(t, repo.retried, "r1")
}

func TestWorker_RunBatch_MarksRetryOnTransportError(t *testing.T) {
	repo := newFakeRepo(&Row{ID: "r1", UserID: "u1", Operation: OperationCreate})
	client := &fakeClient{errByUser: map[string]error{"u1": errors.New("connection refused")}}
	w := NewWorker(repo, client, noopDecrypt, tolerantBreaker())

	result, err := w.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
}

func TestWorker_RunBatch_AbortsWithoutMarkingAnyRowWhenBreakerAlreadyOpen(t *testing.T) {
	encPw := "ciphertext"
	repo := newFakeRepo(
		&Row{ID: "r1", UserID: "u1", EncryptedPassword: &encPw, Operation: OperationCreate},
		&Row{ID: "r2", UserID: "u2", EncryptedPassword: &encPw, Operation: OperationCreate},
	)
	client := &fakeClient{errByUser: map[string]error{
		"u1": errors.New("connection refused"),
		"u2": errors.New("connection refused"),
	}}
	// A breaker that trips on the very first failure and stays open for the
	// rest of the test, so the second row's call short-circuits without
	// ever reaching the repository.
	w := NewWorker(repo, client, noopDecrypt, &BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, Ratio: 0, MinRequests: 1})

	result, err := w.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried, "first row attempts and is marked as a transient failure")
	assert.Len(t, client.calls, 1, "second row's call never reaches the client once the breaker is open")
	assert.Empty(t, repo.synced)
	assert.Empty(t, repo.failed)
}

func TestWorker_RunBatch_DecryptFailureMarksRetry(t *testing.T) {
	encPw := "bad-ciphertext"
	repo := newFakeRepo(&Row{ID: "r1", UserID: "u1", EncryptedPassword: &encPw, Operation: OperationUpdatePassword})
	client := &fakeClient{statusByUser: map[string]int{"u1": 200}}
	w := NewWorker(repo, client, func(string) (string, error) { return "", errors.New("bad key") }, tolerantBreaker())

	result, err := w.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Empty(t, client.calls, "downstream is never called if decryption fails")
}
