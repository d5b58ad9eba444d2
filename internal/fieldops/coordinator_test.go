package fieldops

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fieldsync-go/internal/connectivity"
	"github.com/tphakala/fieldsync-go/internal/localstore"
	"github.com/tphakala/fieldsync-go/internal/syncengine"
	"github.com/tphakala/fieldsync-go/internal/voice"
)

type fakeEngine struct {
	mu    sync.Mutex
	wakes int
	snap  syncengine.Snapshot
}

func (f *fakeEngine) Wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakes++
}

func (f *fakeEngine) DrainOnce(_ context.Context) (syncengine.CycleResult, error) {
	return syncengine.CycleResult{Online: true}, nil
}

func (f *fakeEngine) Telemetry() syncengine.Snapshot { return f.snap }

func (f *fakeEngine) wakeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wakes
}

type fakeBlobStore struct {
	uri   string
	err   error
	calls int
}

func (f *fakeBlobStore) Upload(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.uri, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

type fakeTranslator struct {
	text string
	err  error
	lang string
}

func (f *fakeTranslator) Translate(_ context.Context, _, targetLang string) (string, error) {
	f.lang = targetLang
	return f.text, f.err
}

type onlinePinger struct{ err error }

func (p *onlinePinger) Ping(_ context.Context) error { return p.err }

type fixture struct {
	coord  *Coordinator
	store  *localstore.Store
	engine *fakeEngine
	blobs  *fakeBlobStore
}

func newFixture(t *testing.T, transcriber voice.Transcriber, translator voice.Translator) *fixture {
	t.Helper()
	store, err := localstore.Open(localstore.Config{
		Path:           filepath.Join(t.TempDir(), "agent.db"),
		AttemptCeiling: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := &fakeEngine{snap: syncengine.Snapshot{Health: syncengine.HealthOK}}
	blobs := &fakeBlobStore{uri: "file:///blobs/x.jpg"}
	probe := connectivity.NewProbe(&onlinePinger{}, time.Second, 0)

	coord := New(store, engine, probe, blobs, transcriber, translator, voice.NewInterpreter(nil, nil), Config{
		TechnicianID:       "tech-7",
		QueueSoftLimit:     100,
		MinDiskFree:        1,
		TranscriberTimeout: time.Second,
		TranslatorTimeout:  time.Second,
	})
	return &fixture{coord: coord, store: store, engine: engine, blobs: blobs}
}

func pendingOps(t *testing.T, store *localstore.Store) []localstore.Operation {
	t.Helper()
	ops, err := store.ReserveBatch(0, 0)
	require.NoError(t, err)
	for _, op := range ops {
		require.NoError(t, store.ReleaseReservation(op.ID))
	}
	return ops
}

func decode(t *testing.T, op localstore.Operation) map[string]string {
	t.Helper()
	fields, err := localstore.DecodePayload(op.PayloadBlob)
	require.NoError(t, err)
	return fields
}

func TestStartWorkQueuesNormalUpdateAndShadow(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.coord.StartWork(context.Background(), 41))

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, localstore.TargetWorkOrder, ops[0].Target)
	assert.Equal(t, localstore.VerbUpdate, ops[0].Verb)
	assert.Equal(t, "41", ops[0].Key)
	assert.Equal(t, localstore.PriorityNormal, ops[0].Priority)

	fields := decode(t, ops[0])
	assert.Equal(t, StatusInProgress, fields["status"])
	assert.NotEmpty(t, fields["started_at"])

	shadow, err := f.store.LatestShadow(41)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, shadow.Status)
	assert.Equal(t, localstore.SyncStatePending, shadow.SyncState)
	assert.Equal(t, ops[0].ID, shadow.OperationID)

	assert.Zero(t, f.engine.wakeCount())
}

func TestCompleteWorkIsUrgent(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.coord.CompleteWork(context.Background(), 41, "filtre remplacé"))

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, localstore.PriorityHigh, ops[0].Priority)

	fields := decode(t, ops[0])
	assert.Equal(t, StatusCompleted, fields["status"])
	assert.Equal(t, "filtre remplacé", fields["completion_note"])

	shadow, err := f.store.LatestShadow(41)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, shadow.Status)

	assert.Equal(t, 1, f.engine.wakeCount())
}

func TestAppendVoiceNote(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.coord.AppendVoiceNote(context.Background(), 41, "fuite détectée au vérin"))

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, localstore.TargetInterventionNote, ops[0].Target)
	assert.Equal(t, localstore.VerbInsert, ops[0].Verb)

	fields := decode(t, ops[0])
	assert.Equal(t, "fuite détectée au vérin", fields["note_text"])
	assert.Equal(t, "voice", fields["note_type"])
	assert.Equal(t, "tech-7", fields["technician_id"])

	records, err := f.store.VoiceCommands(41)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "note", records[0].Kind)
	assert.Equal(t, ops[0].ID, records[0].OperationID)
}

func TestAppendVoiceNoteRejectsEmptyNote(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Error(t, f.coord.AppendVoiceNote(context.Background(), 41, "   "))
	assert.Empty(t, pendingOps(t, f.store))
}

func TestReportIssueIsUrgentWithDefaultSeverity(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.coord.ReportIssue(context.Background(), 41, "compresseur bruyant", ""))

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, localstore.TargetIssue, ops[0].Target)
	assert.Equal(t, localstore.PriorityHigh, ops[0].Priority)

	fields := decode(t, ops[0])
	assert.Equal(t, voice.SeverityMedium, fields["severity"])
	assert.Equal(t, "manual", fields["reported_via"])
	assert.Equal(t, "tech-7", fields["reported_by"])

	assert.Equal(t, 1, f.engine.wakeCount())
}

func TestAttachMediaTwoStep(t *testing.T) {
	f := newFixture(t, nil, nil)

	descID, err := f.coord.AttachMedia(context.Background(), 41, "/captures/p1.jpg", localstore.MediaKindPhoto)
	require.NoError(t, err)

	desc, err := f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Equal(t, "file:///blobs/x.jpg", desc.BlobURI)

	// After the blob upload the insert is pending with the URI merged in.
	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, localstore.TargetMediaDescriptor, ops[0].Target)
	fields := decode(t, ops[0])
	assert.Equal(t, "file:///blobs/x.jpg", fields["blob_uri"])
	assert.Equal(t, localstore.MediaKindPhoto, fields["kind"])
}

func TestAttachMediaUploadFailureIsDurable(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.blobs.err = errors.New("no route to object store")

	descID, err := f.coord.AttachMedia(context.Background(), 41, "/captures/p1.jpg", localstore.MediaKindPhoto)
	require.NoError(t, err)

	// The insert stays blocked, invisible to the drain loop, until the
	// upload succeeds.
	assert.Empty(t, pendingOps(t, f.store))
	desc, err := f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Empty(t, desc.BlobURI)

	// Connectivity returns; the recovery pass finishes the two-step.
	f.blobs.err = nil
	recovered, err := f.coord.RecoverPendingUploads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, localstore.TargetMediaDescriptor, ops[0].Target)
	assert.Equal(t, "file:///blobs/x.jpg", decode(t, ops[0])["blob_uri"])

	desc, err = f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Equal(t, "file:///blobs/x.jpg", desc.BlobURI)

	// Nothing left to recover.
	recovered, err = f.coord.RecoverPendingUploads(context.Background())
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestRecoverPendingUploadsKeepsHoldingWhileUploadFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.blobs.err = errors.New("no route to object store")

	_, err := f.coord.AttachMedia(context.Background(), 41, "/captures/p1.jpg", localstore.MediaKindPhoto)
	require.NoError(t, err)

	recovered, err := f.coord.RecoverPendingUploads(context.Background())
	require.NoError(t, err)
	assert.Zero(t, recovered)
	assert.Empty(t, pendingOps(t, f.store))
}

func TestAttachMediaTranscriberFailureIsSoft(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{err: errors.New("stt unavailable")}, nil)

	descID, err := f.coord.AttachMedia(context.Background(), 41, "/captures/memo.wav", localstore.MediaKindAudio)
	require.NoError(t, err)

	desc, err := f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Empty(t, desc.Transcript)

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	_, hasTranscript := decode(t, ops[0])["transcript"]
	assert.False(t, hasTranscript)
}

func TestAttachMediaAnnotatesAudio(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{text: "fuite au vérin"}, nil)

	descID, err := f.coord.AttachMedia(context.Background(), 41, "/captures/memo.wav", localstore.MediaKindAudio)
	require.NoError(t, err)

	desc, err := f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Equal(t, "fuite au vérin", desc.Transcript)

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, "fuite au vérin", decode(t, ops[0])["transcript"])
}

func TestAttachMediaTranslatesTranscript(t *testing.T) {
	translator := &fakeTranslator{text: "leak at the cylinder"}
	f := newFixture(t, &fakeTranscriber{text: "fuite au vérin"}, translator)
	f.coord.cfg.TranslateTo = "en"

	descID, err := f.coord.AttachMedia(context.Background(), 41, "/captures/memo.wav", localstore.MediaKindAudio)
	require.NoError(t, err)
	assert.Equal(t, "en", translator.lang)

	desc, err := f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Equal(t, "leak at the cylinder", desc.Transcript)

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 1)
	assert.Equal(t, "leak at the cylinder", decode(t, ops[0])["transcript"])
}

func TestAttachMediaTranslationFailureKeepsOriginal(t *testing.T) {
	f := newFixture(t, &fakeTranscriber{text: "fuite au vérin"}, &fakeTranslator{err: errors.New("translator unavailable")})
	f.coord.cfg.TranslateTo = "en"

	descID, err := f.coord.AttachMedia(context.Background(), 41, "/captures/memo.wav", localstore.MediaKindAudio)
	require.NoError(t, err)

	desc, err := f.store.GetMediaDescriptor(descID)
	require.NoError(t, err)
	assert.Equal(t, "fuite au vérin", desc.Transcript)
}

func TestAttachMediaRefusedBelowDiskFloor(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.coord.cfg.MinDiskFree = 1 << 62

	_, err := f.coord.AttachMedia(context.Background(), 41, "/captures/p1.jpg", localstore.MediaKindPhoto)
	assert.Error(t, err)
	assert.Zero(t, f.blobs.calls)
}

func TestHandleUtteranceCompleteTask(t *testing.T) {
	f := newFixture(t, nil, nil)

	cmd, err := f.coord.HandleUtterance(context.Background(), 41, "terminer la tâche")
	require.NoError(t, err)
	assert.Equal(t, voice.KindCompleteTask, cmd.Kind)

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 2)
	// High-priority work order update drains before the voice history row.
	assert.Equal(t, localstore.TargetWorkOrder, ops[0].Target)
	assert.Equal(t, localstore.PriorityHigh, ops[0].Priority)
	assert.Equal(t, "true", decode(t, ops[0])["voice_activated"])
	assert.Equal(t, localstore.TargetVoiceHistory, ops[1].Target)

	records, err := f.store.VoiceCommands(41)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(voice.KindCompleteTask), records[0].Kind)
	assert.Greater(t, records[0].Confidence, 0.0)
}

func TestHandleUtteranceReportIssueExtractsSeverity(t *testing.T) {
	f := newFixture(t, nil, nil)

	cmd, err := f.coord.HandleUtterance(context.Background(), 41, "signaler un problème urgent compresseur")
	require.NoError(t, err)
	require.Equal(t, voice.KindReportIssue, cmd.Kind)

	ops := pendingOps(t, f.store)
	require.Len(t, ops, 2)
	issue := ops[0] // high priority first
	require.Equal(t, localstore.TargetIssue, issue.Target)
	fields := decode(t, issue)
	assert.Equal(t, voice.SeverityHigh, fields["severity"])
	assert.Equal(t, "voice", fields["reported_via"])
}

func TestHandleUtteranceUnrecognizedLogsOnly(t *testing.T) {
	f := newFixture(t, nil, nil)

	cmd, err := f.coord.HandleUtterance(context.Background(), 41, "la météo est belle aujourd'hui")
	require.NoError(t, err)
	assert.False(t, cmd.Recognized())

	assert.Empty(t, pendingOps(t, f.store))

	records, err := f.store.VoiceCommands(41)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(voice.KindUnrecognized), records[0].Kind)
}

func TestStatusReportsCountsAndBacklog(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.engine.snap.LastSyncAt = time.Now().Add(-time.Minute)

	require.NoError(t, f.coord.StartWork(context.Background(), 1))
	require.NoError(t, f.coord.StartWork(context.Background(), 2))

	status, err := f.coord.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Equal(t, int64(2), status.PendingCount)
	assert.Zero(t, status.FailedCount)
	assert.Equal(t, syncengine.HealthOK, status.Health)
	assert.False(t, status.Backlogged)

	f.coord.cfg.QueueSoftLimit = 1
	status, err = f.coord.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Backlogged)
}
