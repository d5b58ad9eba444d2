package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldsync.db")

	store, err := Open(Config{Path: path, AttemptCeiling: 5})
	require.NoError(t, err)

	id, err := store.Enqueue(draft(TargetWorkOrder, PriorityNormal))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Re-opening runs the migration again against the populated file.
	store, err = Open(Config{Path: path, AttemptCeiling: 5})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	op, err := store.GetOperation(id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, op.State)
}

func TestOpenRejectsBadCeiling(t *testing.T) {
	_, err := Open(Config{Path: filepath.Join(t.TempDir(), "x.db"), AttemptCeiling: 0})
	assert.Error(t, err)
}

func TestSyncedOperationMarksLinkedRows(t *testing.T) {
	store := newTestStore(t)

	opID, err := store.Enqueue(draft(TargetWorkOrder, PriorityNormal))
	require.NoError(t, err)

	require.NoError(t, store.SaveShadow(&ShadowWorkOrder{
		RemoteID:    42,
		Status:      "in_progress",
		OperationID: opID,
	}))
	require.NoError(t, store.SaveVoiceCommand(&VoiceCommandRecord{
		WorkOrderRemoteID: 42,
		Kind:              "start_task",
		Transcript:        "commencer la tâche",
		Confidence:        0.8,
		OperationID:       opID,
	}))

	_, err = store.ReserveBatch(0, 0)
	require.NoError(t, err)
	require.NoError(t, store.MarkResult(opID, OutcomeSynced))

	shadow, err := store.LatestShadow(42)
	require.NoError(t, err)
	assert.Equal(t, SyncStateSynced, shadow.SyncState)

	commands, err := store.VoiceCommands(42)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, SyncStateSynced, commands[0].SyncState)
}

func TestLatestShadowReflectsCurrentIntent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveShadow(&ShadowWorkOrder{RemoteID: 7, Status: "in_progress"}))
	require.NoError(t, store.SaveShadow(&ShadowWorkOrder{RemoteID: 7, Status: "completed", NotesAppend: "done"}))

	shadow, err := store.LatestShadow(7)
	require.NoError(t, err)
	assert.Equal(t, "completed", shadow.Status)
	assert.Equal(t, SyncStatePending, shadow.SyncState)
}

func TestMediaDescriptorBlobLinkage(t *testing.T) {
	store := newTestStore(t)

	desc := &MediaDescriptor{WorkOrderRemoteID: 42, LocalPath: "/x.wav", Kind: MediaKindAudio}
	require.NoError(t, store.SaveMediaDescriptor(desc))

	require.NoError(t, store.SetMediaBlobURI(desc.ID, "file:///blobs/x.wav"))

	opID, err := store.Enqueue(OperationDraft{
		Target: TargetMediaDescriptor, Verb: VerbInsert,
		Payload: map[string]string{"blob_uri": "file:///blobs/x.wav"},
	})
	require.NoError(t, err)
	require.NoError(t, store.SetMediaOperation(desc.ID, opID))

	got, err := store.GetMediaDescriptor(desc.ID)
	require.NoError(t, err)
	assert.Equal(t, "file:///blobs/x.wav", got.BlobURI)
	assert.Equal(t, opID, got.OperationID)
	assert.Equal(t, SyncStatePending, got.SyncState)
}

func TestPayloadCodecCanonicalOrder(t *testing.T) {
	a := EncodePayload(map[string]string{"status": "completed", "completed_at": "2026-09-01T10:00:00Z"})
	b := EncodePayload(map[string]string{"completed_at": "2026-09-01T10:00:00Z", "status": "completed"})
	assert.Equal(t, a, b)
	assert.Equal(t, "completed_at=2026-09-01T10:00:00Z\nstatus=completed", a)
}

func TestPayloadCodecEscaping(t *testing.T) {
	in := map[string]string{
		"note_text": "ligne une\nligne deux = fin",
		"path":      `C:\clips\x.wav`,
	}
	out, err := DecodePayload(EncodePayload(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePayloadRejectsMalformedLine(t *testing.T) {
	_, err := DecodePayload("no separator here")
	assert.Error(t, err)
}
