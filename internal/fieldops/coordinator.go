// Package fieldops translates technician intents into durable local store
// writes. Every intent returns as soon as the local write commits; sync
// failures surface through Status and the failed-operations view, never
// through the intent call itself.
package fieldops

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/fieldsync-go/internal/connectivity"
	"github.com/tphakala/fieldsync-go/internal/errors"
	"github.com/tphakala/fieldsync-go/internal/localstore"
	"github.com/tphakala/fieldsync-go/internal/logging"
	"github.com/tphakala/fieldsync-go/internal/media"
	"github.com/tphakala/fieldsync-go/internal/syncengine"
	"github.com/tphakala/fieldsync-go/internal/voice"
)

// Work order statuses written into update payloads.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPaused     = "paused"
)

// Voice command record kinds stored for direct (non-utterance) intents.
const (
	recordKindNote        = "note"
	recordKindIssueReport = "issue_report"
)

// SyncEngine is the part of the sync worker the coordinator drives.
type SyncEngine interface {
	Wake()
	DrainOnce(ctx context.Context) (syncengine.CycleResult, error)
	Telemetry() syncengine.Snapshot
}

// Config holds the coordinator's operating parameters.
type Config struct {
	TechnicianID       string        // stable identifier recorded on notes and issues
	QueueSoftLimit     int           // pending count above which Status reports a backlog
	MinDiskFree        uint64        // minimum free bytes required to accept a media capture
	TranscriberTimeout time.Duration // bound on the speech-to-text call
	TranslatorTimeout  time.Duration // bound on the transcript translation call
	BlobTimeout        time.Duration // bound on the blob upload, 0 for none
	TranslateTo        string        // target language for transcripts, empty disables
}

// Status is the read-only snapshot surfaced to the UI.
type Status struct {
	Online       bool
	PendingCount int64
	LastSyncAt   time.Time
	FailedCount  int64
	Health       string
	Backlogged   bool
}

// Coordinator owns all local store writes made on behalf of the
// technician, plus the active checklist session.
type Coordinator struct {
	store       *localstore.Store
	engine      SyncEngine
	probe       *connectivity.Probe
	blobs       media.BlobStore
	transcriber voice.Transcriber // optional, nil disables audio annotation
	translator  voice.Translator  // optional, nil keeps transcripts as spoken
	interp      *voice.Interpreter
	cfg         Config
	logger      *slog.Logger

	mu      sync.Mutex
	session *ChecklistSession
}

// New wires a coordinator. transcriber and translator may be nil.
func New(store *localstore.Store, engine SyncEngine, probe *connectivity.Probe, blobs media.BlobStore, transcriber voice.Transcriber, translator voice.Translator, interp *voice.Interpreter, cfg Config) *Coordinator {
	return &Coordinator{
		store:       store,
		engine:      engine,
		probe:       probe,
		blobs:       blobs,
		transcriber: transcriber,
		translator:  translator,
		interp:      interp,
		cfg:         cfg,
		logger:      logging.ForService("fieldops"),
	}
}

// StartWork records the technician taking a work order in progress.
func (c *Coordinator) StartWork(ctx context.Context, remoteID int64) error {
	return c.startWork(ctx, remoteID, false)
}

func (c *Coordinator) startWork(_ context.Context, remoteID int64, voiceActivated bool) error {
	payload := map[string]string{
		"status":     StatusInProgress,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	if voiceActivated {
		payload["voice_activated"] = "true"
	}

	opID, err := c.store.Enqueue(localstore.OperationDraft{
		Target:   localstore.TargetWorkOrder,
		Verb:     localstore.VerbUpdate,
		Key:      strconv.FormatInt(remoteID, 10),
		Payload:  payload,
		Priority: localstore.PriorityNormal,
	})
	if err != nil {
		return err
	}

	if err := c.store.SaveShadow(&localstore.ShadowWorkOrder{
		RemoteID:    remoteID,
		Status:      StatusInProgress,
		SyncState:   localstore.SyncStatePending,
		OperationID: opID,
	}); err != nil {
		return err
	}

	c.logger.Info("work started", "work_order", remoteID, "operation", opID, "voice", voiceActivated)
	c.warnIfBacklogged()
	return nil
}

// CompleteWork records completion. Completions are urgent: the operation
// drains ahead of normal traffic and the worker is woken immediately.
func (c *Coordinator) CompleteWork(ctx context.Context, remoteID int64, completionNote string) error {
	return c.completeWork(ctx, remoteID, completionNote, false)
}

func (c *Coordinator) completeWork(_ context.Context, remoteID int64, completionNote string, voiceActivated bool) error {
	payload := map[string]string{
		"status":       StatusCompleted,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if completionNote != "" {
		payload["completion_note"] = completionNote
	}
	if voiceActivated {
		payload["voice_activated"] = "true"
	}

	opID, err := c.store.Enqueue(localstore.OperationDraft{
		Target:   localstore.TargetWorkOrder,
		Verb:     localstore.VerbUpdate,
		Key:      strconv.FormatInt(remoteID, 10),
		Payload:  payload,
		Priority: localstore.PriorityHigh,
	})
	if err != nil {
		return err
	}

	if err := c.store.SaveShadow(&localstore.ShadowWorkOrder{
		RemoteID:    remoteID,
		Status:      StatusCompleted,
		NotesAppend: completionNote,
		SyncState:   localstore.SyncStatePending,
		OperationID: opID,
	}); err != nil {
		return err
	}

	c.logger.Info("work completed", "work_order", remoteID, "operation", opID)
	c.engine.Wake()
	return nil
}

// AppendVoiceNote stores a dictated note against a work order.
func (c *Coordinator) AppendVoiceNote(ctx context.Context, remoteID int64, noteText string) error {
	if strings.TrimSpace(noteText) == "" {
		return errors.New(fmt.Errorf("empty note")).
			Component("fieldops").
			Category(errors.CategoryValidation).
			Context("operation", "append_voice_note").
			Build()
	}

	opID, err := c.enqueueNote(ctx, remoteID, noteText, "voice", localstore.PriorityNormal)
	if err != nil {
		return err
	}

	return c.store.SaveVoiceCommand(&localstore.VoiceCommandRecord{
		WorkOrderRemoteID: remoteID,
		Kind:              recordKindNote,
		Transcript:        noteText,
		SyncState:         localstore.SyncStatePending,
		OperationID:       opID,
	})
}

func (c *Coordinator) enqueueNote(_ context.Context, remoteID int64, noteText, noteType string, priority int) (uint, error) {
	opID, err := c.store.Enqueue(localstore.OperationDraft{
		Target: localstore.TargetInterventionNote,
		Verb:   localstore.VerbInsert,
		Payload: map[string]string{
			"work_order_id": strconv.FormatInt(remoteID, 10),
			"note_text":     noteText,
			"note_type":     noteType,
			"technician_id": c.cfg.TechnicianID,
			"created_at":    time.Now().UTC().Format(time.RFC3339),
		},
		Priority: priority,
	})
	if err != nil {
		return 0, err
	}
	c.warnIfBacklogged()
	return opID, nil
}

// ReportIssue records a problem found on site. Issues are urgent.
func (c *Coordinator) ReportIssue(ctx context.Context, remoteID int64, description, severity string) error {
	opID, err := c.enqueueIssue(ctx, remoteID, description, severity, "manual")
	if err != nil {
		return err
	}

	return c.store.SaveVoiceCommand(&localstore.VoiceCommandRecord{
		WorkOrderRemoteID: remoteID,
		Kind:              recordKindIssueReport,
		Transcript:        description,
		SyncState:         localstore.SyncStatePending,
		OperationID:       opID,
	})
}

func (c *Coordinator) enqueueIssue(_ context.Context, remoteID int64, description, severity, via string) (uint, error) {
	if severity == "" {
		severity = voice.SeverityMedium
	}

	opID, err := c.store.Enqueue(localstore.OperationDraft{
		Target: localstore.TargetIssue,
		Verb:   localstore.VerbInsert,
		Payload: map[string]string{
			"work_order_id": strconv.FormatInt(remoteID, 10),
			"description":   description,
			"severity":      severity,
			"reported_by":   c.cfg.TechnicianID,
			"reported_via":  via,
			"created_at":    time.Now().UTC().Format(time.RFC3339),
		},
		Priority: localstore.PriorityHigh,
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("issue reported", "work_order", remoteID, "severity", severity, "via", via)
	c.engine.Wake()
	return opID, nil
}

// AttachMedia stores a captured file against a work order. The insert
// operation is held blocked until the blob upload hands back a URI; only
// then does it become visible to the drain loop.
func (c *Coordinator) AttachMedia(ctx context.Context, remoteID int64, localPath, kind string) (uint, error) {
	if !c.store.HasMinimumDiskFree(c.cfg.MinDiskFree) {
		return 0, errors.New(fmt.Errorf("insufficient disk space for media capture")).
			Component("fieldops").
			Category(errors.CategoryDiskUsage).
			Context("operation", "attach_media").
			Build()
	}

	transcript := c.annotate(ctx, localPath, kind)

	desc := &localstore.MediaDescriptor{
		WorkOrderRemoteID: remoteID,
		LocalPath:         localPath,
		Kind:              kind,
		Transcript:        transcript,
		SyncState:         localstore.SyncStatePending,
	}
	if err := c.store.SaveMediaDescriptor(desc); err != nil {
		return 0, err
	}

	payload := map[string]string{
		"work_order_id": strconv.FormatInt(remoteID, 10),
		"kind":          kind,
		"uploaded_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if transcript != "" {
		payload["transcript"] = transcript
	}

	opID, err := c.store.EnqueueBlocked(localstore.OperationDraft{
		Target:   localstore.TargetMediaDescriptor,
		Verb:     localstore.VerbInsert,
		Payload:  payload,
		Priority: localstore.PriorityNormal,
	})
	if err != nil {
		return 0, err
	}
	if err := c.store.SetMediaOperation(desc.ID, opID); err != nil {
		return 0, err
	}

	uri, err := c.uploadBlob(ctx, localPath, kind)
	if err != nil {
		// The capture is durable: descriptor and blocked insert are
		// committed, and the upload is retried before each drain cycle
		// until it hands back a URI.
		c.logger.Warn("blob upload failed, capture held for retry",
			"work_order", remoteID, "path", localPath, "error", err)
		c.warnIfBacklogged()
		return desc.ID, nil
	}

	if err := c.store.SetMediaBlobURI(desc.ID, uri); err != nil {
		return 0, err
	}
	if err := c.store.ReleaseBlocked(opID, map[string]string{"blob_uri": uri}); err != nil {
		return 0, err
	}

	c.logger.Info("media attached", "work_order", remoteID, "kind", kind, "uri", uri)
	c.warnIfBacklogged()
	return desc.ID, nil
}

// annotate produces the transcript for an audio capture, translated when a
// target language is configured. Annotator failure is soft; the capture
// syncs without a transcript.
func (c *Coordinator) annotate(ctx context.Context, localPath, kind string) string {
	if kind != localstore.MediaKindAudio || c.transcriber == nil {
		return ""
	}

	transcript, err := voice.TranscribeWithTimeout(ctx, c.transcriber, localPath, c.cfg.TranscriberTimeout)
	if err != nil {
		c.logger.Warn("transcription failed, attaching without transcript",
			"path", localPath, "error", err)
		return ""
	}

	if transcript != "" && c.translator != nil && c.cfg.TranslateTo != "" {
		translated, err := voice.TranslateWithTimeout(ctx, c.translator, transcript, c.cfg.TranslateTo, c.cfg.TranslatorTimeout)
		if err != nil {
			c.logger.Warn("translation failed, keeping original transcript",
				"target_lang", c.cfg.TranslateTo, "error", err)
		} else {
			transcript = translated
		}
	}
	return transcript
}

func (c *Coordinator) uploadBlob(ctx context.Context, localPath, kind string) (string, error) {
	if c.cfg.BlobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.BlobTimeout)
		defer cancel()
	}
	return c.blobs.Upload(ctx, localPath, kind)
}

// RecoverPendingUploads retries the blob upload for captures whose insert
// is still held blocked and releases the insert once a URI exists. The
// sync engine runs this before every online drain cycle. Returns how many
// captures were released.
func (c *Coordinator) RecoverPendingUploads(ctx context.Context) (int, error) {
	descs, err := c.store.MediaAwaitingUpload()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range descs {
		desc := &descs[i]
		uri, err := c.uploadBlob(ctx, desc.LocalPath, desc.Kind)
		if err != nil {
			c.logger.Warn("blob upload retry failed",
				"descriptor", desc.ID, "path", desc.LocalPath, "error", err)
			continue
		}
		if err := c.store.SetMediaBlobURI(desc.ID, uri); err != nil {
			return recovered, err
		}
		if err := c.store.ReleaseBlocked(desc.OperationID, map[string]string{"blob_uri": uri}); err != nil {
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		c.logger.Info("recovered pending media uploads", "count", recovered)
	}
	return recovered, nil
}

// HandleUtterance interprets a transcript, logs it durably, and dispatches
// the recognized intent. Unrecognized utterances are logged and otherwise
// ignored.
func (c *Coordinator) HandleUtterance(ctx context.Context, remoteID int64, transcript string) (voice.Command, error) {
	cmd := c.interp.Interpret(transcript)

	record := &localstore.VoiceCommandRecord{
		WorkOrderRemoteID: remoteID,
		Kind:              string(cmd.Kind),
		Transcript:        transcript,
		Confidence:        cmd.Confidence,
		SyncState:         localstore.SyncStatePending,
	}

	if !cmd.Recognized() {
		c.logger.Debug("utterance not recognized", "work_order", remoteID, "transcript", transcript)
		return cmd, c.store.SaveVoiceCommand(record)
	}

	opID, err := c.store.Enqueue(localstore.OperationDraft{
		Target: localstore.TargetVoiceHistory,
		Verb:   localstore.VerbInsert,
		Payload: map[string]string{
			"work_order_id": strconv.FormatInt(remoteID, 10),
			"kind":          string(cmd.Kind),
			"transcript":    transcript,
			"confidence":    strconv.FormatFloat(cmd.Confidence, 'f', 4, 64),
			"processed_at":  time.Now().UTC().Format(time.RFC3339),
		},
		Priority: localstore.PriorityNormal,
	})
	if err != nil {
		return cmd, err
	}
	record.OperationID = opID
	if err := c.store.SaveVoiceCommand(record); err != nil {
		return cmd, err
	}

	switch cmd.Kind {
	case voice.KindStartTask:
		err = c.startWork(ctx, remoteID, true)
	case voice.KindCompleteTask:
		err = c.completeWork(ctx, remoteID, "", true)
	case voice.KindAppendNote:
		_, err = c.enqueueNote(ctx, remoteID, cmd.Params["note_content"], "voice", localstore.PriorityNormal)
	case voice.KindChangeStatus:
		err = c.changeStatus(ctx, remoteID, cmd.Transcript)
	case voice.KindReportIssue:
		_, err = c.enqueueIssue(ctx, remoteID, cmd.Params["description"], cmd.Params["severity"], "voice")
	}
	return cmd, err
}

// changeStatus maps a pause/resume utterance to a work order status
// update.
func (c *Coordinator) changeStatus(_ context.Context, remoteID int64, transcript string) error {
	status := StatusInProgress
	if strings.Contains(strings.ToLower(transcript), "pause") {
		status = StatusPaused
	}

	opID, err := c.store.Enqueue(localstore.OperationDraft{
		Target: localstore.TargetWorkOrder,
		Verb:   localstore.VerbUpdate,
		Key:    strconv.FormatInt(remoteID, 10),
		Payload: map[string]string{
			"status":          status,
			"voice_activated": "true",
		},
		Priority: localstore.PriorityNormal,
	})
	if err != nil {
		return err
	}

	return c.store.SaveShadow(&localstore.ShadowWorkOrder{
		RemoteID:    remoteID,
		Status:      status,
		SyncState:   localstore.SyncStatePending,
		OperationID: opID,
	})
}

// ForceSync runs a drain cycle now and reports what it did.
func (c *Coordinator) ForceSync(ctx context.Context) (syncengine.CycleResult, error) {
	return c.engine.DrainOnce(ctx)
}

// Status reports the agent's current sync posture.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	pending, err := c.store.PendingCount()
	if err != nil {
		return Status{}, err
	}
	failed, err := c.store.FailedCount()
	if err != nil {
		return Status{}, err
	}

	snap := c.engine.Telemetry()
	return Status{
		Online:       c.probe.IsOnline(ctx),
		PendingCount: pending,
		LastSyncAt:   snap.LastSyncAt,
		FailedCount:  failed,
		Health:       snap.Health,
		Backlogged:   c.cfg.QueueSoftLimit > 0 && pending > int64(c.cfg.QueueSoftLimit),
	}, nil
}

// FailedOperations lists operations the drain loop gave up on.
func (c *Coordinator) FailedOperations() ([]localstore.Operation, error) {
	return c.store.FailedOperations()
}

func (c *Coordinator) warnIfBacklogged() {
	if c.cfg.QueueSoftLimit <= 0 {
		return
	}
	if pending, err := c.store.PendingCount(); err == nil && pending > int64(c.cfg.QueueSoftLimit) {
		c.logger.Warn("operation queue above soft limit",
			"pending", pending, "soft_limit", c.cfg.QueueSoftLimit)
	}
}
