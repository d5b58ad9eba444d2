// records.go: shadow work orders, voice command log and media descriptors
package localstore

// SaveShadow inserts a shadow work order row expressing a pending intent
// against a remote work order. Each intent gets its own row; the most
// recently updated row for a remote id is the technician's current intent.
func (s *Store) SaveShadow(shadow *ShadowWorkOrder) error {
	if shadow.SyncState == "" {
		shadow.SyncState = SyncStatePending
	}
	shadow.UpdatedAt = now()
	if err := s.db.Create(shadow).Error; err != nil {
		return transient(err, "save_shadow")
	}
	return nil
}

// LatestShadow returns the most recently updated shadow row for a remote
// work order, synced or not. The offline UI reads this as authoritative.
func (s *Store) LatestShadow(remoteID int64) (ShadowWorkOrder, error) {
	var shadow ShadowWorkOrder
	err := s.db.Where("remote_id = ?", remoteID).
		Order("updated_at DESC, id DESC").
		First(&shadow).Error
	if err != nil {
		return ShadowWorkOrder{}, transient(err, "latest_shadow")
	}
	return shadow, nil
}

// SaveVoiceCommand inserts a voice command log row.
func (s *Store) SaveVoiceCommand(record *VoiceCommandRecord) error {
	if record.SyncState == "" {
		record.SyncState = SyncStatePending
	}
	record.CreatedAt = now()
	if err := s.db.Create(record).Error; err != nil {
		return transient(err, "save_voice_command")
	}
	return nil
}

// SaveMediaDescriptor inserts a media descriptor row.
func (s *Store) SaveMediaDescriptor(desc *MediaDescriptor) error {
	if desc.SyncState == "" {
		desc.SyncState = SyncStatePending
	}
	desc.CreatedAt = now()
	if err := s.db.Create(desc).Error; err != nil {
		return transient(err, "save_media_descriptor")
	}
	return nil
}

// SetMediaBlobURI records the blob URI produced by the upload step.
func (s *Store) SetMediaBlobURI(id uint, uri string) error {
	err := s.db.Model(&MediaDescriptor{}).
		Where("id = ?", id).
		Update("blob_uri", uri).Error
	if err != nil {
		return transient(err, "set_media_blob_uri")
	}
	return nil
}

// SetMediaOperation links a media descriptor to the op_queue row that will
// carry it to the central store.
func (s *Store) SetMediaOperation(id, operationID uint) error {
	err := s.db.Model(&MediaDescriptor{}).
		Where("id = ?", id).
		Update("operation_id", operationID).Error
	if err != nil {
		return transient(err, "set_media_operation")
	}
	return nil
}

// MediaAwaitingUpload lists descriptors whose blob upload has not yet
// produced a URI. Their queue operations are still held blocked.
func (s *Store) MediaAwaitingUpload() ([]MediaDescriptor, error) {
	var descs []MediaDescriptor
	err := s.db.Where("blob_uri = '' AND operation_id <> 0 AND sync_state = ?", SyncStatePending).
		Order("id ASC").
		Find(&descs).Error
	if err != nil {
		return nil, transient(err, "media_awaiting_upload")
	}
	return descs, nil
}

// GetMediaDescriptor fetches a media descriptor by id.
func (s *Store) GetMediaDescriptor(id uint) (MediaDescriptor, error) {
	var desc MediaDescriptor
	if err := s.db.First(&desc, id).Error; err != nil {
		return MediaDescriptor{}, transient(err, "get_media_descriptor")
	}
	return desc, nil
}

// VoiceCommands lists logged voice commands for a work order, newest first.
func (s *Store) VoiceCommands(remoteID int64) ([]VoiceCommandRecord, error) {
	var records []VoiceCommandRecord
	err := s.db.Where("work_order_remote_id = ?", remoteID).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, transient(err, "voice_commands")
	}
	return records, nil
}
