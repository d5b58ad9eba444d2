// validate.go: startup validation of loaded settings
package conf

import (
	"errors"
	"fmt"
	"time"
)

// ValidateSettings checks the loaded settings for values the agent cannot
// run with. It returns all problems found, joined.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if err := validateStoreSettings(&settings.Store); err != nil {
		errs = append(errs, err)
	}
	if err := validateSyncSettings(&settings.Sync); err != nil {
		errs = append(errs, err)
	}
	if err := validateTimeoutSettings(&settings.Timeouts); err != nil {
		errs = append(errs, err)
	}
	if err := validateVoiceSettings(&settings.Voice); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateStoreSettings(s *StoreSettings) error {
	if s.Path == "" {
		return errors.New("store.path must not be empty")
	}
	return nil
}

func validateSyncSettings(s *SyncSettings) error {
	var errs []error
	if s.BaseInterval < time.Second {
		errs = append(errs, fmt.Errorf("sync.baseinterval must be at least 1s, got %v", s.BaseInterval))
	}
	if s.BatchCap < 1 {
		errs = append(errs, fmt.Errorf("sync.batchcap must be at least 1, got %d", s.BatchCap))
	}
	if s.AttemptCeiling < 1 {
		errs = append(errs, fmt.Errorf("sync.attemptceiling must be at least 1, got %d", s.AttemptCeiling))
	}
	if s.MinRetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.minretryinterval must be positive, got %v", s.MinRetryInterval))
	}
	if s.RetentionWindow <= 0 {
		errs = append(errs, fmt.Errorf("sync.retentionwindow must be positive, got %v", s.RetentionWindow))
	}
	return errors.Join(errs...)
}

func validateTimeoutSettings(s *TimeoutSettings) error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"timeouts.probe":       s.Probe,
		"timeouts.adapter":     s.Adapter,
		"timeouts.blob":        s.Blob,
		"timeouts.transcriber": s.Transcriber,
		"timeouts.translator":  s.Translator,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	return errors.Join(errs...)
}

func validateVoiceSettings(s *VoiceSettings) error {
	var errs []error
	for kind, threshold := range s.Thresholds {
		if threshold < 0 || threshold > 1 {
			errs = append(errs, fmt.Errorf("voice.thresholds[%s] must be within [0,1], got %v", kind, threshold))
		}
	}
	for i := range s.Patterns {
		if s.Patterns[i].Kind == "" || s.Patterns[i].Phrase == "" {
			errs = append(errs, fmt.Errorf("voice.patterns[%d] needs both kind and phrase", i))
		}
	}
	return errors.Join(errs...)
}
