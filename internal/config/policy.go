package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"alfredoptarigan/interview-engine/internal/models"
)

// LoadPolicyDefaults reads the interview policy file. A missing file is not an
// error; built-in defaults are returned instead.
func LoadPolicyDefaults(path string) (*models.PolicyDefaults, error) {
	defaults := models.NewPolicyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, defaults); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := validatePolicyDefaults(defaults); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	return defaults, nil
}

func validatePolicyDefaults(d *models.PolicyDefaults) error {
	if d.General.MaxTurns <= 0 {
		return fmt.Errorf("general.max_turns must be positive, got %d", d.General.MaxTurns)
	}
	if d.JobSpecific.MaxTurns <= 0 {
		return fmt.Errorf("job_specific.max_turns must be positive, got %d", d.JobSpecific.MaxTurns)
	}

	fallbacks := map[string]string{
		"fallbacks.first_question":      d.Fallbacks.FirstQuestion,
		"fallbacks.follow_up_question":  d.Fallbacks.FollowUpQuestion,
		"fallbacks.evaluation_feedback": d.Fallbacks.EvaluationFeedback,
		"fallbacks.introduction":        d.Fallbacks.Introduction,
	}
	for key, value := range fallbacks {
		if value == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	return nil
}
