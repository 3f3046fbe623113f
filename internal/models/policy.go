package models

const (
	DefaultGeneralMaxTurns     = 10
	DefaultJobSpecificMaxTurns = 15
)

const (
	DefaultFirstQuestion      = "Could you tell me about your relevant experience for this position?"
	DefaultFollowUpQuestion   = "Can you elaborate more on your previous answer?"
	DefaultEvaluationFeedback = "Your answer was recorded, but it could not be evaluated automatically."
	DefaultIntroduction       = "Welcome to your interview. I'll be asking you several questions to assess your skills and experience. Let's get started."
)

// InterviewPolicy is the configuration snapshot a session runs under. It is
// persisted on the interview row when the session is created.
type InterviewPolicy struct {
	MandatoryQuestions []string `json:"mandatory_questions"`
	MaxTurns           int      `json:"max_turns"`
	Difficulty         string   `json:"difficulty,omitempty"`
	PersonalityTraits  []string `json:"personality_traits,omitempty"`
	TechnicalFocus     []string `json:"technical_focus,omitempty"`
}

type PolicyProfile struct {
	MaxTurns          int      `yaml:"max_turns"`
	Difficulty        string   `yaml:"difficulty"`
	PersonalityTraits []string `yaml:"personality_traits"`
	TechnicalFocus    []string `yaml:"technical_focus"`
}

type FallbackTexts struct {
	FirstQuestion      string `yaml:"first_question"`
	FollowUpQuestion   string `yaml:"follow_up_question"`
	EvaluationFeedback string `yaml:"evaluation_feedback"`
	Introduction       string `yaml:"introduction"`
}

type PolicyDefaults struct {
	General     PolicyProfile `yaml:"general"`
	JobSpecific PolicyProfile `yaml:"job_specific"`
	Fallbacks   FallbackTexts `yaml:"fallbacks"`
}

func NewPolicyDefaults() *PolicyDefaults {
	return &PolicyDefaults{
		General:     PolicyProfile{MaxTurns: DefaultGeneralMaxTurns, Difficulty: "medium"},
		JobSpecific: PolicyProfile{MaxTurns: DefaultJobSpecificMaxTurns, Difficulty: "medium"},
		Fallbacks: FallbackTexts{
			FirstQuestion:      DefaultFirstQuestion,
			FollowUpQuestion:   DefaultFollowUpQuestion,
			EvaluationFeedback: DefaultEvaluationFeedback,
			Introduction:       DefaultIntroduction,
		},
	}
}

// GeneralPolicy returns the policy for an assessment with no job attached.
func (d *PolicyDefaults) GeneralPolicy() InterviewPolicy {
	return InterviewPolicy{
		MandatoryQuestions: []string{},
		MaxTurns:           d.General.MaxTurns,
		Difficulty:         d.General.Difficulty,
		PersonalityTraits:  d.General.PersonalityTraits,
		TechnicalFocus:     d.General.TechnicalFocus,
	}
}

// JobPolicy layers the job's interview settings over the job-specific profile.
func (d *PolicyDefaults) JobPolicy(settings InterviewSettings) InterviewPolicy {
	policy := InterviewPolicy{
		MandatoryQuestions: []string{},
		MaxTurns:           d.JobSpecific.MaxTurns,
		Difficulty:         d.JobSpecific.Difficulty,
		PersonalityTraits:  d.JobSpecific.PersonalityTraits,
		TechnicalFocus:     d.JobSpecific.TechnicalFocus,
	}

	for _, q := range settings.MustAskQuestions {
		if q != "" {
			policy.MandatoryQuestions = append(policy.MandatoryQuestions, q)
		}
	}
	if settings.DifficultyLevel != "" {
		policy.Difficulty = settings.DifficultyLevel
	}
	if len(settings.PersonalityTraits) > 0 {
		policy.PersonalityTraits = settings.PersonalityTraits
	}
	if len(settings.TechnicalFocus) > 0 {
		policy.TechnicalFocus = settings.TechnicalFocus
	}

	return policy
}
