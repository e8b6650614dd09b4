package domain

import (
	"time"

	"github.com/google/uuid"
)

// Backend identifies which HTTP surface a model is called through. All
// current backends speak an OpenAI-compatible chat completions dialect but
// differ in base URL, auth and response quirks.
const (
	BackendOpenAI     = "openai"
	BackendOpenRouter = "openrouter"
	BackendDeepSeek   = "deepseek"
	BackendMistral    = "mistral"
)

// Timeout classes. Reasoning models stream long chains of thought before the
// answer and need materially longer deadlines than standard chat models.
const (
	TimeoutClassStandard  = "standard"
	TimeoutClassReasoning = "reasoning"
)

// Prompt variants, selected per model quirk.
const (
	PromptVariantPlain           = "plain"
	PromptVariantLanguageEnforce = "language_enforce"
	PromptVariantJSONEmphasis    = "json_emphasis"
	PromptVariantMinimal         = "minimal"
)

// Response handlers applied to raw model output before parsing.
const (
	ResponseHandlerPassthrough   = "passthrough"
	ResponseHandlerStripThinking = "strip_thinking"
	ResponseHandlerExtractJSON   = "extract_json"
)

type Model struct {
	ID                  uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name                string     `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Backend             string     `gorm:"column:backend;not null;index" json:"backend"`
	UpstreamModel       string     `gorm:"column:upstream_model;not null" json:"upstream_model"`
	Active              bool       `gorm:"column:active;not null;default:true;index" json:"active"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures;not null;default:0" json:"consecutive_failures"`
	LastFailureAt       *time.Time `gorm:"column:last_failure_at" json:"last_failure_at,omitempty"`
	DisabledAt          *time.Time `gorm:"column:disabled_at" json:"disabled_at,omitempty"`
	FallbackModelID     *uuid.UUID `gorm:"type:uuid;column:fallback_model_id" json:"fallback_model_id,omitempty"`
	TimeoutClass        string     `gorm:"column:timeout_class;not null;default:standard" json:"timeout_class"`
	PromptVariant       string     `gorm:"column:prompt_variant;not null;default:plain" json:"prompt_variant"`
	ResponseHandler     string     `gorm:"column:response_handler;not null;default:passthrough" json:"response_handler"`
	CostPerCallUSD      float64    `gorm:"column:cost_per_call_usd;not null;default:0" json:"cost_per_call_usd"`
	CreatedAt           time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Model) TableName() string { return "model" }
