package domain

import "strings"

// ModelType identifies a detection strategy.
type ModelType string

const (
	ModelStatistical  ModelType = "STATISTICAL"
	ModelPatternBased ModelType = "PATTERN_BASED"
	ModelMLBased      ModelType = "ML_BASED"
	ModelLLMBased     ModelType = "LLM_BASED"
	ModelRuleBased    ModelType = "RULE_BASED"
)

// IsValid checks if the model type is one of the allowed values.
func (m ModelType) IsValid() bool {
	switch m {
	case ModelStatistical, ModelPatternBased, ModelMLBased, ModelLLMBased, ModelRuleBased:
		return true
	default:
		return false
	}
}

// Defaults applied when a DetectionModelConfigProps leaves them unset.
const (
	DefaultThreshold   = 0.7
	DefaultSensitivity = 0.5
)

// DetectionModelConfigProps is the constructor input for DetectionModelConfig.
// Nil Threshold and Sensitivity take the package defaults.
type DetectionModelConfigProps struct {
	ModelType   ModelType
	Threshold   *float64
	Sensitivity *float64
	Parameters  map[string]any
	ModelPath   string
	LLMModel    string
	LLMPrompt   string
}

// DetectionModelConfig is the immutable configuration of a detection run.
type DetectionModelConfig struct {
	modelType   ModelType
	threshold   float64
	sensitivity float64
	parameters  map[string]any
	modelPath   string
	llmModel    string
	llmPrompt   string
}

// NewDetectionModelConfig validates props and builds a config.
func NewDetectionModelConfig(props DetectionModelConfigProps) (DetectionModelConfig, error) {
	if props.ModelType == "" {
		return DetectionModelConfig{}, validationError("Model type is required")
	}
	if !props.ModelType.IsValid() {
		return DetectionModelConfig{}, validationError("Unknown model type %q", string(props.ModelType))
	}

	threshold := DefaultThreshold
	if props.Threshold != nil {
		threshold = *props.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return DetectionModelConfig{}, validationError("Threshold must be between 0 and 1")
	}

	sensitivity := DefaultSensitivity
	if props.Sensitivity != nil {
		sensitivity = *props.Sensitivity
	}
	if sensitivity < 0 || sensitivity > 1 {
		return DetectionModelConfig{}, validationError("Sensitivity must be between 0 and 1")
	}

	if props.ModelType == ModelLLMBased && strings.TrimSpace(props.LLMModel) == "" {
		return DetectionModelConfig{}, validationError("LLM model name is required for LLM-based detection")
	}

	return DetectionModelConfig{
		modelType:   props.ModelType,
		threshold:   threshold,
		sensitivity: sensitivity,
		parameters:  copyMap(props.Parameters),
		modelPath:   props.ModelPath,
		llmModel:    props.LLMModel,
		llmPrompt:   props.LLMPrompt,
	}, nil
}

// NewLLMModelConfig builds an LLM_BASED config. A nil threshold takes the default.
func NewLLMModelConfig(llmModel, llmPrompt string, threshold *float64, parameters map[string]any) (DetectionModelConfig, error) {
	return NewDetectionModelConfig(DetectionModelConfigProps{
		ModelType:  ModelLLMBased,
		Threshold:  threshold,
		Parameters: parameters,
		LLMModel:   llmModel,
		LLMPrompt:  llmPrompt,
	})
}

func (c DetectionModelConfig) ModelType() ModelType { return c.modelType }
func (c DetectionModelConfig) Threshold() float64   { return c.threshold }
func (c DetectionModelConfig) Sensitivity() float64 { return c.sensitivity }
func (c DetectionModelConfig) ModelPath() string    { return c.modelPath }
func (c DetectionModelConfig) LLMModel() string     { return c.llmModel }
func (c DetectionModelConfig) LLMPrompt() string    { return c.llmPrompt }

// Parameters returns a copy of the opaque strategy parameters.
func (c DetectionModelConfig) Parameters() map[string]any { return copyMap(c.parameters) }

// IsLLMBased reports whether the config selects the LLM strategy.
func (c DetectionModelConfig) IsLLMBased() bool { return c.modelType == ModelLLMBased }

// Equals compares model type, threshold and sensitivity only. Parameters,
// model path and the LLM fields are ignored.
func (c DetectionModelConfig) Equals(other DetectionModelConfig) bool {
	return c.modelType == other.modelType &&
		c.threshold == other.threshold &&
		c.sensitivity == other.sensitivity
}

// Props returns the config as constructor input, for persistence.
func (c DetectionModelConfig) Props() DetectionModelConfigProps {
	threshold, sensitivity := c.threshold, c.sensitivity
	return DetectionModelConfigProps{
		ModelType:   c.modelType,
		Threshold:   &threshold,
		Sensitivity: &sensitivity,
		Parameters:  copyMap(c.parameters),
		ModelPath:   c.modelPath,
		LLMModel:    c.llmModel,
		LLMPrompt:   c.llmPrompt,
	}
}

func copyMap[V any](in map[string]V) map[string]V {
	if in == nil {
		return nil
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
