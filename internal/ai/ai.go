// Package ai talks to the text-generation collaborator that answers pharmacy
// questions and analyzes OCR'd prescriptions. Providers are interchangeable
// behind Generator; callers decide how to degrade when generation fails.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Em-Vi/MediScan/internal/config"
)

// Generator produces a free-text reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("ai: empty completion")

// Messages returned to users in place of a model reply.
const (
	FallbackReply          = "I'm sorry, I encountered an error while processing your request. Please try again."
	UnreadableImageMessage = "No text could be extracted from the image. The image might be unclear, rotated, or doesn't contain readable text."
	AnalysisFailedMessage  = "I'm sorry, I encountered an error while analyzing the image. Please try again with a clearer photo."
	MockReply              = "This is a mock response because the GEMINI_API_KEY is not set."
)

// SystemPrompt frames every request as coming to a pharmacy assistant.
const SystemPrompt = `You are an advanced AI-powered pharmacy assistant named AutoDoc designed to support pharmacists in analyzing prescriptions, detecting drug interactions, providing patient counseling points, and assessing prescription safety. Your responses should be structured, concise, and clinically accurate based on the latest drug databases. Follow these guidelines when processing input:
1. Drug Interaction Detection:
   - Identify potential major and moderate drug interactions.
   - Provide a brief explanation of the interaction, possible adverse effects, and recommendations.
   - If a serious interaction exists, highlight it with a warning message.
2. Patient Counseling Points:
   - Provide essential patient counseling points, including dosage instructions, administration guidelines, common side effects, and storage recommendations.
   - Highlight any lifestyle modifications needed (e.g., avoid alcohol, take with food).
3. Prescription Safety Assessment:
   - Extract age and weight of the patient from the prescription.
   - Verify if prescribed drug doses are appropriate for the patient's age and weight.
   - Flag overdoses or subtherapeutic doses and provide a suggestion for dose correction.
   - Identify any contraindicated drugs for the patient based on age.
4. General Drug Queries:
   - Answer any queries about drug mechanism of action, indications, contraindications, side effects, metabolism, and excretion.
   - Provide information on alternative medications if needed.
If multiple drugs are provided, process all of them sequentially and summarize findings clearly. Ensure all responses are evidence-based and easy to understand for healthcare professionals.`

const prescriptionTemplate = `I have extracted the following text from a prescription image using OCR. Please analyze it and provide a structured response with the following information:

OCR EXTRACTED TEXT:
%TEXT%

Please provide:
1. All medications identified with their dosages and frequencies
2. Any patient information detected (age, weight, etc.)
3. Potential issues with dosages or drug combinations
4. Appropriate patient counseling points for each medication
5. Any parts that seem illegible or unclear from the OCR text

Format your response in clear sections with appropriate markdown formatting. If the OCR text is incomplete or unclear, please indicate this and provide analysis based on what is available.`

// ChatPrompt wraps a user message with the system prompt.
func ChatPrompt(message string) string {
	return SystemPrompt + "\n\nUser: " + message
}

// PrescriptionPrompt wraps OCR output with the system prompt and the
// analysis instructions.
func PrescriptionPrompt(extracted string) string {
	return SystemPrompt + "\n\n" + strings.Replace(prescriptionTemplate, "%TEXT%", extracted, 1)
}

// Static always returns Reply. It backs AI_PROVIDER=mock and deployments
// without credentials.
type Static struct {
	Reply string
}

func (s Static) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Reply, nil
}

// New builds the Generator selected by cfg. A Gemini provider without an API
// key degrades to Static{MockReply}; degraded reports that case.
func New(cfg config.AIConfig) (g Generator, degraded bool, err error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch cfg.Provider {
	case "mock":
		return Static{Reply: MockReply}, false, nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, false, errors.New("ai: OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, timeout), false, nil
	case "gemini", "":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return Static{Reply: MockReply}, true, nil
		}
		return NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, timeout), false, nil
	default:
		return nil, false, errors.New("ai: unknown provider " + cfg.Provider)
	}
}
