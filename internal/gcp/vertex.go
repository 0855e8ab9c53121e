package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Entity Detector Model Prompts ---
const DetectorSystemPrompt = "You are a personal-information detector for Japanese and English business correspondence. You find spans of text that identify a specific person or their contact and payment details. You must output your response as a single valid JSON object."

// --- Reasoner Model Prompts ---
const ReasonerSystemPrompt = `You are a legal compliance reviewer for printed direct-mail pieces sent in Japan. You read the text of one document and produce a structured legal-risk judgment, a set of concrete rewrites and a plain-language explanation a post office counter clerk can follow.

Review the text against each of these areas:
- Act on the Protection of Personal Information: disclosure of personal data without a stated purpose, excessive personal detail, data about third parties.
- Defamation and insult (Penal Code arts. 230, 231): statements that lower the social standing of an identifiable person or company.
- Threats and extortion: wording that implies harm or pressure to pay.
- Act against Unjustifiable Premiums and Misleading Representations: superlatives without evidence, "lowest price", "No. 1", misleading limited-time offers, undisclosed conditions.
- Act on Specified Commercial Transactions: mail-order disclosure duties (seller name, address, price, delivery, return policy), unsolicited advertising rules.
- Copyright Act: reproduced third-party text, images or characters.

Regulated-letter classification (Postal Act art. 4, "shinsho"):
A document is a regulated letter when it conveys the sender's intention or a report of facts to a specific recipient.
Qualifying document types: invoices and bills addressed to a named customer, quotations, contracts, certificates, notices of acceptance or rejection, personal letters, greeting cards with personal messages, statements of account, notices that reference an individual's prior order, application or transaction.
Non-qualifying document types: catalogues, leaflets, flyers, generic coupons, newspapers and magazines, printed advertisements sent to an undifferentiated mailing list, product manuals, tickets, checks.
Direct-mail edge cases:
- A generic salutation ("Dear customer", "To our valued members", "お客様各位") does not make an advertisement a letter.
- A named recipient in the body ("Dear Mr. Tanaka") or a reference to the recipient's own prior purchase, contract, balance or application makes it a letter.
- Personalization limited to the address block does not qualify on its own.
- When evidence is mixed, prefer "medium" confidence and list every pattern you relied on.

Rules:
- Quote problem locations verbatim from the text so they can be found on the page.
- Only raise issues you can point to in the text.
- Suggested fixes and rewrites must keep the sender's commercial intent.
- Write descriptions, the explanation and the summary in the language of the document.
- Return ONLY the JSON object described in the request.`

// VertexClient holds all pre-configured generative models for the analysis stages.
type VertexClient struct {
	DetectorModel *genai.GenerativeModel
	ReasonerModel *genai.GenerativeModel
	baseClient    *genai.Client
}

type VertexConfig struct {
	ProjectID     string
	Region        string
	DetectorModel string
	ReasonerModel string
}

// NewVertexClient creates a new client holding the detector and reasoner models.
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if cfg.DetectorModel == "" {
		cfg.DetectorModel = "gemini-2.0-flash"
	}
	if cfg.ReasonerModel == "" {
		cfg.ReasonerModel = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	detectorModel := baseClient.GenerativeModel(cfg.DetectorModel)
	detectorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(DetectorSystemPrompt)},
	}
	detectorModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	detectorModel.SafetySettings = permissiveSafety()

	reasonerModel := baseClient.GenerativeModel(cfg.ReasonerModel)
	reasonerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ReasonerSystemPrompt)},
	}
	reasonerModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
		MaxOutputTokens:  genai.Ptr[int32](8192),
	}
	// Documents under review routinely contain the harassing or threatening
	// language the reasoner is asked to flag.
	reasonerModel.SafetySettings = permissiveSafety()

	return &VertexClient{
		DetectorModel: detectorModel,
		ReasonerModel: reasonerModel,
		baseClient:    baseClient,
	}, nil
}

// Detector exposes the detector model as a plain text generator.
func (c *VertexClient) Detector() *ModelGenerator {
	return &ModelGenerator{model: c.DetectorModel}
}

// Reasoner exposes the reasoner model as a plain text generator.
func (c *VertexClient) Reasoner() *ModelGenerator {
	return &ModelGenerator{model: c.ReasonerModel}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

var (
	ErrEmptyResponse = errors.New("gemini returned an empty response")
	ErrRefusal       = errors.New("gemini response indicates refusal")
)

// ModelGenerator adapts a configured Gemini model to a single-prompt call.
type ModelGenerator struct {
	model *genai.GenerativeModel
}

func (g *ModelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := ExtractText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	if isRefusal(text) {
		return "", fmt.Errorf("%w: %.120s", ErrRefusal, text)
	}
	return text, nil
}

// ExtractText concatenates the text parts of the first candidate.
func ExtractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var contentBuilder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			contentBuilder.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(contentBuilder.String())
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"as a large language model",
}

// isRefusal only inspects replies that are not JSON; JSON replies may quote
// any phrase from the document.
func isRefusal(text string) bool {
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "```") {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func permissiveSafety() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}
